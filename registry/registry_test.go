package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kleenlab/ucsfbids/errors"
)

func TestGet_FallsThroughToParent(t *testing.T) {
	base := New[string](nil)
	require.NoError(t, base.Add("BIDS", "base-bids", Options{"rename": false}, false))

	ct := base.Child()
	require.NoError(t, ct.Add("UPENN", "ct-upenn", nil, false))

	e, err := ct.Get("BIDS")
	require.NoError(t, err)
	assert.Equal(t, "base-bids", e.Handler)
	assert.Equal(t, false, e.Defaults["rename"])

	e, err = ct.Get("UPENN")
	require.NoError(t, err)
	assert.Equal(t, "ct-upenn", e.Handler)

	_, err = base.Get("UPENN")
	require.Error(t, err)
	assert.Equal(t, errors.CodeMissingCapability, errors.GetCode(err))
}

func TestAdd(t *testing.T) {
	t.Run("rejects duplicates without overwrite", func(t *testing.T) {
		r := New[string](nil)
		require.NoError(t, r.Add("BIDS", "first", nil, false))

		err := r.Add("BIDS", "second", nil, false)
		require.Error(t, err)
		assert.Equal(t, errors.CodeAlreadyExists, errors.GetCode(err))

		e, _ := r.Get("BIDS")
		assert.Equal(t, "first", e.Handler)
	})

	t.Run("overwrite replaces local entry", func(t *testing.T) {
		r := New[string](nil)
		require.NoError(t, r.Add("BIDS", "first", nil, false))
		require.NoError(t, r.Add("BIDS", "second", nil, true))

		e, _ := r.Get("BIDS")
		assert.Equal(t, "second", e.Handler)
	})

	t.Run("shadowing never mutates parent", func(t *testing.T) {
		parent := New[string](nil)
		require.NoError(t, parent.Add("BIDS", "parent", nil, false))
		child := parent.Child()
		require.NoError(t, child.Add("BIDS", "child", nil, false))

		e, _ := parent.Get("BIDS")
		assert.Equal(t, "parent", e.Handler)
		e, _ = child.Get("BIDS")
		assert.Equal(t, "child", e.Handler)
	})

	t.Run("empty tag", func(t *testing.T) {
		r := New[string](nil)
		err := r.Add("", "x", nil, false)
		assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	})

	t.Run("defaults are copied", func(t *testing.T) {
		r := New[string](nil)
		defaults := Options{"k": "v"}
		require.NoError(t, r.Add("BIDS", "x", defaults, false))
		defaults["k"] = "mutated"

		e, _ := r.Get("BIDS")
		assert.Equal(t, "v", e.Defaults["k"])
	})
}

func TestRequire(t *testing.T) {
	parent := New[string](nil)
	require.NoError(t, parent.Add("BIDS", "inherited", nil, false))
	r := parent.Child()

	e, err := r.Require("BIDS", "fallback", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "inherited", e.Handler)
	assert.False(t, r.HasLocal("BIDS"))

	e, err = r.Require("UPENN", "fallback", Options{"a": 1}, false)
	require.NoError(t, err)
	assert.Equal(t, "fallback", e.Handler)
	assert.True(t, r.HasLocal("UPENN"))
	assert.False(t, parent.Has("UPENN"))

	e, err = r.Require("BIDS", "forced", nil, true)
	require.NoError(t, err)
	assert.Equal(t, "forced", e.Handler)

	e, _ = parent.Get("BIDS")
	assert.Equal(t, "inherited", e.Handler)
}

func TestClone_IsolatesInstances(t *testing.T) {
	base := New[string](nil)
	require.NoError(t, base.Add("BIDS", "base", nil, false))
	class := base.Child()
	require.NoError(t, class.Add("Pia", "class-pia", nil, false))

	a := class.Clone()
	b := class.Clone()
	require.NoError(t, a.Add("UPENN", "only-a", nil, false))

	assert.True(t, a.Has("UPENN"))
	assert.False(t, b.Has("UPENN"))
	assert.False(t, class.Has("UPENN"))
	assert.True(t, b.Has("Pia"))
	assert.True(t, b.Has("BIDS"))
	assert.Nil(t, a.Parent())
}

func TestClone_IsASnapshot(t *testing.T) {
	base := New[string](nil)
	require.NoError(t, base.Add("BIDS", "base", nil, false))
	class := base.Child()
	require.NoError(t, class.Add("BIDS", "class", Options{"k": "v"}, false))

	instance := class.Clone()
	require.NoError(t, base.Add("late-base", "x", nil, false))
	require.NoError(t, class.Add("late-class", "y", nil, false))

	assert.False(t, instance.Has("late-base"))
	assert.False(t, instance.Has("late-class"))
	e, err := instance.Get("BIDS")
	require.NoError(t, err)
	assert.Equal(t, "class", e.Handler)

	e.Defaults["k"] = "changed"
	orig, _ := class.Get("BIDS")
	assert.Equal(t, "v", orig.Defaults["k"])
}

func TestRemove(t *testing.T) {
	parent := New[string](nil)
	require.NoError(t, parent.Add("BIDS", "parent", nil, false))
	child := parent.Child()
	require.NoError(t, child.Add("BIDS", "child", nil, false))

	child.Remove("BIDS")
	e, err := child.Get("BIDS")
	require.NoError(t, err)
	assert.Equal(t, "parent", e.Handler)
}

func TestTags(t *testing.T) {
	parent := New[int](nil)
	require.NoError(t, parent.Add("b", 1, nil, false))
	child := parent.Child()
	require.NoError(t, child.Add("a", 2, nil, false))
	require.NoError(t, child.Add("b", 3, nil, false))

	assert.Equal(t, []string{"a", "b"}, child.Tags())
}

func TestOptionsMerge(t *testing.T) {
	base := Options{"a": 1, "b": 2}
	merged := base.Merge(Options{"b": 3, "c": 4})

	assert.Equal(t, Options{"a": 1, "b": 3, "c": 4}, merged)
	assert.Equal(t, Options{"a": 1, "b": 2}, base)
	assert.Equal(t, Options{}, Options(nil).Merge(nil))
}

// Lookups resolve to the nearest layer that defines a tag, and additions on
// a layer are never visible from its ancestors.
func TestLayering_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		depth := rapid.IntRange(1, 5).Draw(rt, "depth")
		tags := []string{"BIDS", "Pia", "UPENN", "Enigma"}

		layers := []*Registry[int]{New[int](nil)}
		for i := 1; i < depth; i++ {
			layers = append(layers, layers[i-1].Child())
		}

		for i, layer := range layers {
			for _, tag := range tags {
				if rapid.Bool().Draw(rt, "add") {
					require.NoError(rt, layer.Add(tag, i, nil, false))
				}
			}
		}

		for level, layer := range layers {
			for _, tag := range tags {
				want, found := -1, false
				for i := level; i >= 0; i-- {
					if layers[i].HasLocal(tag) {
						want, found = i, true
						break
					}
				}

				e, err := layer.Get(tag)
				if !found {
					require.Error(rt, err)
					continue
				}
				require.NoError(rt, err)
				require.Equal(rt, want, e.Handler)
			}
		}
	})
}
