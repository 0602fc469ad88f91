package inventory

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"

	"github.com/kleenlab/ucsfbids/errors"
)

func write(t *testing.T, fsys core.FS, path, content string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, fsys.WriteFile(path, []byte(content), 0o644))
}

func TestTake(t *testing.T) {
	fsys := billy.NewMemory()
	write(t, fsys, "/ds/dataset_description.json", "{}")
	write(t, fsys, "/ds/sub-01/sub-01_meta.json", `{"a":1}`)
	write(t, fsys, "/ds/sub-01/ses-01/anat/sub-01_ses-01_T1w.nii.gz", "nifti")
	require.NoError(t, fsys.MkdirAll("/ds/sub-02", 0o755))

	inv, err := Take(fsys, "/ds")
	require.NoError(t, err)

	paths := make([]string, 0, inv.Len())
	for _, e := range inv.Entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{
		"dataset_description.json",
		"sub-01/ses-01/anat/sub-01_ses-01_T1w.nii.gz",
		"sub-01/sub-01_meta.json",
	}, paths)
	assert.Equal(t, int64(2+7+5), inv.Size())

	entry, ok := inv.Lookup("sub-01/sub-01_meta.json")
	require.True(t, ok)
	assert.Equal(t, int64(7), entry.Size)
	assert.Len(t, entry.Digest, 16)

	_, ok = inv.Lookup("missing")
	assert.False(t, ok)
}

func TestTake_DigestMatchesContent(t *testing.T) {
	fsys := billy.NewMemory()
	write(t, fsys, "/ds/a.txt", "hello")

	inv, err := Take(fsys, "/ds")
	require.NoError(t, err)
	require.Equal(t, 1, inv.Len())

	want := xxh3.Hash([]byte("hello"))
	assert.Equal(t, want, mustParseHex(t, inv.Entries[0].Digest))
}

func TestTake_MissingRoot(t *testing.T) {
	_, err := Take(billy.NewMemory(), "/nope")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeIO))
}

func TestDigestIgnoresRoot(t *testing.T) {
	fsys := billy.NewMemory()
	write(t, fsys, "/a/x/file.json", "{}")
	write(t, fsys, "/b/x/file.json", "{}")

	a, err := Take(fsys, "/a")
	require.NoError(t, err)
	b, err := Take(fsys, "/b")
	require.NoError(t, err)
	assert.Equal(t, a.Digest(), b.Digest())

	write(t, fsys, "/b/x/file.json", "{ }")
	b, err = Take(fsys, "/b")
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest(), b.Digest())
}

func TestDiff(t *testing.T) {
	fsys := billy.NewMemory()
	write(t, fsys, "/ds/keep", "same")
	write(t, fsys, "/ds/change", "before")
	write(t, fsys, "/ds/remove", "gone")
	before, err := Take(fsys, "/ds")
	require.NoError(t, err)

	write(t, fsys, "/ds/change", "after!")
	write(t, fsys, "/ds/add", "new")
	require.NoError(t, fsys.Remove("/ds/remove"))
	after, err := Take(fsys, "/ds")
	require.NoError(t, err)

	added, removed, changed := before.Diff(after)
	assert.Equal(t, []string{"add"}, added)
	assert.Equal(t, []string{"remove"}, removed)
	assert.Equal(t, []string{"change"}, changed)

	added, removed, changed = after.Diff(after)
	assert.Empty(t, added)
	assert.Empty(t, removed)
	assert.Empty(t, changed)
}

func mustParseHex(t *testing.T, s string) uint64 {
	t.Helper()
	v, err := strconv.ParseUint(s, 16, 64)
	require.NoError(t, err)
	return v
}
