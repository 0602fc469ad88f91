// Package registry implements a layered, string keyed capability registry.
//
// A Registry maps a capability tag ("BIDS", "Pia", ...) to a handler and a
// set of default options. Each layer may declare a parent layer: lookups
// that miss locally fall through to the parent, and additions always land
// in the local layer, so a child layer can shadow but never mutate the
// entries it inherits.
//
//	base := registry.New[Factory](nil)
//	_ = base.Add("BIDS", newExporter, nil, false)
//
//	ct := base.Child()               // CT modality defaults
//	instance := ct.Clone()           // one CT modality, a copy of ct and base
//	entry, _ := instance.Get("BIDS") // copied from base
package registry

import (
	"maps"
	"sort"
	"sync"

	"github.com/kleenlab/ucsfbids/errors"
)

// Options holds the default arguments attached to an entry.
type Options map[string]any

// Merge returns a new Options containing o overlaid with over.
func (o Options) Merge(over Options) Options {
	out := make(Options, len(o)+len(over))
	maps.Copy(out, o)
	maps.Copy(out, over)
	return out
}

// Entry is one registered capability.
type Entry[H any] struct {
	Tag      string
	Handler  H
	Defaults Options
}

// Registry is one layer of a capability chain.
type Registry[H any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[H]
	parent  *Registry[H]
}

// New creates an empty layer on top of parent. A nil parent starts a new chain.
func New[H any](parent *Registry[H]) *Registry[H] {
	return &Registry[H]{
		entries: make(map[string]Entry[H]),
		parent:  parent,
	}
}

// Parent returns the layer lookups fall through to, or nil.
func (r *Registry[H]) Parent() *Registry[H] {
	return r.parent
}

// Child creates an empty layer whose parent is r.
func (r *Registry[H]) Child() *Registry[H] {
	return New(r)
}

// Clone copies every entry resolvable through r into a new layer without a
// parent. Nearer layers win, as in Get. Later additions to r or to any of
// its parents are not visible in the copy, and the copy never writes back.
func (r *Registry[H]) Clone() *Registry[H] {
	var chain []*Registry[H]
	for layer := r; layer != nil; layer = layer.parent {
		chain = append(chain, layer)
	}

	out := New[H](nil)
	for i := len(chain) - 1; i >= 0; i-- {
		layer := chain[i]
		layer.mu.RLock()
		for tag, e := range layer.entries {
			out.entries[tag] = Entry[H]{Tag: tag, Handler: e.Handler, Defaults: maps.Clone(e.Defaults)}
		}
		layer.mu.RUnlock()
	}
	return out
}

// Get returns the entry for tag from the nearest layer that defines it.
// A miss on the whole chain returns a CodeMissingCapability error.
func (r *Registry[H]) Get(tag string) (Entry[H], error) {
	if e, ok := r.lookup(tag); ok {
		return e, nil
	}
	return Entry[H]{}, errors.NewWithContext(
		errors.CodeMissingCapability,
		"capability not registered: "+tag,
		map[string]interface{}{"tag": tag, "available": r.Tags()},
	)
}

// Has reports whether tag resolves anywhere in the chain.
func (r *Registry[H]) Has(tag string) bool {
	_, ok := r.lookup(tag)
	return ok
}

// HasLocal reports whether tag is defined in this layer.
func (r *Registry[H]) HasLocal(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[tag]
	return ok
}

func (r *Registry[H]) lookup(tag string) (Entry[H], bool) {
	for layer := r; layer != nil; layer = layer.parent {
		layer.mu.RLock()
		e, ok := layer.entries[tag]
		layer.mu.RUnlock()
		if ok {
			return e, true
		}
	}
	return Entry[H]{}, false
}

// Add registers handler under tag in this layer.
// An existing local entry is only replaced when overwrite is true; entries
// of parent layers are shadowed, never modified.
func (r *Registry[H]) Add(tag string, handler H, defaults Options, overwrite bool) error {
	if tag == "" {
		return errors.New(errors.CodeInvalidInput, "capability tag cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tag]; exists && !overwrite {
		return errors.NewWithContext(
			errors.CodeAlreadyExists,
			"capability already registered: "+tag,
			map[string]interface{}{"tag": tag},
		)
	}

	r.entries[tag] = Entry[H]{Tag: tag, Handler: handler, Defaults: maps.Clone(defaults)}
	return nil
}

// Require returns the effective entry for tag, first adding handler to this
// layer when tag is not resolvable anywhere in the chain or overwrite is set.
// The caller instantiates the returned handler against its bound object.
func (r *Registry[H]) Require(tag string, handler H, defaults Options, overwrite bool) (Entry[H], error) {
	if overwrite || !r.Has(tag) {
		if err := r.Add(tag, handler, defaults, true); err != nil {
			return Entry[H]{}, err
		}
	}
	return r.Get(tag)
}

// Remove deletes tag from this layer. Parent layers are untouched, so the
// tag may still resolve through them.
func (r *Registry[H]) Remove(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, tag)
}

// Tags returns the sorted set of tags resolvable through the chain.
func (r *Registry[H]) Tags() []string {
	seen := make(map[string]struct{})
	for layer := r; layer != nil; layer = layer.parent {
		layer.mu.RLock()
		for tag := range layer.entries {
			seen[tag] = struct{}{}
		}
		layer.mu.RUnlock()
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
