// Package inventory records the files below a directory together with their
// sizes and xxh3 content digests.
//
// Inventories are cheap to compare, which makes them useful for reporting
// what a dataset contains and for checking that a repeated import left the
// tree unchanged.
package inventory

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/jmgilman/go/fs/core"
	"github.com/zeebo/xxh3"

	"github.com/kleenlab/ucsfbids/errors"
)

// Entry describes one regular file.
type Entry struct {
	Path   string `json:"path" yaml:"path"`
	Size   int64  `json:"size" yaml:"size"`
	Digest string `json:"digest" yaml:"digest"`
}

// Inventory is the sorted list of files below Root.
type Inventory struct {
	Root    string  `json:"root" yaml:"root"`
	Entries []Entry `json:"entries" yaml:"entries"`
}

// Take walks root and digests every regular file. Entry paths are
// relative to root and use forward slashes.
func Take(fsys core.FS, root string) (*Inventory, error) {
	inv := &Inventory{Root: root}
	err := fsys.Walk(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entry, err := digest(fsys, path)
		if err != nil {
			return err
		}
		entry.Path = filepath.ToSlash(rel)
		inv.Entries = append(inv.Entries, entry)
		return nil
	})
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeIO, "failed to take inventory", map[string]interface{}{"root": root})
	}
	sort.Slice(inv.Entries, func(i, j int) bool { return inv.Entries[i].Path < inv.Entries[j].Path })
	return inv, nil
}

func digest(fsys core.FS, path string) (Entry, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return Entry{}, err
	}
	defer func() { _ = f.Close() }()

	h := xxh3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Size: n, Digest: fmt.Sprintf("%016x", h.Sum64())}, nil
}

// Len returns the number of files.
func (i *Inventory) Len() int {
	return len(i.Entries)
}

// Size returns the total size in bytes.
func (i *Inventory) Size() int64 {
	var total int64
	for _, e := range i.Entries {
		total += e.Size
	}
	return total
}

// Lookup returns the entry for a relative path.
func (i *Inventory) Lookup(path string) (Entry, bool) {
	idx := sort.Search(len(i.Entries), func(n int) bool { return i.Entries[n].Path >= path })
	if idx < len(i.Entries) && i.Entries[idx].Path == path {
		return i.Entries[idx], true
	}
	return Entry{}, false
}

// Digest summarizes the whole inventory. Two inventories with the same
// paths and contents have the same digest regardless of Root.
func (i *Inventory) Digest() string {
	h := xxh3.New()
	for _, e := range i.Entries {
		_, _ = fmt.Fprintf(h, "%s\x00%d\x00%s\n", e.Path, e.Size, e.Digest)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Diff lists the paths that only exist in other (added), only exist in i
// (removed), or exist in both with different content (changed).
func (i *Inventory) Diff(other *Inventory) (added, removed, changed []string) {
	for _, e := range other.Entries {
		mine, ok := i.Lookup(e.Path)
		switch {
		case !ok:
			added = append(added, e.Path)
		case mine.Digest != e.Digest || mine.Size != e.Size:
			changed = append(changed, e.Path)
		}
	}
	for _, e := range i.Entries {
		if _, ok := other.Lookup(e.Path); !ok {
			removed = append(removed, e.Path)
		}
	}
	return added, removed, changed
}
