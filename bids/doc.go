// Package bids models a BIDS dataset as a tree of directory entities:
// a Dataset holds Subjects (sub-*), a Subject holds Sessions (ses-*) and a
// Session holds Modalities (anat, ct, ieeg...).
//
// Every entity is bound to a directory on a core.FS, carries a JSON
// metadata sidecar and owns two capability registries, one for importers
// and one for exporters. Instance registries are layered on top of the
// defaults registered in a Catalog, so capabilities can be added to a
// single entity without affecting its siblings.
//
// # Lifecycle
//
// An entity starts Unbound (no path) or Bound. Create makes the directory
// and writes metadata, Build additionally creates the default children and
// Load reconstructs an existing tree from disk. Constructors apply an entry
// policy: with WithCreate a missing directory is created, with WithLoad an
// existing directory is loaded.
//
// Session and Modality entities have a Kind. When loading, the kind is
// taken from the namespace and type keys of the entity's metadata and
// resolved through the Catalog, so the on-disk tree alone is enough to
// rebuild the typed hierarchy.
//
// # Import and export
//
// Importers copy and convert files from a lab source tree into an entity
// using file specs (see package filespec) and descend into child mappings.
// Import stops at the first failure.
//
// Exporters copy an entity and its descendants into a destination tree,
// optionally renaming identifiers. A failing child is logged and recorded
// in the report, and its siblings are still exported.
package bids
