package bids

import (
	"context"
	"path/filepath"

	"github.com/jmgilman/go/fs/core"

	"github.com/kleenlab/ucsfbids/logging"
)

// Modality is a data directory inside a session, e.g. anat or ieeg. Its
// files are named after the session's full name.
type Modality struct {
	node
	typ *ModalityType
}

// NewModality constructs a modality and applies the entry policy.
//
// Without WithKind the kind is looked up by directory name (anat, ct,
// ieeg) and falls back to the generic modality kind. Load replaces it with
// the kind recorded in the metadata.
func NewModality(fsys core.FS, opts ...Option) (*Modality, error) {
	o := newOptions(opts)
	m := &Modality{}
	if err := m.init(m, LevelModality, fsys, o); err != nil {
		return nil, err
	}
	kind := o.kind
	if kind.IsZero() {
		kind = KindModality
		if t, ok := m.catalog.ModalityTypeByName(m.name); ok {
			kind = t.Kind
		}
	}
	m.setType(kind)
	m.meta = m.defaultMeta(nil, o.meta)
	if err := m.enter(o); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Modality) setType(kind Kind) {
	t, ok := m.catalog.resolveModality(kind)
	if !ok {
		m.logger.Warn(context.Background(), "unknown modality kind, using generic modality", "kind", kind.String(), "path", m.path)
	}
	m.typ = t
	m.kind = t.Kind
	m.importers = t.Importers.Clone()
	m.exporters = t.Exporters.Clone()
}

// Type returns the modality type.
func (m *Modality) Type() *ModalityType {
	return m.typ
}

// Children returns nil; modalities are leaves.
func (m *Modality) Children() []Entity {
	return nil
}

// File returns the path of the file with the given suffix and extension,
// e.g. File("T1w", ".nii.gz").
func (m *Modality) File(suffix, ext string) string {
	return filepath.Join(m.path, m.FullName()+"_"+suffix+ext)
}

// Build creates the modality.
func (m *Modality) Build() error {
	if err := m.Create(); err != nil {
		return err
	}
	m.state = StatePopulated
	m.logger.WithOperation(logging.OpBuild).Debug(context.Background(), "modality built", "entity", m.FullName(), "modality", m.name, "kind", m.kind.String())
	return nil
}

// Load reads the metadata and resolves the kind it records.
func (m *Modality) Load() error {
	if err := m.requireBound(); err != nil {
		return err
	}
	if err := m.LoadMeta(); err != nil {
		return err
	}
	if kind := m.metaKind(); !kind.IsZero() && kind != m.kind {
		m.setType(kind)
	}
	m.state = StatePopulated
	m.logger.WithOperation(logging.OpLoad).Debug(context.Background(), "modality loaded", "entity", m.FullName(), "modality", m.name, "kind", m.kind.String())
	return nil
}
