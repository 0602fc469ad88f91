package bids

import (
	"context"
	"strings"

	"github.com/jmgilman/go/fs/core"

	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/logging"
)

// Session is a ses-* directory. Its kind selects the default modalities
// and capabilities.
type Session struct {
	node
	typ        *SessionType
	modalities children[*Modality]
}

// NewSession constructs a session and applies the entry policy. The kind
// given with WithKind defaults to the generic session kind; Load replaces
// it with the kind recorded in the metadata.
func NewSession(fsys core.FS, opts ...Option) (*Session, error) {
	o := newOptions(opts)
	s := &Session{}
	if err := s.init(s, LevelSession, fsys, o); err != nil {
		return nil, err
	}
	kind := o.kind
	if kind.IsZero() {
		kind = KindSession
	}
	s.setType(kind)
	s.meta = s.defaultMeta(nil, o.meta)
	if err := s.enter(o); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) setType(kind Kind) {
	t, ok := s.catalog.resolveSession(kind)
	if !ok {
		s.logger.Warn(context.Background(), "unknown session kind, using generic session", "kind", kind.String(), "path", s.path)
	}
	s.typ = t
	s.kind = t.Kind
	s.importers = t.Importers.Clone()
	s.exporters = t.Exporters.Clone()
}

// Type returns the session type.
func (s *Session) Type() *SessionType {
	return s.typ
}

// SubjectName returns the name of the subject the session belongs to.
func (s *Session) SubjectName() string {
	return strings.TrimPrefix(s.parentFull, LevelSubject.Prefix())
}

// Children returns the modalities sorted by name.
func (s *Session) Children() []Entity {
	return s.modalities.entities()
}

// Modalities returns the modalities sorted by name.
func (s *Session) Modalities() []*Modality {
	return s.modalities.sorted()
}

// Modality returns the modality called name.
func (s *Session) Modality(name string) (*Modality, bool) {
	return s.modalities.get(name)
}

// NewModality constructs a modality below the session. An empty name uses
// the default directory name of kind. A missing directory is built, an
// existing one loaded.
func (s *Session) NewModality(name string, kind Kind, opts ...Option) (*Modality, error) {
	if err := s.requireBound(); err != nil {
		return nil, err
	}
	if name == "" {
		if t, ok := s.catalog.ModalityType(kind); ok {
			name = t.Name
		}
	}
	if name == "" {
		return nil, errors.NewWithContext(errors.CodeInvalidInput, "modality requires a name", map[string]interface{}{"kind": kind.String()})
	}
	if err := s.modalities.checkNew(LevelModality, name); err != nil {
		return nil, err
	}
	m, err := NewModality(s.fsys, s.childOptions(name, append([]Option{WithKind(kind), WithBuild(), WithLoad()}, opts...)...)...)
	if err != nil {
		return nil, err
	}
	s.modalities.put(name, m)
	return m, nil
}

// RequireModality returns the modality called name, constructing it when
// absent.
func (s *Session) RequireModality(name string, kind Kind, opts ...Option) (*Modality, error) {
	if m, ok := s.modalities.get(name); ok {
		return m, nil
	}
	return s.NewModality(name, kind, opts...)
}

// Build creates the session and the default modalities of its kind.
func (s *Session) Build() error {
	if err := s.Create(); err != nil {
		return err
	}
	for _, def := range s.typ.Modalities {
		if _, err := s.RequireModality(def.Name, def.Kind); err != nil {
			return errors.WithContext(err, "modality", def.Name)
		}
	}
	s.state = StatePopulated
	s.logger.WithOperation(logging.OpBuild).Debug(context.Background(), "session built", "entity", s.FullName(), "kind", s.kind.String())
	return nil
}

// Load reads the metadata, resolves the kind it records and loads every
// subdirectory as a modality.
func (s *Session) Load() error {
	if err := s.requireBound(); err != nil {
		return err
	}
	if err := s.LoadMeta(); err != nil {
		return err
	}
	if kind := s.metaKind(); !kind.IsZero() && kind != s.kind {
		s.setType(kind)
	}
	dirs, err := s.childDirs("")
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		m, err := NewModality(s.fsys, s.childOptions(dir, WithLoad())...)
		if err != nil {
			return errors.WithContext(err, "modality", dir)
		}
		s.modalities.put(dir, m)
	}
	s.state = StatePopulated
	s.logger.WithOperation(logging.OpLoad).Debug(context.Background(), "session loaded", "entity", s.FullName(), "kind", s.kind.String(), "modalities", len(dirs))
	return nil
}
