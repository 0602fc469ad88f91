package bids

import (
	"context"

	"github.com/jmgilman/go/fs/core"

	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/logging"
)

// Subject is a sub-* directory.
type Subject struct {
	node
	sessions children[*Session]
}

// NewSubject constructs a subject and applies the entry policy.
func NewSubject(fsys core.FS, opts ...Option) (*Subject, error) {
	o := newOptions(opts)
	s := &Subject{}
	if err := s.init(s, LevelSubject, fsys, o); err != nil {
		return nil, err
	}
	s.kind = KindSubject
	s.meta = s.defaultMeta(nil, o.meta)
	s.importers = s.catalog.Importers(LevelSubject).Clone()
	s.exporters = s.catalog.Exporters(LevelSubject).Clone()
	if err := s.enter(o); err != nil {
		return nil, err
	}
	return s, nil
}

// Children returns the sessions sorted by name.
func (s *Subject) Children() []Entity {
	return s.sessions.entities()
}

// Sessions returns the sessions sorted by name.
func (s *Subject) Sessions() []*Session {
	return s.sessions.sorted()
}

// Session returns the session called name.
func (s *Subject) Session(name string) (*Session, bool) {
	return s.sessions.get(name)
}

// NextSessionName returns the automatic name of the next session.
func (s *Subject) NextSessionName() string {
	return s.sessions.nextName()
}

// NewSession constructs a session below the subject. An empty name picks
// NextSessionName. A missing directory is built, an existing one loaded.
func (s *Subject) NewSession(name string, opts ...Option) (*Session, error) {
	if err := s.requireBound(); err != nil {
		return nil, err
	}
	if name == "" {
		name = s.NextSessionName()
	}
	if err := s.sessions.checkNew(LevelSession, name); err != nil {
		return nil, err
	}
	ses, err := NewSession(s.fsys, s.childOptions(name, append([]Option{WithBuild(), WithLoad()}, opts...)...)...)
	if err != nil {
		return nil, err
	}
	s.sessions.put(name, ses)
	return ses, nil
}

// RequireSession returns the session called name, constructing it when
// absent.
func (s *Subject) RequireSession(name string, opts ...Option) (*Session, error) {
	if ses, ok := s.sessions.get(name); ok {
		return ses, nil
	}
	return s.NewSession(name, opts...)
}

// Build creates the subject. Subjects have no default sessions.
func (s *Subject) Build() error {
	if err := s.Create(); err != nil {
		return err
	}
	s.state = StatePopulated
	s.logger.WithOperation(logging.OpBuild).Debug(context.Background(), "subject built", "entity", s.FullName())
	return nil
}

// Load reads the metadata and loads every ses-* directory.
func (s *Subject) Load() error {
	if err := s.requireBound(); err != nil {
		return err
	}
	if err := s.LoadMeta(); err != nil {
		return err
	}
	dirs, err := s.childDirs(LevelSession.Prefix())
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		name := dir[len(LevelSession.Prefix()):]
		ses, err := NewSession(s.fsys, s.childOptions(name, WithLoad())...)
		if err != nil {
			return errors.WithContext(err, "session", name)
		}
		s.sessions.put(name, ses)
	}
	s.state = StatePopulated
	s.logger.WithOperation(logging.OpLoad).Debug(context.Background(), "subject loaded", "entity", s.FullName(), "sessions", len(dirs))
	return nil
}
