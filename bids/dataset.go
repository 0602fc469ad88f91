package bids

import (
	"context"
	"path/filepath"

	"github.com/jmgilman/go/fs/core"

	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/logging"
	"github.com/kleenlab/ucsfbids/sidecar"
)

// Files at the root of a dataset.
const (
	DatasetDescriptionFile = "dataset_description.json"
	ParticipantsFile       = "participants.tsv"
	ParticipantsSidecar    = "participants.json"
	IgnoreFile             = ".bidsignore"
)

// BIDSVersion is written to new dataset descriptions.
const BIDSVersion = "1.6.0"

// Dataset is the root of the hierarchy.
type Dataset struct {
	node
	subjects children[*Subject]
}

// NewDataset constructs a dataset and applies the entry policy.
func NewDataset(fsys core.FS, opts ...Option) (*Dataset, error) {
	o := newOptions(opts)
	d := &Dataset{}
	if err := d.init(d, LevelDataset, fsys, o); err != nil {
		return nil, err
	}
	d.kind = KindDataset
	d.meta = d.defaultMeta(sidecar.FromPairs("Name", d.name, "BIDSVersion", BIDSVersion), o.meta)
	d.importers = d.catalog.Importers(LevelDataset).Clone()
	d.exporters = d.catalog.Exporters(LevelDataset).Clone()
	if err := d.enter(o); err != nil {
		return nil, err
	}
	return d, nil
}

// Description returns the dataset_description.json document.
func (d *Dataset) Description() *Metadata {
	return d.meta
}

// Children returns the subjects sorted by name.
func (d *Dataset) Children() []Entity {
	return d.subjects.entities()
}

// Subjects returns the subjects sorted by name.
func (d *Dataset) Subjects() []*Subject {
	return d.subjects.sorted()
}

// Subject returns the subject called name.
func (d *Dataset) Subject(name string) (*Subject, bool) {
	return d.subjects.get(name)
}

// NextSubjectName returns the automatic name of the next subject.
func (d *Dataset) NextSubjectName() string {
	return d.subjects.nextName()
}

// NewSubject constructs a subject below the dataset. An empty name picks
// NextSubjectName. A missing directory is built, an existing one loaded.
func (d *Dataset) NewSubject(name string, opts ...Option) (*Subject, error) {
	if err := d.requireBound(); err != nil {
		return nil, err
	}
	if name == "" {
		name = d.NextSubjectName()
	}
	if err := d.subjects.checkNew(LevelSubject, name); err != nil {
		return nil, err
	}
	s, err := NewSubject(d.fsys, d.childOptions(name, append([]Option{WithBuild(), WithLoad()}, opts...)...)...)
	if err != nil {
		return nil, err
	}
	d.subjects.put(name, s)
	return s, nil
}

// RequireSubject returns the subject called name, constructing it when
// absent.
func (d *Dataset) RequireSubject(name string, opts ...Option) (*Subject, error) {
	if s, ok := d.subjects.get(name); ok {
		return s, nil
	}
	return d.NewSubject(name, opts...)
}

// Build creates the dataset with an empty participants table and its
// sidecar.
func (d *Dataset) Build() error {
	if err := d.Create(); err != nil {
		return err
	}
	table := d.participantsPath()
	exists, err := d.fsys.Exists(table)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to stat participants table", map[string]interface{}{"path": table})
	}
	if !exists {
		if err := NewParticipants().Write(d.fsys, table); err != nil {
			return err
		}
	}
	if err := d.MergeParticipantsSidecar(DefaultParticipantsSidecar()); err != nil {
		return err
	}
	d.state = StatePopulated
	d.logger.WithOperation(logging.OpBuild).Debug(context.Background(), "dataset built", "entity", d.FullName())
	return nil
}

// Load reads the description and loads every sub-* directory.
func (d *Dataset) Load() error {
	if err := d.requireBound(); err != nil {
		return err
	}
	if err := d.LoadMeta(); err != nil {
		return err
	}
	dirs, err := d.childDirs(LevelSubject.Prefix())
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		name := dir[len(LevelSubject.Prefix()):]
		s, err := NewSubject(d.fsys, d.childOptions(name, WithLoad())...)
		if err != nil {
			return errors.WithContext(err, "subject", name)
		}
		d.subjects.put(name, s)
	}
	d.state = StatePopulated
	d.logger.WithOperation(logging.OpLoad).Debug(context.Background(), "dataset loaded", "entity", d.FullName(), "subjects", len(dirs))
	return nil
}

func (d *Dataset) participantsPath() string {
	return filepath.Join(d.path, ParticipantsFile)
}

// Participants reads participants.tsv. A missing table is empty.
func (d *Dataset) Participants() (*Participants, error) {
	if err := d.requireBound(); err != nil {
		return nil, err
	}
	return ReadParticipants(d.fsys, d.participantsPath())
}

// AddParticipants records subjects in participants.tsv, keeping existing
// rows.
func (d *Dataset) AddParticipants(subjects ...*Subject) error {
	if !d.mode.CanWrite() {
		return d.readOnly("update participants")
	}
	p, err := d.Participants()
	if err != nil {
		return err
	}
	for _, s := range subjects {
		p.Upsert(s.FullName(), nil)
	}
	return p.Write(d.fsys, d.participantsPath())
}

// MergeParticipantsSidecar adds the keys of doc missing from
// participants.json.
func (d *Dataset) MergeParticipantsSidecar(doc *sidecar.Document) error {
	return d.mergeRootJSON(ParticipantsSidecar, doc)
}

// MergeDescription sets the keys of doc on dataset_description.json and
// saves it.
func (d *Dataset) MergeDescription(doc *sidecar.Document) error {
	if doc == nil {
		return nil
	}
	d.meta.Merge(doc)
	return d.SaveMeta()
}

func (d *Dataset) mergeRootJSON(file string, doc *sidecar.Document) error {
	if err := d.requireBound(); err != nil {
		return err
	}
	if !d.mode.CanWrite() {
		return d.readOnly("write " + file)
	}
	path := filepath.Join(d.path, file)
	current, err := sidecar.Read(d.fsys, path)
	if err != nil {
		if !errors.HasCode(err, errors.CodeNotFound) {
			return err
		}
		current = sidecar.New()
	}
	for _, k := range doc.Keys() {
		v, _ := doc.Get(k)
		current.SetDefault(k, v)
	}
	return sidecar.Write(d.fsys, path, current)
}

// AddIgnore appends patterns missing from .bidsignore.
func (d *Dataset) AddIgnore(patterns ...string) error {
	if err := d.requireBound(); err != nil {
		return err
	}
	if !d.mode.CanWrite() {
		return d.readOnly("write " + IgnoreFile)
	}
	path := filepath.Join(d.path, IgnoreFile)
	current, err := readLines(d.fsys, path)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(current))
	for _, line := range current {
		seen[line] = struct{}{}
	}
	for _, p := range patterns {
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		current = append(current, p)
	}
	return writeLines(d.fsys, path, current)
}
