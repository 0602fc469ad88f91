package bids

import (
	"context"

	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/filespec"
	"github.com/kleenlab/ucsfbids/logging"
	"github.com/kleenlab/ucsfbids/registry"
	"github.com/kleenlab/ucsfbids/sidecar"
)

// TagBIDS is the capability tag of the built-in exporters.
const TagBIDS = "BIDS"

// Option keys understood by the built-in importer and exporter factories.
const (
	// OptChildren holds []ChildMapping appended to the configured mappings.
	OptChildren = "children"
	// OptExclude holds []string appended to the exclusion tokens.
	OptExclude = "exclude"
	// OptName holds the name the entity is exported under.
	OptName = "name"
	// OptNameMap holds map[string]string renaming children on export.
	OptNameMap = "name_map"
	// OptParentFullName holds the exported full name of the parent.
	OptParentFullName = "parent_full_name"
)

// Importer fills an entity from a source tree.
type Importer interface {
	Import(ctx context.Context, src filespec.Location) (*filespec.Report, error)
}

// ImporterFactory builds an importer bound to an entity.
type ImporterFactory func(e Entity, opts registry.Options) (Importer, error)

// ChildMapping selects a child to create and import into.
type ChildMapping struct {
	// Name of the child; empty picks the automatic name.
	Name string `json:"name" yaml:"name"`
	// Source is the child's source directory relative to the parent's
	// source; empty reuses the parent's source.
	Source string `json:"source" yaml:"source"`
	// Kind of a session or modality child.
	Kind Kind `json:"kind" yaml:"kind"`
	// Tag looked up on the child's importers; defaults to the parent's tag.
	Tag string `json:"tag" yaml:"tag"`
	// Importer overrides the registry lookup.
	Importer ImporterFactory `json:"-" yaml:"-"`
	// Options are passed to the child's importer factory.
	Options registry.Options `json:"options,omitempty" yaml:"options,omitempty"`
}

// ImporterConfig describes what an importer writes into its entity.
type ImporterConfig struct {
	Tag string
	// Specs are the files of the entity itself.
	Specs []filespec.Spec
	// Exclude drops sources whose name contains any token.
	Exclude []string
	// Children are created and imported in order after Specs.
	Children []ChildMapping
	// DefaultChild is used when a child has no importer for the tag.
	DefaultChild ImporterFactory
}

// TreeImporter imports an entity's files and then descends into its child
// mappings. The first failure aborts the import; files already written
// are kept.
type TreeImporter struct {
	ImporterConfig
	entity Entity
}

// NewImporterFactory returns a factory building TreeImporters from cfg.
func NewImporterFactory(cfg ImporterConfig) ImporterFactory {
	return func(e Entity, opts registry.Options) (Importer, error) {
		return NewTreeImporter(e, cfg, opts)
	}
}

// NewTreeImporter binds cfg to e. OptChildren and OptExclude in opts
// extend the configuration.
func NewTreeImporter(e Entity, cfg ImporterConfig, opts registry.Options) (*TreeImporter, error) {
	if extra, ok := opts[OptChildren]; ok {
		mappings, ok := extra.([]ChildMapping)
		if !ok {
			return nil, errors.Newf(errors.CodeInvalidInput, "option %s must be []ChildMapping, got %T", OptChildren, extra)
		}
		cfg.Children = append(append([]ChildMapping{}, cfg.Children...), mappings...)
	}
	if extra, ok := opts[OptExclude]; ok {
		tokens, ok := extra.([]string)
		if !ok {
			return nil, errors.Newf(errors.CodeInvalidInput, "option %s must be []string, got %T", OptExclude, extra)
		}
		cfg.Exclude = append(append([]string{}, cfg.Exclude...), tokens...)
	}
	return &TreeImporter{ImporterConfig: cfg, entity: e}, nil
}

// Import runs the specs of the entity, then imports every child mapping.
func (t *TreeImporter) Import(ctx context.Context, src filespec.Location) (*filespec.Report, error) {
	e := t.entity
	if err := prepareImport(e); err != nil {
		return nil, err
	}

	report, err := e.Engine().Import(ctx, e, src, t.Specs, t.Exclude)
	if err != nil {
		return report, err
	}

	for _, m := range t.Children {
		rep, err := t.importChild(ctx, src, m)
		report.Merge(rep)
		if err != nil {
			return report, err
		}
	}

	e.Logger().WithOperation(logging.OpImport).WithEntity(e.FullName()).Info(ctx, "entity imported",
		"level", e.Level().String(),
		"written", len(report.Written),
		"skipped", len(report.Skipped),
	)
	return report, nil
}

func (t *TreeImporter) importChild(ctx context.Context, src filespec.Location, m ChildMapping) (*filespec.Report, error) {
	child, err := requireChild(t.entity, m)
	if err != nil {
		return nil, err
	}

	factory := m.Importer
	opts := m.Options
	if factory == nil {
		tag := m.Tag
		if tag == "" {
			tag = t.Tag
		}
		entry, err := child.Importers().Get(tag)
		switch {
		case err == nil:
			factory = entry.Handler
			opts = entry.Defaults.Merge(opts)
		case t.DefaultChild != nil:
			factory = t.DefaultChild
		default:
			return nil, errors.WithContext(err, child.Level().String(), child.Path())
		}
	}

	imp, err := factory(child, opts)
	if err != nil {
		return nil, errors.WithContext(err, child.Level().String(), child.Path())
	}

	childSrc := src
	if m.Source != "" {
		childSrc = src.Join(m.Source)
	}
	rep, err := imp.Import(ctx, childSrc)
	if err != nil {
		return rep, errors.WithContext(err, child.Level().String(), child.Path())
	}
	return rep, nil
}

// prepareImport checks that e may be written and creates its directory.
func prepareImport(e Entity) error {
	if e.Path() == "" {
		return errors.NewWithContext(errors.CodeUnresolvedEntity, "cannot import into an unbound "+e.Level().String(), map[string]interface{}{"name": e.Name()})
	}
	if !e.Mode().CanWrite() {
		return errors.NewWithContext(errors.CodeReadOnly, "cannot import in "+e.Mode().String()+" mode", map[string]interface{}{"entity": e.FullName()})
	}
	if e.State() < StateCreated {
		return e.Create()
	}
	return nil
}

// requireChild returns the child named by m, creating and building it when
// absent.
func requireChild(parent Entity, m ChildMapping) (Entity, error) {
	switch p := parent.(type) {
	case *Dataset:
		s, err := p.RequireSubject(m.Name)
		if err != nil {
			return nil, err
		}
		return s, nil
	case *Subject:
		var opts []Option
		if !m.Kind.IsZero() {
			opts = append(opts, WithKind(m.Kind))
		}
		s, err := p.RequireSession(m.Name, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case *Session:
		mod, err := p.RequireModality(m.Name, m.Kind)
		if err != nil {
			return nil, err
		}
		return mod, nil
	default:
		return nil, errors.NewWithContext(errors.CodeInvalidInput, parent.Level().String()+" has no children", map[string]interface{}{"entity": parent.FullName()})
	}
}

// DatasetImportConfig extends ImporterConfig with the dataset level files.
type DatasetImportConfig struct {
	ImporterConfig
	// Description keys are merged into dataset_description.json.
	Description *sidecar.Document
	// Ignore patterns are added to .bidsignore.
	Ignore []string
	// ParticipantsSidecar keys missing from participants.json are added.
	ParticipantsSidecar *sidecar.Document
}

// DatasetImporter imports subjects and maintains the dataset level files.
type DatasetImporter struct {
	*TreeImporter
	dataset *Dataset
	cfg     DatasetImportConfig
}

// NewDatasetImporterFactory returns a factory building DatasetImporters.
func NewDatasetImporterFactory(cfg DatasetImportConfig) ImporterFactory {
	return func(e Entity, opts registry.Options) (Importer, error) {
		d, ok := e.(*Dataset)
		if !ok {
			return nil, errors.NewWithContext(errors.CodeInvalidInput, "dataset importer bound to a "+e.Level().String(), map[string]interface{}{"entity": e.FullName()})
		}
		tree, err := NewTreeImporter(e, cfg.ImporterConfig, opts)
		if err != nil {
			return nil, err
		}
		return &DatasetImporter{TreeImporter: tree, dataset: d, cfg: cfg}, nil
	}
}

// Import imports the subjects, then records them in participants.tsv and
// updates the description, participants.json and .bidsignore.
func (i *DatasetImporter) Import(ctx context.Context, src filespec.Location) (*filespec.Report, error) {
	report, err := i.TreeImporter.Import(ctx, src)
	if err != nil {
		return report, err
	}

	d := i.dataset
	if err := d.MergeDescription(i.cfg.Description); err != nil {
		return report, err
	}
	if err := d.AddParticipants(d.Subjects()...); err != nil {
		return report, err
	}
	side := i.cfg.ParticipantsSidecar
	if side == nil {
		side = DefaultParticipantsSidecar()
	}
	if err := d.MergeParticipantsSidecar(side); err != nil {
		return report, err
	}
	if len(i.cfg.Ignore) > 0 {
		if err := d.AddIgnore(i.cfg.Ignore...); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Import creates the importer registered under tag on e and runs it.
func Import(ctx context.Context, e Entity, tag string, src filespec.Location, opts registry.Options) (*filespec.Report, error) {
	imp, err := e.CreateImporter(tag, opts)
	if err != nil {
		return nil, err
	}
	return imp.Import(ctx, src)
}
