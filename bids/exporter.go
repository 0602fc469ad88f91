package bids

import (
	"context"
	"maps"
	"strings"

	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/filespec"
	"github.com/kleenlab/ucsfbids/logging"
	"github.com/kleenlab/ucsfbids/registry"
	"github.com/kleenlab/ucsfbids/sidecar"
)

// Exporter writes an entity and its descendants below a destination
// directory.
type Exporter interface {
	Export(ctx context.Context, dest filespec.Location) (*filespec.Report, error)
}

// ExporterFactory builds an exporter bound to an entity.
type ExporterFactory func(e Entity, opts registry.Options) (Exporter, error)

// ExporterConfig describes how an entity is exported.
type ExporterConfig struct {
	Tag string
	// Include and Exclude select the entity's own files; metadata
	// sidecars are always excluded.
	Include []string
	Exclude []string
	// NameMap renames children, keyed by child name with or without the
	// level prefix. When set, only the mapped children are exported.
	NameMap map[string]string
	// TypeMap overrides the exporter of children by kind.
	TypeMap map[Kind]ExporterFactory
	// DefaultChild is registered on a child lacking an exporter for Tag.
	// A TreeExporter with the same Tag is used when nil.
	DefaultChild ExporterFactory
}

// TreeExporter copies an entity's files into <dest>/<directory name> and
// exports its children below that directory. A child failure is wrapped as
// CodeChildOperationFailed. Isolated failures are logged and recorded in
// the report and siblings are still exported. Fatal ones, such as a
// failure a descendant marked fatal or a cancelled context, abort the
// export.
type TreeExporter struct {
	ExporterConfig
	entity     Entity
	name       string
	parentFull string
}

// NewExporterFactory returns a factory building TreeExporters from cfg.
func NewExporterFactory(cfg ExporterConfig) ExporterFactory {
	return func(e Entity, opts registry.Options) (Exporter, error) {
		return NewTreeExporter(e, cfg, opts)
	}
}

// NewTreeExporter binds cfg to e. OptName renames the entity,
// OptParentFullName sets the exported full name of its parent and
// OptNameMap adds child renames.
func NewTreeExporter(e Entity, cfg ExporterConfig, opts registry.Options) (*TreeExporter, error) {
	if cfg.Tag == "" {
		cfg.Tag = TagBIDS
	}
	x := &TreeExporter{ExporterConfig: cfg, entity: e, name: e.Name(), parentFull: parentFullName(e)}
	if v, ok := opts[OptName]; ok {
		name, ok := v.(string)
		if !ok {
			return nil, errors.Newf(errors.CodeInvalidInput, "option %s must be a string, got %T", OptName, v)
		}
		if name != "" {
			x.name = name
		}
	}
	if v, ok := opts[OptParentFullName]; ok {
		full, ok := v.(string)
		if !ok {
			return nil, errors.Newf(errors.CodeInvalidInput, "option %s must be a string, got %T", OptParentFullName, v)
		}
		x.parentFull = full
	}
	if v, ok := opts[OptNameMap]; ok {
		renames, ok := v.(map[string]string)
		if !ok {
			return nil, errors.Newf(errors.CodeInvalidInput, "option %s must be map[string]string, got %T", OptNameMap, v)
		}
		merged := maps.Clone(cfg.NameMap)
		if merged == nil {
			merged = make(map[string]string, len(renames))
		}
		maps.Copy(merged, renames)
		x.NameMap = merged
	}
	return x, nil
}

// parentFullName returns the full name of e's parent as encoded in e's own
// full name.
func parentFullName(e Entity) string {
	switch e.Level() {
	case LevelSession:
		return strings.TrimSuffix(strings.TrimSuffix(e.FullName(), LevelSession.Prefix()+e.Name()), "_")
	case LevelModality:
		return e.FullName()
	default:
		return ""
	}
}

// exportFullName computes the full name of an exported entity.
func exportFullName(level Level, parentFull, name string) string {
	switch level {
	case LevelSubject:
		return LevelSubject.Prefix() + name
	case LevelSession:
		if parentFull == "" {
			return LevelSession.Prefix() + name
		}
		return parentFull + "_" + LevelSession.Prefix() + name
	case LevelModality:
		return parentFull
	default:
		return name
	}
}

// FullName returns the full name the entity is exported under.
func (x *TreeExporter) FullName() string {
	return exportFullName(x.entity.Level(), x.parentFull, x.name)
}

// Export writes the entity below dest.
func (x *TreeExporter) Export(ctx context.Context, dest filespec.Location) (*filespec.Report, error) {
	e := x.entity
	log := e.Logger().WithOperation(logging.OpExport).WithEntity(e.FullName())
	if e.Path() == "" {
		return nil, errors.NewWithContext(errors.CodeUnresolvedEntity, "cannot export an unbound "+e.Level().String(), map[string]interface{}{"name": e.Name()})
	}

	out := dest.Join(e.Level().Prefix() + x.name)
	full := x.FullName()
	rename := ""
	if e.Level() != LevelDataset && full != e.FullName() {
		rename = full
	}

	filter := filespec.NewFilter(x.Include, x.Exclude)
	d, isDataset := e.(*Dataset)
	if isDataset {
		filter.Exclude = append(filter.Exclude, DatasetDescriptionFile, ParticipantsFile)
	}

	report, err := e.Engine().Export(ctx, e, out, filter, rename)
	if err != nil {
		return report, err
	}
	if isDataset {
		if err := x.exportDatasetFiles(d, out, report); err != nil {
			return report, err
		}
	}

	children := e.Children()
	var renames map[string]string
	if len(children) > 0 {
		renames = x.childNames(children[0].Level())
	}
	for _, child := range children {
		name := child.Name()
		if renames != nil {
			to, ok := renames[name]
			if !ok {
				continue
			}
			name = to
		}
		rep, err := x.exportChild(ctx, child, out, name, full)
		report.Merge(rep)
		if err != nil {
			failure := errors.WrapWithContext(err, errors.CodeChildOperationFailed, "child export failed", map[string]interface{}{
				"parent": e.FullName(),
				"child":  child.DirectoryName(),
			})
			if ctx.Err() != nil {
				failure = errors.WithPropagation(failure, errors.PropagationFatal)
			}
			if errors.IsFatal(failure) {
				log.Error(ctx, "child export aborted the export", "child", child.DirectoryName(), "error", err.Error())
				return report, failure
			}
			log.Warn(ctx, "child export failed", "child", child.DirectoryName(), "error", err.Error())
			report.Failures = append(report.Failures, filespec.Failure{Entity: child.Path(), Err: failure})
		}
	}

	log.Info(ctx, "entity exported", "level", e.Level().String(), "as", full, "written", len(report.Written), "failures", len(report.Failures))
	return report, nil
}

// childNames returns the name map with the level prefix stripped from its
// keys and values, or nil when no map is set. Only mapped children are
// exported when it is non-nil.
func (x *TreeExporter) childNames(level Level) map[string]string {
	if len(x.NameMap) == 0 {
		return nil
	}
	prefix := level.Prefix()
	names := make(map[string]string, len(x.NameMap))
	for from, to := range x.NameMap {
		from = strings.TrimPrefix(from, prefix)
		to = strings.TrimPrefix(to, prefix)
		if to == "" {
			to = from
		}
		names[from] = to
	}
	return names
}

func (x *TreeExporter) exportChild(ctx context.Context, child Entity, out filespec.Location, name, parentFull string) (*filespec.Report, error) {
	opts := registry.Options{OptName: name, OptParentFullName: parentFull}

	var exp Exporter
	var err error
	if factory, ok := x.TypeMap[child.Kind()]; ok {
		exp, err = factory(child, opts)
	} else {
		fallback := x.DefaultChild
		if fallback == nil {
			fallback = NewExporterFactory(ExporterConfig{Tag: x.Tag})
		}
		var entry registry.Entry[ExporterFactory]
		entry, err = child.Exporters().Require(x.Tag, fallback, nil, false)
		if err == nil {
			exp, err = entry.Handler(child, entry.Defaults.Merge(opts))
		}
	}
	if err != nil {
		return nil, err
	}
	return exp.Export(ctx, out)
}

// exportDatasetFiles writes the description under the exported name and
// the participants table with renamed ids. Existing files are kept.
func (x *TreeExporter) exportDatasetFiles(d *Dataset, out filespec.Location, report *filespec.Report) error {
	desc := out.Join(DatasetDescriptionFile)
	exists, err := desc.Exists()
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to stat destination", map[string]interface{}{"destination": desc.Path})
	}
	if exists {
		report.Skipped = append(report.Skipped, DatasetDescriptionFile)
	} else {
		doc := d.Meta().Clone()
		if x.name != d.Name() {
			doc.Set("Name", x.name)
		}
		if err := sidecar.Write(out.FS, desc.Path, doc); err != nil {
			return err
		}
		report.Written = append(report.Written, DatasetDescriptionFile)
	}

	table := out.Join(ParticipantsFile)
	exists, err = table.Exists()
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to stat destination", map[string]interface{}{"destination": table.Path})
	}
	if exists {
		report.Skipped = append(report.Skipped, ParticipantsFile)
		return nil
	}
	p, err := d.Participants()
	if err != nil {
		return err
	}
	if names := x.childNames(LevelSubject); names != nil {
		renames := make(map[string]string, len(names))
		for from, to := range names {
			renames[LevelSubject.Prefix()+from] = LevelSubject.Prefix() + to
		}
		p.Select(renames)
	}
	if err := p.Write(out.FS, table.Path); err != nil {
		return err
	}
	report.Written = append(report.Written, ParticipantsFile)
	return nil
}

// Export creates the exporter registered under tag on e and runs it.
func Export(ctx context.Context, e Entity, tag string, dest filespec.Location, opts registry.Options) (*filespec.Report, error) {
	exp, err := e.CreateExporter(tag, opts)
	if err != nil {
		return nil, err
	}
	return exp.Export(ctx, dest)
}
