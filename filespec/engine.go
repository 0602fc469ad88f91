package filespec

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmgilman/go/fs/core"

	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/logging"
)

// Target is the entity an engine reads from or writes into.
type Target interface {
	FS() core.FS
	Path() string
	FullName() string
}

// Engine executes file specs and export filters.
type Engine struct {
	runner Runner
	logger *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunner sets the runner used for program steps.
func WithRunner(r Runner) Option {
	return func(e *Engine) {
		e.runner = r
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an engine. Without options programs run through
// NewExecRunner(nil) and nothing is logged.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.runner == nil {
		e.runner = NewExecRunner(nil)
	}
	if e.logger == nil {
		e.logger = logging.NewNopLogger()
	}
	return e
}

// Runner returns the runner used for program steps.
func (e *Engine) Runner() Runner {
	return e.runner
}

// Logger returns the engine logger.
func (e *Engine) Logger() *logging.Logger {
	return e.logger
}

// Import materializes specs inside target from the source root.
//
// The first failing spec aborts the import; files written for earlier
// specs are kept.
func (e *Engine) Import(ctx context.Context, target Target, source Location, specs []Spec, exclude []string) (*Report, error) {
	report := NewReport()
	log := e.logger.WithOperation(logging.OpImport).WithEntity(target.FullName()).With("run_id", report.RunID)

	if target.Path() == "" {
		return report, errors.New(errors.CodeUnresolvedEntity, "import target has no path")
	}

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return report, errors.Wrap(err, errors.CodeExecutionFailed, "import cancelled")
		}
		if err := spec.Validate(); err != nil {
			return report, err
		}

		name := spec.Destination(target.FullName())
		dst := Location{FS: target.FS(), Path: filepath.Join(target.Path(), name)}

		exists, err := dst.Exists()
		if err != nil {
			return report, errors.WrapWithContext(err, errors.CodeIO, "failed to stat destination", map[string]interface{}{"destination": dst.Path})
		}
		if exists {
			log.Debug(ctx, "destination exists, skipping", "file", name)
			report.Skipped = append(report.Skipped, name)
			continue
		}

		src, found, err := resolve(source, spec.Candidates)
		if err != nil {
			return report, err
		}

		if found && matchesAny(src.Base(), exclude) {
			log.Info(ctx, "source excluded", "file", name, "source", src.Path)
			report.Excluded = append(report.Excluded, name)
			continue
		}

		if !found {
			switch {
			case spec.Step.CanSynthesize():
				src = Location{FS: source.FS}
			case spec.Optional:
				log.Warn(ctx, "optional source missing", "file", name, "candidates", spec.Candidates)
				report.Missing = append(report.Missing, name)
				continue
			default:
				return report, errors.NewWithContext(errors.CodeMissingSourceFile, "no candidate source exists for "+name, map[string]interface{}{
					"entity":      target.FullName(),
					"destination": dst.Path,
					"source_root": source.Path,
					"candidates":  spec.Candidates,
				})
			}
		}

		if err := spec.Step.apply(ctx, e.runner, src, dst); err != nil {
			return report, errors.WithContextMap(err, map[string]interface{}{
				"entity":      target.FullName(),
				"destination": dst.Path,
			})
		}

		if spec.Post != nil {
			if err := spec.Post.apply(ctx, e.runner, dst); err != nil {
				return report, errors.WithContextMap(err, map[string]interface{}{
					"entity":      target.FullName(),
					"destination": dst.Path,
				})
			}
		}

		log.Debug(ctx, "file imported", "file", name, "source", src.Path, "step", spec.Step.label())
		report.Written = append(report.Written, name)
	}

	return report, nil
}

// resolve returns the first candidate that exists below root.
func resolve(root Location, candidates []string) (Location, bool, error) {
	for _, c := range candidates {
		loc := root.Join(c)
		exists, err := loc.Exists()
		if err != nil {
			return Location{}, false, errors.WrapWithContext(err, errors.CodeIO, "failed to stat candidate source", map[string]interface{}{"source": loc.Path})
		}
		if exists {
			return loc, true, nil
		}
	}
	return Location{}, false, nil
}

// Export copies the files directly inside from (not its subdirectories)
// to the directory to. Files already present at the destination are left
// untouched. When rename is set, the first occurrence of from's full name
// in each file name is replaced by rename.
func (e *Engine) Export(ctx context.Context, from Target, to Location, filter Filter, rename string) (*Report, error) {
	report := NewReport()
	log := e.logger.WithOperation(logging.OpExport).WithEntity(from.FullName()).With("run_id", report.RunID)

	if from.Path() == "" {
		return report, errors.New(errors.CodeUnresolvedEntity, "export source has no path")
	}

	entries, err := from.FS().ReadDir(from.Path())
	if err != nil {
		return report, errors.WrapWithContext(err, errors.CodeIO, "failed to list entity files", map[string]interface{}{"path": from.Path()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	if err := to.FS.MkdirAll(to.Path, 0o755); err != nil {
		return report, errors.WrapWithContext(err, errors.CodeIO, "failed to create export directory", map[string]interface{}{"path": to.Path})
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, errors.Wrap(err, errors.CodeExecutionFailed, "export cancelled")
		}

		name := entry.Name()
		if !filter.Allows(name) {
			report.Excluded = append(report.Excluded, name)
			continue
		}

		outName := name
		if rename != "" && from.FullName() != "" {
			outName = strings.ReplaceAll(name, from.FullName(), rename)
		}

		dst := to.Join(outName)
		exists, err := dst.Exists()
		if err != nil {
			return report, errors.WrapWithContext(err, errors.CodeIO, "failed to stat destination", map[string]interface{}{"destination": dst.Path})
		}
		if exists {
			report.Skipped = append(report.Skipped, outName)
			continue
		}

		src := Location{FS: from.FS(), Path: filepath.Join(from.Path(), name)}
		if err := Copy(src, dst); err != nil {
			return report, err
		}
		log.Debug(ctx, "file exported", "file", outName)
		report.Written = append(report.Written, outName)
	}

	return report, nil
}

// Report summarizes one import or export pass.
type Report struct {
	// RunID identifies the pass in log lines.
	RunID string
	// Written lists files created by the pass.
	Written []string
	// Skipped lists destinations that already existed.
	Skipped []string
	// Excluded lists files dropped by exclusion tokens or filters.
	Excluded []string
	// Missing lists optional specs without a source.
	Missing []string
	// Failures lists isolated child failures.
	Failures []Failure
}

// Failure records an isolated child failure.
type Failure struct {
	Entity string
	Err    error
}

// NewReport returns an empty report with a fresh run id.
func NewReport() *Report {
	return &Report{RunID: uuid.NewString()}
}

// Merge appends the content of other to r, keeping r's run id.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Written = append(r.Written, other.Written...)
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Excluded = append(r.Excluded, other.Excluded...)
	r.Missing = append(r.Missing, other.Missing...)
	r.Failures = append(r.Failures, other.Failures...)
}

func matchesAny(name string, tokens []string) bool {
	for _, tok := range tokens {
		if tok != "" && strings.Contains(name, tok) {
			return true
		}
	}
	return false
}
