package profile

import (
	"context"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/jmgilman/go/fs/core"

	"github.com/kleenlab/ucsfbids/errors"
)

// Loader compiles profile sources and checks them against the profile
// schema. A Loader owns one CUE context; values it returns may only be
// combined with values from the same Loader.
type Loader struct {
	fs     core.ReadFS
	cueCtx *cue.Context
	schema cue.Value
}

// NewLoader creates a loader reading profile files from filesystem. A nil
// filesystem restricts the loader to LoadBytes.
func NewLoader(filesystem core.ReadFS) (*Loader, error) {
	l := &Loader{fs: filesystem, cueCtx: cuecontext.New()}
	schema := l.cueCtx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "profile schema does not compile")
	}
	l.schema = schema.LookupPath(cue.ParsePath("#Profile"))
	return l, nil
}

// Context returns the underlying CUE context.
func (l *Loader) Context() *cue.Context {
	return l.cueCtx
}

// LoadFile compiles a single CUE file. The path is relative to the
// loader's filesystem root.
//
// Returns CodeProfileLoadFailed on I/O or compilation errors.
func (l *Loader) LoadFile(ctx context.Context, filePath string) (cue.Value, error) {
	if err := ctx.Err(); err != nil {
		return cue.Value{}, loadError(err, "context cancelled", "file_path", filePath)
	}
	if l.fs == nil {
		return cue.Value{}, errors.New(errors.CodeProfileLoadFailed, "loader has no filesystem")
	}

	data, err := l.fs.ReadFile(filePath)
	if err != nil {
		return cue.Value{}, loadError(err, "failed to read profile file", "file_path", filePath)
	}
	absPath := filePath
	if absPath == "" || absPath[0] != '/' {
		absPath = "/" + absPath
	}

	config := &load.Config{
		Dir:     "/",
		Overlay: map[string]load.Source{absPath: load.FromBytes(data)},
	}
	insts := load.Instances([]string{absPath}, config)
	if len(insts) == 0 {
		return cue.Value{}, loadError(fmt.Errorf("no instances loaded"), "failed to load profile file", "file_path", filePath)
	}
	if err := insts[0].Err; err != nil {
		return cue.Value{}, loadError(err, "failed to load profile file", "file_path", filePath)
	}

	val := l.cueCtx.BuildInstance(insts[0])
	if err := val.Err(); err != nil {
		return cue.Value{}, loadError(err, "failed to build profile file", "file_path", filePath)
	}
	return val, nil
}

// LoadBytes compiles CUE source. The filename is only used in error
// messages.
//
// Returns CodeProfileLoadFailed on compilation errors.
func (l *Loader) LoadBytes(ctx context.Context, source []byte, filename string) (cue.Value, error) {
	if err := ctx.Err(); err != nil {
		return cue.Value{}, loadError(err, "context cancelled", "filename", filename)
	}
	if filename == "" {
		filename = "<input>"
	}

	val := l.cueCtx.CompileBytes(source, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return cue.Value{}, loadError(err, "failed to compile profile source", "filename", filename)
	}
	return val, nil
}

// Issue is one schema violation.
type Issue struct {
	// Path is the field path of the violation, e.g. ["subject", "files", "0"].
	Path []string `json:"path" yaml:"path"`
	// Message is the human-readable error message.
	Message string `json:"message" yaml:"message"`
	// Position is the source position if available.
	Position token.Pos `json:"-" yaml:"-"`
}

// Validate unifies data with the profile schema and requires the result to
// be concrete. The unified value carries the schema defaults.
//
// Returns CodeProfileValidationFailed with an "issues" context entry.
func (l *Loader) Validate(ctx context.Context, data cue.Value) (cue.Value, error) {
	if err := ctx.Err(); err != nil {
		return cue.Value{}, errors.Wrap(err, errors.CodeProfileValidationFailed, "context cancelled")
	}

	unified := l.schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true), cue.Final(), cue.All()); err != nil {
		return cue.Value{}, errors.WrapWithContext(err, errors.CodeProfileValidationFailed, "profile does not match the schema", map[string]interface{}{
			"details": cueerrors.Details(err, nil),
			"issues":  issues(err),
		})
	}
	return unified, nil
}

func issues(err error) []Issue {
	var out []Issue
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		var pos token.Pos
		if positions := e.InputPositions(); len(positions) > 0 {
			pos = positions[0]
		}
		out = append(out, Issue{Path: e.Path(), Message: fmt.Sprintf(format, args...), Position: pos})
	}
	return out
}

func loadError(err error, message, key string, value interface{}) errors.PlatformError {
	return errors.WrapWithContext(err, errors.CodeProfileLoadFailed, message, map[string]interface{}{key: value})
}
