package profile

import (
	"context"
	_ "embed"
	"sort"

	"cuelang.org/go/cue"
	"github.com/jmgilman/go/fs/core"
	"gopkg.in/go-playground/validator.v9"

	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/sidecar"
)

var (
	//go:embed schema.cue
	schemaSource []byte

	//go:embed pia.cue
	piaSource []byte

	validate = validator.New()
)

// Profile describes the importers of one lab pipeline.
type Profile struct {
	// Name is the capability tag the importers are registered under.
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Description string   `json:"description" yaml:"description"`
	Dataset     Dataset  `json:"dataset" yaml:"dataset"`
	Subject     Importer `json:"subject" yaml:"subject"`
	// Sessions and Modalities are keyed by kind, "namespace.Type".
	Sessions   map[string]Importer `json:"sessions" yaml:"sessions" validate:"dive"`
	Modalities map[string]Importer `json:"modalities" yaml:"modalities" validate:"dive"`
}

// Dataset is the dataset level importer.
type Dataset struct {
	Files    []File   `json:"files" yaml:"files" validate:"dive"`
	Exclude  []string `json:"exclude" yaml:"exclude"`
	Children []Child  `json:"children" yaml:"children" validate:"dive"`
	// Description keys are merged into dataset_description.json.
	Description map[string]interface{} `json:"description" yaml:"description"`
	// Ignore patterns are added to .bidsignore.
	Ignore []string `json:"ignore" yaml:"ignore" validate:"dive,required"`
	// Participants keys are added to participants.json.
	Participants map[string]interface{} `json:"participants" yaml:"participants"`
}

// Importer is the importer of a subject, session or modality.
type Importer struct {
	Files    []File   `json:"files" yaml:"files" validate:"dive"`
	Exclude  []string `json:"exclude" yaml:"exclude"`
	Children []Child  `json:"children" yaml:"children" validate:"dive"`
}

// File declares one output file.
type File struct {
	Suffix     string   `json:"suffix" yaml:"suffix" validate:"required"`
	Extension  string   `json:"extension" yaml:"extension"`
	Candidates []string `json:"candidates" yaml:"candidates" validate:"dive,required"`
	Step       *Step    `json:"step,omitempty" yaml:"step,omitempty"`
	Post       *Step    `json:"post,omitempty" yaml:"post,omitempty"`
	Optional   bool     `json:"optional" yaml:"optional"`
}

// Step names a transform from the transform registry or an external
// program.
type Step struct {
	Transform string                 `json:"transform,omitempty" yaml:"transform,omitempty" validate:"required_without=Program"`
	Program   string                 `json:"program,omitempty" yaml:"program,omitempty" validate:"required_without=Transform"`
	Args      []string               `json:"args,omitempty" yaml:"args,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
}

// Child maps a child entity to its source directory.
type Child struct {
	Name   string `json:"name" yaml:"name"`
	Source string `json:"source" yaml:"source"`
	Kind   string `json:"kind" yaml:"kind"`
	Tag    string `json:"tag" yaml:"tag"`
}

// Builtins lists the embedded profiles.
func Builtins() []string {
	return []string{"Pia"}
}

// Builtin returns an embedded profile by name.
func Builtin(ctx context.Context, name string) (*Profile, error) {
	switch name {
	case "Pia":
		return Parse(ctx, piaSource, "pia.cue")
	default:
		return nil, errors.NewWithContext(errors.CodeNotFound, "unknown built-in profile: "+name, map[string]interface{}{
			"profile":   name,
			"available": Builtins(),
		})
	}
}

// Parse compiles, validates and decodes a profile from CUE source.
func Parse(ctx context.Context, source []byte, filename string) (*Profile, error) {
	l, err := NewLoader(nil)
	if err != nil {
		return nil, err
	}
	val, err := l.LoadBytes(ctx, source, filename)
	if err != nil {
		return nil, err
	}
	return l.decode(ctx, val, filename)
}

// Load reads a profile file from fsys.
func Load(ctx context.Context, fsys core.ReadFS, path string) (*Profile, error) {
	l, err := NewLoader(fsys)
	if err != nil {
		return nil, err
	}
	val, err := l.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return l.decode(ctx, val, path)
}

func (l *Loader) decode(ctx context.Context, val cue.Value, source string) (*Profile, error) {
	unified, err := l.Validate(ctx, val)
	if err != nil {
		return nil, errors.WithContext(err, "source", source)
	}

	var p Profile
	if err := unified.Decode(&p); err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeProfileDecodeFailed, "failed to decode profile", map[string]interface{}{"source": source})
	}
	if err := validate.Struct(&p); err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeProfileValidationFailed, "profile is invalid", map[string]interface{}{
			"source": source,
			"fields": fieldErrors(err),
		})
	}
	return &p, nil
}

func fieldErrors(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fe.Namespace()+": "+fe.ActualTag())
	}
	return out
}

// document converts a decoded CUE struct into a sidecar document with keys
// in lexical order. It returns nil for an empty map.
func document(m map[string]interface{}) *sidecar.Document {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := sidecar.New()
	for _, k := range keys {
		doc.Set(k, m[k])
	}
	return doc
}
