package filespec

import (
	"strings"

	"github.com/kleenlab/ucsfbids/errors"
)

// Spec declares one output file of an entity.
type Spec struct {
	// Suffix is appended to the full name, e.g. "T1w".
	Suffix string
	// Extension includes the leading dot, e.g. ".nii.gz".
	Extension string
	// Candidates are source-relative paths tried in order.
	Candidates []string
	// Step converts the source; nil copies bytes verbatim.
	Step *Step
	// Post runs on the destination after Step.
	Post *Post
	// Optional specs without any source are recorded as missing instead of
	// failing the import.
	Optional bool
}

// Destination returns the output file name for an entity full name.
func (s Spec) Destination(fullName string) string {
	return fullName + "_" + s.Suffix + s.Extension
}

// Validate checks the declaration.
func (s Spec) Validate() error {
	if s.Suffix == "" {
		return errors.New(errors.CodeInvalidInput, "file spec suffix cannot be empty")
	}
	if s.Extension != "" && !strings.HasPrefix(s.Extension, ".") {
		return errors.Newf(errors.CodeInvalidInput, "file spec extension %q must start with a dot", s.Extension)
	}
	if len(s.Candidates) == 0 && !s.Step.CanSynthesize() {
		return errors.Newf(errors.CodeInvalidInput, "file spec %s%s has no candidates and cannot synthesize its output", s.Suffix, s.Extension)
	}
	return s.Step.Validate()
}
