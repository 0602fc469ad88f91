package filespec

// DefaultExclude keeps metadata sidecars out of exports.
var DefaultExclude = []string{"_meta.json", "-meta.json"}

// Filter selects the files of an entity to export.
//
// A name passes when it contains any Include token (or Include is empty)
// and contains no Exclude token. Exclusion always wins.
type Filter struct {
	Include []string
	Exclude []string
}

// NewFilter returns a filter that also excludes DefaultExclude.
func NewFilter(include, exclude []string) Filter {
	ex := make([]string, 0, len(DefaultExclude)+len(exclude))
	ex = append(ex, DefaultExclude...)
	ex = append(ex, exclude...)
	return Filter{Include: include, Exclude: ex}
}

// Allows reports whether name passes the filter.
func (f Filter) Allows(name string) bool {
	if matchesAny(name, f.Exclude) {
		return false
	}
	if len(f.Include) == 0 {
		return true
	}
	return matchesAny(name, f.Include)
}
