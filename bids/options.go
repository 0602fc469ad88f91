package bids

import (
	"github.com/kleenlab/ucsfbids/filespec"
	"github.com/kleenlab/ucsfbids/logging"
	"github.com/kleenlab/ucsfbids/sidecar"
)

// Option configures an entity at construction.
type Option func(*options)

type options struct {
	path           string
	parentPath     string
	name           string
	mode           *Mode
	create         bool
	build          bool
	load           bool
	childFilter    []string
	kind           Kind
	meta           *sidecar.Document
	catalog        *Catalog
	logger         *logging.Logger
	engine         *filespec.Engine
	parentFullName string
}

// WithPath binds the entity to its directory.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithParentPath binds the entity below parent; the directory name is
// derived from the name given with WithName.
func WithParentPath(parent string) Option {
	return func(o *options) {
		o.parentPath = parent
	}
}

// WithName sets the entity name, without the level prefix.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithMode sets the access mode.
func WithMode(mode Mode) Option {
	return func(o *options) {
		o.mode = &mode
	}
}

// WithCreate creates the directory when it does not exist. Without an
// explicit WithMode it also selects ModeCreate.
func WithCreate() Option {
	return func(o *options) {
		o.create = true
	}
}

// WithBuild creates the directory and its default children when it does
// not exist. It implies WithCreate.
func WithBuild() Option {
	return func(o *options) {
		o.create = true
		o.build = true
	}
}

// WithLoad loads the tree when the directory exists.
func WithLoad() Option {
	return func(o *options) {
		o.load = true
	}
}

// WithChildFilter restricts Load to children whose name or directory name
// matches one of the glob patterns.
func WithChildFilter(patterns ...string) Option {
	return func(o *options) {
		o.childFilter = append(o.childFilter, patterns...)
	}
}

// WithKind selects the kind of a Session or Modality.
func WithKind(kind Kind) Option {
	return func(o *options) {
		o.kind = kind
	}
}

// WithMeta merges initial metadata over the defaults.
func WithMeta(meta *sidecar.Document) Option {
	return func(o *options) {
		o.meta = meta
	}
}

// WithCatalog sets the catalog used to resolve kinds and default
// capabilities. DefaultCatalog is used otherwise.
func WithCatalog(c *Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithEngine sets the engine used by importers and exporters.
func WithEngine(e *filespec.Engine) Option {
	return func(o *options) {
		o.engine = e
	}
}

// withParentFullName is set by parents when constructing children.
func withParentFullName(name string) Option {
	return func(o *options) {
		o.parentFullName = name
	}
}
