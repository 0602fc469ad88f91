package bids

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/jmgilman/go/fs/core"

	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/filespec"
	"github.com/kleenlab/ucsfbids/logging"
	"github.com/kleenlab/ucsfbids/registry"
	"github.com/kleenlab/ucsfbids/sidecar"
)

// Metadata is the JSON sidecar of an entity.
type Metadata = sidecar.Document

// Entity is a directory in the dataset hierarchy.
type Entity interface {
	filespec.Target

	Level() Level
	Name() string
	DirectoryName() string
	Mode() Mode
	State() State
	Kind() Kind

	Meta() *Metadata
	MetaPath() string
	SaveMeta() error
	LoadMeta() error

	Importers() *registry.Registry[ImporterFactory]
	Exporters() *registry.Registry[ExporterFactory]
	CreateImporter(tag string, opts registry.Options) (Importer, error)
	CreateExporter(tag string, opts registry.Options) (Exporter, error)

	Children() []Entity
	Catalog() *Catalog
	Engine() *filespec.Engine
	Logger() *logging.Logger

	Create() error
	Build() error
	Load() error
}

// node implements the behaviour shared by every level.
type node struct {
	self       Entity
	level      Level
	fsys       core.FS
	path       string
	name       string
	parentFull string
	mode       Mode
	state      State
	kind       Kind
	meta       *Metadata
	importers  *registry.Registry[ImporterFactory]
	exporters  *registry.Registry[ExporterFactory]
	catalog    *Catalog
	logger     *logging.Logger
	engine     *filespec.Engine
	filter     []glob.Glob
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// init binds the node. Kind, metadata and registries are set by the caller.
func (n *node) init(self Entity, level Level, fsys core.FS, o *options) error {
	n.self = self
	n.level = level
	n.fsys = fsys

	n.catalog = o.catalog
	if n.catalog == nil {
		n.catalog = DefaultCatalog()
	}
	n.logger = o.logger
	if n.logger == nil {
		n.logger = logging.NewNopLogger()
	}
	n.engine = o.engine
	if n.engine == nil {
		n.engine = filespec.NewEngine(filespec.WithLogger(n.logger))
	}

	switch {
	case o.mode != nil:
		n.mode = *o.mode
	case o.create:
		n.mode = ModeCreate
	default:
		n.mode = ModeRead
	}

	n.name = o.name
	switch {
	case o.path != "":
		n.path = filepath.Clean(o.path)
	case o.parentPath != "" && o.name != "":
		n.path = filepath.Join(o.parentPath, level.Prefix()+o.name)
	}
	if n.path != "" && n.name == "" {
		n.name = strings.TrimPrefix(filepath.Base(n.path), level.Prefix())
	}

	n.parentFull = o.parentFullName
	if n.parentFull == "" && n.path != "" {
		n.parentFull = ancestorFullName(level, n.path)
	}

	for _, p := range o.childFilter {
		g, err := glob.Compile(p)
		if err != nil {
			return errors.WrapWithContext(err, errors.CodeInvalidInput, "invalid child filter pattern", map[string]interface{}{"pattern": p})
		}
		n.filter = append(n.filter, g)
	}

	if n.path != "" {
		n.state = StateBound
	}
	return nil
}

// ancestorFullName derives the full name of the parent of a session or
// modality from its path.
func ancestorFullName(level Level, path string) string {
	switch level {
	case LevelSession:
		sub := filepath.Base(filepath.Dir(path))
		if strings.HasPrefix(sub, LevelSubject.Prefix()) {
			return sub
		}
	case LevelModality:
		sesDir := filepath.Dir(path)
		ses := filepath.Base(sesDir)
		sub := filepath.Base(filepath.Dir(sesDir))
		if strings.HasPrefix(ses, LevelSession.Prefix()) && strings.HasPrefix(sub, LevelSubject.Prefix()) {
			return sub + "_" + ses
		}
	}
	return ""
}

// defaultMeta returns the namespace and type keys for the current kind
// merged with the caller supplied metadata.
func (n *node) defaultMeta(initial *Metadata, extra *Metadata) *Metadata {
	meta := sidecar.New()
	if initial != nil {
		meta.Merge(initial)
	}
	nsKey, typeKey := n.level.metaKeys()
	meta.Set(nsKey, n.kind.Namespace)
	meta.Set(typeKey, n.kind.Type)
	if extra != nil {
		meta.Merge(extra)
	}
	return meta
}

// enter applies the construction entry policy.
func (n *node) enter(o *options) error {
	if !o.create && !o.load {
		return nil
	}
	if err := n.requireBound(); err != nil {
		return err
	}
	exists, err := n.fsys.Exists(n.path)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to stat entity directory", map[string]interface{}{"path": n.path})
	}
	switch {
	case !exists && o.build:
		return n.self.Build()
	case !exists && o.create:
		return n.self.Create()
	case exists && o.load:
		return n.self.Load()
	}
	return nil
}

func (n *node) requireBound() error {
	if n.path == "" {
		return errors.NewWithContext(errors.CodeUnresolvedEntity, n.level.String()+" is not bound to a path", map[string]interface{}{
			"level": n.level.String(),
			"name":  n.name,
		})
	}
	return nil
}

// Level returns the hierarchy level.
func (n *node) Level() Level { return n.level }

// Name returns the name without the level prefix.
func (n *node) Name() string { return n.name }

// Path returns the bound directory, or "" when unbound.
func (n *node) Path() string { return n.path }

// FS returns the filesystem holding the entity.
func (n *node) FS() core.FS { return n.fsys }

// Mode returns the access mode.
func (n *node) Mode() Mode { return n.mode }

// State returns the lifecycle state.
func (n *node) State() State { return n.state }

// Kind returns the concrete kind.
func (n *node) Kind() Kind { return n.kind }

// Meta returns the in-memory metadata.
func (n *node) Meta() *Metadata { return n.meta }

// Catalog returns the catalog the entity resolves kinds from.
func (n *node) Catalog() *Catalog { return n.catalog }

// Engine returns the engine used by importers and exporters.
func (n *node) Engine() *filespec.Engine { return n.engine }

// Logger returns the entity logger.
func (n *node) Logger() *logging.Logger { return n.logger }

// Importers returns the instance importer layer.
func (n *node) Importers() *registry.Registry[ImporterFactory] { return n.importers }

// Exporters returns the instance exporter layer.
func (n *node) Exporters() *registry.Registry[ExporterFactory] { return n.exporters }

// DirectoryName returns the level prefix followed by the name.
func (n *node) DirectoryName() string {
	return n.level.Prefix() + n.name
}

// FullName returns the name used as the prefix of the entity's files.
func (n *node) FullName() string {
	switch n.level {
	case LevelSubject:
		return LevelSubject.Prefix() + n.name
	case LevelSession:
		if n.parentFull == "" {
			return LevelSession.Prefix() + n.name
		}
		return n.parentFull + "_" + LevelSession.Prefix() + n.name
	case LevelModality:
		return n.parentFull
	default:
		return n.name
	}
}

// MetaPath returns the path of the metadata sidecar.
func (n *node) MetaPath() string {
	if n.path == "" {
		return ""
	}
	var file string
	switch n.level {
	case LevelDataset:
		file = DatasetDescriptionFile
	case LevelModality:
		file = n.FullName() + "_" + n.name + "-meta.json"
	default:
		file = n.FullName() + "_meta.json"
	}
	return filepath.Join(n.path, file)
}

// SaveMeta writes the metadata sidecar.
func (n *node) SaveMeta() error {
	if err := n.requireBound(); err != nil {
		return err
	}
	if !n.mode.CanWrite() {
		return n.readOnly("write metadata")
	}
	return sidecar.Write(n.fsys, n.MetaPath(), n.meta)
}

// LoadMeta replaces the in-memory metadata with the sidecar on disk. A
// missing sidecar keeps the current metadata.
func (n *node) LoadMeta() error {
	if err := n.requireBound(); err != nil {
		return err
	}
	doc, err := sidecar.Read(n.fsys, n.MetaPath())
	if err != nil {
		if errors.HasCode(err, errors.CodeNotFound) {
			n.logger.Debug(context.Background(), "metadata sidecar missing, keeping defaults", "entity", n.FullName(), "path", n.MetaPath())
			return nil
		}
		return err
	}
	n.meta = doc
	return nil
}

// metaKind returns the kind recorded in the metadata, if any.
func (n *node) metaKind() Kind {
	nsKey, typeKey := n.level.metaKeys()
	return Kind{Namespace: n.meta.GetString(nsKey), Type: n.meta.GetString(typeKey)}
}

// CreateImporter instantiates the importer registered under tag.
func (n *node) CreateImporter(tag string, opts registry.Options) (Importer, error) {
	entry, err := n.importers.Get(tag)
	if err != nil {
		return nil, errors.WithContext(err, "entity", n.FullName())
	}
	return entry.Handler(n.self, entry.Defaults.Merge(opts))
}

// CreateExporter instantiates the exporter registered under tag.
func (n *node) CreateExporter(tag string, opts registry.Options) (Exporter, error) {
	entry, err := n.exporters.Get(tag)
	if err != nil {
		return nil, errors.WithContext(err, "entity", n.FullName())
	}
	return entry.Handler(n.self, entry.Defaults.Merge(opts))
}

// Create makes the directory and writes the metadata. Calling it again
// rewrites the metadata.
func (n *node) Create() error {
	if err := n.requireBound(); err != nil {
		return err
	}
	exists, err := n.fsys.Exists(n.path)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to stat entity directory", map[string]interface{}{"path": n.path})
	}
	if !exists {
		if !n.mode.CanCreate() {
			return n.readOnly("create directory")
		}
		if err := n.fsys.MkdirAll(n.path, 0o755); err != nil {
			return errors.WrapWithContext(err, errors.CodeIO, "failed to create entity directory", map[string]interface{}{"path": n.path})
		}
	}
	if err := n.SaveMeta(); err != nil {
		return err
	}
	if n.state < StateCreated {
		n.state = StateCreated
	}
	n.logger.WithOperation(logging.OpCreate).Debug(context.Background(), "entity created", "entity", n.FullName(), "path", n.path)
	return nil
}

func (n *node) readOnly(action string) error {
	return errors.NewWithContext(errors.CodeReadOnly, "cannot "+action+" in "+n.mode.String()+" mode", map[string]interface{}{
		"entity": n.FullName(),
		"path":   n.path,
		"mode":   n.mode.String(),
	})
}

// allowed reports whether a child passes the load filter.
func (n *node) allowed(name, dirName string) bool {
	if len(n.filter) == 0 {
		return true
	}
	for _, g := range n.filter {
		if g.Match(name) || g.Match(dirName) {
			return true
		}
	}
	return false
}

// childDirs returns the sorted names of the subdirectories starting with
// prefix that pass the load filter.
func (n *node) childDirs(prefix string) ([]string, error) {
	entries, err := n.fsys.ReadDir(n.path)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeIO, "failed to list entity directory", map[string]interface{}{"path": n.path})
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || e.Name() == prefix {
			continue
		}
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !n.allowed(strings.TrimPrefix(e.Name(), prefix), e.Name()) {
			continue
		}
		dirs = append(dirs, e.Name())
	}
	sort.Strings(dirs)
	return dirs, nil
}

// childOptions returns the options every child constructed by n inherits.
func (n *node) childOptions(name string, extra ...Option) []Option {
	opts := []Option{
		WithParentPath(n.path),
		WithName(name),
		WithMode(n.mode),
		WithCatalog(n.catalog),
		WithLogger(n.logger),
		WithEngine(n.engine),
		withParentFullName(n.FullName()),
	}
	return append(opts, extra...)
}

// children is a name indexed set of child entities.
type children[T Entity] struct {
	items map[string]T
}

func (c *children[T]) get(name string) (T, bool) {
	v, ok := c.items[name]
	return v, ok
}

func (c *children[T]) put(name string, v T) {
	if c.items == nil {
		c.items = make(map[string]T)
	}
	c.items[name] = v
}

func (c *children[T]) len() int {
	return len(c.items)
}

func (c *children[T]) sorted() []T {
	names := make([]string, 0, len(c.items))
	for name := range c.items {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]T, 0, len(names))
	for _, name := range names {
		out = append(out, c.items[name])
	}
	return out
}

func (c *children[T]) entities() []Entity {
	items := c.sorted()
	out := make([]Entity, len(items))
	for i, v := range items {
		out[i] = v
	}
	return out
}

// nextName returns the automatic name for the next child.
func (c *children[T]) nextName() string {
	return fmt.Sprintf("S%04d", c.len())
}

// checkNew rejects a name already held in memory.
func (c *children[T]) checkNew(level Level, name string) error {
	if _, ok := c.get(name); ok {
		return errors.NewWithContext(errors.CodeAlreadyExists, level.String()+" already exists", map[string]interface{}{"name": name})
	}
	return nil
}
