package bids

import (
	"sort"
	"sync"

	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/registry"
)

// SessionType describes a registered session kind.
type SessionType struct {
	Kind Kind
	// Modalities are created by Build.
	Modalities []ModalityDefault
	Importers  *registry.Registry[ImporterFactory]
	Exporters  *registry.Registry[ExporterFactory]
}

// ModalityDefault names a modality a session type creates by default.
type ModalityDefault struct {
	Name string
	Kind Kind
}

// ModalityType describes a registered modality kind.
type ModalityType struct {
	Kind Kind
	// Name is the default directory name, e.g. "anat".
	Name      string
	Importers *registry.Registry[ImporterFactory]
	Exporters *registry.Registry[ExporterFactory]
}

// Catalog holds the default capability layers of every level and the
// factory maps from kind to concrete session and modality types.
//
// The default layers of a kind sit on top of the layer of its level, so a
// capability registered for all sessions is visible to every session kind
// unless the kind shadows it.
type Catalog struct {
	mu         sync.RWMutex
	importers  map[Level]*registry.Registry[ImporterFactory]
	exporters  map[Level]*registry.Registry[ExporterFactory]
	sessions   map[Kind]*SessionType
	modalities map[Kind]*ModalityType
}

// NewCatalog returns a catalog with empty level layers and no kinds.
func NewCatalog() *Catalog {
	c := &Catalog{
		importers:  make(map[Level]*registry.Registry[ImporterFactory]),
		exporters:  make(map[Level]*registry.Registry[ExporterFactory]),
		sessions:   make(map[Kind]*SessionType),
		modalities: make(map[Kind]*ModalityType),
	}
	for _, l := range []Level{LevelDataset, LevelSubject, LevelSession, LevelModality} {
		c.importers[l] = registry.New[ImporterFactory](nil)
		c.exporters[l] = registry.New[ExporterFactory](nil)
	}
	return c
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the process wide catalog holding the built-in
// kinds and exporters.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog = NewCatalog()
		if err := RegisterBuiltins(defaultCatalog); err != nil {
			panic(err)
		}
	})
	return defaultCatalog
}

// Importers returns the importer layer shared by every entity of level.
func (c *Catalog) Importers(level Level) *registry.Registry[ImporterFactory] {
	return c.importers[level]
}

// Exporters returns the exporter layer shared by every entity of level.
func (c *Catalog) Exporters(level Level) *registry.Registry[ExporterFactory] {
	return c.exporters[level]
}

// RegisterSessionType adds a session kind. Its capability layers are
// created on top of the session level layers.
func (c *Catalog) RegisterSessionType(kind Kind, modalities ...ModalityDefault) (*SessionType, error) {
	if kind.Namespace == "" || kind.Type == "" {
		return nil, errors.New(errors.CodeInvalidInput, "session kind requires a namespace and a type")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[kind]; ok {
		return nil, errors.NewWithContext(errors.CodeAlreadyExists, "session kind already registered", map[string]interface{}{"kind": kind.String()})
	}
	t := &SessionType{
		Kind:       kind,
		Modalities: modalities,
		Importers:  c.importers[LevelSession].Child(),
		Exporters:  c.exporters[LevelSession].Child(),
	}
	c.sessions[kind] = t
	return t, nil
}

// RegisterModalityType adds a modality kind with its default directory name.
func (c *Catalog) RegisterModalityType(kind Kind, name string) (*ModalityType, error) {
	if kind.Namespace == "" || kind.Type == "" {
		return nil, errors.New(errors.CodeInvalidInput, "modality kind requires a namespace and a type")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.modalities[kind]; ok {
		return nil, errors.NewWithContext(errors.CodeAlreadyExists, "modality kind already registered", map[string]interface{}{"kind": kind.String()})
	}
	t := &ModalityType{
		Kind:      kind,
		Name:      name,
		Importers: c.importers[LevelModality].Child(),
		Exporters: c.exporters[LevelModality].Child(),
	}
	c.modalities[kind] = t
	return t, nil
}

// SessionType returns the session type registered for kind.
func (c *Catalog) SessionType(kind Kind) (*SessionType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.sessions[kind]
	return t, ok
}

// ModalityType returns the modality type registered for kind.
func (c *Catalog) ModalityType(kind Kind) (*ModalityType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.modalities[kind]
	return t, ok
}

// ModalityTypeByName returns the modality type whose default directory
// name is name.
func (c *Catalog) ModalityTypeByName(name string) (*ModalityType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.modalities {
		if t.Name != "" && t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// SessionKinds returns the registered session kinds sorted by name.
func (c *Catalog) SessionKinds() []Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]Kind, 0, len(c.sessions))
	for k := range c.sessions {
		kinds = append(kinds, k)
	}
	sortKinds(kinds)
	return kinds
}

// ModalityKinds returns the registered modality kinds sorted by name.
func (c *Catalog) ModalityKinds() []Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]Kind, 0, len(c.modalities))
	for k := range c.modalities {
		kinds = append(kinds, k)
	}
	sortKinds(kinds)
	return kinds
}

func sortKinds(kinds []Kind) {
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].String() < kinds[j].String() })
}

// resolveSession returns the session type for kind, falling back to the
// generic session kind.
func (c *Catalog) resolveSession(kind Kind) (*SessionType, bool) {
	if t, ok := c.SessionType(kind); ok {
		return t, true
	}
	t, ok := c.SessionType(KindSession)
	if !ok {
		t = &SessionType{
			Kind:      KindSession,
			Importers: c.importers[LevelSession].Child(),
			Exporters: c.exporters[LevelSession].Child(),
		}
	}
	return t, false
}

// resolveModality returns the modality type for kind, falling back to the
// generic modality kind.
func (c *Catalog) resolveModality(kind Kind) (*ModalityType, bool) {
	if t, ok := c.ModalityType(kind); ok {
		return t, true
	}
	t, ok := c.ModalityType(KindModality)
	if !ok {
		t = &ModalityType{
			Kind:      KindModality,
			Importers: c.importers[LevelModality].Child(),
			Exporters: c.exporters[LevelModality].Child(),
		}
	}
	return t, false
}

// IEEGExportTokens select the files of an iEEG modality in a BIDS export.
var IEEGExportTokens = []string{"ieeg", "coordsystem", "electrodes", "channels", "photo"}

// RegisterBuiltins registers the built-in kinds and the "BIDS" exporter on
// every level of c.
func RegisterBuiltins(c *Catalog) error {
	defaults := NewExporterFactory(ExporterConfig{Tag: TagBIDS})
	for _, l := range []Level{LevelDataset, LevelSubject, LevelSession, LevelModality} {
		if err := c.Exporters(l).Add(TagBIDS, defaults, nil, false); err != nil {
			return err
		}
	}

	for _, m := range []struct {
		kind Kind
		name string
	}{
		{KindModality, ""},
		{KindAnatomy, "anat"},
		{KindCT, "ct"},
		{KindIEEG, "ieeg"},
	} {
		if _, err := c.RegisterModalityType(m.kind, m.name); err != nil {
			return err
		}
	}

	ieeg, _ := c.ModalityType(KindIEEG)
	ieegExporter := NewExporterFactory(ExporterConfig{Tag: TagBIDS, Include: IEEGExportTokens})
	if err := ieeg.Exporters.Add(TagBIDS, ieegExporter, nil, false); err != nil {
		return err
	}

	if _, err := c.RegisterSessionType(KindSession); err != nil {
		return err
	}
	_, err := c.RegisterSessionType(KindIntracranial,
		ModalityDefault{Name: "anat", Kind: KindAnatomy},
		ModalityDefault{Name: "ct", Kind: KindCT},
		ModalityDefault{Name: "ieeg", Kind: KindIEEG},
	)
	return err
}
