package profile

import (
	"sort"

	"github.com/kleenlab/ucsfbids/bids"
	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/filespec"
	"github.com/kleenlab/ucsfbids/registry"
)

// Install registers the importers of p on cat under the tag p.Name. Named
// steps are resolved in transforms; a nil registry uses
// filespec.NewTransforms.
//
// Session kinds unknown to cat are registered without default modalities.
// Modality kinds must already be registered. When Install fails, the
// importers it already added are removed again.
func Install(cat *bids.Catalog, p *Profile, transforms *registry.Registry[filespec.TransformFactory]) error {
	if transforms == nil {
		transforms = filespec.NewTransforms()
	}
	b := builder{tag: p.Name, transforms: transforms}
	if err := b.install(cat, p); err != nil {
		for _, layer := range b.added {
			layer.Remove(p.Name)
		}
		return err
	}
	return nil
}

func (b *builder) install(cat *bids.Catalog, p *Profile) error {

	for _, key := range sortedKeys(p.Modalities) {
		kind := bids.ParseKind(key)
		mt, ok := cat.ModalityType(kind)
		if !ok {
			return errors.NewWithContext(errors.CodeInvalidConfig, "profile names an unregistered modality kind", map[string]interface{}{
				"profile": p.Name,
				"kind":    key,
			})
		}
		cfg, err := b.importerConfig(p.Modalities[key])
		if err != nil {
			return errors.WithContext(err, "kind", key)
		}
		if err := b.add(mt.Importers, bids.NewImporterFactory(cfg)); err != nil {
			return err
		}
	}

	for _, key := range sortedKeys(p.Sessions) {
		kind := bids.ParseKind(key)
		st, ok := cat.SessionType(kind)
		if !ok {
			var err error
			if st, err = cat.RegisterSessionType(kind); err != nil {
				return err
			}
		}
		cfg, err := b.importerConfig(p.Sessions[key])
		if err != nil {
			return errors.WithContext(err, "kind", key)
		}
		if err := b.add(st.Importers, bids.NewImporterFactory(cfg)); err != nil {
			return err
		}
	}

	subject, err := b.importerConfig(p.Subject)
	if err != nil {
		return errors.WithContext(err, "level", bids.LevelSubject.String())
	}
	if err := b.add(cat.Importers(bids.LevelSubject), bids.NewImporterFactory(subject)); err != nil {
		return err
	}

	dataset, err := b.importerConfig(Importer{Files: p.Dataset.Files, Exclude: p.Dataset.Exclude, Children: p.Dataset.Children})
	if err != nil {
		return errors.WithContext(err, "level", bids.LevelDataset.String())
	}
	return b.add(cat.Importers(bids.LevelDataset), bids.NewDatasetImporterFactory(bids.DatasetImportConfig{
		ImporterConfig:      dataset,
		Description:         document(p.Dataset.Description),
		Ignore:              p.Dataset.Ignore,
		ParticipantsSidecar: document(p.Dataset.Participants),
	}))
}

type builder struct {
	tag        string
	transforms *registry.Registry[filespec.TransformFactory]
	// added holds the layers the importer was registered on.
	added []*registry.Registry[bids.ImporterFactory]
}

func (b *builder) add(layer *registry.Registry[bids.ImporterFactory], factory bids.ImporterFactory) error {
	if layer.HasLocal(b.tag) {
		return errors.NewWithContext(errors.CodeAlreadyExists, "profile is already installed", map[string]interface{}{"profile": b.tag})
	}
	if err := layer.Add(b.tag, factory, nil, false); err != nil {
		return err
	}
	b.added = append(b.added, layer)
	return nil
}

func (b *builder) importerConfig(imp Importer) (bids.ImporterConfig, error) {
	cfg := bids.ImporterConfig{Tag: b.tag, Exclude: imp.Exclude}
	for _, f := range imp.Files {
		spec, err := b.spec(f)
		if err != nil {
			return bids.ImporterConfig{}, err
		}
		cfg.Specs = append(cfg.Specs, spec)
	}
	for _, c := range imp.Children {
		m := bids.ChildMapping{Name: c.Name, Source: c.Source, Tag: c.Tag}
		if c.Kind != "" {
			m.Kind = bids.ParseKind(c.Kind)
		}
		cfg.Children = append(cfg.Children, m)
	}
	return cfg, nil
}

func (b *builder) spec(f File) (filespec.Spec, error) {
	spec := filespec.Spec{
		Suffix:     f.Suffix,
		Extension:  f.Extension,
		Candidates: f.Candidates,
		Optional:   f.Optional,
	}
	if f.Step != nil {
		step, err := b.step(*f.Step)
		if err != nil {
			return filespec.Spec{}, err
		}
		spec.Step = step
	}
	if f.Post != nil {
		if f.Post.Transform != "" {
			return filespec.Spec{}, errors.NewWithContext(errors.CodeInvalidConfig, "post steps only run programs", map[string]interface{}{
				"file":      spec.Destination("*"),
				"transform": f.Post.Transform,
			})
		}
		spec.Post = &filespec.Post{Name: f.Post.Program, Program: f.Post.Program, Args: f.Post.Args}
	}
	if err := spec.Validate(); err != nil {
		return filespec.Spec{}, errors.WithContext(err, "file", spec.Destination("*"))
	}
	return spec, nil
}

func (b *builder) step(s Step) (*filespec.Step, error) {
	switch {
	case s.Transform != "" && s.Program != "":
		return nil, errors.NewWithContext(errors.CodeInvalidConfig, "step sets both a transform and a program", map[string]interface{}{
			"transform": s.Transform,
			"program":   s.Program,
		})
	case s.Program != "":
		return &filespec.Step{Name: s.Program, Program: s.Program, Args: s.Args}, nil
	default:
		entry, err := b.transforms.Get(s.Transform)
		if err != nil {
			return nil, errors.WithContext(err, "transform", s.Transform)
		}
		return entry.Handler(entry.Defaults.Merge(registry.Options(s.Options)))
	}
}

func sortedKeys(m map[string]Importer) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
