package bids

import (
	"path/filepath"
	"testing"

	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
	"github.com/stretchr/testify/require"

	"github.com/kleenlab/ucsfbids/filespec"
	"github.com/kleenlab/ucsfbids/sidecar"
)

func writeFile(t testing.TB, fsys core.FS, path, content string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, fsys.WriteFile(path, []byte(content), 0o644))
}

func readFile(t testing.TB, fsys core.FS, path string) string {
	t.Helper()
	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func exists(t testing.TB, fsys core.FS, path string) bool {
	t.Helper()
	ok, err := fsys.Exists(path)
	require.NoError(t, err)
	return ok
}

func readMeta(t testing.TB, fsys core.FS, path string) *sidecar.Document {
	t.Helper()
	doc, err := sidecar.Read(fsys, path)
	require.NoError(t, err)
	return doc
}

// newCatalog returns a catalog with the built-ins and a "Pia" importer
// chain that only uses in-process steps.
func newCatalog(t testing.TB) *Catalog {
	t.Helper()
	c := NewCatalog()
	require.NoError(t, RegisterBuiltins(c))

	anat, _ := c.ModalityType(KindAnatomy)
	require.NoError(t, anat.Importers.Add("Pia", NewImporterFactory(ImporterConfig{
		Tag: "Pia",
		Specs: []filespec.Spec{
			{Suffix: "T1w", Extension: ".nii.gz", Candidates: []string{"mri/T1.nii.gz"}},
			{Suffix: "T1w", Extension: ".json", Candidates: []string{"acpc/T1_orig.json", "acpc/T1.json"}, Step: &filespec.Step{Name: "strip_json", Transform: filespec.StripJSON()}},
		},
	}), nil, false))

	ct, _ := c.ModalityType(KindCT)
	require.NoError(t, ct.Importers.Add("Pia", NewImporterFactory(ImporterConfig{
		Tag: "Pia",
		Specs: []filespec.Spec{
			{Suffix: "CT", Extension: ".nii", Candidates: []string{"CT/CT.nii", "CT/CT.nii.gz"}},
		},
	}), nil, false))

	ieeg, _ := c.ModalityType(KindIEEG)
	require.NoError(t, ieeg.Importers.Add("Pia", NewImporterFactory(ImporterConfig{
		Tag: "Pia",
		Specs: []filespec.Spec{
			{Suffix: "coordsystem", Extension: ".json", Step: filespec.CoordSystem(filespec.DefaultCoordinateSystem)},
		},
	}), nil, false))

	intracranial, _ := c.SessionType(KindIntracranial)
	require.NoError(t, intracranial.Importers.Add("Pia", NewImporterFactory(ImporterConfig{
		Tag: "Pia",
		Children: []ChildMapping{
			{Name: "anat", Kind: KindAnatomy},
			{Name: "ct", Kind: KindCT},
			{Name: "ieeg", Kind: KindIEEG},
		},
	}), nil, false))

	require.NoError(t, c.Importers(LevelSubject).Add("Pia", NewImporterFactory(ImporterConfig{
		Tag:      "Pia",
		Children: []ChildMapping{{Name: "clinical", Kind: KindIntracranial}},
	}), nil, false))

	require.NoError(t, c.Importers(LevelDataset).Add("Pia", NewDatasetImporterFactory(DatasetImportConfig{
		ImporterConfig: ImporterConfig{Tag: "Pia"},
		Ignore:         []string{"extra_data/"},
	}), nil, false))

	return c
}

// writeSource lays out a lab source tree for one patient.
func writeSource(t testing.TB, fsys core.FS, root string) {
	t.Helper()
	writeFile(t, fsys, filepath.Join(root, "mri/T1.nii.gz"), "t1 image")
	writeFile(t, fsys, filepath.Join(root, "acpc/T1.json"), `{"EchoTime": 0.003, "InstitutionName": "UCSF"}`)
	writeFile(t, fsys, filepath.Join(root, "CT/CT.nii.gz"), "ct image")
}

func newMemory() core.FS {
	return billy.NewMemory()
}
