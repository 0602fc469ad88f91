package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleenlab/ucsfbids/bids"
	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/filespec"
	"github.com/kleenlab/ucsfbids/registry"
)

type convertRunner struct {
	fsys     core.FS
	programs []string
}

func (r *convertRunner) Run(_ context.Context, program string, args ...string) error {
	r.programs = append(r.programs, program)
	return r.fsys.WriteFile(args[len(args)-1], []byte("converted"), 0o644)
}

func builtinCatalog(t *testing.T) *bids.Catalog {
	t.Helper()
	c := bids.NewCatalog()
	require.NoError(t, bids.RegisterBuiltins(c))
	return c
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestInstall_Pia(t *testing.T) {
	ctx := context.Background()
	p, err := Builtin(ctx, "Pia")
	require.NoError(t, err)
	catalog := builtinCatalog(t)
	require.NoError(t, Install(catalog, p, nil))

	root := t.TempDir()
	src := filepath.Join(root, "lab", "EC101")
	writeFile(t, filepath.Join(src, "mri/brain.mgz"), "mgz")
	writeFile(t, filepath.Join(src, "acpc/T1_orig.json"), `{"EchoTime": 0.003, "DeviceSerialNumber": "42"}`)
	writeFile(t, filepath.Join(src, "CT/CT.nii"), "ct")
	writeFile(t, filepath.Join(src, "elecs/clinical_elecs_all.csv"), "Label,X,Y,Z\nA1,10,2,3\nA2,-4,2,3\n")

	fsys := billy.NewLocal()
	runner := &convertRunner{fsys: fsys}
	ds, err := bids.NewDataset(fsys,
		bids.WithPath(filepath.Join(root, "study")),
		bids.WithBuild(),
		bids.WithCatalog(catalog),
		bids.WithEngine(filespec.NewEngine(filespec.WithRunner(runner))),
	)
	require.NoError(t, err)

	report, err := bids.Import(ctx, ds, "Pia", filespec.Location{FS: fsys, Path: filepath.Join(root, "lab")}, registry.Options{
		bids.OptChildren: []bids.ChildMapping{{Name: "P01", Source: "EC101"}},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"sub-P01_ses-clinical_T1w.nii.gz",
		"sub-P01_ses-clinical_T1w.json",
		"sub-P01_ses-clinical_CT.nii",
		"sub-P01_ses-clinical_electrodes.tsv",
		"sub-P01_ses-clinical_coordsystem.json",
	}, report.Written)
	assert.Equal(t, []string{"sub-P01_ses-clinical_CT.json"}, report.Missing)
	assert.Equal(t, []string{"mri_convert"}, runner.programs)

	base := filepath.Join(root, "study", "sub-P01", "ses-clinical")
	t1, err := os.ReadFile(filepath.Join(base, "anat", "sub-P01_ses-clinical_T1w.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(t1), "DeviceSerialNumber")

	elecs, err := os.ReadFile(filepath.Join(base, "ieeg", "sub-P01_ses-clinical_electrodes.tsv"))
	require.NoError(t, err)
	assert.Contains(t, string(elecs), "A1")

	ignore, err := os.ReadFile(filepath.Join(root, "study", bids.IgnoreFile))
	require.NoError(t, err)
	assert.Equal(t, "extra_data/\n", string(ignore))
}

func TestInstall_Twice(t *testing.T) {
	p, err := Builtin(context.Background(), "Pia")
	require.NoError(t, err)
	catalog := builtinCatalog(t)
	require.NoError(t, Install(catalog, p, nil))

	err = Install(catalog, p, nil)
	assert.Equal(t, errors.CodeAlreadyExists, errors.GetCode(err))
}

func TestInstall_FailureLeavesNoImporters(t *testing.T) {
	p, err := Parse(context.Background(), []byte(`
name: "Lab"
modalities: "ucsfbids.CT": files: [{suffix: "CT", extension: ".nii", candidates: ["CT/CT.nii"]}]
subject: files: [{suffix: "x", candidates: ["x"], step: transform: "nope"}]
`), "lab.cue")
	require.NoError(t, err)
	catalog := builtinCatalog(t)

	err = Install(catalog, p, nil)
	assert.Equal(t, errors.CodeMissingCapability, errors.GetCode(err))

	ct, ok := catalog.ModalityType(bids.KindCT)
	require.True(t, ok)
	assert.False(t, ct.Importers.Has("Lab"))
	assert.False(t, catalog.Importers(bids.LevelSubject).Has("Lab"))
}

func TestInstall_RegistersSessionKinds(t *testing.T) {
	p, err := Parse(context.Background(), []byte(`
name: "Sleep"
subject: children: [{name: "night", kind: "lab.Sleep"}]
sessions: "lab.Sleep": files: [{suffix: "scores", extension: ".tsv", candidates: ["scores.tsv"]}]
`), "sleep.cue")
	require.NoError(t, err)
	catalog := builtinCatalog(t)
	require.NoError(t, Install(catalog, p, nil))

	st, ok := catalog.SessionType(bids.Kind{Namespace: "lab", Type: "Sleep"})
	require.True(t, ok)
	assert.True(t, st.Importers.Has("Sleep"))
	assert.True(t, catalog.Importers(bids.LevelSubject).Has("Sleep"))
	assert.True(t, catalog.Importers(bids.LevelDataset).Has("Sleep"))
}

func TestInstall_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		code   errors.ErrorCode
	}{
		{
			name:   "unregistered modality kind",
			source: "name: \"Lab\"\nmodalities: \"lab.EEG\": {}",
			code:   errors.CodeInvalidConfig,
		},
		{
			name:   "unknown transform",
			source: "name: \"Lab\"\nsubject: files: [{suffix: \"x\", candidates: [\"x\"], step: transform: \"nope\"}]",
			code:   errors.CodeMissingCapability,
		},
		{
			name:   "transform and program",
			source: "name: \"Lab\"\nsubject: files: [{suffix: \"x\", candidates: [\"x\"], step: {transform: \"copy\", program: \"cp\"}}]",
			code:   errors.CodeInvalidConfig,
		},
		{
			name:   "post transform",
			source: "name: \"Lab\"\nsubject: files: [{suffix: \"x\", candidates: [\"x\"], post: transform: \"copy\"}]",
			code:   errors.CodeInvalidConfig,
		},
		{
			name:   "no source and no synthesis",
			source: "name: \"Lab\"\nsubject: files: [{suffix: \"x\", step: transform: \"copy\"}]",
			code:   errors.CodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(context.Background(), []byte(tt.source), "lab.cue")
			require.NoError(t, err)

			err = Install(builtinCatalog(t), p, nil)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestInstall_CustomTransforms(t *testing.T) {
	transforms := filespec.NewTransforms().Child()
	var got registry.Options
	require.NoError(t, transforms.Add("stamp", func(args registry.Options) (*filespec.Step, error) {
		got = args
		return &filespec.Step{Name: "stamp", Transform: filespec.WriteJSON(args), Synthesizes: true}, nil
	}, registry.Options{"version": "1"}, false))

	p, err := Parse(context.Background(), []byte(`
name: "Lab"
subject: files: [{suffix: "stamp", extension: ".json", step: {transform: "stamp", options: {site: "UCSF"}}}]
`), "lab.cue")
	require.NoError(t, err)
	require.NoError(t, Install(builtinCatalog(t), p, transforms))

	assert.Equal(t, "1", got["version"])
	assert.Equal(t, "UCSF", got["site"])
}
