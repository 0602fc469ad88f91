package filespec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kleenlab/ucsfbids/errors"
)

type target struct {
	fsys     core.FS
	path     string
	fullName string
}

func (t target) FS() core.FS      { return t.fsys }
func (t target) Path() string     { return t.path }
func (t target) FullName() string { return t.fullName }

type call struct {
	program string
	args    []string
}

// fakeRunner records program invocations and writes the last argument so
// the destination exists afterwards.
type fakeRunner struct {
	calls []call
	fsys  core.FS
	err   error
}

func (r *fakeRunner) Run(_ context.Context, program string, args ...string) error {
	r.calls = append(r.calls, call{program: program, args: args})
	if r.err != nil {
		return r.err
	}
	return r.fsys.WriteFile(args[len(args)-1], []byte("converted by "+program), 0o644)
}

func writeFile(t *testing.T, fsys core.FS, path, content string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, fsys.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, fsys core.FS, path string) string {
	t.Helper()
	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func setup(t *testing.T) (core.FS, target, Location) {
	t.Helper()
	fsys := billy.NewMemory()
	require.NoError(t, fsys.MkdirAll("/bids/sub-01/ses-01/anat", 0o755))
	tgt := target{fsys: fsys, path: "/bids/sub-01/ses-01/anat", fullName: "sub-01_ses-01"}
	return fsys, tgt, Location{FS: fsys, Path: "/source/EC101"}
}

func TestImport_CopiesFirstExistingCandidate(t *testing.T) {
	tests := []struct {
		name    string
		present map[string]string
		want    string
	}{
		{
			name:    "only second candidate exists",
			present: map[string]string{"CT/CT.nii.gz": "from B"},
			want:    "from B",
		},
		{
			name:    "both candidates exist",
			present: map[string]string{"CT/CT.nii": "from A", "CT/CT.nii.gz": "from B"},
			want:    "from A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys, tgt, src := setup(t)
			for rel, content := range tt.present {
				writeFile(t, fsys, src.Join(rel).Path, content)
			}

			var touched []string
			record := &Step{Transform: func(ctx context.Context, s, d Location) error {
				touched = append(touched, s.Path)
				return Copy(s, d)
			}}

			specs := []Spec{{Suffix: "CT", Extension: ".nii", Candidates: []string{"CT/CT.nii", "CT/CT.nii.gz"}, Step: record}}
			report, err := NewEngine().Import(context.Background(), tgt, src, specs, nil)
			require.NoError(t, err)

			assert.Equal(t, []string{"sub-01_ses-01_CT.nii"}, report.Written)
			assert.Equal(t, tt.want, readFile(t, fsys, "/bids/sub-01/ses-01/anat/sub-01_ses-01_CT.nii"))
			require.Len(t, touched, 1)
		})
	}
}

func TestImport_IsIdempotent(t *testing.T) {
	fsys, tgt, src := setup(t)
	writeFile(t, fsys, src.Join("acpc/T1.json").Path, `{"InstitutionName":"UCSF","EchoTime":0.003}`)
	writeFile(t, fsys, src.Join("CT/CT.nii").Path, "ct")

	runner := &fakeRunner{fsys: fsys}
	specs := []Spec{
		{Suffix: "T1w", Extension: ".json", Candidates: []string{"acpc/T1_orig.json", "acpc/T1.json"}, Step: &Step{Transform: StripJSON()}},
		{Suffix: "CT", Extension: ".nii", Candidates: []string{"CT/CT.nii"}},
		{Suffix: "coordsystem", Extension: ".json", Step: CoordSystem(DefaultCoordinateSystem)},
	}

	engine := NewEngine(WithRunner(runner))
	first, err := engine.Import(context.Background(), tgt, src, specs, nil)
	require.NoError(t, err)
	assert.Len(t, first.Written, 3)
	assert.Empty(t, first.Skipped)

	before := readFile(t, fsys, "/bids/sub-01/ses-01/anat/sub-01_ses-01_T1w.json")

	second, err := engine.Import(context.Background(), tgt, src, specs, nil)
	require.NoError(t, err)
	assert.Empty(t, second.Written)
	assert.Len(t, second.Skipped, 3)
	assert.Equal(t, before, readFile(t, fsys, "/bids/sub-01/ses-01/anat/sub-01_ses-01_T1w.json"))
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Empty(t, runner.calls)
}

func TestImport_MissingSourceFile(t *testing.T) {
	_, tgt, src := setup(t)
	specs := []Spec{{Suffix: "T1w", Extension: ".nii.gz", Candidates: []string{"mri/brain.mgz"}}}

	_, err := NewEngine().Import(context.Background(), tgt, src, specs, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeMissingSourceFile, errors.GetCode(err))
	assert.True(t, errors.IsFatal(err))

	var platformErr errors.PlatformError
	require.True(t, errors.As(err, &platformErr))
	assert.Equal(t, "/bids/sub-01/ses-01/anat/sub-01_ses-01_T1w.nii.gz", platformErr.Context()["destination"])
	assert.Equal(t, "sub-01_ses-01", platformErr.Context()["entity"])
}

func TestImport_FailFastKeepsEarlierFiles(t *testing.T) {
	fsys, tgt, src := setup(t)
	writeFile(t, fsys, src.Join("CT/CT.nii").Path, "ct")

	specs := []Spec{
		{Suffix: "CT", Extension: ".nii", Candidates: []string{"CT/CT.nii"}},
		{Suffix: "T1w", Extension: ".nii.gz", Candidates: []string{"mri/brain.mgz"}},
		{Suffix: "coordsystem", Extension: ".json", Step: CoordSystem(DefaultCoordinateSystem)},
	}

	report, err := NewEngine().Import(context.Background(), tgt, src, specs, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"sub-01_ses-01_CT.nii"}, report.Written)

	exists, _ := fsys.Exists("/bids/sub-01/ses-01/anat/sub-01_ses-01_coordsystem.json")
	assert.False(t, exists)
}

func TestImport_OptionalMissing(t *testing.T) {
	_, tgt, src := setup(t)
	specs := []Spec{{Suffix: "photo", Extension: ".jpg", Candidates: []string{"photos/implant.jpg"}, Optional: true}}

	report, err := NewEngine().Import(context.Background(), tgt, src, specs, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-01_ses-01_photo.jpg"}, report.Missing)
}

func TestImport_SynthesizesWithoutSource(t *testing.T) {
	fsys, tgt, src := setup(t)
	specs := []Spec{{Suffix: "coordsystem", Extension: ".json", Candidates: []string{"elecs/coords.json"}, Step: CoordSystem(DefaultCoordinateSystem)}}

	_, err := NewEngine().Import(context.Background(), tgt, src, specs, nil)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"iEEGCoordinateSystem":"ACPC","iEEGCoordinateUnits":"mm"}`,
		readFile(t, fsys, "/bids/sub-01/ses-01/anat/sub-01_ses-01_coordsystem.json"))
}

func TestImport_ExclusionTokens(t *testing.T) {
	fsys, tgt, src := setup(t)
	writeFile(t, fsys, src.Join("CT/CT_identifiable.nii").Path, "ct")

	specs := []Spec{{Suffix: "CT", Extension: ".nii", Candidates: []string{"CT/CT_identifiable.nii"}}}
	report, err := NewEngine().Import(context.Background(), tgt, src, specs, []string{"identifiable"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-01_ses-01_CT.nii"}, report.Excluded)

	exists, _ := fsys.Exists("/bids/sub-01/ses-01/anat/sub-01_ses-01_CT.nii")
	assert.False(t, exists)
}

func TestImport_InvalidSpec(t *testing.T) {
	_, tgt, src := setup(t)

	tests := []Spec{
		{Extension: ".nii", Candidates: []string{"a"}},
		{Suffix: "T1w", Extension: "nii", Candidates: []string{"a"}},
		{Suffix: "T1w", Extension: ".nii"},
		{Suffix: "T1w", Candidates: []string{"a"}, Step: &Step{Program: "cp", Transform: WriteJSON(1)}},
	}
	for i, spec := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			_, err := NewEngine().Import(context.Background(), tgt, src, []Spec{spec}, nil)
			assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
		})
	}
}

func TestImport_UnresolvedTarget(t *testing.T) {
	fsys := billy.NewMemory()
	_, err := NewEngine().Import(context.Background(), target{fsys: fsys}, Location{FS: fsys}, nil, nil)
	assert.Equal(t, errors.CodeUnresolvedEntity, errors.GetCode(err))
}

func TestImport_CancelledContext(t *testing.T) {
	fsys, tgt, src := setup(t)
	writeFile(t, fsys, src.Join("CT/CT.nii").Path, "ct")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine().Import(ctx, tgt, src, []Spec{{Suffix: "CT", Extension: ".nii", Candidates: []string{"CT/CT.nii"}}}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImport_ProgramStep(t *testing.T) {
	t.Run("runs program with source and destination", func(t *testing.T) {
		fsys := billy.NewLocal()
		root := t.TempDir()
		tgt := target{fsys: fsys, path: filepath.Join(root, "bids/sub-01/ses-01/anat"), fullName: "sub-01_ses-01"}
		src := Location{FS: fsys, Path: filepath.Join(root, "source")}
		writeFile(t, fsys, src.Join("mri/brain.mgz").Path, "mgz")

		runner := &fakeRunner{fsys: fsys}
		post := &Post{Program: "fslreorient2std"}
		specs := []Spec{{Suffix: "T1w", Extension: ".nii.gz", Candidates: []string{"mri/brain.mgz"}, Step: &Step{Program: "mri_convert"}, Post: post}}

		_, err := NewEngine(WithRunner(runner)).Import(context.Background(), tgt, src, specs, nil)
		require.NoError(t, err)

		dst := filepath.Join(tgt.path, "sub-01_ses-01_T1w.nii.gz")
		require.Len(t, runner.calls, 2)
		assert.Equal(t, call{program: "mri_convert", args: []string{src.Join("mri/brain.mgz").Path, dst}}, runner.calls[0])
		assert.Equal(t, call{program: "fslreorient2std", args: []string{dst}}, runner.calls[1])
	})

	t.Run("rejects in-memory filesystems", func(t *testing.T) {
		fsys, tgt, src := setup(t)
		writeFile(t, fsys, src.Join("mri/brain.mgz").Path, "mgz")

		specs := []Spec{{Suffix: "T1w", Extension: ".nii.gz", Candidates: []string{"mri/brain.mgz"}, Step: &Step{Program: "mri_convert"}}}
		_, err := NewEngine(WithRunner(&fakeRunner{fsys: fsys})).Import(context.Background(), tgt, src, specs, nil)
		assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	})

	t.Run("propagates program failure", func(t *testing.T) {
		fsys := billy.NewLocal()
		root := t.TempDir()
		tgt := target{fsys: fsys, path: filepath.Join(root, "anat"), fullName: "sub-01_ses-01"}
		src := Location{FS: fsys, Path: filepath.Join(root, "source")}
		writeFile(t, fsys, src.Join("mri/brain.mgz").Path, "mgz")

		runner := &fakeRunner{fsys: fsys, err: errors.New(errors.CodeExecutionFailed, "exit status 1")}
		specs := []Spec{{Suffix: "T1w", Extension: ".nii.gz", Candidates: []string{"mri/brain.mgz"}, Step: &Step{Program: "mri_convert"}}}
		_, err := NewEngine(WithRunner(runner)).Import(context.Background(), tgt, src, specs, nil)
		assert.Equal(t, errors.CodeExecutionFailed, errors.GetCode(err))
	})
}

func TestExecRunner(t *testing.T) {
	root := t.TempDir()
	fsys := billy.NewLocal()
	tgt := target{fsys: fsys, path: filepath.Join(root, "ct"), fullName: "sub-01_ses-01"}
	src := Location{FS: fsys, Path: filepath.Join(root, "source")}
	writeFile(t, fsys, src.Join("CT/CT.nii").Path, "ct bytes")

	specs := []Spec{{Suffix: "CT", Extension: ".nii", Candidates: []string{"CT/CT.nii"}, Step: &Step{Program: "cp"}}}
	_, err := NewEngine().Import(context.Background(), tgt, src, specs, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "ct", "sub-01_ses-01_CT.nii"))
	require.NoError(t, err)
	assert.Equal(t, "ct bytes", string(data))

	err = NewExecRunner(nil).Run(context.Background(), "false")
	require.Error(t, err)
	assert.Equal(t, errors.CodeExecutionFailed, errors.GetCode(err))
}

func TestImport_PostFunc(t *testing.T) {
	fsys, tgt, src := setup(t)
	writeFile(t, fsys, src.Join("CT/CT.nii").Path, "ct")

	var seen string
	post := &Post{Name: "checksum", Func: func(_ context.Context, dst Location) error {
		seen = dst.Path
		return nil
	}}
	specs := []Spec{{Suffix: "CT", Extension: ".nii", Candidates: []string{"CT/CT.nii"}, Post: post}}

	_, err := NewEngine().Import(context.Background(), tgt, src, specs, nil)
	require.NoError(t, err)
	assert.Equal(t, "/bids/sub-01/ses-01/anat/sub-01_ses-01_CT.nii", seen)
}

func TestStripJSON(t *testing.T) {
	fsys := billy.NewMemory()
	writeFile(t, fsys, "/in.json", `{"Modality":"CT","InstitutionName":"UCSF","DeviceSerialNumber":"123","SliceThickness":1}`)

	err := StripJSON()(context.Background(), Location{FS: fsys, Path: "/in.json"}, Location{FS: fsys, Path: "/out/out.json"})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"Modality\": \"CT\",\n  \"SliceThickness\": 1\n}\n", readFile(t, fsys, "/out/out.json"))
}

func TestNewTransforms(t *testing.T) {
	transforms := NewTransforms()
	assert.Equal(t, []string{"coordsystem", "copy", "electrodes", "strip_json", "write_json"}, transforms.Tags())

	entry, err := transforms.Get("coordsystem")
	require.NoError(t, err)
	step, err := entry.Handler(map[string]any{"system": "MNI305", "units": "mm"})
	require.NoError(t, err)
	assert.True(t, step.CanSynthesize())

	entry, _ = transforms.Get("strip_json")
	_, err = entry.Handler(map[string]any{"keys": []any{"A", 1}})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	entry, _ = transforms.Get("write_json")
	_, err = entry.Handler(nil)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestExport(t *testing.T) {
	fsys := billy.NewMemory()
	from := target{fsys: fsys, path: "/bids/sub-01/ses-01/ieeg", fullName: "sub-01_ses-01"}
	for _, name := range []string{
		"sub-01_ses-01_ieeg-meta.json",
		"sub-01_ses-01_electrodes.tsv",
		"sub-01_ses-01_coordsystem.json",
		"sub-01_ses-01_notes.txt",
	} {
		writeFile(t, fsys, filepath.Join(from.path, name), name)
	}
	require.NoError(t, fsys.MkdirAll(filepath.Join(from.path, "nested"), 0o755))

	to := Location{FS: fsys, Path: "/out/sub-0001/ses-01/ieeg"}
	filter := NewFilter([]string{"electrodes", "coordsystem", "meta"}, nil)

	report, err := NewEngine().Export(context.Background(), from, to, filter, "sub-0001_ses-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-0001_ses-01_coordsystem.json", "sub-0001_ses-01_electrodes.tsv"}, report.Written)
	assert.ElementsMatch(t, []string{"sub-01_ses-01_ieeg-meta.json", "sub-01_ses-01_notes.txt"}, report.Excluded)
	assert.Equal(t, "sub-01_ses-01_electrodes.tsv", readFile(t, fsys, "/out/sub-0001/ses-01/ieeg/sub-0001_ses-01_electrodes.tsv"))

	writeFile(t, fsys, filepath.Join(from.path, "sub-01_ses-01_electrodes.tsv"), "changed")
	again, err := NewEngine().Export(context.Background(), from, to, filter, "sub-0001_ses-01")
	require.NoError(t, err)
	assert.Empty(t, again.Written)
	assert.Equal(t, "sub-01_ses-01_electrodes.tsv", readFile(t, fsys, "/out/sub-0001/ses-01/ieeg/sub-0001_ses-01_electrodes.tsv"))
}

func TestExport_RenamesEveryOccurrence(t *testing.T) {
	fsys := billy.NewMemory()
	from := target{fsys: fsys, path: "/bids/sub-01/ses-01/ieeg", fullName: "sub-01_ses-01"}
	writeFile(t, fsys, filepath.Join(from.path, "sub-01_ses-01_task-sub-01_ses-01_events.tsv"), "events")

	to := Location{FS: fsys, Path: "/out"}
	report, err := NewEngine().Export(context.Background(), from, to, NewFilter(nil, nil), "sub-A_ses-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-A_ses-01_task-sub-A_ses-01_events.tsv"}, report.Written)
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		file   string
		want   bool
	}{
		{"no include passes everything", Filter{}, "a.txt", true},
		{"include match", Filter{Include: []string{"ieeg"}}, "sub-01_ieeg.edf", true},
		{"include miss", Filter{Include: []string{"ieeg"}}, "sub-01_T1w.nii", false},
		{"exclude wins", Filter{Include: []string{"ieeg"}, Exclude: []string{"ieeg-meta"}}, "sub-01_ieeg-meta.json", false},
		{"default excludes meta", NewFilter(nil, nil), "sub-01_meta.json", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Allows(tt.file))
		})
	}
}

// A name matching both an include and an exclude token never passes.
func TestFilter_ExclusionPrecedence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		token := rapid.StringMatching(`[a-z]{1,6}`).Draw(rt, "token")
		prefix := rapid.StringMatching(`[a-z_]{0,6}`).Draw(rt, "prefix")
		suffix := rapid.StringMatching(`[a-z_.]{0,6}`).Draw(rt, "suffix")
		name := prefix + token + suffix

		f := Filter{
			Include: append(rapid.SliceOf(rapid.StringMatching(`[a-z]{1,4}`)).Draw(rt, "include"), token),
			Exclude: append(rapid.SliceOf(rapid.StringMatching(`[a-z]{1,4}`)).Draw(rt, "exclude"), token),
		}
		if f.Allows(name) {
			rt.Fatalf("%q passed a filter excluding %q", name, token)
		}
	})
}
