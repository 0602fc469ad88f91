package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kleenlab/ucsfbids/bids"
	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/filespec"
	"github.com/kleenlab/ucsfbids/registry"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		tag     string
		name    string
		renames []string
	)

	cmd := &cobra.Command{
		Use:   "export <dataset> <destination>",
		Short: "Export a dataset as BIDS",
		Long: `Export a dataset below a destination directory. Metadata sidecars are
left out. With --rename only the named subjects are exported, under their
new names; a "sub-" prefix on either side is optional. The participants
table follows the renames.

A subject that fails to export is reported and the others are still
exported; the command then exits with an error.

Examples:
  ucsfbids export /data/study /export
  ucsfbids export /data/study /export --name public --rename P01=001 --rename P02=002`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tag == "" {
				tag = a.cfg.Export.Tag
			}
			pairs, err := parsePairs("rename", renames)
			if err != nil {
				return err
			}

			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			dest, err := absPath(args[1])
			if err != nil {
				return err
			}

			ok, err := a.fs.Exists(path)
			if err != nil {
				return errors.WrapWithContext(err, errors.CodeIO, "failed to stat dataset", map[string]interface{}{"path": path})
			}
			if !ok {
				return errors.NewWithContext(errors.CodeNotFound, "dataset does not exist", map[string]interface{}{"path": path})
			}

			ds, err := bids.NewDataset(a.fs, a.entityOptions(bids.WithPath(path), bids.WithLoad())...)
			if err != nil {
				return err
			}

			opts := registry.Options{}
			if name != "" {
				opts[bids.OptName] = name
			}
			if len(pairs) > 0 {
				nameMap := make(map[string]string, len(pairs))
				for _, p := range pairs {
					nameMap[p.key] = p.value
				}
				opts[bids.OptNameMap] = nameMap
			}

			report, err := bids.Export(cmd.Context(), ds, tag, filespec.Location{FS: a.fs, Path: dest}, opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "exported %s: %d written, %d skipped\n", ds.Name(), len(report.Written), len(report.Skipped))
			for _, f := range report.Failures {
				fmt.Fprintf(a.errOut, "failed: %s: %v\n", f.Entity, f.Err)
			}
			if len(report.Failures) > 0 {
				return errors.NewWithContext(errors.CodeChildOperationFailed, fmt.Sprintf("%d child export(s) failed", len(report.Failures)), map[string]interface{}{
					"dataset": ds.Path(),
				})
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "exporter tag (defaults to export.tag)")
	cmd.Flags().StringVar(&name, "name", "", "name of the exported dataset")
	cmd.Flags().StringArrayVar(&renames, "rename", nil, "subject=exported-name (repeatable)")
	return cmd
}
