package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kleenlab/ucsfbids/bids"
	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/filespec"
	"github.com/kleenlab/ucsfbids/logging"
	"github.com/kleenlab/ucsfbids/registry"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		tag      string
		subjects []string
		exclude  []string
	)

	cmd := &cobra.Command{
		Use:   "import <dataset> <source-root>",
		Short: "Import subjects with a profile",
		Long: `Import subjects from a lab pipeline tree into a dataset, creating the
dataset when it does not exist. Each --subject maps a subject name to its
directory below the source root. Files already in the dataset are kept.

Examples:
  ucsfbids import /data/study /lab/subjects --subject P01=EC101
  ucsfbids import /data/study /lab/subjects -s P01=EC101 -s P02=EC102 --exclude _bad`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tag == "" {
				tag = a.cfg.Profile
			}
			if tag == "" {
				return errors.New(errors.CodeInvalidInput, "no importer tag: pass --tag or configure a profile")
			}
			pairs, err := parsePairs("subject", subjects)
			if err != nil {
				return err
			}
			if len(pairs) == 0 {
				return errors.New(errors.CodeInvalidInput, "at least one --subject is required")
			}

			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			source, err := absPath(args[1])
			if err != nil {
				return err
			}

			ds, err := bids.NewDataset(a.fs, a.entityOptions(
				bids.WithPath(path),
				bids.WithMode(bids.ModeCreate),
				bids.WithBuild(),
				bids.WithLoad(),
			)...)
			if err != nil {
				return err
			}

			mappings := make([]bids.ChildMapping, 0, len(pairs))
			for _, p := range pairs {
				mappings = append(mappings, bids.ChildMapping{Name: p.key, Source: p.value})
			}
			opts := registry.Options{bids.OptChildren: mappings}
			if len(exclude) > 0 {
				opts[bids.OptExclude] = exclude
			}

			report, err := bids.Import(cmd.Context(), ds, tag, filespec.Location{FS: a.fs, Path: source}, opts)
			if err != nil {
				return err
			}

			if a.logger.Enabled(logging.LogLevelDebug) {
				for _, name := range report.Written {
					a.logger.Debug(cmd.Context(), "file written", "file", name)
				}
			}
			for _, name := range report.Missing {
				fmt.Fprintf(a.out, "missing: %s\n", name)
			}
			fmt.Fprintf(a.out, "imported %d subject(s) with %s: %d written, %d skipped, %d excluded, %d missing\n",
				len(mappings), tag, len(report.Written), len(report.Skipped), len(report.Excluded), len(report.Missing))
			return nil
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "importer tag (defaults to the configured profile)")
	cmd.Flags().StringArrayVarP(&subjects, "subject", "s", nil, "subject=source-directory (repeatable)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "skip sources whose name contains a token")
	return cmd
}
