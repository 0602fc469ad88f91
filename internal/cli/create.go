package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kleenlab/ucsfbids/bids"
	"github.com/kleenlab/ucsfbids/errors"
)

func newCreateCmd(a *app) *cobra.Command {
	var subjects []string

	cmd := &cobra.Command{
		Use:   "create <dataset>",
		Short: "Create an empty dataset",
		Long: `Create a dataset directory with its description, participants table
and, optionally, empty subjects. Existing datasets are loaded and only the
missing subjects are added.

Examples:
  ucsfbids create /data/study
  ucsfbids create /data/study --subject P01 --subject P02`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			ds, err := bids.NewDataset(a.fs, a.entityOptions(bids.WithPath(path), bids.WithBuild(), bids.WithLoad())...)
			if err != nil {
				return err
			}

			var added []*bids.Subject
			for _, name := range subjects {
				s, err := ds.RequireSubject(name)
				if err != nil {
					return err
				}
				added = append(added, s)
			}
			if err := ds.AddParticipants(added...); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "dataset %s: %d subject(s)\n", ds.Path(), len(ds.Subjects()))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&subjects, "subject", "s", nil, "subject to create (repeatable)")
	return cmd
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.WrapWithContext(err, errors.CodeInvalidInput, "invalid path", map[string]interface{}{"path": path})
	}
	return abs, nil
}
