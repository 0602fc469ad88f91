package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/inventory"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		output     string
		digestOnly bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <path>",
		Short: "List the files of an entity with sizes and digests",
		Long: `List every file below a dataset, subject, session or modality directory
with its size and xxh3 digest. --digest prints a single digest of the
whole tree, which does not depend on where the tree is located.

Examples:
  ucsfbids inspect /data/study/sub-P01
  ucsfbids inspect /data/study -o yaml
  ucsfbids inspect /export/study --digest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			inv, err := inventory.Take(a.fs, path)
			if err != nil {
				return err
			}

			if digestOnly {
				fmt.Fprintln(a.out, inv.Digest())
				return nil
			}

			switch output {
			case "text", "":
				for _, e := range inv.Entries {
					fmt.Fprintf(a.out, "%s  %10d  %s\n", e.Digest, e.Size, e.Path)
				}
				fmt.Fprintf(a.out, "%d file(s), %d bytes\n", inv.Len(), inv.Size())
				return nil
			case "json":
				data, err := json.MarshalIndent(inv, "", "  ")
				if err != nil {
					return errors.Wrap(err, errors.CodeInternal, "failed to encode inventory")
				}
				fmt.Fprintln(a.out, string(data))
				return nil
			case "yaml":
				enc := yaml.NewEncoder(a.out)
				enc.SetIndent(2)
				if err := enc.Encode(inv); err != nil {
					return errors.Wrap(err, errors.CodeInternal, "failed to encode inventory")
				}
				return enc.Close()
			default:
				return errors.NewWithContext(errors.CodeInvalidInput, "unknown output format", map[string]interface{}{"output": output})
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json, yaml)")
	cmd.Flags().BoolVar(&digestOnly, "digest", false, "print only the digest of the tree")
	return cmd
}
