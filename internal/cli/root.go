// Package cli implements the ucsfbids command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kleenlab/ucsfbids/bids"
	"github.com/kleenlab/ucsfbids/errors"
	"github.com/kleenlab/ucsfbids/filespec"
	"github.com/kleenlab/ucsfbids/logging"
	"github.com/kleenlab/ucsfbids/profile"
)

// EnvPrefix prefixes environment overrides, e.g. UCSFBIDS_LOG_LEVEL.
const EnvPrefix = "UCSFBIDS"

// Config is the CLI configuration read from flags, environment and the
// optional YAML config file.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	// Profile is the built-in profile installed at startup; empty installs none.
	Profile string `mapstructure:"profile"`
	// Profiles are extra CUE profile files.
	Profiles []string `mapstructure:"profiles"`
	Export   struct {
		Tag string `mapstructure:"tag"`
	} `mapstructure:"export"`
}

// app carries the state shared by the commands of one invocation.
type app struct {
	v       *viper.Viper
	fs      core.FS
	out     io.Writer
	errOut  io.Writer
	cfgFile string

	cfg     Config
	runner  filespec.Runner
	logger  *logging.Logger
	catalog *bids.Catalog
	engine  *filespec.Engine
}

// Option configures NewRootCommand.
type Option func(*app)

// WithFS replaces the local filesystem.
func WithFS(fsys core.FS) Option {
	return func(a *app) { a.fs = fsys }
}

// WithOutput sets the writers for command output and log lines.
func WithOutput(out, errOut io.Writer) Option {
	return func(a *app) {
		a.out = out
		a.errOut = errOut
	}
}

// WithRunner sets the runner of external program steps.
func WithRunner(r filespec.Runner) Option {
	return func(a *app) { a.runner = r }
}

// NewRootCommand builds the command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	_, root := newRoot(opts...)
	return root
}

func newRoot(opts ...Option) (*app, *cobra.Command) {
	a := &app{
		v:      viper.New(),
		fs:     billy.NewLocal(),
		out:    os.Stdout,
		errOut: os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "ucsfbids",
		Short: "Build and export BIDS datasets from lab pipeline outputs",
		Long: `ucsfbids maintains BIDS datasets of intracranial recordings.

Subjects are imported from lab pipeline outputs with importer profiles and
exported as plain BIDS trees, optionally under anonymised names.

Commands:
  create    Create an empty dataset
  import    Import subjects with a profile
  export    Export a dataset as BIDS
  inspect   List the files of an entity with sizes and digests`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (YAML)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("profile", "Pia", "built-in importer profile to install")
	flags.StringSlice("profiles", nil, "extra CUE profile files")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = a.v.BindPFlag("profile", flags.Lookup("profile"))
	_ = a.v.BindPFlag("profiles", flags.Lookup("profiles"))
	a.v.SetDefault("export.tag", bids.TagBIDS)

	root.AddCommand(
		newCreateCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newInspectCmd(a),
	)
	return a, root
}

// Execute runs the CLI with the process arguments and returns the exit
// status.
func Execute() int {
	a, cmd := newRoot()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		a.reportError(err)
		return 1
	}
	return 0
}

// reportError prints err on the error output, as a JSON object when logs
// are JSON.
func (a *app) reportError(err error) {
	if a.cfg.Log.Format == "json" {
		data, jerr := json.Marshal(errors.ToJSON(err))
		if jerr == nil {
			fmt.Fprintln(a.errOut, string(data))
			return
		}
	}
	fmt.Fprintf(a.errOut, "Error: %v\n", err)
}

// init reads the configuration and prepares the logger and catalog.
func (a *app) init(ctx context.Context) error {
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return errors.WrapWithContext(err, errors.CodeInvalidConfig, "failed to read config file", map[string]interface{}{"path": a.cfgFile})
		}
	}
	if err := a.v.Unmarshal(&a.cfg); err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "invalid configuration")
	}

	level, err := logging.ParseLogLevel(a.cfg.Log.Level)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeInvalidConfig, "invalid log level", map[string]interface{}{"log.level": a.cfg.Log.Level})
	}
	logCfg := logging.DefaultLogConfig()
	logCfg.Level = level
	if a.cfg.Log.Format != "" {
		logCfg.Format = a.cfg.Log.Format
	}
	if a.errOut != nil {
		logCfg.Output = a.errOut
	}
	a.logger = logging.NewLogger(logCfg)
	engineOpts := []filespec.Option{filespec.WithLogger(a.logger)}
	if a.runner != nil {
		engineOpts = append(engineOpts, filespec.WithRunner(a.runner))
	}
	a.engine = filespec.NewEngine(engineOpts...)

	a.catalog = bids.NewCatalog()
	if err := bids.RegisterBuiltins(a.catalog); err != nil {
		return err
	}
	if a.cfg.Profile != "" {
		p, err := profile.Builtin(ctx, a.cfg.Profile)
		if err != nil {
			return err
		}
		if err := profile.Install(a.catalog, p, nil); err != nil {
			return err
		}
	}
	for _, path := range a.cfg.Profiles {
		p, err := profile.Load(ctx, a.fs, path)
		if err != nil {
			return err
		}
		if err := profile.Install(a.catalog, p, nil); err != nil {
			return errors.WithContext(err, "profile_file", path)
		}
		a.logger.Debug(ctx, "profile installed", "profile", p.Name, "file", path)
	}
	return nil
}

// entityOptions are shared by every entity the CLI opens.
func (a *app) entityOptions(extra ...bids.Option) []bids.Option {
	return append([]bids.Option{
		bids.WithCatalog(a.catalog),
		bids.WithLogger(a.logger),
		bids.WithEngine(a.engine),
	}, extra...)
}

type pair struct {
	key, value string
}

// parsePairs splits "key=value" arguments in order. A bare "key" maps to
// itself.
func parsePairs(flag string, args []string) ([]pair, error) {
	out := make([]pair, 0, len(args))
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !found {
			value = key
		}
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			return nil, errors.NewWithContext(errors.CodeInvalidInput, "expected key=value", map[string]interface{}{"flag": flag, "value": arg})
		}
		out = append(out, pair{key: key, value: value})
	}
	return out, nil
}
