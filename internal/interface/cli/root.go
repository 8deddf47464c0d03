// Package cli is the operator command line for the lesson hub. It wires the
// same application as the API server and calls the command and query
// handlers directly.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nst-ai/lesson-hub/config"
	"github.com/nst-ai/lesson-hub/internal/bootstrap"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

type cli struct {
	v    *viper.Viper
	opts bootstrap.Options
	app  *bootstrap.App

	configFile string
	verbose    bool
}

// Execute runs the root command with process arguments.
func Execute(ctx context.Context) error {
	return NewRootCmd(bootstrap.Options{}).ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. opts is passed to bootstrap.Build.
func NewRootCmd(opts bootstrap.Options) *cobra.Command {
	c := &cli{v: viper.New(), opts: opts}

	rootCmd := &cobra.Command{
		Use:           "nst",
		Short:         "NST lesson hub: accounts, cached lessons and system settings",
		Long:          "nst operates a lesson hub store from the terminal: register students, fetch or generate lessons, overwrite content, adjust credits and edit system settings.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&c.configFile, "config", "", "path to a TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at the configured level instead of warnings only")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRegisterCmd(c),
		newLoginCmd(c),
		newLessonCmd(c),
		newChaptersCmd(c),
		newAdminCmd(c),
		newHealthCmd(c),
		newMigrateCmd(c),
	)

	return rootCmd
}

func (c *cli) wire(ctx context.Context) error {
	if c.configFile != "" {
		c.v.SetConfigFile(c.configFile)
	}
	cfg, err := config.Load(c.v)
	if err != nil {
		return err
	}

	level := logger.LevelWarn
	if c.verbose {
		level = logger.ParseLevel(cfg.Observability.LogLevel)
	}
	log, err := logger.New(logger.Options{Level: level})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	app, err := bootstrap.Build(ctx, cfg, log, c.opts)
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}
	c.app = app
	return nil
}

// run wires the application for one command and releases it afterwards.
func (c *cli) run(fn func(cmd *cobra.Command, app *bootstrap.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := c.wire(cmd.Context()); err != nil {
			return err
		}
		defer func() {
			c.app.Close()
			c.app = nil
		}()
		return fn(cmd, c.app, args)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), Version)
			return err
		},
	}
}
