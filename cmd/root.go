package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/classical-corpus/internal/app"
	"github.com/JakeFAU/classical-corpus/internal/catalog"
	"github.com/JakeFAU/classical-corpus/internal/config"
	"github.com/JakeFAU/classical-corpus/internal/corpus"
	"github.com/JakeFAU/classical-corpus/internal/logging"
	"github.com/JakeFAU/classical-corpus/internal/metrics"
	"github.com/JakeFAU/classical-corpus/internal/transport"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a stub app during tests.
type App interface {
	Close()
	GetConfig() config.Config
	GetLogger() *zap.Logger
	GetCatalog() catalog.Catalog
	GetStore() *corpus.Store
	GetMetrics() *metrics.Recorder
	NewTransport(cfg transport.Config) (*transport.Transport, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.NewApp(ctx, cfg, logger)
}

type rootOptions struct {
	configFile  string
	outputDir   string
	metricsFile string
	logLevel    string
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Acquire, align and audit a bilingual classical Chinese corpus.",
		Long: `corpus builds per-work bilingual JSON documents from ctext.org style
pages. It resumes interrupted runs, re-splits coarse passages into sentence
pairs and flags chapters whose translations look like site boilerplate.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Load config and build the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (YAML, TOML or JSON)")
	flags.StringVar(&opts.outputDir, "output-dir", "", "directory holding work documents (overrides output.dir)")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write run metrics to this node-exporter textfile")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (overrides logging.level)")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newAlignCmd())

	return cmd
}

// loadConfig reads configuration and applies persistent flag overrides.
func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if opts.outputDir != "" {
		cfg.Output.Dir = opts.outputDir
	}
	if opts.metricsFile != "" {
		cfg.Metrics.Textfile = opts.metricsFile
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// execute runs root and closes the App afterwards. PersistentPostRun is
// skipped when a command fails, so closing happens here instead.
func execute(ctx context.Context, root *cobra.Command) error {
	c, err := root.ExecuteContextC(ctx)
	if c != nil && c.Context() != nil {
		if appInstance, ok := c.Context().Value(appKey).(App); ok && appInstance != nil {
			appInstance.Close()
		}
	}
	return err
}

// Execute is the main entry point.
func Execute() {
	if err := execute(context.Background(), newRootCmd()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
