package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/treeport/pkg/colstore"
	"github.com/ajitpratap0/treeport/pkg/config"
	"github.com/ajitpratap0/treeport/pkg/importer"
	"github.com/ajitpratap0/treeport/pkg/logger"
	"github.com/ajitpratap0/treeport/pkg/rowstore"
)

var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "treeport",
		Short: "Treeport - row-oriented to columnar dataset importer",
		Long: `Treeport converts row-oriented branch/leaf datasets into columnar objects.
It reads every record of the source, maps branches and leaves onto typed
columnar fields, and writes a compressed Arrow object.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Treeport v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newInspectCmd())
	root.AddCommand(newImportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadImportConfig merges defaults, an optional config file, and command
// line flags, in that order of precedence.
func loadImportConfig(configFile string, flags *pflagConfig) (config.ImportConfig, error) {
	v := viper.New()
	cfg := config.DefaultImportConfig()

	v.SetDefault("max_records", cfg.MaxRecords)
	v.SetDefault("quiet", cfg.Quiet)
	v.SetDefault("progress_interval_bytes", cfg.ProgressIntervalBytes)
	v.SetDefault("compression", cfg.Compression)
	v.SetDefault("batch_size", cfg.BatchSize)
	v.SetDefault("log_level", cfg.LogLevel)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("treeport")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if configFile != "" {
			return cfg, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse configuration: %w", err)
	}

	// Flags explicitly set on the command line win over the file
	flags.apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// pflagConfig carries the import flags plus which were set explicitly.
type pflagConfig struct {
	cmd        *cobra.Command
	maxRecords int64
	quiet      bool
	comp       string
	logLevel   string
	batchSize  int
}

func (p *pflagConfig) apply(cfg *config.ImportConfig) {
	if p.cmd.Flags().Changed("max-records") {
		cfg.MaxRecords = p.maxRecords
	}
	if p.cmd.Flags().Changed("quiet") {
		cfg.Quiet = p.quiet
	}
	if p.cmd.Flags().Changed("compression") {
		cfg.Compression = p.comp
	}
	if p.cmd.Flags().Changed("log-level") {
		cfg.LogLevel = p.logLevel
	}
	if p.cmd.Flags().Changed("batch-size") {
		cfg.BatchSize = p.batchSize
	}
}

func newImportCmd() *cobra.Command {
	var sourcePath, destDir, configFile string
	flags := &pflagConfig{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a row-oriented dataset into a columnar object",
		Long: `Import reads every record of a row-oriented dataset and writes it as a
columnar Arrow object in the destination directory. The object takes the
source dataset's name; importing over an existing object is an error.

Example:
  treeport import --source events.json --dest ./objects`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadImportConfig(configFile, flags)
			if err != nil {
				return err
			}

			if err := logger.Init(logger.Config{Level: cfg.LogLevel}); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			im, err := importer.Open(sourcePath, destDir, cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := im.Import(ctx); err != nil {
				logger.Get().Error("import failed",
					zap.String("source", sourcePath),
					zap.Error(err))
				return err
			}
			return nil
		},
	}

	flags.cmd = cmd
	cmd.Flags().StringVarP(&sourcePath, "source", "s", "", "Path to the source dataset JSON file (required)")
	cmd.Flags().StringVarP(&destDir, "dest", "d", "", "Destination directory for columnar objects (required)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("dest")

	cmd.Flags().StringVar(&configFile, "config", "", "Path to a treeport.yaml configuration file")
	cmd.Flags().Int64Var(&flags.maxRecords, "max-records", -1, "Maximum number of records to import (-1 for all)")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress schema and progress reporting")
	cmd.Flags().StringVar(&flags.comp, "compression", config.CompressionZstd, "Object compression (zstd, none)")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", config.DefaultBatchSize, "Records per write batch")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "error", "Log level (debug, info, warn, error)")

	return cmd
}

func newInspectCmd() *cobra.Command {
	var sourcePath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the destination schema a source dataset would produce",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.Config{Level: "error"}); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			source, err := rowstore.LoadJSON(sourcePath)
			if err != nil {
				return err
			}

			// Schema-only path; the throwaway store is never written to
			store, err := colstore.OpenStore(os.TempDir())
			if err != nil {
				return err
			}

			cfg := config.DefaultImportConfig()
			cfg.Quiet = true
			im, err := importer.New(source, store, cfg)
			if err != nil {
				return err
			}
			if err := im.PrepareSchema(); err != nil {
				return err
			}

			desc := im.Describe()
			if asJSON {
				data, err := json.MarshalIndent(desc, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			fmt.Printf("Dataset %q: %d records\n", source.Name(), source.NumRecords())
			for _, f := range desc {
				marker := ""
				if f.Projected {
					marker = " (projected)"
				}
				fmt.Printf("  %s [%s]%s\n", f.Name, f.Type, marker)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourcePath, "source", "s", "", "Path to the source dataset JSON file (required)")
	_ = cmd.MarkFlagRequired("source")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the schema as JSON")

	return cmd
}
