package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/s0up4200/qbit-dedup/config"
	"github.com/s0up4200/qbit-dedup/dedup"
	"github.com/s0up4200/qbit-dedup/filter"
	"github.com/s0up4200/qbit-dedup/qbittorrent"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger

	version   = "dev"
	buildTime = "unknown"

	// Command flags
	dryRun      bool
	deleteFiles bool
)

// rootCmd represents the base command. Without a subcommand it runs the daemon.
var rootCmd = &cobra.Command{
	Use:   "qbit-dedup",
	Short: "Remove duplicate torrents from qBittorrent",
	Long: `qbit-dedup is a sidecar that watches a qBittorrent instance and keeps only
the most recently added torrent of every download folder.

It reacts either to a polling interval or to qBittorrent's push channel and
runs in dry-run mode until told otherwise.`,
	PersistentPreRunE: initializeApp,
	RunE:              runDaemon,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// SetVersion records build information shown by --version
func SetVersion(v, built string) {
	version = v
	buildTime = built
	rootCmd.Version = fmt.Sprintf("%s (built %s)", v, built)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "d", false, "log deletions instead of performing them")
	rootCmd.PersistentFlags().BoolVar(&deleteFiles, "delete-files", false, "also remove downloaded data of deleted torrents")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(testCmd)
}

// initializeApp loads configuration and sets up logging
func initializeApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger = setupLogger(cfg.Logging)

	// Override safety settings from command line if specified
	if cmd.Flags().Changed("dry-run") {
		cfg.Safety.DryRun = dryRun
	}
	if cmd.Flags().Changed("delete-files") {
		cfg.Safety.DeleteFiles = deleteFiles
	}

	return nil
}

// setupLogger configures the zerolog logger
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "trace":
		level = zerolog.TraceLevel
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Format == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	// Console format, colored only when writing to a terminal
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !cfg.Color || !isatty.IsTerminal(os.Stderr.Fd()),
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

// newSession builds the qBittorrent session from configuration
func newSession() (*qbittorrent.Session, error) {
	session, err := qbittorrent.NewSession(
		cfg.QBittorrent.URL,
		cfg.QBittorrent.Username,
		cfg.QBittorrent.Password,
		logger,
		qbittorrent.WithTimeout(cfg.QBittorrent.Timeout()),
		qbittorrent.WithInsecureSkipVerify(cfg.QBittorrent.InsecureSkipVerify),
		qbittorrent.WithUserAgent("qbit-dedup/"+version),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create qBittorrent session: %w", err)
	}
	return session, nil
}

// groupPolicy returns the configured key policy and protect filter
func groupPolicy() (dedup.KeyPolicy, *filter.ExprFilter, error) {
	policy, err := dedup.PolicyByName(cfg.Dedup.GroupBy)
	if err != nil {
		return nil, nil, err
	}

	if strings.TrimSpace(cfg.Dedup.Protect) == "" {
		return policy, nil, nil
	}

	protect, err := filter.CompileExprFilter(cfg.Dedup.Protect)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid protect filter: %w", err)
	}
	return policy, protect, nil
}

func boolToStatus(b bool) string {
	if b {
		return "Enabled"
	}
	return "Disabled"
}
