package main

import (
	"os"

	"dairyops/internal/shared"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// cli is the state shared by every subcommand: configuration read from the
// environment, overridden by persistent flags, and the logger built from it.
type cli struct {
	cfg shared.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{cfg: shared.LoadConfig()}

	root := &cobra.Command{
		Use:   "dairyops",
		Short: "Dairy operations backend.",
		Long:  `HTTP backend for clients, milking events, orders and payments, plus the tools to run it.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(c.cfg.LogLevel, c.cfg.LogFormat)
			if err != nil {
				return err
			}
			c.log = log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfg.DBDriver, "db-driver", c.cfg.DBDriver, "database driver: sqlite or pgx (env "+shared.EnvDBDriver+")")
	flags.StringVar(&c.cfg.DBDSN, "db-dsn", c.cfg.DBDSN, "database DSN or sqlite file path (env "+shared.EnvDBDSN+")")
	flags.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "debug, info, warn or error (env "+shared.EnvLogLevel+")")
	flags.StringVar(&c.cfg.LogFormat, "log-format", c.cfg.LogFormat, "json or console (env "+shared.EnvLogFormat+")")

	root.AddCommand(
		c.serveCmd(),
		c.migrateCmd(),
		c.dbcheckCmd(),
		c.seedCmd(),
		c.webhookCmd(),
	)
	return root
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if format == shared.LogFormatConsole {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func main() {
	// On failure Cobra prints the usage message and error string, so we only
	// need to exit with a non-0 status
	if newRootCmd().Execute() != nil {
		os.Exit(1)
	}
}
