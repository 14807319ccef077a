package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/OCAP2/partswitch/internal/config"
	"github.com/OCAP2/partswitch/internal/logging"
)

const AppName = "partswitch"

// Version is set at build time.
var Version = "dev"

var (
	configDir string
	logLevel  string

	SlogManager      = logging.NewSlogManager()
	Logger           = slog.Default()
	SessionStartTime = time.Now()

	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:           AppName,
	Short:         "Runtime reconfiguration engine for host entities",
	Long:          `partswitch switches hosts between configuration templates, charging for the change and keeping symmetric hosts in step.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(configDir); err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			viper.Set("logLevel", logLevel)
		}
		return initLogging(cmd.ErrOrStderr())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logFile != nil {
			return logFile.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", ".",
		"directory holding "+config.FileName)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("content-dir", "", "content database directory (overrides contentDir)")
	_ = viper.BindPFlag("contentDir", rootCmd.PersistentFlags().Lookup("content-dir"))
}

// initConfig loads the config file when present and falls back to the
// defaults otherwise.
func initConfig(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, config.FileName)); errors.Is(err, os.ErrNotExist) {
		config.SetDefaults()
		return nil
	}
	if err := config.Load(dir); err != nil {
		return err
	}
	return nil
}

func initLogging(console io.Writer) error {
	var fileWriter io.Writer
	if dir := viper.GetString("logsDir"); dir != "" {
		f, err := logging.OpenLogFile(dir, AppName, SessionStartTime)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		logFile = f
		fileWriter = f
	}

	SlogManager.Setup(logging.Options{
		Console: console,
		File:    fileWriter,
		Level:   viper.GetString("logLevel"),
		Attrs:   []slog.Attr{slog.String("session", SessionStartTime.Format("20060102_150405"))},
	})
	Logger = SlogManager.Logger()
	return nil
}

// zerologFor returns the logger of the storage and influx layers. It writes
// to the session log file, or to stderr when there is none.
func zerologFor(component string) zerolog.Logger {
	level := viper.GetString("logLevel")
	if logFile != nil {
		return logging.NewZerolog(logFile, level, component)
	}
	return logging.NewConsoleZerolog(os.Stderr, level, component)
}
