package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	taskchampion "github.com/timcase/taskchampion-go"
)

var rootCmd = &cobra.Command{
	Use:   "tcdb",
	Short: "Local, syncable task database",
	Long: `tcdb is a command-line front end for a local task database.

Tasks live in a SQLite database in the data directory and can be
synchronized with other replicas through a shared directory, a sync
server, or a cloud bucket.

Configuration is read from <data-dir>/tcdb.yaml and from TCDB_*
environment variables; flags override both.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", defaultDataDir(), "Directory holding the task database")
	rootCmd.PersistentFlags().String("log-file", "", "Append logs to this file instead of stderr (rotated)")
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir")) //nolint:errcheck
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file")) //nolint:errcheck

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	viper.SetEnvPrefix("tcdb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("tcdb")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(viper.GetString("data_dir"))
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			os.Exit(1)
		}
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".tcdb")
	}
	return ".tcdb"
}

// newLogger builds the CLI logger, rotating through a log file when one is
// configured.
func newLogger() *log.Logger {
	if logFile := viper.GetString("log_file"); logFile != "" {
		return log.New(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
		}, "[tcdb] ", log.LstdFlags)
	}
	return log.New(os.Stderr, "[tcdb] ", log.LstdFlags)
}

// openReplica opens the replica in the configured data directory, creating
// it on first use.
func openReplica() (*taskchampion.Replica, error) {
	dataDir := viper.GetString("data_dir")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	rep, err := taskchampion.NewOnDisk(dataDir, true, taskchampion.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := rep.SetLogger(newLogger()); err != nil {
		rep.Close() //nolint:errcheck
		return nil, err
	}
	return rep, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
