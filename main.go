package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ossyrian/kdzparse/internal/app"
	"github.com/ossyrian/kdzparse/internal/config"
	"github.com/ossyrian/kdzparse/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kdzparse",
	Short: "Extract and repack LG KDZ firmware images",
	// main prints the single "An error occurred: " line itself.
	SilenceErrors: true,
	SilenceUsage:  true,
}

var extractCmd = &cobra.Command{
	Use:   "extract <kdz_file>",
	Short: "Extract a KDZ file into partition images, components and metadata.json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.InputFile = args[0]
		return run(cfg, app.Extract)
	},
}

var repackCmd = &cobra.Command{
	Use:   "repack <input_dir> <output_file>",
	Short: "Repack a directory produced by extract back into a KDZ file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.InputFile = args[0]
		cfg.OutputFile = args[1]
		return run(cfg, app.Repack)
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	cfg = &config.Config{}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-output-dir", "", "directory to write log files (if set, logs are written to both stdout and file)")

	extractCmd.Flags().StringP("dest", "d", "", "directory to extract into (omit to print a listing instead)")
	extractCmd.Flags().Bool("no-verify", false, "skip the DZ data hash verification pass")
	extractCmd.Flags().Bool("dry-run", false, "parse and print a listing without writing any output")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_output_dir", rootCmd.PersistentFlags().Lookup("log-output-dir"))
	viper.BindPFlag("dest", extractCmd.Flags().Lookup("dest"))
	viper.BindPFlag("no_verify", extractCmd.Flags().Lookup("no-verify"))
	viper.BindPFlag("dry_run", extractCmd.Flags().Lookup("dry-run"))

	rootCmd.AddCommand(extractCmd, repackCmd)
}

// initConfig reads in config file and environment variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "kdzparse"))
		}
		viper.AddConfigPath("/etc/kdzparse/kdzparse")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("KDZPARSE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// run unmarshals the layered config, sets up logging, and dispatches to op.
func run(cfg *config.Config, op func(*config.Config, *slog.Logger) error) error {
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogOutputDir); err != nil {
		return fmt.Errorf("could not set up logging: %w", err)
	}

	return op(cfg, slog.Default())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "An error occurred: %s\n", err)
		os.Exit(1)
	}
}
