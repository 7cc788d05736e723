package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/nidhogg/nuka-mind/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/mind.json"

// Set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "mind",
	Short: "Nuka Mind - cognitive decision service for simulated characters",
	Long: `Nuka Mind runs the perceive, recall, reflect and act cycle for
non-player characters. Each mind keeps its own working memory and a scored
long-term memory, and picks one validated action per observation.

Examples:
  mind serve --config configs/mind.json
  mind decide --profile profiles/ada.yaml --input observation.json`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().String("config", "", "config file (default is "+defaultConfigPath+")")
	rootCmd.PersistentFlags().String("log-level", "", "development or production logging")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.SetEnvPrefix("MIND")
	viper.AutomaticEnv()
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config selected by --config or MIND_CONFIG. A missing
// default file falls back to built-in defaults.
func loadConfig() (*config.Config, string, error) {
	path := viper.GetString("config")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, path, err
		}
		cfg, path = config.Default(), ""
	}
	if lvl := viper.GetString("log_level"); lvl != "" {
		cfg.Server.LogLevel = lvl
	}
	return cfg, path, nil
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mind %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
