// Package cmd implements the news-ingestor command line.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/bootstrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix namespaces the environment variables bound to global flags, for example
// NEWS_INGESTOR_CONFIG and NEWS_INGESTOR_DEBUG.
const envPrefix = "NEWS_INGESTOR"

// Version is stamped at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "news-ingestor",
	Short: "Extract news feeds, queue article URLs and ingest the articles",
	Long: `news-ingestor reads publisher feeds, publishes the article URLs to a Redis queue,
scrapes each article page and stores the result in PostgreSQL.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	_ = godotenv.Load()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default is ./config.yml or $CONFIG_PATH)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging and gin debug mode")

	cobra.OnInitialize(initViper)

	rootCmd.AddCommand(
		newServeCommand(),
		newConsumeCommand(),
		newFeedCommand(),
		newMigrateCommand(),
		newVersionCommand(),
	)
}

func initViper() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	for _, name := range []string{"config", "debug"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind %s flag: %v", name, err))
		}
	}
}

// options reads the global flags, with NEWS_INGESTOR_* env vars as fallback.
func options() bootstrap.Options {
	return bootstrap.Options{
		ConfigPath: viper.GetString("config"),
		Debug:      viper.GetBool("debug"),
	}
}
