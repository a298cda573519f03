package cmd

import (
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/bootstrap"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the queue consumers and the feed scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bootstrap.Serve(cmd.Context(), options())
		},
	}
}

func newConsumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Run only the queue consumers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bootstrap.Consume(cmd.Context(), options())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply pending database migrations, or revert the latest with down",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && args[0] == "down" {
				reverted, err := bootstrap.Rollback(cmd.Context(), options(), steps)
				if err != nil {
					return err
				}
				cmd.Printf("Reverted %d migration(s)\n", reverted)
				return nil
			}

			applied, err := bootstrap.Migrate(cmd.Context(), options())
			if err != nil {
				return err
			}
			cmd.Printf("Applied %d migration(s)\n", applied)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert with down")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("news-ingestor version %s\n", Version)
		},
	}
}
