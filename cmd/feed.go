package cmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/dispatch"
	"github.com/spf13/cobra"
)

func newFeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Work with publisher feeds",
	}
	cmd.AddCommand(newFeedExtractCommand())
	return cmd
}

func newFeedExtractCommand() *cobra.Command {
	var publish bool

	cmd := &cobra.Command{
		Use:   "extract <feed-url>",
		Short: "List the article URLs of a feed, optionally publishing them to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := bootstrap.ExtractFeed(cmd.Context(), options(), args[0], publish)
			if err != nil {
				return err
			}
			renderResult(cmd.OutOrStdout(), res, publish)
			return nil
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "publish each URL to the article queue")
	return cmd
}

func renderResult(w io.Writer, res dispatch.Result, published bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(res.FeedURL)

	t.AppendHeader(table.Row{"#", "Article URL"})
	for i, u := range res.URLs {
		t.AppendRow(table.Row{i + 1, u})
	}

	footer := table.Row{"Total", len(res.URLs)}
	if published {
		footer = table.Row{"Published", fmt.Sprintf("%d (failed %d)", res.Published, res.Failed)}
	}
	t.AppendFooter(footer)
	t.Render()
}
