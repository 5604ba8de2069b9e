package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/engram/pkg/usecase/memory"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg      config
		model    string
		topK     int64
		minScore float64
		pattern  bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "Embedding model ID (empty uses the default)",
			Sources:     cli.EnvVars("ENGRAM_MODEL"),
			Destination: &model,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"k"},
			Usage:       "Maximum number of results",
			Value:       5,
			Destination: &topK,
		},
		&cli.FloatFlag{
			Name:        "min-score",
			Usage:       "Minimum similarity score, 0 to 1",
			Destination: &minScore,
		},
		&cli.BoolFlag{
			Name:        "pattern",
			Aliases:     []string{"r"},
			Usage:       "Treat the query as a regular expression over entry text",
			Destination: &pattern,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, modelFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Find stored entries similar to a query",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.Join(c.Args().Slice(), " ")
			if query == "" {
				return goerr.New("query is required")
			}

			uc, closeStore, err := newUseCase(ctx, &cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if pattern {
				entries, err := uc.RecallByPattern(ctx, query)
				if err != nil {
					return err
				}
				for _, entry := range entries {
					fmt.Fprintf(c.Root().Writer, "%s  %s\n", entry.ID, entry.Text)
				}
				fmt.Fprintf(c.Root().Writer, "\n%d matches\n", len(entries))
				return nil
			}

			hits, err := uc.Recall(ctx, &memory.RecallInput{
				Query:    query,
				Model:    model,
				TopK:     int(topK),
				MinScore: minScore,
			})
			if err != nil {
				return err
			}

			for _, hit := range hits {
				fmt.Fprintf(c.Root().Writer, "[%.3f] %s  %s\n", hit.Score, hit.Entry.ID, hit.Entry.Text)
			}
			fmt.Fprintf(c.Root().Writer, "\n%d hits\n", len(hits))
			return nil
		},
	}
}
