package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/store"
	"github.com/m-mizutani/engram/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func replCommand() *cli.Command {
	var (
		cfg      config
		modelID  string
		topK     int64
		minScore float64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "Embedding model ID (empty uses the default)",
			Sources:     cli.EnvVars("ENGRAM_MODEL"),
			Destination: &modelID,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"k"},
			Usage:       "Maximum number of results per query",
			Value:       5,
			Destination: &topK,
		},
		&cli.FloatFlag{
			Name:        "min-score",
			Usage:       "Minimum similarity score, 0 to 1",
			Destination: &minScore,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, modelFlags(&cfg)...)

	return &cli.Command{
		Name:  "repl",
		Usage: "Interactive memory shell",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closeStore, err := newUseCase(ctx, &cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			rl, err := readline.New("engram> ")
			if err != nil {
				return err
			}
			defer rl.Close()

			out := c.Root().Writer
			fmt.Fprintln(out, "Type a query to recall, /add <text> to memorize, /forget <id> to delete, /quit to exit.")

			for {
				line, err := rl.Readline()
				if err != nil {
					// Ctrl-C clears the line, Ctrl-D / EOF ends the session.
					if errors.Is(err, readline.ErrInterrupt) {
						continue
					}
					if errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}

				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					return nil
				}

				if err := replDispatch(ctx, uc, out, line, modelID, int(topK), minScore); err != nil {
					fmt.Fprintf(out, "error: %s\n", err)
				}
			}
		},
	}
}

func replDispatch(ctx context.Context, uc *memory.UseCase, out io.Writer, line, modelID string, topK int, minScore float64) error {
	if text, ok := strings.CutPrefix(line, "/add "); ok {
		entry, err := withSpinner("memorizing", func() (*model.Entry, error) {
			return uc.Memorize(ctx, &memory.MemorizeInput{Text: text, Model: modelID})
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Memorized as %s\n", entry.ID)
		return nil
	}

	if id, ok := strings.CutPrefix(line, "/forget "); ok {
		return uc.Forget(ctx, model.EntryID(strings.TrimSpace(id)))
	}

	hits, err := withSpinner("recalling", func() ([]*store.Hit, error) {
		return uc.Recall(ctx, &memory.RecallInput{
			Query:    line,
			Model:    modelID,
			TopK:     topK,
			MinScore: minScore,
		})
	})
	if err != nil {
		return err
	}

	if len(hits) == 0 {
		fmt.Fprintln(out, "No matching memories")
		return nil
	}
	for _, hit := range hits {
		fmt.Fprintf(out, "[%.3f] %s  %s\n", hit.Score, hit.Entry.ID, hit.Entry.Text)
	}
	return nil
}

// withSpinner shows a terminal spinner on stderr while fn runs.
func withSpinner[T any](message string, fn func() (T, error)) (T, error) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	s.Start()
	defer s.Stop()

	return fn()
}
