package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/engram/pkg/usecase/memory"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func addCommand() *cli.Command {
	var (
		cfg   config
		model string
		force bool
		meta  []string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "Embedding model ID (empty uses the default)",
			Sources:     cli.EnvVars("ENGRAM_MODEL"),
			Destination: &model,
		},
		&cli.BoolFlag{
			Name:        "force",
			Aliases:     []string{"f"},
			Usage:       "Store even if a near-duplicate exists",
			Destination: &force,
		},
		&cli.StringSliceFlag{
			Name:        "meta",
			Usage:       "Metadata attribute as key=value (repeatable)",
			Destination: &meta,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, modelFlags(&cfg)...)

	return &cli.Command{
		Name:      "add",
		Usage:     "Remember a text",
		ArgsUsage: "<text>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			text := strings.Join(c.Args().Slice(), " ")
			if text == "" {
				return goerr.New("text is required")
			}

			metadata, err := parseMetadata(meta)
			if err != nil {
				return err
			}

			uc, closeStore, err := newUseCase(ctx, &cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			entry, err := uc.Memorize(ctx, &memory.MemorizeInput{
				Text:     text,
				Metadata: metadata,
				Model:    model,
				Force:    force,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Memorized as %s\n", entry.ID)
			return nil
		},
	}
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, goerr.New("metadata must be key=value", goerr.V("got", pair))
		}
		metadata[key] = value
	}
	return metadata, nil
}

// newUseCase opens the store and builds the memory usecase for direct
// commands. The returned func closes the store.
func newUseCase(ctx context.Context, cfg *config) (*memory.UseCase, func(), error) {
	s, err := cfg.newStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	registry, err := cfg.newRegistry(ctx)
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}

	uc := memory.New(s, registry)
	return uc, func() { _ = s.Close() }, nil
}
