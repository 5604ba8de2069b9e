package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var (
		cfg    config
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Number of entries to skip",
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of entries (0 for all)",
			Destination: &limit,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, modelFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List stored entries in insertion order",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closeStore, err := newUseCase(ctx, &cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			_, err = uc.List(ctx, int(offset), int(limit))
			return err
		},
	}
}
