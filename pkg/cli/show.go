package cli

import (
	"context"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func showCommand() *cli.Command {
	var cfg config

	flags := storeFlags(&cfg)
	flags = append(flags, modelFlags(&cfg)...)

	return &cli.Command{
		Name:      "show",
		Usage:     "Show one entry by ID",
		ArgsUsage: "<entry-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			id := c.Args().First()
			if id == "" {
				return goerr.New("entry ID is required")
			}

			uc, closeStore, err := newUseCase(ctx, &cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			_, err = uc.Show(ctx, model.EntryID(id))
			return err
		},
	}
}
