package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/engram/pkg/service/mcp"
	"github.com/m-mizutani/engram/pkg/usecase/memory"
	"github.com/m-mizutani/engram/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var cfg config

	flags := storeFlags(&cfg)
	flags = append(flags, modelFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve memorize/recall/forget as MCP tools over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			s, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			registry, err := cfg.newRegistry(ctx)
			if err != nil {
				return err
			}

			// Tool output goes to stderr: stdout belongs to the MCP transport.
			uc := memory.New(s, registry, memory.WithOutput(os.Stderr))

			logging.From(ctx).Info("mcp server starting")
			return mcp.New(uc, c.Root().Version).Run(ctx)
		},
	}
}
