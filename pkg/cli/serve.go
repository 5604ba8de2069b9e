package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/engram/pkg/engine"
	"github.com/m-mizutani/engram/pkg/rpc"
	"github.com/m-mizutani/engram/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg        config
		engineKind string
		configPath string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "engine",
			Aliases:     []string{"e"},
			Usage:       "Engine to serve (store or infer)",
			Value:       "store",
			Sources:     cli.EnvVars("ENGRAM_ENGINE"),
			Destination: &engineKind,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML config file",
			Sources:     cli.EnvVars("ENGRAM_CONFIG"),
			Destination: &configPath,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, modelFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve an engine over stdin/stdout",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if configPath != "" {
				if err := cfg.applyConfigFile(configPath); err != nil {
					return err
				}
			}

			srv := rpc.NewServer(os.Stdin, os.Stdout)

			switch engineKind {
			case "store":
				eng, err := newStoreEngine(ctx, &cfg)
				if err != nil {
					return err
				}
				defer eng.Close()
				eng.Bind(srv)

			case "infer":
				registry, err := cfg.newRegistry(ctx)
				if err != nil {
					return err
				}
				engine.NewInferEngine(registry).Bind(srv)

			default:
				return goerr.New("unknown engine", goerr.V("engine", engineKind))
			}

			logging.From(ctx).Info("engine serving", "engine", engineKind)
			return srv.Serve(ctx)
		},
	}
}

// newStoreEngine builds the store engine. With a configured path or the
// firestore backend the store is pre-opened; otherwise the host drives
// store/initialize.
func newStoreEngine(ctx context.Context, cfg *config) (*engine.StoreEngine, error) {
	opts := []engine.StoreEngineOption{
		engine.WithThreshold(cfg.dedupThreshold),
	}

	if cfg.storePath != "" || cfg.backend == "firestore" {
		s, err := cfg.newStore(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithStore(s, cfg.storePath))
	}

	return engine.NewStoreEngine(opts...), nil
}
