package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/m-mizutani/engram/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func backupCommand() *cli.Command {
	var (
		cfg    config
		bucket string
		key    string
	)

	flags := backupFlags(&bucket, &key)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "backup",
		Usage: "Copy the store log to a Cloud Storage bucket",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if cfg.storePath == "" {
				return goerr.New("store-path is required")
			}

			storage, err := cfg.newStorage(ctx, bucket)
			if err != nil {
				return err
			}

			src, err := os.Open(cfg.storePath)
			if err != nil {
				return goerr.Wrap(err, "failed to open store log", goerr.V("path", cfg.storePath))
			}
			defer src.Close()

			dst, err := storage.Put(ctx, key)
			if err != nil {
				return err
			}

			written, err := io.Copy(dst, src)
			if err != nil {
				_ = dst.Close()
				return goerr.Wrap(err, "failed to upload store log", goerr.V("key", key))
			}
			if err := dst.Close(); err != nil {
				return goerr.Wrap(err, "failed to finalize upload", goerr.V("key", key))
			}

			logging.From(ctx).Info("store backed up", "bucket", bucket, "key", key, "bytes", written)
			fmt.Fprintf(c.Root().Writer, "Backed up %d bytes to gs://%s/%s\n", written, bucket, key)
			return nil
		},
	}
}

func restoreCommand() *cli.Command {
	var (
		cfg    config
		bucket string
		key    string
	)

	flags := backupFlags(&bucket, &key)
	flags = append(flags, storeFlags(&cfg)...)

	return &cli.Command{
		Name:  "restore",
		Usage: "Fetch a store log snapshot from a Cloud Storage bucket",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if cfg.storePath == "" {
				return goerr.New("store-path is required")
			}
			if _, err := os.Stat(cfg.storePath); err == nil {
				return goerr.New("refusing to overwrite existing store log",
					goerr.V("path", cfg.storePath))
			}

			storage, err := cfg.newStorage(ctx, bucket)
			if err != nil {
				return err
			}

			src, err := storage.Get(ctx, key)
			if err != nil {
				return err
			}
			defer src.Close()

			dst, err := os.OpenFile(cfg.storePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
			if err != nil {
				return goerr.Wrap(err, "failed to create store log", goerr.V("path", cfg.storePath))
			}
			defer dst.Close()

			written, err := io.Copy(dst, src)
			if err != nil {
				return goerr.Wrap(err, "failed to download store log", goerr.V("key", key))
			}

			logging.From(ctx).Info("store restored", "bucket", bucket, "key", key, "bytes", written)
			fmt.Fprintf(c.Root().Writer, "Restored %d bytes from gs://%s/%s\n", written, bucket, key)
			return nil
		},
	}
}

func backupFlags(bucket, key *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bucket",
			Aliases:     []string{"b"},
			Usage:       "Cloud Storage bucket name",
			Sources:     cli.EnvVars("ENGRAM_BACKUP_BUCKET"),
			Destination: bucket,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "key",
			Usage:       "Object key for the snapshot",
			Value:       "engram/memory.jsonl",
			Sources:     cli.EnvVars("ENGRAM_BACKUP_KEY"),
			Destination: key,
		},
	}
}
