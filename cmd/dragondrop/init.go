package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dragondrop-dev/dragondrop/internal/config"
	"github.com/dragondrop-dev/dragondrop/internal/errors"
)

type initOptions struct {
	force  bool
	port   int
	driver string
	bucket string
}

func initCmd(g *globalOptions) *cobra.Command {
	opts := initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default dragondrop.json",
		Long: `Write a dragondrop.json with default settings to the project directory.

Examples:
  dragondrop init
  dragondrop init --port=9000
  dragondrop init --storage=s3 --bucket=my-uploads`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := runInit(g.dir, opts)
			if err != nil {
				return err
			}
			success("Wrote %s", path)
			info("Run 'dragondrop serve' to start the upload server")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite an existing dragondrop.json")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Server port")
	cmd.Flags().StringVar(&opts.driver, "storage", "", `Upload store: "disk" or "s3"`)
	cmd.Flags().StringVar(&opts.bucket, "bucket", "", "S3 bucket (with --storage=s3)")

	return cmd
}

// runInit writes the config into dir and returns its path.
func runInit(dir string, opts initOptions) (string, error) {
	if config.Exists(dir) && !opts.force {
		return "", errors.New("D042")
	}

	cfg := config.New()
	if opts.port > 0 {
		cfg.Server.Port = opts.port
	}
	if opts.driver != "" {
		cfg.Storage.Driver = opts.driver
	}
	if opts.bucket != "" {
		cfg.Storage.Bucket = opts.bucket
	}
	cfg.Widget.URL = cfg.URL() + cfg.Server.UploadPath
	cfg.Widget.ManualURL = cfg.URL() + cfg.Server.ManualPath

	if err := cfg.Validate(); err != nil {
		return "", err
	}

	path := filepath.Join(dir, config.ConfigFileName)
	if err := cfg.SaveTo(path); err != nil {
		return "", err
	}
	return path, nil
}
