package main

import (
	"fmt"

	"github.com/infinite-map/imap/builder"
	"github.com/infinite-map/imap/config"
	"github.com/urfave/cli"
)

var buildCommand = cli.Command{
	Name:      "build",
	Usage:     "pack a source directory into a new Infinite Map image",
	ArgsUsage: "SOURCE_DIR OUT_IMAGE",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "grid-size", Value: 256, Usage: "initial grid side, rounded up to a power of two"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return cli.NewExitError("expected SOURCE_DIR and OUT_IMAGE arguments", 1)
		}
		sourceDir, outImage := c.Args().Get(0), c.Args().Get(1)

		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		cfg.GridSize = c.Int("grid-size")
		if err := cfg.Validate(); err != nil {
			return err
		}

		b := builder.New(cfg, nil)
		result, err := b.Build(sourceDir, outImage)
		if err != nil {
			return err
		}
		fmt.Printf("built %s: %d files, %d bytes, grid %dx%d\n",
			outImage, result.FilesWritten, result.BytesWritten, result.GridSize, result.GridSize)
		return nil
	},
}

func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.GlobalString("config")
	if path == "" {
		return config.Default(256), nil
	}
	return config.Load(path, 256)
}
