package main

import (
	"fmt"

	"github.com/urfave/cli"
)

var migrateCommand = cli.Command{
	Name:      "migrate",
	Usage:     "evaluate and apply a zone-rebalancing migration batch",
	ArgsUsage: "IMAGE",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("expected an IMAGE argument", 1)
		}
		e, err := openImage(c.Args().Get(0), c.GlobalString("config"))
		if err != nil {
			return err
		}
		defer e.Close()

		batch, results, err := e.TuneZoneDistribution()
		if err != nil {
			return err
		}
		fmt.Printf("batch %s: %d candidates relocated\n", batch.ID, len(results))
		for _, r := range results {
			status := "ok"
			if r.Err != nil {
				status = r.Err.Error()
			}
			fmt.Printf("  %s -> %s: %s\n", r.Old, r.New, status)
		}
		return nil
	},
}
