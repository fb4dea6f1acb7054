package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli"
)

var tuneCommand = cli.Command{
	Name:      "tune",
	Usage:     "run the performance tuner's full benchmark/adjust/benchmark cycle",
	ArgsUsage: "IMAGE",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "iterations", Value: 200, Usage: "benchmark iterations before and after tuning"},
		cli.BoolFlag{Name: "async", Usage: "start the tune as a background job and return immediately"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("expected an IMAGE argument", 1)
		}
		e, err := openImage(c.Args().Get(0), c.GlobalString("config"))
		if err != nil {
			return err
		}
		defer e.Close()

		if c.Bool("async") {
			job := e.RunTuneAllAsync(c.Int("iterations"))
			fmt.Printf("started job %s (%s)\n", job.ID, job.Kind)
			return nil
		}

		result, err := e.TuneAll(c.Int("iterations"))
		if err != nil {
			return err
		}
		fmt.Printf("cache changes: %d, fragmented files: %d/%d, migration batch: %s (%d candidates)\n",
			len(result.CacheChanges), result.Fragmentation.FragmentedFiles, result.Fragmentation.TotalFiles,
			result.MigrationBatch.ID, len(result.MigrationBatch.Candidates))
		if len(result.Recommendations) > 0 {
			fmt.Println(strings.Join(result.Recommendations, "\n"))
		}
		return nil
	},
}
