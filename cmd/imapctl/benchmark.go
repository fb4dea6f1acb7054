package main

import (
	"fmt"

	"github.com/urfave/cli"
)

var benchmarkCommand = cli.Command{
	Name:      "benchmark",
	Usage:     "run a synthetic read/write latency benchmark against an image",
	ArgsUsage: "IMAGE",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "iterations", Value: 500, Usage: "number of write-then-read passes"},
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

		result, err := e.Tuner().Benchmark(c.Int("iterations"))
		if err != nil {
			return err
		}
		fmt.Printf("read p50=%s p90=%s p99=%s write=%s throughput=%.0f B/s cache_hit=%.2f%% mem=%d bytes\n",
			result.ReadLatencyP50, result.ReadLatencyP90, result.ReadLatencyP99,
			result.WriteLatency, result.Throughput, result.CacheHitRate*100, result.Memory)
		return nil
	},
}
