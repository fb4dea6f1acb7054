package main

import (
	"fmt"

	"github.com/infinite-map/imap/integrity"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"
)

var scanCommand = cli.Command{
	Name:      "scan",
	Usage:     "run a full integrity scan over an image",
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

		progress := mpb.New(mpb.WithWidth(60))
		var bar *mpb.Bar
		report, err := e.Scan(func(done, total int, _ integrity.ClusterReport) bool {
			if bar == nil {
				text := "Scanning clusters: "
				bar = progress.AddBar(int64(total),
					mpb.PrependDecorators(decor.Name(text, decor.WC{W: len(text) + 2, C: decor.DSyncWidthR})),
					mpb.AppendDecorators(decor.Percentage(decor.WCSyncWidth)),
				)
			}
			bar.SetCurrent(int64(done))
			return true
		})
		progress.Wait()
		if err != nil {
			return err
		}
		fmt.Printf("scanned %d clusters: %d valid, %d corrupted, %d missing, %d unknown\n",
			report.Total, report.Valid, report.Corrupted, report.Missing, report.Unknown)
		return nil
	},
}
