package main

import (
	"fmt"

	"github.com/urfave/cli"
)

var snapshotCommand = cli.Command{
	Name:  "snapshot",
	Usage: "create, list or restore VAT snapshots",
	Subcommands: []cli.Command{
		{
			Name:      "create",
			ArgsUsage: "IMAGE DESCRIPTION",
			Action: func(c *cli.Context) error {
				if c.NArg() != 2 {
					return cli.NewExitError("expected IMAGE and DESCRIPTION arguments", 1)
				}
				e, err := openImage(c.Args().Get(0), c.GlobalString("config"))
				if err != nil {
					return err
				}
				defer e.Close()
				meta, err := e.Snapshot(c.Args().Get(1))
				if err != nil {
					return err
				}
				fmt.Printf("created snapshot %s (%s)\n", meta.SnapshotID, meta.CreatedAt)
				return nil
			},
		},
		{
			Name:      "list",
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
				snaps, err := e.Snapshots().List()
				if err != nil {
					return err
				}
				for _, s := range snaps {
					fmt.Printf("%s\t%s\t%s\n", s.SnapshotID, s.CreatedAt, s.Description)
				}
				return nil
			},
		},
		{
			Name:      "restore",
			ArgsUsage: "IMAGE SNAPSHOT_ID",
			Action: func(c *cli.Context) error {
				if c.NArg() != 2 {
					return cli.NewExitError("expected IMAGE and SNAPSHOT_ID arguments", 1)
				}
				e, err := openImage(c.Args().Get(0), c.GlobalString("config"))
				if err != nil {
					return err
				}
				defer e.Close()
				if err := e.RestoreSnapshot(c.Args().Get(1)); err != nil {
					return err
				}
				fmt.Println("restored")
				return nil
			},
		},
	},
}
