package main

import (
	"os"

	"github.com/urfave/cli"
)

const version = "2.0.0"

func main() {
	app := cli.NewApp()
	app.Name = "imapctl"
	app.Usage = "build, inspect and maintain Infinite Map images"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "path to a config.yaml overriding the built-in defaults"},
	}
	app.Commands = []cli.Command{
		buildCommand,
		inspectCommand,
		scanCommand,
		snapshotCommand,
		migrateCommand,
		tuneCommand,
		benchmarkCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatalf("%v", err)
	}
}
