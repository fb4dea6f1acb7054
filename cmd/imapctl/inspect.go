package main

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	"github.com/urfave/cli"
)

var inspectCommand = cli.Command{
	Name:      "inspect",
	Usage:     "print an image's sidecar metadata, optionally narrowed by a gjson path",
	ArgsUsage: "IMAGE [GJSON_PATH]",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.NewExitError("expected an IMAGE argument", 1)
		}
		imagePath := c.Args().Get(0)
		raw, err := os.ReadFile(imagePath + ".meta.json")
		if err != nil {
			return err
		}
		if c.NArg() < 2 {
			fmt.Println(string(raw))
			return nil
		}
		result := gjson.GetBytes(raw, c.Args().Get(1))
		if !result.Exists() {
			return cli.NewExitError(fmt.Sprintf("path %q matched nothing", c.Args().Get(1)), 1)
		}
		fmt.Println(result.String())
		return nil
	},
}
