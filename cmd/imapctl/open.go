// imapctl is the command-line front end for an Infinite Map image:
// build, scan, snapshot, migrate, tune, benchmark and inspect, styled
// after aistore's cmd/cli/commands package (an urfave/cli
// application with one file per concern talking straight to the
// in-process engine rather than an HTTP client).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/infinite-map/imap/cmn"
	"github.com/infinite-map/imap/config"
	"github.com/infinite-map/imap/ecode"
	"github.com/infinite-map/imap/engine"
	"github.com/infinite-map/imap/vat"
	"github.com/infinite-map/imap/vio"
)

// sidecarDoc mirrors builder.sidecarMeta's JSON shape just enough to pull
// the embedded VAT document back out; imapctl has no dependency on the
// unexported builder type.
type sidecarDoc struct {
	GridSize       int             `json:"grid_size"`
	VATEntries     int             `json:"vat_entries"`
	InfiniteMapVAT json.RawMessage `json:"InfiniteMap-VAT"`
}

// openImage loads an image plus its VAT from imagePath and imagePath's
// ".meta.json" sidecar (written by builder.Build), and wires an Engine
// around them using cfgPath (empty uses config.Default).
func openImage(imagePath, cfgPath string) (*engine.Engine, error) {
	im, err := vio.Load(imagePath)
	if err != nil {
		return nil, ecode.Wrap(ecode.IoError, "imapctl.open", imagePath, err)
	}

	sidecarPath := imagePath + ".meta.json"
	raw, err := os.ReadFile(sidecarPath)
	if err != nil {
		return nil, ecode.Wrap(ecode.IoError, "imapctl.open", sidecarPath, err)
	}
	var sc sidecarDoc
	if err := cmn.JSON.Unmarshal(raw, &sc); err != nil {
		return nil, ecode.Wrap(ecode.Corrupt, "imapctl.open", "decode sidecar", err)
	}
	var doc vat.Document
	if err := cmn.JSON.Unmarshal(sc.InfiniteMapVAT, &doc); err != nil {
		return nil, ecode.Wrap(ecode.Corrupt, "imapctl.open", "decode vat document", err)
	}
	v, err := vat.FromSerialized(doc, im.Curve())
	if err != nil {
		return nil, err
	}

	cfg := config.Default(im.GridSize())
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath, im.GridSize())
		if err != nil {
			return nil, err
		}
	}

	return engine.New(cfg, v, im, engine.Deps{SnapshotsDir: imagePath + ".snapshots"})
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "imapctl: "+format+"\n", args...)
	os.Exit(1)
}
