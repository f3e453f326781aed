// modelexplorer - chat with a local or hosted language model from the
// terminal or the browser.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jeranaias/modelexplorer/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	version := Version
	if GitCommit != "unknown" {
		version = fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildDate)
	}
	os.Exit(cli.Execute(context.Background(), version))
}
