// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// agenttools runs agent tools behind path guards and an approval gate.
package main

import (
	"os"

	"github.com/jeranaias/agenttools/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
