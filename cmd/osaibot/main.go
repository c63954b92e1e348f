package main

import (
	"github.com/osaibot/osaibot/internal/cmd"
)

// Version information set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd.SetVersionInfo(version, commit)
	cmd.Execute()
}
