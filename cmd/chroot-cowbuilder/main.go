package main

import (
	"os"

	"github.com/open-edge-platform/cowbuilder-aide/internal/cli"
	"github.com/open-edge-platform/cowbuilder-aide/internal/config"
)

// chroot-cowbuilder hands everything after the first positional argument to
// cowbuilder and keeps its bind mounts under ~/.chroot-cowbuilder.
func main() {
	os.Exit(cli.Execute(config.VariantChrootCowbuilder))
}
