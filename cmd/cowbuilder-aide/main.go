package main

import (
	"os"

	"github.com/open-edge-platform/cowbuilder-aide/internal/cli"
	"github.com/open-edge-platform/cowbuilder-aide/internal/config"
)

func main() {
	os.Exit(cli.Execute(config.VariantCowbuilderAide))
}
