package main

import (
	"os"

	projectorcmder "github.com/papercomputeco/plans/cmd/plans/serve/projector"
)

func main() {
	cmd := projectorcmder.NewProjectorCmd()
	cmd.Use = "plansprojector"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .plans/ config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
