package main

import (
	"os"

	apicmder "github.com/papercomputeco/plans/cmd/plans/serve/api"
)

func main() {
	cmd := apicmder.NewAPICmd()
	cmd.Use = "plansapi"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .plans/ config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
