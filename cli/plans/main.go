package main

import (
	"os"

	planscmder "github.com/papercomputeco/plans/cmd/plans"
)

func main() {
	cmd := planscmder.NewPlansCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
