// Package planscmder
package planscmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/plans/cmd/plans/config"
	getcmder "github.com/papercomputeco/plans/cmd/plans/get"
	servecmder "github.com/papercomputeco/plans/cmd/plans/serve"
	versioncmder "github.com/papercomputeco/plans/cmd/version"
)

const plansLongDesc string = `Plans stores nested plan documents, serves them over HTTP with
content-hash ETags and projects every change into a search index.

Run services using:
  plans serve              Run the API server and projector together
  plans serve api          Run the API server
  plans serve projector    Run the projector`

const plansShortDesc string = "Plans - plan document store and search projector"

func NewPlansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "plans",
		Short:         plansShortDesc,
		Long:          plansLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .plans/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(getcmder.NewGetCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
