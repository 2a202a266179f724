// Package getcmder provides the get command, which fetches a plan from a
// running API server.
package getcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/plans/cmd/plans/components"
	"github.com/papercomputeco/plans/pkg/cliui"
	"github.com/papercomputeco/plans/pkg/config"
	"github.com/papercomputeco/plans/pkg/dotdir"
	"github.com/papercomputeco/plans/pkg/fingerprint"
	"github.com/papercomputeco/plans/pkg/utils"
)

// ErrNotFound is returned when the server has no plan with the requested id.
var ErrNotFound = errors.New("plan not found")

type getCommander struct {
	flags     config.FlagSet
	apiTarget string
	token     string
	force     bool
	configDir string
	out       io.Writer
}

const getLongDesc string = `Fetch a plan from a running API server.

The fingerprint of every fetched plan is remembered in the .plans/ directory.
The next fetch of the same plan sends it as If-None-Match, and an unchanged
plan is reported without transferring the document again.

Examples:
  plans get 12xvxc345ssdsds-508
  plans get 12xvxc345ssdsds-508 --force
  plans get 12xvxc345ssdsds-508 --api-target https://plans.example.com`

const getShortDesc string = "Fetch a plan by id"

func NewGetCmd() *cobra.Command {
	cmder := &getCommander{flags: config.PlansFlags}

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: getShortDesc,
		Long:  getLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := components.LoadConfig(cmd, []string{config.FlagAPITarget})
			if err != nil {
				return err
			}
			cmder.apiTarget = strings.TrimRight(cfg.Client.APITarget, "/")
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.out = cmd.OutOrStdout()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, args[0])
		},
	}

	config.AddStringFlag(cmd, cmder.flags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().StringVar(&cmder.token, "token", "", "Bearer token for servers with auth enabled")
	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Fetch the document even if it is unchanged")

	return cmd
}

func (c *getCommander) run(ctx context.Context, id string) error {
	ddm := dotdir.NewManager()

	cache, err := ddm.LoadVersions(c.configDir)
	if err != nil {
		return fmt.Errorf("loading version cache: %w", err)
	}
	seen, known := cache[id]
	if seen.APITarget != c.apiTarget || c.force {
		known = false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiTarget+"/v1/plan/"+id, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if known {
		req.Header.Set("If-None-Match", fingerprint.Quote(seen.Fingerprint))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting plan from API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading API response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusNotModified:
		fmt.Fprintf(c.out, "%s %s unchanged (%s)\n",
			cliui.SuccessMark,
			cliui.KeyStyle.Render(id),
			cliui.DimStyle.Render(utils.Truncate(seen.Fingerprint, 16)),
		)
		return nil

	case http.StatusOK:
		etag := fingerprint.Normalize(resp.Header.Get("ETag"))
		if etag != "" {
			if err := ddm.RememberVersion(c.configDir, id, dotdir.SeenVersion{
				APITarget:   c.apiTarget,
				Fingerprint: etag,
			}); err != nil {
				return fmt.Errorf("saving version cache: %w", err)
			}
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err != nil {
			return fmt.Errorf("parsing API response: %w", err)
		}
		pretty.WriteByte('\n')
		_, err := pretty.WriteTo(c.out)
		return err

	case http.StatusNotFound:
		if err := ddm.ForgetVersion(c.configDir, id); err != nil {
			return fmt.Errorf("saving version cache: %w", err)
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return fmt.Errorf("API returned status %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
}
