package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/nst-ai/lesson-hub/internal/bootstrap"
)

func newHealthCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the configured store and cache, printing the report as JSON",
		RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, _ []string) error {
			status := app.HealthChecker().Check(cmd.Context())
			if err := writeJSON(cmd, status); err != nil {
				return err
			}
			if !status.Ready {
				return errors.New(status.Message)
			}
			return nil
		}),
	}
}
