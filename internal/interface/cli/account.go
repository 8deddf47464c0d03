package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nst-ai/lesson-hub/internal/application/command"
	"github.com/nst-ai/lesson-hub/internal/bootstrap"
)

type loginOutput struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Credits  int    `json:"credits"`
	Home     string `json:"home"`
	Board    string `json:"board,omitempty"`
	Class    int    `json:"class,omitempty"`
	Language string `json:"language,omitempty"`
}

// newLoginCmd checks credentials and prints where the account lands. Tokens
// do not outlive the process, so the session is revoked before returning.
func newLoginCmd(c *cli) *cobra.Command {
	var (
		userID   string
		password string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify credentials and show the account's home view",
		RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, _ []string) error {
			ctx := cmd.Context()
			res, err := app.Login.Handle(ctx, command.LoginCommand{UserID: userID, Password: password})
			if err != nil {
				return err
			}
			defer func() { _ = app.Login.Logout(ctx, res.Token) }()

			out := loginOutput{
				UserID:   res.User.ID.String(),
				Name:     res.User.Name,
				Role:     string(res.User.Role),
				Credits:  res.User.Credits,
				Home:     string(res.State.View),
				Board:    res.State.Selector.Board,
				Class:    res.State.Selector.ClassLevel,
				Language: string(res.State.Language),
			}
			if asJSON {
				return writeJSON(cmd, out)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) %s, credits %d, home %s\n",
				out.UserID, out.Name, out.Role, out.Credits, out.Home)
			return err
		}),
	}

	cmd.Flags().StringVar(&userID, "user", "", "account id, e.g. NST-0001")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// newMigrateCmd opens the configured store, which applies pending schema
// changes, and reports the result.
func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured store",
		RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, _ []string) error {
			w := cmd.OutOrStdout()
			backend := app.Config.Store.Backend
			if len(app.Migrations) == 0 {
				_, err := fmt.Fprintf(w, "%s schema is up to date\n", backend)
				return err
			}
			applied := 0
			for _, m := range app.Migrations {
				state := "pending"
				if m.IsApplied {
					applied++
					state = "applied"
				}
				if _, err := fmt.Fprintf(w, "%03d %-32s %s\n", m.Version, m.Name, state); err != nil {
					return err
				}
			}
			_, err := fmt.Fprintf(w, "%s: %d/%d migrations applied\n", backend, applied, len(app.Migrations))
			return err
		}),
	}
}
