package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nst-ai/lesson-hub/internal/application/command"
	"github.com/nst-ai/lesson-hub/internal/application/query"
	"github.com/nst-ai/lesson-hub/internal/bootstrap"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

type adminFlags struct {
	password string
}

// operator logs in as ADMIN and returns the operator id with a logout func.
// The password falls back to the configured admin password.
func (f *adminFlags) operator(ctx context.Context, app *bootstrap.App) (shared.UserID, func(), error) {
	password := f.password
	if password == "" {
		password = app.Config.Admin.Password
	}
	if password == "" {
		return "", nil, errors.New("admin password is required (--admin-password or ADMIN_PASSWORD)")
	}

	res, err := app.Login.Handle(ctx, command.LoginCommand{UserID: shared.AdminUserID.String(), Password: password})
	if err != nil {
		return "", nil, err
	}
	if !res.User.IsAdmin() {
		_ = app.Login.Logout(ctx, res.Token)
		return "", nil, shared.ErrNotAdmin
	}
	return res.User.ID, func() { _ = app.Login.Logout(ctx, res.Token) }, nil
}

func newAdminCmd(c *cli) *cobra.Command {
	f := &adminFlags{}

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator commands (require the admin password)",
	}
	cmd.PersistentFlags().StringVar(&f.password, "admin-password", "", "admin password (defaults to ADMIN_PASSWORD)")

	cmd.AddCommand(
		newAdminAccountsCmd(c, f),
		newAdminCreditsCmd(c, f),
		newAdminLockCmd(c, f, true),
		newAdminLockCmd(c, f, false),
		newAdminOverwriteCmd(c, f),
		newAdminStatsCmd(c, f),
		newAdminSettingsCmd(c, f),
	)

	return cmd
}

func newAdminAccountsCmd(c *cli, f *adminFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List accounts",
		RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, _ []string) error {
			_, logout, err := f.operator(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer logout()

			users, err := app.Accounts.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				type row struct {
					ID      string `json:"id"`
					Name    string `json:"name"`
					Role    string `json:"role"`
					Credits int    `json:"credits"`
					Locked  bool   `json:"locked"`
				}
				rows := make([]row, 0, len(users))
				for _, u := range users {
					rows = append(rows, row{u.ID.String(), u.Name, string(u.Role), u.Credits, u.IsLocked})
				}
				return writeJSON(cmd, rows)
			}
			for _, u := range users {
				state := "active"
				if u.IsLocked {
					state = "locked"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d\t%s\n", u.ID, u.Name, u.Role, u.Credits, state)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func newAdminCreditsCmd(c *cli, f *adminFlags) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:     "credits USER_ID DELTA",
		Short:   "Add (or with a negative delta, remove) credits",
		Example: "  nst admin credits NST-1234 5\n  nst admin credits -- NST-1234 -3",
		Args:    cobra.ExactArgs(2),
		RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, args []string) error {
			delta, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("delta must be an integer: %w", shared.ErrInvalidInput)
			}
			operator, logout, err := f.operator(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer logout()

			res, err := app.AdjustCredits.Handle(cmd.Context(), command.AdjustCreditsCommand{
				OperatorID: operator,
				UserID:     shared.UserID(strings.ToUpper(args[0])),
				Delta:      delta,
				Reason:     reason,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s balance: %d\n", res.UserID, res.Balance)
			return err
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "note recorded with the adjustment")

	return cmd
}

func newAdminLockCmd(c *cli, f *adminFlags, lock bool) *cobra.Command {
	use, short := "unlock USER_ID", "Unlock an account"
	if lock {
		use, short = "lock USER_ID", "Lock an account; it can no longer log in"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, args []string) error {
			operator, logout, err := f.operator(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer logout()

			id := shared.UserID(strings.ToUpper(args[0]))
			if err := app.SetAccountLock.Handle(cmd.Context(), command.SetAccountLockCommand{
				OperatorID: operator,
				UserID:     id,
				Locked:     lock,
			}); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s locked: %t\n", id, lock)
			return err
		}),
	}
}

func newAdminOverwriteCmd(c *cli, f *adminFlags) *cobra.Command {
	var (
		sel      selectorFlags
		title    string
		subtitle string
		body     string
		bodyFile string
	)

	cmd := &cobra.Command{
		Use:   "overwrite",
		Short: "Replace the stored artifact for a key with hand-written content",
		RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, _ []string) error {
			ct, err := sel.kind()
			if err != nil {
				return err
			}
			if bodyFile != "" {
				data, err := os.ReadFile(bodyFile)
				if err != nil {
					return fmt.Errorf("read body file: %w", err)
				}
				body = string(data)
			}

			operator, logout, err := f.operator(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer logout()

			res, err := app.Overwrite.Handle(cmd.Context(), command.OverwriteContentCommand{
				Selector:    sel.selector(),
				Language:    sel.lang(),
				ContentType: ct,
				Title:       title,
				Subtitle:    subtitle,
				Body:        body,
				OperatorID:  operator,
			})
			if err != nil {
				return err
			}
			verb := "stored"
			if res.Replaced {
				verb = "replaced"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, res.Record.Key)
			return err
		}),
	}

	sel.bind(cmd, true)
	cmd.Flags().StringVar(&title, "title", "", "lesson title")
	cmd.Flags().StringVar(&subtitle, "subtitle", "", "lesson subtitle")
	cmd.Flags().StringVar(&body, "body", "", "lesson body (markdown)")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "read the body from a file")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
	cmd.MarkFlagsOneRequired("body", "body-file")

	return cmd
}

func newAdminStatsCmd(c *cli, f *adminFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cached content storage usage",
		RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, _ []string) error {
			_, logout, err := f.operator(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer logout()

			stats, err := app.StorageStats.Handle(cmd.Context(), query.StorageStatsQuery{})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "items: %d (%s)\n", stats.TotalItems, stats.FormattedSize)
			_, _ = fmt.Fprintf(out, "chapter indexes: %d\n", stats.ChapterIndexes)
			_, _ = fmt.Fprintf(out, "manual overrides: %d\n", stats.ManualOverrides)
			for _, t := range stats.ByType {
				_, _ = fmt.Fprintf(out, "  %s\t%d\n", t.Label, t.Count)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func newAdminSettingsCmd(c *cli, f *adminFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change system settings",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the current settings as JSON",
			RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, _ []string) error {
				sys, err := app.Settings.Load(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd, sys)
			}),
		},
		newAdminSettingsSetCmd(c, f),
	)

	return cmd
}

func newAdminSettingsSetCmd(c *cli, f *adminFlags) *cobra.Command {
	var (
		maintenance    bool
		allowSignup    bool
		signupBonus    int
		allowedClasses []int
		costs          map[string]int
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change selected settings; unset flags keep their values",
		RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, _ []string) error {
			operator, logout, err := f.operator(cmd.Context(), app)
			if err != nil {
				return err
			}
			defer logout()

			sys, err := app.Settings.Load(cmd.Context())
			if err != nil {
				return err
			}
			next := sys.Clone()

			flags := cmd.Flags()
			if flags.Changed("maintenance") {
				next.MaintenanceMode = maintenance
			}
			if flags.Changed("allow-signup") {
				next.AllowSignup = allowSignup
			}
			if flags.Changed("signup-bonus") {
				next.SignupBonus = signupBonus
			}
			if flags.Changed("allowed-classes") {
				next.AllowedClasses = allowedClasses
			}
			for name, cost := range costs {
				ct, err := curriculum.ParseContentType(name)
				if err != nil {
					return err
				}
				next.ContentCosts[ct] = cost
			}

			saved, err := app.UpdateSettings.Handle(cmd.Context(), command.UpdateSettingsCommand{
				OperatorID: operator,
				Settings:   next,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd, saved)
		}),
	}

	cmd.Flags().BoolVar(&maintenance, "maintenance", false, "maintenance mode (students cannot log in)")
	cmd.Flags().BoolVar(&allowSignup, "allow-signup", true, "allow new registrations")
	cmd.Flags().IntVar(&signupBonus, "signup-bonus", 0, "credits granted on registration")
	cmd.Flags().IntSliceVar(&allowedClasses, "allowed-classes", nil, "selectable class levels")
	cmd.Flags().StringToIntVar(&costs, "cost", nil, "content price, e.g. --cost MCQ=2")

	return cmd
}
