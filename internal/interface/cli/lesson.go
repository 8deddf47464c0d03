package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nst-ai/lesson-hub/internal/application/command"
	"github.com/nst-ai/lesson-hub/internal/application/query"
	"github.com/nst-ai/lesson-hub/internal/bootstrap"
	"github.com/nst-ai/lesson-hub/internal/domain/account"
)

func newRegisterCmd(c *cli) *cobra.Command {
	var (
		name     string
		password string
		profile  account.Profile
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a student account",
		RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, _ []string) error {
			res, err := app.Register.Handle(cmd.Context(), command.RegisterCommand{
				Name:     name,
				Password: password,
				Profile:  profile,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s), credits %d\n",
				res.User.ID, res.User.Name, res.User.Credits)
			return err
		}),
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&profile.Board, "board", "", "exam board")
	cmd.Flags().IntVar(&profile.ClassLevel, "class", 0, "class level")
	cmd.Flags().StringVar(&profile.Stream, "stream", "", "stream for classes 11-12")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("class")

	return cmd
}

func newLessonCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lesson",
		Short: "Read or request lesson content",
	}

	cmd.AddCommand(
		newLessonGetCmd(c),
		newLessonRequestCmd(c),
	)

	return cmd
}

func newLessonGetCmd(c *cli) *cobra.Command {
	var (
		sel    selectorFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print a cached lesson without generating or charging",
		RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, _ []string) error {
			ct, err := sel.kind()
			if err != nil {
				return err
			}
			lesson, err := app.GetLesson.Handle(cmd.Context(), query.GetLessonQuery{
				Selector:    sel.selector(),
				Language:    sel.lang(),
				ContentType: ct,
			})
			if err != nil {
				return err
			}
			return writeLesson(cmd, lesson, asJSON)
		}),
	}

	sel.bind(cmd, true)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func newLessonRequestCmd(c *cli) *cobra.Command {
	var (
		sel      selectorFlags
		userID   string
		password string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Fetch a lesson for a student, generating and charging on a miss",
		RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, _ []string) error {
			ct, err := sel.kind()
			if err != nil {
				return err
			}

			login, err := app.Login.Handle(cmd.Context(), command.LoginCommand{UserID: userID, Password: password})
			if err != nil {
				return err
			}
			defer func() { _ = app.Login.Logout(cmd.Context(), login.Token) }()

			res, err := app.RequestContent.Handle(cmd.Context(), command.RequestContentCommand{
				Selector:    sel.selector(),
				Language:    sel.lang(),
				ContentType: ct,
				UserID:      login.User.ID,
			})
			if err != nil {
				return err
			}

			lesson := query.NewLessonDTO(res.Record, app.Clock.Now())
			if asJSON {
				return writeJSON(cmd, map[string]any{
					"lesson":    lesson,
					"cache_hit": res.CacheHit,
					"charged":   res.Charged,
					"balance":   res.Balance,
					"warning":   res.Warning,
				})
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "cache hit: %t, charged: %d, balance: %d\n", res.CacheHit, res.Charged, res.Balance)
			if res.Warning != "" {
				_, _ = fmt.Fprintf(out, "warning: %s\n", res.Warning)
			}
			return writeLesson(cmd, &lesson, false)
		}),
	}

	sel.bind(cmd, true)
	cmd.Flags().StringVar(&userID, "user", "", "student id (NST-1234)")
	cmd.Flags().StringVar(&password, "password", "", "student password")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func writeLesson(cmd *cobra.Command, lesson *query.LessonDTO, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd, lesson)
	}
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "%s\n", lesson.Title)
	if lesson.Subtitle != "" {
		_, _ = fmt.Fprintf(out, "%s\n", lesson.Subtitle)
	}
	_, _ = fmt.Fprintf(out, "[%s, %s, %s]\n\n", lesson.ContentLabel, lesson.Source, lesson.Age)
	_, err := fmt.Fprintln(out, lesson.Body)
	return err
}

func newChaptersCmd(c *cli) *cobra.Command {
	var (
		sel    selectorFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "chapters",
		Short: "List the chapters of a subject",
		RunE: c.run(func(cmd *cobra.Command, app *bootstrap.App, _ []string) error {
			dto, err := app.ListChapters.Handle(cmd.Context(), query.ListChaptersQuery{
				Selector: sel.selector(),
				Language: sel.lang(),
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, dto)
			}
			for i, ch := range dto.Chapters {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s\n", i+1, ch)
			}
			return nil
		}),
	}

	sel.bind(cmd, false)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}
