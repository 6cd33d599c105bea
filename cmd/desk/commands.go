package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"article-desk/internal/app"
	"article-desk/internal/model"
	"article-desk/internal/outcome"
	"article-desk/internal/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// result prints the status message of a successful outcome, or turns a
// failed one into the command's error.
func result(out outcome.Outcome) error {
	if !out.OK() {
		return errors.New(out.Message)
	}
	if out.Message != "" {
		fmt.Println(out.Message)
	}
	return nil
}

// mountArticles is the articles view: it refuses to load while logged out
// and fetches the list otherwise.
func mountArticles(ctx context.Context, a *app.App) error {
	if !a.Nav.GuardArticles(a.SessionState()) {
		return errNotLoggedIn
	}
	if out := a.ListArticles(ctx); !out.OK() {
		return errors.New(out.Message)
	}
	return nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid article id %q", s)
	}
	return id, nil
}

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Sign in and keep the session token",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := bufio.NewReader(os.Stdin)
		var username string
		if len(args) == 1 {
			username = args[0]
		} else {
			username = prompt(in, "Username: ")
		}
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = prompt(in, "Password: ")
		}

		a, err := openApp(cmd.Context(), hintNavigator(cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		defer a.Close()

		return result(a.Login(cmd.Context(), username, password))
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), quietNavigator())
		if err != nil {
			return err
		}
		defer a.Close()

		a.Logout(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), a.Status().Message)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a session token is stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), hintNavigator(cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("session: %s\napi:     %s\ntoken:   %s\n", a.SessionState(), cfg.API.URL, cfg.Token.Backend)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List articles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")

		a, err := openApp(cmd.Context(), hintNavigator(cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		defer a.Close()

		if err := mountArticles(cmd.Context(), a); err != nil {
			return err
		}
		if format == "table" {
			fmt.Fprintln(os.Stderr, a.Status().Message)
		}
		return renderArticles(os.Stdout, format, a.Articles(), 0, false)
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an article",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d := draftFromFlags(cmd)

		a, err := openApp(cmd.Context(), hintNavigator(cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.Nav.GuardArticles(a.SessionState()) {
			return errNotLoggedIn
		}
		out := a.CreateArticle(cmd.Context(), d)
		if err := result(out); err != nil {
			return err
		}
		fmt.Printf("article %d created\n", out.Data.Article.ID)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Edit an article; omitted fields keep their current value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), hintNavigator(cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		defer a.Close()

		if err := mountArticles(cmd.Context(), a); err != nil {
			return err
		}
		if !a.SetEditSelection(id) {
			return fmt.Errorf("article %d not found", id)
		}
		current, _ := a.CurrentArticle()
		d := draftFromFlags(cmd).Merge(model.DraftOf(current))
		return result(a.UpdateArticle(cmd.Context(), id, d))
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), hintNavigator(cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		defer a.Close()

		if err := mountArticles(cmd.Context(), a); err != nil {
			return err
		}
		return result(a.DeleteArticle(cmd.Context(), id))
	},
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Create every article listed in a YAML file",
	Long: `Create every article listed in a YAML file, one at a time.

Each entry has title, text and topic. An entry with a url instead of text
is drafted from that page's readable summary.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		jobs, err := worker.LoadJobs(f)
		f.Close()
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), hintNavigator(cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.Nav.GuardArticles(a.SessionState()) {
			return errNotLoggedIn
		}

		w := worker.NewWorker(a, logger)
		report := w.Start(cmd.Context(), worker.Enqueue(jobs))

		for _, art := range report.Created {
			fmt.Printf("created %d  %s\n", art.ID, art.Title)
		}
		for _, fail := range report.Failed {
			fmt.Printf("failed  #%d %s: %s\n", fail.Index, fail.Title, fail.Message)
		}
		logger.Info("Import finished",
			zap.Int("created", len(report.Created)),
			zap.Int("failed", len(report.Failed)),
			zap.Bool("stopped", report.Stopped))

		if report.Stopped {
			return fmt.Errorf("import stopped after %d of %d jobs", len(report.Created)+len(report.Failed), len(jobs))
		}
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d of %d jobs failed", len(report.Failed), len(jobs))
		}
		return nil
	},
}

func draftFromFlags(cmd *cobra.Command) model.Draft {
	title, _ := cmd.Flags().GetString("title")
	text, _ := cmd.Flags().GetString("text")
	topic, _ := cmd.Flags().GetString("topic")
	return model.Draft{Title: title, Text: text, Topic: topic}
}

func prompt(in *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

func init() {
	loginCmd.Flags().StringP("password", "p", "", "Password (prompted when omitted)")
	listCmd.Flags().StringP("output", "o", "table", "Output format: table, json or yaml")

	for _, c := range []*cobra.Command{createCmd, updateCmd} {
		c.Flags().String("title", "", "Article title")
		c.Flags().String("text", "", "Article text")
		c.Flags().String("topic", "", "Article topic (JavaScript, React or Node)")
	}
}
