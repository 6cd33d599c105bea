package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"article-desk/internal/app"
	"article-desk/internal/model"
	"article-desk/internal/nav"
	"article-desk/internal/status"

	"github.com/spf13/cobra"
)

const shellHelp = `commands:
  login [username] [password]   sign in
  logout                        sign out
  list                          fetch and show articles
  show                          show articles without fetching
  edit ID                       select an article for editing
  cancel                        stop editing
  save                          create an article, or update the one being edited
  delete ID                     delete an article
  stats                         request counts by outcome
  help                          this text
  quit                          leave`

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec := &nav.Recorder{}
		a, err := openApp(cmd.Context(), rec)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println("Press Ctrl+C or type quit to leave.")
		return newShell(a, rec, os.Stdin, os.Stdout).run(cmd.Context())
	},
}

// shell is the text front end. It never calls back into the app from a
// navigation callback: intents are recorded and followed between commands.
// readerDone is closed once the input goroutine has returned.
type shell struct {
	a          *app.App
	rec        *nav.Recorder
	lines      chan string
	done       chan struct{}
	readerDone chan struct{}
	out        io.Writer
	busy       bool
}

func newShell(a *app.App, rec *nav.Recorder, in io.Reader, out io.Writer) *shell {
	s := &shell{
		a:          a,
		rec:        rec,
		lines:      make(chan string),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
		out:        out,
	}

	// Read input in the background so Ctrl+C is noticed while waiting.
	go func() {
		defer close(s.readerDone)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case s.lines <- scanner.Text():
			case <-s.done:
				return
			}
		}
		close(s.lines)
	}()

	a.StatusLine.OnChange(func(snap status.Snapshot) {
		if snap.Busy && !s.busy {
			fmt.Fprintln(s.out, "Please wait...")
		}
		s.busy = snap.Busy
	})
	return s
}

// run reads commands until quit, end of input or ctx is done. It is
// called once per shell.
func (s *shell) run(ctx context.Context) error {
	defer close(s.done)

	if s.a.Nav.GuardArticles(s.a.SessionState()) {
		s.rec.Navigate(nav.GoArticles)
	}
	s.follow(ctx)

	for {
		fmt.Fprint(s.out, s.prompt())
		line, ok := s.readLine(ctx)
		if !ok {
			fmt.Fprintln(s.out)
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if quit := s.exec(ctx, fields); quit {
			return nil
		}
		s.follow(ctx)
	}
}

func (s *shell) readLine(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-s.lines:
		return line, ok
	}
}

func (s *shell) ask(ctx context.Context, label string) string {
	fmt.Fprint(s.out, label)
	line, _ := s.readLine(ctx)
	return strings.TrimSpace(line)
}

func (s *shell) prompt() string {
	if id, ok := s.a.EditSelection(); ok {
		return fmt.Sprintf("desk (editing %d)> ", id)
	}
	return "desk> "
}

// follow acts on the view changes the core asked for since the last call.
func (s *shell) follow(ctx context.Context) {
	for {
		intents := s.rec.Take()
		if len(intents) == 0 {
			return
		}
		for _, i := range intents {
			switch i {
			case nav.GoArticles:
				s.articlesView(ctx)
			case nav.GoLogin:
				fmt.Fprintln(s.out, "Please log in: login <username>")
			}
		}
	}
}

// articlesView lists articles every time the view is entered.
func (s *shell) articlesView(ctx context.Context) {
	if !s.a.Nav.GuardArticles(s.a.SessionState()) {
		return
	}
	s.a.ListArticles(ctx)
	s.say()
	s.show()
}

func (s *shell) show() {
	id, ok := s.a.EditSelection()
	if err := renderArticles(s.out, "table", s.a.Articles(), id, ok); err != nil {
		fmt.Fprintln(s.out, err)
	}
}

// say prints the current status message.
func (s *shell) say() {
	if msg := s.a.Status().Message; msg != "" {
		fmt.Fprintln(s.out, msg)
	}
}

func (s *shell) exec(ctx context.Context, fields []string) (quit bool) {
	switch cmd, args := fields[0], fields[1:]; cmd {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
	case "login":
		username, password := "", ""
		if len(args) > 0 {
			username = args[0]
		} else {
			username = s.ask(ctx, "Username: ")
		}
		if len(args) > 1 {
			password = args[1]
		} else {
			password = s.ask(ctx, "Password: ")
		}
		s.a.Login(ctx, username, password)
		s.say()
	case "logout":
		s.a.Logout(ctx)
		s.say()
	case "list":
		s.articlesView(ctx)
	case "show":
		if s.a.Nav.GuardArticles(s.a.SessionState()) {
			s.show()
		}
	case "edit":
		id, ok := s.idArg(args)
		if !ok {
			return false
		}
		if !s.a.SetEditSelection(id) {
			fmt.Fprintf(s.out, "No article %d in the list\n", id)
			return false
		}
		cur, _ := s.a.CurrentArticle()
		fmt.Fprintf(s.out, "Editing %q. Type save to submit or cancel to stop.\n", cur.Title)
	case "cancel":
		s.a.ClearEditSelection()
	case "save":
		if !s.a.Nav.GuardArticles(s.a.SessionState()) {
			return false
		}
		s.save(ctx)
	case "delete":
		id, ok := s.idArg(args)
		if !ok || !s.a.Nav.GuardArticles(s.a.SessionState()) {
			return false
		}
		if s.a.DeleteArticle(ctx, id).OK() {
			s.say()
			s.show()
			return false
		}
		s.say()
	case "stats":
		if err := s.a.Metrics.WriteSummary(s.out); err != nil {
			fmt.Fprintln(s.out, err)
		}
	default:
		fmt.Fprintf(s.out, "Unknown command %q, try help\n", cmd)
	}
	return false
}

func (s *shell) save(ctx context.Context) {
	cur, editing := s.a.CurrentArticle()
	label := func(name, value string) string {
		if editing {
			return fmt.Sprintf("%s [%s]: ", name, value)
		}
		return name + ": "
	}

	d := model.Draft{
		Title: s.ask(ctx, label("Title", cur.Title)),
		Text:  s.ask(ctx, label("Text", cur.Text)),
		Topic: s.ask(ctx, label("Topic (JavaScript, React, Node)", cur.Topic)),
	}

	ok := false
	if editing {
		ok = s.a.UpdateArticle(ctx, cur.ID, d.Merge(model.DraftOf(cur))).OK()
	} else {
		ok = s.a.CreateArticle(ctx, d).OK()
	}
	s.say()
	if ok {
		s.show()
	}
}

func (s *shell) idArg(args []string) (int, bool) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: <command> ID")
		return 0, false
	}
	id, err := parseID(args[0])
	if err != nil {
		fmt.Fprintln(s.out, err)
		return 0, false
	}
	return id, true
}
