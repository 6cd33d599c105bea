package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"article-desk/internal/app"
	"article-desk/internal/config"
	"article-desk/internal/nav"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	logger *zap.Logger
	v      *viper.Viper
	cfg    config.Config
)

var errNotLoggedIn = errors.New("not logged in, run `desk login` first")

var rootCmd = &cobra.Command{
	Use:           "desk",
	Short:         "desk - read and write articles on the article service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v)
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg.Log.Verbose)
		return err
	},
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return zc.Build()
}

// openApp builds the client for one command. The caller closes it.
func openApp(ctx context.Context, navigator nav.Navigator) (*app.App, error) {
	a, err := app.New(ctx, cfg, navigator, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start client: %w", err)
	}
	return a, nil
}

// hintNavigator is used by one-shot commands, which cannot switch views:
// they only tell the user where to go next.
func hintNavigator(w io.Writer) nav.Navigator {
	return nav.NavigatorFunc(func(i nav.Intent) {
		if i == nav.GoLogin {
			fmt.Fprintln(w, "Session ended. Run `desk login` to sign in again.")
		}
	})
}

// quietNavigator ignores every intent. Logout asked for the login screen
// itself, so there is nothing to tell.
func quietNavigator() nav.Navigator {
	return nav.NavigatorFunc(func(nav.Intent) {})
}

func main() {
	v = config.New()
	logger = zap.NewNop()

	flags := rootCmd.PersistentFlags()
	flags.String("api", "", "Base URL of the article service")
	flags.String("token-backend", "", "Where to keep the session token (badger|redis)")
	flags.String("token-path", "", "Path to the Badger token directory")
	flags.String("redis", "", "Address of Redis server (redis backend)")
	flags.BoolP("verbose", "v", false, "Log debug output to stderr")

	v.BindPFlag("api.url", flags.Lookup("api"))
	v.BindPFlag("token.backend", flags.Lookup("token-backend"))
	v.BindPFlag("token.path", flags.Lookup("token-path"))
	v.BindPFlag("token.redis_addr", flags.Lookup("redis"))
	v.BindPFlag("log.verbose", flags.Lookup("verbose"))

	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd, listCmd, createCmd, updateCmd, deleteCmd, importCmd, shellCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
