package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"asinshort/internal/config"
	"asinshort/internal/state"
)

const appName = "asinshort"

// initializeAppContext prepares application context before command execution but
// after command line has been parsed
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error

	if cmd.NArg() == 0 {
		return ctx, nil
	}

	env := state.EnvFromContext(ctx)
	if env.Cfg, err = config.Load(); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.IsSet("log-level") {
		env.Cfg.LogLevel = cmd.String("log-level")
		if err := env.Cfg.Validate(); err != nil {
			return ctx, err
		}
	}
	if cmd.IsSet("rules") {
		env.Cfg.RulesFile = cmd.String("rules")
	}

	env.Log = config.NewLogger(env.Cfg.LogLevel, appName)
	env.RedirectStdLog()

	env.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", version()), zap.String("runtime", runtime.Version()))
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	env.RestoreStdLog()
	return nil
}

var errWasHandled bool

// exitErrHandler reports err through the logger when there is one that writes
// somewhere, main prints it otherwise.
func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	env := state.EnvFromContext(ctx)
	if env.Cfg != nil && env.Cfg.Logging() {
		env.Log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func subcommandNotFoundHandler(ctx context.Context, _ *cli.Command, name string) {
	state.EnvFromContext(ctx).Log.Warn("Unknown command, nothing to do", zap.String("command", name))
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:            appName,
		Usage:           "shortens Amazon.co.jp product links to https://www.amazon.co.jp/dp/<ASIN>",
		Version:         version() + " (" + runtime.Version() + ")",
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		CommandNotFound: subcommandNotFoundHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Usage: "`LEVEL` of logging: none, normal or debug (overrides LOG_LEVEL)"},
			&cli.StringFlag{Name: "rules", Aliases: []string{"r"}, Usage: "load rule table from `FILE` (YAML, overrides RULES_FILE)"},
		},
		Commands: []*cli.Command{
			{
				Name:         "canon",
				Usage:        "Prints the canonical form of each URL",
				ArgsUsage:    "URL...",
				OnUsageError: usageErrorHandler,
				Action:       runCanon,
			},
			{
				Name:         "extract",
				Usage:        "Prints ASIN and URL shape of each URL",
				ArgsUsage:    "URL...",
				OnUsageError: usageErrorHandler,
				Action:       runExtract,
			},
			{
				Name:         "resolve",
				Usage:        "Like canon, but follows short links over the network when the URL carries no ASIN",
				ArgsUsage:    "URL...",
				OnUsageError: usageErrorHandler,
				Action:       runResolve,
			},
			{
				Name:         "serve",
				Usage:        "Serves redirect decisions of the rule table over HTTP",
				OnUsageError: usageErrorHandler,
				Action:       runServe,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listen", Usage: "`ADDRESS` to listen on (overrides LISTEN)"},
				},
			},
			{
				Name:         "watch",
				Usage:        "Watches browser tabs and redirects product pages to their canonical URL",
				OnUsageError: usageErrorHandler,
				Action:       runWatch,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "chrome-url", Usage: "attach to running browser at `URL` (overrides CHROME_URL)"},
					&cli.BoolFlag{Name: "headless", Usage: "launch browser headless (overrides HEADLESS)"},
					&cli.IntFlag{Name: "workers", Usage: "`NUMBER` of navigation workers (overrides WORKERS)"},
				},
			},
			{
				Name:         "rules",
				Usage:        "Dumps the active rule table (YAML) or its declarativeNetRequest export (JSON)",
				ArgsUsage:    "[FILE]",
				OnUsageError: usageErrorHandler,
				Action:       runRules,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "export", Aliases: []string{"e"}, Usage: "output declarativeNetRequest rules instead of the table"},
				},
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	var err error
	// NOTE: os.Exit is called at the end of main to set exit code, make sure
	// there are no other deffered functions after that
	defer func() {
		stop()
		if err != nil {
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = newApp().Run(ctx, os.Args)
}
