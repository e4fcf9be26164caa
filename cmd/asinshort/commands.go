package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"asinshort/internal/browser"
	"asinshort/internal/canon"
	"asinshort/internal/engine"
	"asinshort/internal/redirect"
	"asinshort/internal/resolve"
	"asinshort/internal/ruleset"
	"asinshort/internal/server"
	"asinshort/internal/state"
	"asinshort/internal/storage"
	"asinshort/pkg/models"
)

func runCanon(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	out := cmd.Root().Writer

	for _, arg := range cmd.Args().Slice() {
		link := canon.NormalizeInput(arg)
		if !canon.InScope(link, env.Cfg.HostSuffix) {
			env.Log.Warn("Not a storefront URL, left unchanged", zap.String("url", arg))
			fmt.Fprintln(out, arg)
			continue
		}
		target, _, shape, ok := canon.Rewrite(link)
		switch {
		case ok:
			env.Log.Debug("Rewritten", zap.String("url", link), zap.Stringer("shape", shape))
			fmt.Fprintln(out, target)
		case shape == models.Canonical:
			fmt.Fprintln(out, link)
		default:
			env.Log.Warn("No product identifier found, left unchanged", zap.String("url", arg))
			fmt.Fprintln(out, arg)
		}
	}
	return nil
}

func runExtract(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	out := cmd.Root().Writer

	for _, arg := range cmd.Args().Slice() {
		link := canon.NormalizeInput(arg)
		if !canon.InScope(link, env.Cfg.HostSuffix) {
			env.Log.Warn("Not a storefront URL", zap.String("url", arg))
			continue
		}
		asin, shape := canon.Classify(link)
		if shape == models.None {
			env.Log.Warn("No product identifier found", zap.String("url", arg))
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", asin, shape)
	}
	return nil
}

func runResolve(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)
	out := cmd.Root().Writer

	domains := resolve.NewDomainManager(env.Cfg.RateLimit, env.Cfg.UserAgent)
	resolver := resolve.NewResolver(env.Cfg.UserAgent, env.Cfg.HostSuffix, domains, env.Log.Named("resolve"))

	for _, arg := range cmd.Args().Slice() {
		res, ok, er := resolver.Resolve(ctx, arg)
		if er != nil {
			err = multierr.Append(err, er)
			fmt.Fprintln(out, arg)
			continue
		}
		if !ok {
			env.Log.Warn("No product identifier found, left unchanged", zap.String("url", arg), zap.String("final", res.Final))
			fmt.Fprintln(out, arg)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", res.Canonical, res.Via)
	}
	return err
}

func loadRuleSet(env *state.LocalEnv, file string) (*ruleset.RuleSet, error) {
	if file == "" {
		file = env.Cfg.RulesFile
	}
	if file == "" {
		return ruleset.Default(), nil
	}
	env.Log.Debug("Loading rule table", zap.String("file", file))
	return ruleset.Load(file)
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	set, err := loadRuleSet(env, "")
	if err != nil {
		return err
	}
	eng, err := ruleset.NewEngine(set)
	if err != nil {
		return err
	}

	listen := env.Cfg.Listen
	if cmd.IsSet("listen") {
		listen = cmd.String("listen")
	}
	srv, err := server.NewServer(listen, eng, env.Log.Named("server"))
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func runRules(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	set, err := loadRuleSet(env, cmd.Args().First())
	if err != nil {
		return err
	}
	// compiling catches patterns the structural checks let through
	if _, err := ruleset.NewEngine(set); err != nil {
		return err
	}

	var data []byte
	if cmd.Bool("export") {
		data, err = set.ExportJSON()
	} else {
		data, err = set.Marshal()
	}
	if err != nil {
		return fmt.Errorf("unable to render rule table: %w", err)
	}
	_, err = cmd.Root().Writer.Write(data)
	return err
}

// openSink picks where redirects are journaled: Postgres when DB_URL is set,
// the log otherwise.
func openSink(ctx context.Context, env *state.LocalEnv) (engine.Sink[models.Redirect], io.Closer, error) {
	log := env.Log.Named("storage")
	if env.Cfg.DatabaseURL == "" {
		return &storage.LogSink{Log: log}, closerFunc(func() error { return nil }), nil
	}

	db, err := storage.WaitForDB(ctx, env.Cfg.DatabaseURL, 10, 2*time.Second, log)
	if err != nil {
		return nil, nil, err
	}
	sink, err := storage.NewJournalSink(ctx, storage.NewStorage(db, log))
	if err != nil {
		return nil, nil, multierr.Append(err, db.Close())
	}
	return sink, closerFunc(func() error { return closeDB(db) }), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func closeDB(db *sql.DB) error {
	if err := db.Close(); err != nil {
		return fmt.Errorf("unable to close database: %w", err)
	}
	return nil
}

func runWatch(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)
	cfg := env.Cfg

	chromeURL, headless, workers := cfg.ChromeURL, cfg.Headless, cfg.Workers
	if cmd.IsSet("chrome-url") {
		chromeURL = cmd.String("chrome-url")
	}
	if cmd.IsSet("headless") {
		headless = cmd.Bool("headless")
	}
	if cmd.IsSet("workers") {
		workers = int(cmd.Int("workers"))
	}

	sink, closer, err := openSink(ctx, env)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closer.Close())
	}()

	bctx, cancelBrowser := browser.NewBrowserContext(ctx, chromeURL, headless)
	defer cancelBrowser()

	watcher := browser.NewWatcher(nil, env.Log.Named("browser"))
	policy := redirect.NewPolicy(watcher, cfg.HostSuffix, env.Log.Named("redirect"))
	pipeline := engine.NewEngine[models.Redirect](engine.Config{
		Workers:   workers,
		BatchSize: cfg.BatchSize,
	}, policy, sink, env.Log.Named("engine"))
	watcher.SetOutput(pipeline)

	pctx, stopPipeline := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pipeline.Run(pctx)
	}()

	err = watcher.Run(bctx)

	// the pipeline flushes pending redirects before returning
	stopPipeline()
	<-done
	return err
}
