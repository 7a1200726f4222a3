package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/agora-dev/agora/internal/config"
	"github.com/agora-dev/agora/internal/errors"
	"github.com/agora-dev/agora/pkg/community"
	"github.com/agora-dev/agora/pkg/loop"
	"github.com/agora-dev/agora/pkg/middleware"
	"github.com/agora-dev/agora/pkg/mutation"
	"github.com/agora-dev/agora/pkg/query"
	"github.com/agora-dev/agora/pkg/remote"
	"github.com/agora-dev/agora/pkg/toast"
)

// app is the wired client stack of one command invocation.
type app struct {
	out    io.Writer
	cfg    *config.Config
	logger *slog.Logger
	loop   *loop.Loop
	exec   *mutation.Executor
	store  *query.Store
	client *remote.Client
	svc    *community.Service
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(flags.configDir)
	if err != nil {
		return nil, err
	}
	if flags.baseURL != "" {
		cfg.BaseURL = flags.baseURL
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newApp loads the configuration, signs in if credentials were given and
// starts the loop. Callers must defer close.
func newApp(cmd *cobra.Command, flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireBaseURL(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg, flags.verbose)

	reg := prometheus.NewRegistry()
	opts := []remote.Option{
		remote.WithTimeout(cfg.TimeoutDuration()),
		remote.WithLogger(logger),
		remote.WithPageBase(remote.OpListMyLikes, cfg.LikesBase()),
		remote.WithPageBase(remote.OpListPosts, cfg.PostsBase()),
		remote.WithPageBase(remote.OpListMyPosts, cfg.PostsBase()),
		remote.WithUserAgent("agora-cli/" + version),
		remote.WithMiddleware(
			middleware.OpenTelemetry(),
			middleware.Prometheus(
				middleware.WithNamespace(cfg.Metrics.Namespace),
				middleware.WithRegistry(reg),
			),
		),
	}
	if cfg.RateLimit.RPS > 0 {
		opts = append(opts, remote.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	client, err := remote.New(cfg.BaseURL, opts...)
	if err != nil {
		return nil, err
	}

	if flags.user != "" {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.TimeoutDuration())
		defer cancel()
		if err := client.Login(ctx, remote.Credentials{Username: flags.user, Password: flags.password}); err != nil {
			return nil, err
		}
		logger.Debug("signed in", "user", flags.user)
	}

	l := loop.New(loop.WithLogger(logger))
	l.Start()

	out := cmd.OutOrStdout()
	exec := mutation.NewExecutor(l,
		mutation.WithLogger(logger),
		mutation.WithMetrics(mutation.NewMetrics(reg, cfg.Metrics.Namespace)),
		mutation.WithBaseContext(cmd.Context()),
	)
	store := query.NewStore(l,
		query.WithLogger(logger),
		query.WithDefaultStaleTime(cfg.StaleTimeDuration()),
		query.WithContext(cmd.Context()),
	)
	svc := community.NewService(client, exec, store,
		community.WithLogger(logger),
		community.WithPageSize(cfg.Pagination.PageSize),
		community.WithNotifier(toast.Multi(printer(out), toast.Log(logger))),
	)

	return &app{
		out:    out,
		cfg:    cfg,
		logger: logger,
		loop:   l,
		exec:   exec,
		store:  store,
		client: client,
		svc:    svc,
	}, nil
}

func (a *app) close() {
	a.svc.Close()
	a.loop.Close()
	<-a.loop.Stopped()
}

// settle waits for a mutation and for its callbacks to run.
func (a *app) settle(ctx context.Context, h *mutation.Handle, err error) (mutation.Result, error) {
	if err != nil {
		return mutation.Result{}, err
	}
	res, err := h.Wait(ctx)
	if err != nil {
		return res, err
	}
	if err := a.loop.Flush(ctx); err != nil {
		return res, err
	}
	if res.Err != nil {
		return res, shown{res.Err}
	}
	return res, nil
}

// shown wraps an error the notifier has already printed.
type shown struct{ err error }

func (s shown) Error() string { return s.err.Error() }
func (s shown) Unwrap() error { return s.err }

// reportError prints err unless a toast already did.
func reportError(w io.Writer, err error) {
	var s shown
	if stderrors.As(err, &s) {
		return
	}
	errors.PrintError(w, err)
}

// timeout bounds a command's network work.
func (a *app) timeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 2*a.cfg.TimeoutDuration()+time.Second)
}

// printer renders toasts on the terminal.
func printer(w io.Writer) toast.Emitter {
	return toast.EmitterFunc(func(t toast.Toast) {
		msg := t.Message
		if t.Title != "" {
			msg = t.Title + ": " + msg
		}
		if t.ActionID == toast.ActionLogin {
			msg += " (use --user and --password)"
		}
		switch t.Level {
		case toast.TypeSuccess:
			success(w, "%s", msg)
		case toast.TypeWarning:
			warn(w, "%s", msg)
		case toast.TypeError:
			errorMsg(w, "%s", msg)
		default:
			info(w, "%s", msg)
		}
	})
}

func printPost(w io.Writer, p remote.Post) {
	heart := "♡"
	if p.Liked {
		heart = "♥"
	}
	fmt.Fprintf(w, "#%d %s\n", p.ID, p.Title)
	info(w, "by %s · %s %d · %d comments", p.Writer, heart, p.LikeCount, p.CommentCount)
}
