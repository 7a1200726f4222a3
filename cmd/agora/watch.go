package main

import (
	"context"
	"errors"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agora-dev/agora/pkg/community"
	"github.com/agora-dev/agora/pkg/livefeed"
)

func watchCmd(flags *globalFlags) *cobra.Command {
	var eventsURL string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream change events from the backend",
		Long: `Stream change events and show which cached views they make stale.

Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			if eventsURL == "" {
				eventsURL, err = eventsEndpoint(a.cfg.BaseURL)
				if err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			feed := livefeed.New(eventsURL, a.store, community.PlanForEvent,
				livefeed.WithCookieJar(a.client.Jar()),
				livefeed.WithLogger(a.logger),
				livefeed.OnEvent(func(ev livefeed.Event) {
					if ev.CommentID > 0 {
						info(a.out, "%s post #%d comment #%d", ev.Type, ev.PostID, ev.CommentID)
						return
					}
					info(a.out, "%s post #%d", ev.Type, ev.PostID)
				}),
			)
			info(a.out, "Watching %s (Ctrl+C to stop)", eventsURL)
			if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&eventsURL, "events-url", "", "Websocket URL of the event stream (default: <base-url>/events)")
	return cmd
}

// eventsEndpoint derives the websocket event URL from the backend URL.
func eventsEndpoint(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/events"
	return u.String(), nil
}
