package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agora-dev/agora/internal/devserver"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		addr     string
		envelope string
		redirect bool
		noSeed   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the in-memory development backend",
		Long: `Run an in-memory backend that implements every endpoint the client
uses. Users alice and bob sign in with password "password".

Examples:
  agora serve
  agora serve --addr :9000 --envelope data
  agora serve --redirect`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Mock.Addr
			}
			env := devserver.Envelope(envelope)
			if env != devserver.EnvelopeResult && env != devserver.EnvelopeData {
				return fmt.Errorf("envelope must be %q or %q, got %q", devserver.EnvelopeResult, devserver.EnvelopeData, envelope)
			}
			anon := devserver.AnonymousUnauthorized
			if redirect {
				anon = devserver.AnonymousRedirect
			}

			srv := devserver.New(devserver.Options{
				Logger:    newLogger(cfg, flags.verbose),
				Envelope:  env,
				Anonymous: anon,
				Seed:      !noSeed,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			return srv.ListenAndServe(ctx, addr, func(a net.Addr) {
				printBanner(out)
				success(out, "Backend running at http://%s", a)
				info(out, "Events at ws://%s/events, metrics at http://%s/metrics", a, a)
			})
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from agora.json)")
	cmd.Flags().StringVar(&envelope, "envelope", string(devserver.EnvelopeResult), "Payload key: result or data")
	cmd.Flags().BoolVar(&redirect, "redirect", false, "Redirect anonymous requests to the login page instead of 401")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "Start with an empty board")
	return cmd
}
