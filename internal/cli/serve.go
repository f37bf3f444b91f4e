package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/folio/internal/config"
	"github.com/roach88/folio/internal/gateway"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions

	// ready, when set, receives the bound address once the gateway listens.
	ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine and the local gateway",
		Long: `Run the sync engine and the local gateway.

The engine probes the backend, keeps the local mirror fresh and replays
queued submissions whenever the backend is reachable. The gateway serves
the mirror and status under /local and accepts admin form posts under
/forms, capturing them while offline and proxying them otherwise.

Example:
  folio serve --backend-url https://admin.example.com
  folio serve --listen-addr 127.0.0.1:4780 --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	def := config.DefaultConfig()
	cmd.Flags().String("listen-addr", def.ListenAddr, "gateway listen address")
	cmd.Flags().Duration("sync-interval", def.SyncInterval, "periodic sync interval (0 disables)")
	cmd.Flags().Duration("probe-interval", def.ProbeInterval, "health probe interval (0 disables)")

	return cmd
}

func runServe(parent context.Context, opts *ServeOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = rt.cfg.RequestTimeout
	gw, err := gateway.New(rt.engine, rt.cfg.BackendURL,
		gateway.WithLogger(rt.log),
		gateway.WithTransport(transport),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create gateway", err)
	}

	ln, err := net.Listen("tcp", rt.cfg.ListenAddr)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to listen on %s", rt.cfg.ListenAddr), err)
	}
	srv := &http.Server{
		Handler:           gw.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	engineDone := make(chan error, 1)
	go func() { engineDone <- rt.engine.Run(ctx) }()

	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(ln) }()

	rt.log.Info().
		Str("addr", ln.Addr().String()).
		Str("backend", rt.cfg.BackendURL).
		Msg("gateway listening")
	if opts.ready != nil {
		opts.ready <- ln.Addr().String()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		rt.log.Info().Msg("shutting down")
	case serveErr = <-serveDone:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.log.Error().Err(err).Msg("gateway shutdown")
	}

	if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine stopped", err)
	}
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "gateway stopped", serveErr)
	}
	return nil
}
