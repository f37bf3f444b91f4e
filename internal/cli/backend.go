package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/folio/internal/backend"
	"github.com/roach88/folio/internal/model"
)

// BackendOptions holds flags for the backend command.
type BackendOptions struct {
	*RootOptions
	Listen string
	Seed   string
	Token  string

	ready chan<- string
}

// NewBackendCommand creates the backend command.
func NewBackendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Run the in-memory development backend",
		Long: `Run an in-memory portfolio backend for development.

It serves the snapshot, the health probe and every form action of the
catalog. State lives in memory and is lost on exit.

Example:
  folio backend --listen 127.0.0.1:3000
  folio backend --seed ./portfolio.json --token secret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackend(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "127.0.0.1:3000", "listen address")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "JSON snapshot to start from (default: empty portfolio)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "require the "+backend.SessionCookie+" cookie to equal this value")

	return cmd
}

func runBackend(parent context.Context, opts *BackendOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := opts.Log
	catalog, err := loadCatalog(opts.Config.CatalogPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load form catalog", err)
	}

	seed := model.EmptySnapshot()
	if opts.Seed != "" {
		if seed, err = readSeed(opts.Seed); err != nil {
			return WrapExitError(ExitCommandError, "failed to read seed", err)
		}
	}

	beOpts := []backend.Option{backend.WithSeed(seed), backend.WithLogger(log)}
	if opts.Token != "" {
		beOpts = append(beOpts, backend.WithSessionToken(opts.Token))
	}
	be := backend.New(catalog, beOpts...)

	ln, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to listen on %s", opts.Listen), err)
	}
	srv := &http.Server{
		Handler:           be.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(ln) }()

	log.Info().Str("addr", ln.Addr().String()).Int("forms", len(catalog.Forms)).Msg("backend listening")
	if opts.ready != nil {
		opts.ready <- ln.Addr().String()
	}

	select {
	case <-ctx.Done():
	case err := <-serveDone:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "backend stopped", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "backend shutdown", err)
	}
	log.Info().Int("writes", be.Writes()).Msg("backend stopped")
	return nil
}

func readSeed(path string) (model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Snapshot{}, err
	}
	seed := model.EmptySnapshot()
	if err := json.Unmarshal(data, &seed); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return seed, nil
}
