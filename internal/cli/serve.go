package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/vigil/internal/api"
)

const shutdownTimeout = 15 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		Long: `Serve the query API over HTTP until interrupted.

Examples:
  vigil serve --config vigil.yaml
  vigil serve --listen :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, opts.Config, opts.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := opts.Config.Listen
	if opts.Listen != "" {
		addr = opts.Listen
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.New(a.mgr, api.WithModels(opts.Config.Models), api.WithLogger(opts.Logger)).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		opts.Logger.Info("listening", "addr", addr, "db", opts.Config.DB)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return WrapExitError(ExitCommandError, "serve", err)
	case <-ctx.Done():
	}

	opts.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
