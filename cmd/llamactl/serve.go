package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"llamactl/internal/httpapi"
	"llamactl/internal/notify"
)

// configureHTTP applies the resolved configuration to the HTTP layer.
func (g *globals) configureHTTP() {
	httpapi.SetLogger(g.log)
	httpapi.SetMaxBodyBytes(g.cfg.MaxBodyBytes)
	httpapi.SetQueryTimeoutSeconds(int64(g.cfg.QueryTimeoutSeconds))
	httpapi.SetCORSOptions(len(g.cfg.CORSOrigins) > 0, g.cfg.CORSOrigins, nil, nil)
}

func newServeCmd(g *globals) *cobra.Command {
	var (
		addr         string
		queryTimeout int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				g.cfg.Addr = addr
			}
			gen, release, err := g.generator()
			if err != nil {
				return err
			}
			defer release()

			hub := notify.NewHub(g.cfg.EventBuffer)
			p, err := g.newPipeline(notify.NewBroadcaster(hub, notify.LogSink{Log: g.log}), gen)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("query-timeout") {
				g.cfg.QueryTimeoutSeconds = queryTimeout
			}
			g.configureHTTP()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			httpapi.SetBaseContext(ctx)

			srv := &http.Server{
				Addr:              g.cfg.Addr,
				Handler:           httpapi.NewMux(p, hub),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				g.log.Info().Str("addr", g.cfg.Addr).Str("home", p.Home()).Str("backend", g.cfg.QueryBackend).
					Dur("query_timeout", httpapi.QueryTimeout()).Msg("llamactl listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			// Graceful shutdown (Ctrl+C / SIGTERM)
			p.Stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				g.log.Warn().Err(err).Msg("graceful shutdown error")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default :8080)")
	cmd.Flags().IntVar(&queryTimeout, "query-timeout", 0, "seconds before a /query request is cancelled (0 disables)")
	return cmd
}
