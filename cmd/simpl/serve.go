package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gitea.knapp/jacoknapp/simpl/internal/bootstrap"
	"gitea.knapp/jacoknapp/simpl/internal/httpapi"
)

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := loadRuntime(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if err := rt.Migrate(ctx); err != nil {
				return err
			}
			if listen == "" {
				listen = rt.Config.HTTP.Listen
			}

			srv := httpapi.NewServer(rt)
			server := &http.Server{Addr: listen, Handler: srv.Router()}

			errc := make(chan error, 1)
			go func() {
				rt.Log.Info().Str("listen", listen).Msg("listening")
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errc <- err
				}
			}()
			go collectSessions(ctx, rt)

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config)")
	return cmd
}

func collectSessions(ctx context.Context, rt *bootstrap.Runtime) {
	if !rt.Config.Session.GC {
		return
	}
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := rt.Sessions.GC(ctx, 0)
			if err != nil {
				rt.Log.Warn().Err(err).Msg("session gc")
				continue
			}
			rt.Log.Debug().Int64("removed", n).Msg("session gc")
		}
	}
}
