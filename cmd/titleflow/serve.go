package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/hilops/titleflow/internal/audit"
	"github.com/hilops/titleflow/internal/eventbus"
	"github.com/hilops/titleflow/internal/realtime"
	"github.com/hilops/titleflow/internal/scanner"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the breach scanner and realtime notification hub",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		hub := realtime.NewHub(logger)
		defer hub.Close()

		bus := eventbus.New(logger)
		dispatcher := buildDispatcher(store, hub)
		bus.Register(eventbus.NewNotificationHandler(dispatcher))

		if cfg.NATSURL != "" {
			nc, err := nats.Connect(cfg.NATSURL,
				nats.MaxReconnects(-1),
				nats.ReconnectWait(2*time.Second))
			if err != nil {
				return err
			}
			defer nc.Close()
			js, err := nc.JetStream()
			if err != nil {
				return err
			}
			if err := eventbus.EnsureStreams(js); err != nil {
				return err
			}
			bus.SetJetStream(js)
			logger.Info().Str("url", cfg.NATSURL).Msg("lifecycle events mirrored to NATS")
		}

		recorder := audit.NewRecorder(store, logger)
		s := scanner.New(store, dispatcher, recorder, bus, scanner.Config{
			Interval:       cfg.ScanInterval,
			FallbackWindow: cfg.FallbackSLAWindow,
		}, logger)
		s.Start(ctx)

		mux := http.NewServeMux()
		mux.Handle("/ws", hub.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			logger.Info().
				Str("addr", cfg.ListenAddr).
				Dur("scan_interval", cfg.ScanInterval).
				Msg("titleflow serving")
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
