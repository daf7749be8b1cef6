package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"enotebook-sync/internal/domain"
	"enotebook-sync/internal/handler"
	"enotebook-sync/internal/websocket"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

// NewServeCommand creates the serve command: monitor loop, local API and
// the event hub, until SIGINT or SIGTERM.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine with its local API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rootOpts, cmd.ErrOrStderr())
		},
	}
}

func serve(ctx context.Context, opts *RootOptions, stderr io.Writer) error {
	cfg := opts.config
	app, err := NewApp(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer app.Close()
	logger := app.logger("")

	if err := app.Restore(); err != nil {
		logger.Printf("%v; continuing with an empty outbox", err)
	}
	if _, err := app.Notes.Refresh(ctx); err != nil {
		logger.Printf("initial fetch failed, waiting for the notes service: %v", err)
	}

	handlers := handler.Handlers{
		Notes:    handler.NewNoteHandler(app.Notes),
		SubNotes: handler.NewSubNoteHandler(app.Sync),
		Sync:     handler.NewSyncHandler(app.Sync, app.Monitor),
	}

	if cfg.WebSocket.Enabled {
		hub := websocket.NewManager(
			cfg.WebSocket.MaxClients,
			cfg.WebSocket.WriteWait,
			cfg.WebSocket.PongWait,
			cfg.WebSocket.PingPeriod,
		)
		hub.SetLogger(app.logger("[WebSocket] "))
		hub.SetMessageHandler(handler.NewWebSocketMessageHandler(ctx, app.Sync, hub))
		go hub.Run(ctx)
		app.Subscribe(hub)
		handlers.WebSocket = handler.NewWebSocketHandler(hub)
	}

	app.Monitor.OnRecovery(func() {
		app.Resync(ctx)
	})
	app.Monitor.OnChange(func(available bool) {
		st := app.Sync.Status()
		st.Available = available
		app.events.Publish(domain.Event{Type: domain.EventStatus, Status: &st})
	})
	go app.Monitor.Run(ctx)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.NewRouter(handlers, handler.CORS(cfg.CORS), app.logger("[API] ")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("notesync listening on %s (remote %s)", addr, cfg.Remote.URL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Println("Stopped gracefully")
	return nil
}
