package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"enotebook-sync/internal/config"
	"enotebook-sync/internal/credential"
	"enotebook-sync/internal/domain"
	"enotebook-sync/internal/monitor"
	"enotebook-sync/internal/outbox"
	"enotebook-sync/internal/remote"
	"enotebook-sync/internal/repository"
	"enotebook-sync/internal/service"
	"enotebook-sync/internal/store"

	"github.com/cenkalti/backoff"
	"gopkg.in/natefinch/lumberjack.v2"
)

// App is the composition root shared by every command.
type App struct {
	Config  *config.Config
	Output  io.Writer
	Remote  *remote.Client
	Store   *store.Store
	Outbox  *outbox.Outbox
	Sync    *service.SyncService
	Notes   *service.NoteService
	Monitor *monitor.Monitor

	events  *fanout
	closers []io.Closer
}

// NewApp wires the engine from cfg. Log output goes to stderr unless
// LOG_FILE is set, in which case it is rotated through lumberjack.
func NewApp(ctx context.Context, cfg *config.Config, stderr io.Writer) (*App, error) {
	a := &App{Config: cfg, Output: stderr, events: &fanout{}}
	if cfg.Logging.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		}
		a.Output = rotating
		a.closers = append(a.closers, rotating)
	}

	var tokens credential.Source = credential.Static(cfg.Remote.Token)
	if cfg.Remote.TokenFile != "" {
		fs, err := credential.NewFileSource(cfg.Remote.TokenFile, a.logger("[Credential] "))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("watch credential: %w", err)
		}
		a.logger("[Credential] ").Printf("watching %s", fs.Path())
		tokens = fs
		a.closers = append(a.closers, fs)
	}

	a.Remote = remote.NewClient(cfg.Remote.URL, tokens,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Remote.RequestTimeout}),
		remote.WithHealthPath(cfg.Remote.HealthPath),
		remote.WithLogger(a.logger("[Remote] ")),
		remote.WithDebug(cfg.Logging.Debug()),
	)
	if cfg.Remote.RouteHint != "" {
		if err := a.Remote.Routes().Hint(cfg.Remote.RouteHint, ""); err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid ROUTE_HINT: %w", err)
		}
	}

	var journal outbox.Journal
	if cfg.Journal.URL != "" {
		client, err := repository.Connect(ctx, cfg.Journal.URL, cfg.Journal.Name)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect journal: %w", err)
		}
		journal = repository.NewOutboxRepository(client, cfg.Journal.Name)
	}
	a.Outbox = outbox.New(journal, a.logger("[Outbox] "))
	a.Store = store.New()

	a.Monitor = monitor.New(a.Remote, tokens, monitor.Config{
		Interval:      cfg.Monitor.Interval,
		Timeout:       cfg.Monitor.Timeout,
		Confirmations: cfg.Monitor.Confirmations,
	}, monitor.WithLogger(a.logger("[Monitor] ")))

	retries := uint64(cfg.Sync.RefetchRetries)
	a.Sync = service.NewSyncService(a.Remote, a.Store, a.Outbox,
		service.WithLogger(a.logger("[Sync] ")),
		service.WithEvents(a.events),
		service.WithAvailability(a.Monitor),
		service.WithBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries)
		}),
	)
	a.Notes = service.NewNoteService(a.Sync)
	return a, nil
}

func (a *App) logger(prefix string) *log.Logger {
	return log.New(a.Output, prefix, log.LstdFlags)
}

// Subscribe adds a receiver for engine events.
func (a *App) Subscribe(sink service.EventSink) {
	a.events.add(sink)
}

// Restore reloads journaled mutations from a previous session.
func (a *App) Restore() error {
	n, err := a.Outbox.Restore()
	if err != nil {
		return fmt.Errorf("restore outbox: %w", err)
	}
	if n > 0 {
		a.logger("[Sync] ").Printf("restored %d queued mutations", n)
	}
	return nil
}

// Resync runs after the monitor reports the remote back: queued mutations
// are replayed, and the store is reloaded when the pass did not already do
// it.
func (a *App) Resync(ctx context.Context) domain.ReconcileReport {
	report := a.Sync.Reconcile(ctx)
	if !report.Skipped && !report.Refetched {
		if _, err := a.Notes.Refresh(ctx); err != nil {
			a.logger("[Sync] ").Printf("refresh after recovery failed: %v", err)
		}
	}
	return report
}

func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
