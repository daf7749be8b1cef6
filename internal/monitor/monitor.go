// Package monitor derives the availability signal from periodic health
// probes of the notes service.
package monitor

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"enotebook-sync/internal/credential"
	"enotebook-sync/internal/domain"
	"enotebook-sync/internal/remote"
	"enotebook-sync/pkg/jwt"
)

const (
	DefaultInterval      = 15 * time.Second
	DefaultTimeout       = 5 * time.Second
	DefaultConfirmations = 2
)

// Prober is the slice of the remote client a probe needs.
type Prober interface {
	Health(ctx context.Context) (*remote.Health, error)
	ListNotes(ctx context.Context) ([]domain.Note, error)
}

type Config struct {
	Interval      time.Duration
	Timeout       time.Duration
	Confirmations int
}

type Option func(*Monitor)

func WithLogger(l *log.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithDispatcher replaces the goroutine-per-listener dispatch. Tests pass a
// function that calls fn directly.
func WithDispatcher(dispatch func(fn func())) Option {
	return func(m *Monitor) { m.dispatch = dispatch }
}

type Monitor struct {
	prober Prober
	tokens credential.Source
	cfg    Config
	logger *log.Logger
	now    func() time.Time

	dispatch func(fn func())

	mu        sync.Mutex
	available bool
	streak    int
	last      domain.HealthReport
	probed    bool
	recovery  []func()
	change    []func(available bool)
}

func New(prober Prober, tokens credential.Source, cfg Config, opts ...Option) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Confirmations <= 0 {
		cfg.Confirmations = DefaultConfirmations
	}
	if tokens == nil {
		tokens = credential.Static("")
	}
	m := &Monitor{
		prober:   prober,
		tokens:   tokens,
		cfg:      cfg,
		logger:   log.New(os.Stderr, "[Monitor] ", log.LstdFlags),
		now:      time.Now,
		dispatch: func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnRecovery registers fn to run once per false→true availability edge.
func (m *Monitor) OnRecovery(fn func()) {
	m.mu.Lock()
	m.recovery = append(m.recovery, fn)
	m.mu.Unlock()
}

// OnChange registers fn to run on every availability transition.
func (m *Monitor) OnChange(fn func(available bool)) {
	m.mu.Lock()
	m.change = append(m.change, fn)
	m.mu.Unlock()
}

func (m *Monitor) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// LastReport returns the most recent probe result; ok is false before the
// first probe completes.
func (m *Monitor) LastReport() (report domain.HealthReport, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneReport(m.last), m.probed
}

// Probe checks reachability and, when a usable credential is held, that the
// notes endpoints answer. It never fails; problems land in Errors.
func (m *Monitor) Probe(ctx context.Context) domain.HealthReport {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	report := domain.HealthReport{Errors: []string{}, CheckedAt: m.now()}

	health, err := m.prober.Health(ctx)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}
	report.Reachable = true
	report.ServerTime = health.ServerTime()

	token := m.tokens.Token()
	switch {
	case token == "":
		report.Errors = append(report.Errors, "no credential held; endpoint check skipped")
		return report
	case jwt.Expired(token, report.CheckedAt):
		report.Errors = append(report.Errors, "credential expired; endpoint check skipped")
		return report
	}

	if _, err := m.prober.ListNotes(ctx); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("notes endpoint: %v", err))
		return report
	}
	report.EndpointsWorking = true
	return report
}

// Check runs one probe and folds it into the availability signal. recovered
// is true when this probe completed a false→true transition.
func (m *Monitor) Check(ctx context.Context) (report domain.HealthReport, recovered bool) {
	report = m.Probe(ctx)
	return report, m.observe(report)
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *Monitor) observe(report domain.HealthReport) bool {
	m.mu.Lock()
	m.last = report
	m.probed = true
	was := m.available

	if report.Healthy() {
		m.streak++
		if !m.available && m.streak >= m.cfg.Confirmations {
			m.available = true
		}
	} else {
		m.streak = 0
		m.available = false
	}

	now := m.available
	var recovery []func()
	var change []func(bool)
	if now != was {
		change = append(change, m.change...)
		if now {
			recovery = append(recovery, m.recovery...)
		}
	}
	streak := m.streak
	m.mu.Unlock()

	switch {
	case now && !was:
		m.logger.Printf("service available (confirmed after %d probes)", streak)
	case !now && was:
		m.logger.Printf("service unavailable: %v", report.Errors)
	case !now && report.Healthy():
		m.logger.Printf("probe ok, awaiting confirmation (%d/%d)", streak, m.cfg.Confirmations)
	}

	for _, fn := range change {
		m.dispatch(func() { fn(now) })
	}
	for _, fn := range recovery {
		m.dispatch(fn)
	}
	return now && !was
}

func cloneReport(r domain.HealthReport) domain.HealthReport {
	r.Errors = append([]string{}, r.Errors...)
	if r.ServerTime != nil {
		t := *r.ServerTime
		r.ServerTime = &t
	}
	return r
}
