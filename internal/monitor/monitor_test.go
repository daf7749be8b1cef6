package monitor

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"enotebook-sync/internal/credential"
	"enotebook-sync/internal/domain"
	"enotebook-sync/internal/remote"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	mu        sync.Mutex
	healthErr error
	listErr   error
	lists     int
}

func (p *fakeProber) set(healthErr, listErr error) {
	p.mu.Lock()
	p.healthErr, p.listErr = healthErr, listErr
	p.mu.Unlock()
}

func (p *fakeProber) Health(ctx context.Context) (*remote.Health, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.healthErr != nil {
		return nil, p.healthErr
	}
	return &remote.Health{Status: "OK", Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}, nil
}

func (p *fakeProber) ListNotes(ctx context.Context) ([]domain.Note, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists++
	return nil, p.listErr
}

var errDown = errors.New("dial tcp: connection refused")

func newTestMonitor(p Prober, tokens credential.Source) *Monitor {
	return New(p, tokens, Config{Interval: time.Hour, Confirmations: 2},
		WithLogger(log.New(io.Discard, "", 0)),
		WithDispatcher(func(fn func()) { fn() }),
	)
}

func TestProbe_Healthy(t *testing.T) {
	p := &fakeProber{}
	m := newTestMonitor(p, credential.Static("opaque-token"))

	r := m.Probe(context.Background())
	assert.True(t, r.Reachable)
	assert.True(t, r.EndpointsWorking)
	require.NotNil(t, r.ServerTime)
	assert.Equal(t, 2026, r.ServerTime.Year())
	assert.Empty(t, r.Errors)
	assert.Equal(t, 1, p.lists)
}

func TestProbe_Unreachable(t *testing.T) {
	p := &fakeProber{healthErr: errDown}
	m := newTestMonitor(p, credential.Static("tok"))

	r := m.Probe(context.Background())
	assert.False(t, r.Reachable)
	assert.False(t, r.EndpointsWorking)
	assert.Len(t, r.Errors, 1)
	assert.Equal(t, 0, p.lists)
}

func TestProbe_CredentialGate(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "no credential", token: ""},
		{name: "expired jwt", token: expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProber{}
			m := newTestMonitor(p, credential.Static(tt.token))

			r := m.Probe(context.Background())
			assert.True(t, r.Reachable)
			assert.False(t, r.EndpointsWorking)
			assert.Len(t, r.Errors, 1)
			assert.Equal(t, 0, p.lists, "endpoint check must be skipped")
		})
	}
}

func TestProbe_EndpointFailure(t *testing.T) {
	p := &fakeProber{listErr: errors.New("list notes: rejection: status 401")}
	m := newTestMonitor(p, credential.Static("tok"))

	r := m.Probe(context.Background())
	assert.True(t, r.Reachable)
	assert.False(t, r.EndpointsWorking)
	assert.Contains(t, r.Errors[0], "401")
}

func TestCheck_RequiresTwoConfirmations(t *testing.T) {
	p := &fakeProber{}
	m := newTestMonitor(p, credential.Static("tok"))
	ctx := context.Background()

	_, recovered := m.Check(ctx)
	assert.False(t, recovered)
	assert.False(t, m.Available(), "one probe is not enough at startup")

	_, recovered = m.Check(ctx)
	assert.True(t, recovered)
	assert.True(t, m.Available())
}

func TestCheck_SingleFailureFlipsUnavailable(t *testing.T) {
	p := &fakeProber{}
	m := newTestMonitor(p, credential.Static("tok"))
	ctx := context.Background()
	m.Check(ctx)
	m.Check(ctx)
	require.True(t, m.Available())

	p.set(errDown, nil)
	m.Check(ctx)
	assert.False(t, m.Available())

	p.set(nil, nil)
	m.Check(ctx)
	assert.False(t, m.Available(), "flapping back needs confirmation again")
	m.Check(ctx)
	assert.True(t, m.Available())
}

func TestCheck_RecoveryFiresOncePerEdge(t *testing.T) {
	p := &fakeProber{}
	m := newTestMonitor(p, credential.Static("tok"))
	ctx := context.Background()

	var recoveries int
	var changes []bool
	m.OnRecovery(func() { recoveries++ })
	m.OnChange(func(available bool) { changes = append(changes, available) })

	for i := 0; i < 5; i++ {
		m.Check(ctx)
	}
	assert.Equal(t, 1, recoveries, "steady availability must not re-fire")

	// a flap: healthy, failed, healthy, healthy
	p.set(errDown, nil)
	m.Check(ctx)
	p.set(nil, nil)
	m.Check(ctx)
	assert.Equal(t, 1, recoveries)
	m.Check(ctx)
	assert.Equal(t, 2, recoveries)

	assert.Equal(t, []bool{true, false, true}, changes)
}

func TestCheck_TransientFailureBeforeConfirmation(t *testing.T) {
	p := &fakeProber{}
	m := newTestMonitor(p, credential.Static("tok"))
	ctx := context.Background()

	var recoveries int
	m.OnRecovery(func() { recoveries++ })

	m.Check(ctx)
	p.set(errDown, nil)
	m.Check(ctx)
	p.set(nil, nil)
	m.Check(ctx)

	assert.False(t, m.Available())
	assert.Equal(t, 0, recoveries)
}

func TestLastReport(t *testing.T) {
	m := newTestMonitor(&fakeProber{healthErr: errDown}, nil)

	_, ok := m.LastReport()
	assert.False(t, ok)

	m.Check(context.Background())
	r, ok := m.LastReport()
	require.True(t, ok)
	assert.False(t, r.Reachable)

	r.Errors[0] = "mutated"
	again, _ := m.LastReport()
	assert.NotEqual(t, "mutated", again.Errors[0])
}

func TestRun_StopsOnCancel(t *testing.T) {
	p := &fakeProber{}
	m := New(p, credential.Static("tok"), Config{Interval: 5 * time.Millisecond},
		WithLogger(log.New(io.Discard, "", 0)))

	recovered := make(chan struct{}, 1)
	m.OnRecovery(func() {
		select {
		case recovered <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case <-recovered:
	case <-time.After(2 * time.Second):
		t.Fatal("no recovery edge from Run")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
