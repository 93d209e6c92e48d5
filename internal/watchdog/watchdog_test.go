package watchdog

import (
	"context"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yannnico/rc-car-project/internal/actuator"
	"github.com/yannnico/rc-car-project/internal/actuator/fake"
	"github.com/yannnico/rc-car-project/internal/audit"
	"github.com/yannnico/rc-car-project/internal/codec"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingAuditor struct {
	mu       sync.Mutex
	actions  []string
	outcomes []string
}

func (r *recordingAuditor) LogAction(ctx context.Context, action, sessionID, outcome string, params map[string]interface{}) {
	r.mu.Lock()
	r.actions = append(r.actions, action)
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

func newTestWatchdog(t *testing.T) (*Watchdog, *fake.Link, *manualClock) {
	t.Helper()
	link := fake.NewLink()
	clock := newManualClock()
	w, err := New(link, Config{Tick: DefaultTick, Deadline: DefaultDeadline}, WithClock(clock.Now))
	require.NoError(t, err)
	return w, link, clock
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults", Config{Tick: DefaultTick, Deadline: DefaultDeadline}, false},
		{"zero tick", Config{Tick: 0, Deadline: DefaultDeadline}, true},
		{"tick equals deadline", Config{Tick: time.Second, Deadline: time.Second}, true},
		{"tick above deadline", Config{Tick: time.Second, Deadline: 500 * time.Millisecond}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.config.Validate()
			if test.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewRequiresLink(t *testing.T) {
	_, err := New(nil, Config{Tick: DefaultTick, Deadline: DefaultDeadline})
	assert.Error(t, err)
}

func TestExpiredFromStartup(t *testing.T) {
	w, link, _ := newTestWatchdog(t)

	assert.True(t, w.Expired(time.Now()))
	_, ok := w.SinceLastForward()
	assert.False(t, ok)

	assert.True(t, w.Check(context.Background()))
	assert.Equal(t, []codec.Frame{codec.Neutral}, link.Frames())
	assert.True(t, w.Tripped())
}

func TestFailsafeAfterDeadline(t *testing.T) {
	w, link, clock := newTestWatchdog(t)

	// Driver frame at T0.
	w.Touch()
	assert.False(t, w.Check(context.Background()))
	assert.Empty(t, link.Frames())

	clock.Advance(500 * time.Millisecond)
	assert.False(t, w.Expired(clock.Now()), "deadline is exclusive")
	assert.False(t, w.Check(context.Background()))

	// T0+600ms: neutral is on the link.
	clock.Advance(100 * time.Millisecond)
	assert.True(t, w.Check(context.Background()))
	require.Len(t, link.Frames(), 1)
	assert.True(t, link.Frames()[0].IsNeutral())

	elapsed, ok := w.SinceLastForward()
	assert.True(t, ok)
	assert.Equal(t, 600*time.Millisecond, elapsed)
}

func TestNeutralReassertedEveryTick(t *testing.T) {
	w, link, clock := newTestWatchdog(t)
	w.Touch()
	clock.Advance(time.Second)

	for i := 0; i < 5; i++ {
		assert.True(t, w.Check(context.Background()))
		clock.Advance(DefaultTick)
	}
	assert.Len(t, link.Frames(), 5)

	// A fresh forward stops the stream.
	w.Touch()
	assert.False(t, w.Check(context.Background()))
	assert.Len(t, link.Frames(), 5)
	assert.False(t, w.Tripped())
}

func TestAuditEdgesOnly(t *testing.T) {
	w, _, clock := newTestWatchdog(t)
	auditor := &recordingAuditor{}
	w.SetAuditLogger(auditor)

	w.Check(context.Background())
	w.Check(context.Background())
	w.Touch()
	w.Check(context.Background())
	clock.Advance(time.Second)
	w.Check(context.Background())

	assert.Equal(t, []string{"failsafe_engaged", "failsafe_released", "failsafe_engaged"}, auditor.actions)
}

func TestLinkFailureDoesNotStopWatchdog(t *testing.T) {
	w, link, _ := newTestWatchdog(t)
	link.SetError(actuator.Normalize("write", errors.New("boom")))

	assert.False(t, w.Check(context.Background()))
	assert.False(t, w.Check(context.Background()))
	assert.True(t, w.Tripped())

	link.SetError(nil)
	assert.True(t, w.Check(context.Background()))
	assert.Len(t, link.Frames(), 1)
}

func TestRunSendsNeutralWithRealClock(t *testing.T) {
	link := fake.NewLink()
	w, err := New(link, Config{Tick: 10 * time.Millisecond, Deadline: 50 * time.Millisecond})
	require.NoError(t, err)

	w.Touch()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case frame := <-link.Sent:
		assert.True(t, frame.IsNeutral())
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never asserted neutral")
	}
	assert.GreaterOrEqual(t, mustSince(t, w), 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func mustSince(t *testing.T, w *Watchdog) time.Duration {
	t.Helper()
	d, ok := w.SinceLastForward()
	require.True(t, ok)
	return d
}

func TestAssertNeutralIgnoresDeadline(t *testing.T) {
	w, link, _ := newTestWatchdog(t)
	w.Touch()
	require.False(t, w.Check(context.Background()))
	require.Empty(t, link.Frames())

	require.NoError(t, w.AssertNeutral(context.Background()))
	assert.Equal(t, []codec.Frame{codec.Neutral}, link.Frames())

	link.Close()
	err := w.AssertNeutral(context.Background())
	assert.True(t, errors.Is(err, actuator.ErrUnavailable))
}

func TestAuditNeutralSendFailureEdges(t *testing.T) {
	w, link, _ := newTestWatchdog(t)
	auditor := &recordingAuditor{}
	w.SetAuditLogger(auditor)
	link.SetError(actuator.Normalize("write", syscall.ECONNREFUSED))

	w.Check(context.Background())
	w.Check(context.Background())
	link.SetError(nil)
	w.Check(context.Background())
	w.Check(context.Background())

	assert.Equal(t, []string{"failsafe_engaged", "neutral_send_failed", "neutral_send_recovered"}, auditor.actions)
	assert.Equal(t, []string{audit.OutcomeSuccess, audit.OutcomeError, audit.OutcomeSuccess}, auditor.outcomes)
}
