// File: internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/mpellegro/wasend-cli/internal/config"
	"github.com/mpellegro/wasend-cli/internal/contacts"
	"github.com/mpellegro/wasend-cli/internal/driver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu       sync.Mutex
	pending  []contacts.Contact
	fetchErr error
	writes   map[int]bool
	writeErr error
	gotLimit int
}

func (f *fakeSource) PendingContacts(_ context.Context, limit int) ([]contacts.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotLimit = limit
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeSource) WriteStatus(_ context.Context, row int, delivered bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writes == nil {
		f.writes = map[int]bool{}
	}
	f.writes[row] = delivered
	return f.writeErr
}

func (f *fakeSource) writeFor(row int) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.writes[row]
	return v, ok
}

// fakeDeliverer returns scripted errors per phone and can block to let
// tests exercise pause and stop mid-run.
type fakeDeliverer struct {
	mu        sync.Mutex
	errs      map[string]error
	sent      []string
	connected bool
	probeErr  error
	onSend    func(phone string)
}

func (f *fakeDeliverer) Send(_ context.Context, c contacts.Contact) error {
	f.mu.Lock()
	f.sent = append(f.sent, c.PhoneClean)
	hook := f.onSend
	err := f.errs[c.PhoneClean]
	f.mu.Unlock()
	if hook != nil {
		hook(c.PhoneClean)
	}
	return err
}

func (f *fakeDeliverer) Connected(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected, f.probeErr
}

func (f *fakeDeliverer) sentPhones() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func makeContacts(phones ...string) []contacts.Contact {
	out := make([]contacts.Contact, len(phones))
	for i, p := range phones {
		out[i] = contacts.Contact{RowNumber: i + 2, FirstName: "C", PhoneClean: p}
	}
	return out
}

func newTestOrchestrator(t *testing.T, src Source, del Deliverer, state *SessionState) *Orchestrator {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Send.Delay = 3 * time.Millisecond
	cfg.Send.MinDelay = time.Millisecond
	cfg.RunLog.Path = filepath.Join(t.TempDir(), "runlog.json")

	o := New(*cfg, src, del, state, nil, zap.NewNop())
	o.tick = time.Millisecond
	o.jitterMin = -2 * time.Millisecond
	o.jitterMax = 3 * time.Millisecond
	return o
}

func TestRunSendsAllAndWritesBack(t *testing.T) {
	src := &fakeSource{pending: makeContacts("111", "222", "333")}
	del := &fakeDeliverer{connected: true}
	state := NewSessionState()

	o := newTestOrchestrator(t, src, del, state)
	require.NoError(t, o.Run(context.Background(), 10))

	assert.Equal(t, []string{"111", "222", "333"}, del.sentPhones())
	for row := 2; row <= 4; row++ {
		v, ok := src.writeFor(row)
		require.True(t, ok, "row %d must get a write-back", row)
		assert.True(t, v)
	}

	snap := state.Snapshot()
	assert.False(t, snap.Running)
	assert.Equal(t, 3, snap.Sent)
	assert.Equal(t, 0, snap.Failed)
	assert.Nil(t, snap.Current, "no contact is targeted once the run ends")

	require.NotEmpty(t, snap.Log)
	assert.Contains(t, snap.Log[0].Text, "Run started")
	assert.Contains(t, snap.Log[len(snap.Log)-1].Text, "Run finished")
	for i := 1; i < len(snap.Log); i++ {
		assert.False(t, snap.Log[i].At.Before(snap.Log[i-1].At),
			"log entries must be in timestamp order")
	}
}

func TestRunTracksCurrentContact(t *testing.T) {
	src := &fakeSource{pending: makeContacts("111", "222")}
	state := NewSessionState()
	del := &fakeDeliverer{connected: true}

	var seen []CurrentContact
	del.onSend = func(string) {
		if c := state.Snapshot().Current; c != nil {
			seen = append(seen, *c)
		}
	}

	o := newTestOrchestrator(t, src, del, state)
	require.NoError(t, o.Run(context.Background(), 10))

	require.Len(t, seen, 2)
	assert.Equal(t, CurrentContact{Row: 2, Name: "C", Phone: "111"}, seen[0])
	assert.Equal(t, CurrentContact{Row: 3, Name: "C", Phone: "222"}, seen[1])
	assert.Nil(t, state.Snapshot().Current)
}

func TestRunClampsToDailyLimit(t *testing.T) {
	src := &fakeSource{pending: makeContacts("111")}
	o := newTestOrchestrator(t, src, &fakeDeliverer{connected: true}, NewSessionState())
	o.cfg.Send.DailyLimit = 7

	require.NoError(t, o.Run(context.Background(), 500))
	assert.Equal(t, 7, src.gotLimit, "requested count above the limit must clamp")

	require.NoError(t, o.Run(context.Background(), 0))
	assert.Equal(t, 7, src.gotLimit, "zero count means the full daily limit")
}

func TestRunZeroPendingIsCleanStop(t *testing.T) {
	src := &fakeSource{}
	state := NewSessionState()
	o := newTestOrchestrator(t, src, &fakeDeliverer{connected: true}, state)

	require.NoError(t, o.Run(context.Background(), 10))
	assert.False(t, state.Snapshot().Running)
	assert.Empty(t, src.writes)
}

func TestRunPerContactFailuresContinue(t *testing.T) {
	src := &fakeSource{pending: makeContacts("111", "222", "333", "444")}
	del := &fakeDeliverer{
		connected: true,
		errs: map[string]error{
			"222": &driver.ContactNotFoundError{Phone: "222"},
			"333": &driver.SendTimeoutError{Phone: "333", Step: "verify"},
		},
	}
	state := NewSessionState()

	o := newTestOrchestrator(t, src, del, state)
	require.NoError(t, o.Run(context.Background(), 10))

	assert.Len(t, del.sentPhones(), 4, "typed failures must not halt the run")

	v, _ := src.writeFor(3)
	assert.False(t, v, "rejected number writes back a failure")
	v, _ = src.writeFor(4)
	assert.False(t, v, "timeout writes back a failure")
	v, _ = src.writeFor(5)
	assert.True(t, v)

	snap := state.Snapshot()
	assert.Equal(t, 2, snap.Sent)
	assert.Equal(t, 2, snap.Failed)
	assert.Equal(t, OutcomeNotFound, snap.Results[1].Outcome)
	assert.Equal(t, OutcomeTimeout, snap.Results[2].Outcome)
}

func TestRunSessionLossHalts(t *testing.T) {
	src := &fakeSource{pending: makeContacts("111", "222", "333")}
	del := &fakeDeliverer{
		connected: false, // probe after the raw error finds the session gone
		errs:      map[string]error{"222": errors.New("websocket closed")},
	}
	state := NewSessionState()

	o := newTestOrchestrator(t, src, del, state)
	err := o.Run(context.Background(), 10)
	require.ErrorIs(t, err, ErrSessionLost)

	assert.Equal(t, []string{"111", "222"}, del.sentPhones(), "halt must skip the rest")
	assert.False(t, state.Snapshot().Running)

	// The unrecognized failure gets no status write-back: the row stays
	// pending and is retried once the session recovers.
	_, wrote := src.writeFor(3)
	assert.False(t, wrote, "row of the unexplained failure must stay pending")
	v, _ := src.writeFor(2)
	assert.True(t, v, "the contact sent before the loss keeps its write-back")
}

func TestRunRawErrorWithLiveSessionContinues(t *testing.T) {
	src := &fakeSource{pending: makeContacts("111", "222")}
	del := &fakeDeliverer{
		connected: true,
		errs:      map[string]error{"111": errors.New("transient evaluate error")},
	}
	state := NewSessionState()

	o := newTestOrchestrator(t, src, del, state)
	require.NoError(t, o.Run(context.Background(), 10))
	assert.Equal(t, []string{"111", "222"}, del.sentPhones())
	assert.Equal(t, OutcomeFailed, state.Snapshot().Results[0].Outcome)

	_, wrote := src.writeFor(2)
	assert.False(t, wrote, "unrecognized errors never mark the row; it stays pending")
	v, _ := src.writeFor(3)
	assert.True(t, v)
}

func TestRunStopRequestHaltsPromptly(t *testing.T) {
	src := &fakeSource{pending: makeContacts("111", "222", "333")}
	state := NewSessionState()
	del := &fakeDeliverer{connected: true}
	del.onSend = func(phone string) {
		if phone == "111" {
			state.RequestStop()
		}
	}

	o := newTestOrchestrator(t, src, del, state)
	require.NoError(t, o.Run(context.Background(), 10))

	assert.Equal(t, []string{"111"}, del.sentPhones(), "stop lands before the next contact")
	snap := state.Snapshot()
	assert.False(t, snap.Running)
	assert.False(t, snap.Stopping, "stop flag must clear after the run")
}

func TestRunPauseHoldsThenResumes(t *testing.T) {
	src := &fakeSource{pending: makeContacts("111", "222")}
	state := NewSessionState()
	del := &fakeDeliverer{connected: true}
	del.onSend = func(phone string) {
		if phone == "111" {
			state.SetPaused(true)
			go func() {
				time.Sleep(30 * time.Millisecond)
				state.SetPaused(false)
			}()
		}
	}

	o := newTestOrchestrator(t, src, del, state)
	start := time.Now()
	require.NoError(t, o.Run(context.Background(), 10))

	assert.Equal(t, []string{"111", "222"}, del.sentPhones())
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond, "run must hold while paused")
}

func TestRunRejectsOverlappingRuns(t *testing.T) {
	state := NewSessionState()
	require.True(t, state.Begin(1))

	src := &fakeSource{pending: makeContacts("111")}
	o := newTestOrchestrator(t, src, &fakeDeliverer{connected: true}, state)

	err := o.Run(context.Background(), 10)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	state.Finish()
}

func TestRunWritesRunLogArtifact(t *testing.T) {
	src := &fakeSource{pending: makeContacts("111", "222")}
	del := &fakeDeliverer{
		connected: true,
		errs:      map[string]error{"222": &driver.ContactNotFoundError{Phone: "222"}},
	}
	o := newTestOrchestrator(t, src, del, NewSessionState())

	require.NoError(t, o.Run(context.Background(), 10))

	logged, err := ReadRunLog(o.cfg.RunLog.Path)
	require.NoError(t, err)
	assert.NotEmpty(t, logged.RunID)
	assert.Equal(t, 2, logged.Planned)
	assert.Equal(t, 1, logged.Sent)
	assert.Equal(t, 1, logged.Failed)
	require.Len(t, logged.Results, 2)
	assert.Equal(t, OutcomeNotFound, logged.Results[1].Outcome)

	// the artifact carries the full ordered run narrative
	require.NotEmpty(t, logged.Log)
	assert.Contains(t, logged.Log[0].Text, "Run started")
	assert.Contains(t, logged.Log[len(logged.Log)-1].Text, "Run finished")

	// the sidecar must not survive the rename
	_, statErr := os.Stat(o.cfg.RunLog.Path + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunWriteBackFailureDoesNotHalt(t *testing.T) {
	src := &fakeSource{
		pending:  makeContacts("111", "222"),
		writeErr: errors.New("sheets quota exceeded"),
	}
	del := &fakeDeliverer{connected: true}

	o := newTestOrchestrator(t, src, del, NewSessionState())
	require.NoError(t, o.Run(context.Background(), 10))
	assert.Equal(t, []string{"111", "222"}, del.sentPhones())
}

func TestNextDelayJitterSwingsBothWays(t *testing.T) {
	o := newTestOrchestrator(t, &fakeSource{}, &fakeDeliverer{}, NewSessionState())
	o.cfg.Send.Delay = 60 * time.Second
	o.cfg.Send.MinDelay = 20 * time.Second
	o.jitterMin = -5 * time.Second
	o.jitterMax = 10 * time.Second

	min := time.Duration(1<<62 - 1)
	for i := 0; i < 500; i++ {
		d := o.nextDelay()
		assert.GreaterOrEqual(t, d, 55*time.Second, "jitter must not undercut base-5s")
		assert.Less(t, d, 70*time.Second, "jitter must stay under base+10s")
		if d < min {
			min = d
		}
	}
	assert.Less(t, min, 60*time.Second,
		"the negative jitter side must actually fire below the base delay")
}

func TestNextDelayFloorsAtMinDelay(t *testing.T) {
	o := newTestOrchestrator(t, &fakeSource{}, &fakeDeliverer{}, NewSessionState())
	o.cfg.Send.Delay = 5 * time.Second
	o.cfg.Send.MinDelay = 20 * time.Second
	o.jitterMin = -5 * time.Second
	o.jitterMax = 10 * time.Second

	for i := 0; i < 200; i++ {
		assert.Equal(t, 20*time.Second, o.nextDelay(),
			"a base below the floor is always lifted to the floor")
	}
}

func TestProgressCallbackFiresPerAttempt(t *testing.T) {
	src := &fakeSource{pending: makeContacts("111", "222", "333")}
	del := &fakeDeliverer{connected: true}

	o := newTestOrchestrator(t, src, del, NewSessionState())
	var attempted []int
	o.Progress = func(s Snapshot) { attempted = append(attempted, s.Attempted) }

	require.NoError(t, o.Run(context.Background(), 10))
	assert.Equal(t, []int{1, 2, 3}, attempted)
}

func TestSessionStateSnapshotIsIsolated(t *testing.T) {
	state := NewSessionState()
	require.True(t, state.Begin(2))
	state.SetCurrent(CurrentContact{Row: 2, Name: "Ana", Phone: "111"})
	state.Logf("working on %s", "Ana")
	state.Record(Result{Row: 2, Outcome: OutcomeSent})

	snap := state.Snapshot()
	snap.Results[0].Outcome = OutcomeFailed
	snap.Log[0].Text = "tampered"

	live := state.Snapshot()
	assert.Equal(t, OutcomeSent, live.Results[0].Outcome,
		"mutating a snapshot must not touch live state")
	assert.Equal(t, "working on Ana", live.Log[0].Text)
	state.Finish()
}

func TestSessionStateCurrentLifecycle(t *testing.T) {
	state := NewSessionState()
	require.True(t, state.Begin(1))

	state.SetCurrent(CurrentContact{Row: 4, Name: "Ben", Phone: "222"})
	cur := state.Snapshot().Current
	require.NotNil(t, cur)
	assert.Equal(t, 4, cur.Row)

	state.Record(Result{Row: 4, Outcome: OutcomeTimeout})
	assert.Nil(t, state.Snapshot().Current, "recording the outcome ends the attempt")
	state.Finish()
}
