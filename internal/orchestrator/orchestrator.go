// File: internal/orchestrator/orchestrator.go

// Package orchestrator runs the send campaign: it pulls the pending
// contacts, drives each one through the delivery flow, reconciles the
// outcome back to the sheet, and enforces the pacing and control flags
// that keep the account off WhatsApp's radar.
package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mpellegro/wasend-cli/internal/config"
	"github.com/mpellegro/wasend-cli/internal/contacts"
	"github.com/mpellegro/wasend-cli/internal/driver"
)

// Source supplies pending contacts and accepts per-row status write-backs.
// The concrete implementation is contacts.SheetSource.
type Source interface {
	PendingContacts(ctx context.Context, limit int) ([]contacts.Contact, error)
	WriteStatus(ctx context.Context, row int, delivered bool) error
}

// Deliverer sends to one contact and reports session connectivity. The
// concrete implementation is driver.Driver.
type Deliverer interface {
	Send(ctx context.Context, c contacts.Contact) error
	Connected(ctx context.Context) (bool, error)
}

// HistoryRecorder persists a finished run. May be nil.
type HistoryRecorder interface {
	RecordRun(ctx context.Context, log RunLog) error
}

// Orchestrator owns one campaign loop over a shared SessionState.
type Orchestrator struct {
	cfg       config.Config
	source    Source
	deliverer Deliverer
	state     *SessionState
	history   HistoryRecorder
	logger    *zap.Logger

	rng *rand.Rand
	// tick is the control-flag poll granularity inside waits; tests shrink
	// it, and the jitter bounds, so pacing assertions do not run wall-clock.
	tick      time.Duration
	jitterMin time.Duration
	jitterMax time.Duration

	// Progress, when set, is invoked with a fresh snapshot after every
	// recorded attempt. Optional; the dashboard polls Snapshot instead.
	Progress func(Snapshot)
}

func New(cfg config.Config, source Source, deliverer Deliverer, state *SessionState, history HistoryRecorder, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		source:    source,
		deliverer: deliverer,
		state:     state,
		history:   history,
		logger:    logger.Named("orchestrator"),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		tick:      time.Second,
		jitterMin: -5 * time.Second,
		jitterMax: 10 * time.Second,
	}
}

// ErrAlreadyRunning is returned when a second run is started while one is
// active.
var ErrAlreadyRunning = errors.New("a send run is already active")

// ErrSessionLost halts a run when the browser session stops answering or
// WhatsApp logs out mid-campaign.
var ErrSessionLost = errors.New("whatsapp session lost")

// Run executes one campaign. count caps how many contacts to attempt this
// run; it is clamped to the configured daily limit. Run returns nil on a
// clean finish, including an operator stop.
func (o *Orchestrator) Run(ctx context.Context, count int) error {
	if count <= 0 || count > o.cfg.Send.DailyLimit {
		count = o.cfg.Send.DailyLimit
	}

	pending, err := o.source.PendingContacts(ctx, count)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		o.logger.Info("No pending contacts, nothing to send")
		return nil
	}

	if !o.state.Begin(len(pending)) {
		return ErrAlreadyRunning
	}

	runID := uuid.NewString()
	startedAt := time.Now()
	log := o.logger.With(zap.String("run_id", runID))
	log.Info("Starting send run",
		zap.Int("contacts", len(pending)),
		zap.Int("daily_limit", o.cfg.Send.DailyLimit))
	o.state.Logf("Run started: %d pending contact(s), daily limit %d", len(pending), o.cfg.Send.DailyLimit)

	var stopped bool
	var runErr error

	for i, c := range pending {
		if o.shouldStop(ctx) {
			o.state.Logf("Stop requested, halting after %d attempt(s)", i)
			stopped = true
			break
		}
		if err := o.awaitResume(ctx); err != nil {
			o.state.Logf("Stop requested while paused, halting after %d attempt(s)", i)
			stopped = true
			break
		}

		log.Info("Sending to contact",
			zap.Int("position", i+1),
			zap.Int("total", len(pending)),
			zap.String("name", c.FirstName),
			zap.String("phone", c.PhoneClean))
		o.state.SetCurrent(CurrentContact{Row: c.RowNumber, Name: c.FirstName, Phone: c.PhoneClean})
		o.state.Logf("Sending %d/%d to %s (%s)", i+1, len(pending), c.FirstName, c.PhoneClean)

		sendErr := o.deliverer.Send(ctx, c)
		result, writeBack, fatal := o.classify(ctx, c, sendErr)
		o.state.Record(result)
		if result.Outcome == OutcomeSent {
			o.state.Logf("Sent to %s (%s)", c.FirstName, c.PhoneClean)
		} else {
			o.state.Logf("Failed for %s (%s): %s: %s", c.FirstName, c.PhoneClean, result.Outcome, result.Detail)
		}

		if writeBack {
			if writeErr := o.source.WriteStatus(ctx, c.RowNumber, result.Outcome == OutcomeSent); writeErr != nil {
				// The send already happened; a failed write-back must not
				// retry the message. Log and keep going.
				log.Error("Status write-back failed",
					zap.Int("row", c.RowNumber), zap.Error(writeErr))
				o.state.Logf("Status write-back failed for row %d: %v", c.RowNumber, writeErr)
			}
		}

		if o.Progress != nil {
			o.Progress(o.state.Snapshot())
		}

		if fatal {
			log.Error("Session lost, halting run", zap.Error(sendErr))
			o.state.Logf("Session lost, halting run: %v", sendErr)
			runErr = ErrSessionLost
			break
		}

		if i < len(pending)-1 {
			if err := o.pacedSleep(ctx); err != nil {
				o.state.Logf("Stop requested during pacing, halting")
				stopped = true
				break
			}
		}
	}

	o.state.Finish()
	o.finalize(ctx, runID, startedAt, stopped, log)
	return runErr
}

// classify turns a delivery error into a recorded outcome and decides what
// happens next. Typed failures are per-contact and get a status write-back.
// An unrecognized error gets no write-back at all: the row stays pending
// and is retried on a later run, and a connectivity probe decides whether
// the campaign can continue.
func (o *Orchestrator) classify(ctx context.Context, c contacts.Contact, err error) (r Result, writeBack, fatal bool) {
	r = Result{
		Row:       c.RowNumber,
		Phone:     c.PhoneClean,
		Name:      c.FirstName,
		Timestamp: time.Now(),
	}

	if err == nil {
		r.Outcome = OutcomeSent
		return r, true, false
	}
	r.Detail = err.Error()

	var notFound *driver.ContactNotFoundError
	var timeout *driver.SendTimeoutError
	var delivery *driver.DeliveryError
	switch {
	case errors.As(err, &notFound):
		r.Outcome = OutcomeNotFound
		return r, true, false
	case errors.As(err, &timeout):
		r.Outcome = OutcomeTimeout
		return r, true, false
	case errors.As(err, &delivery):
		r.Outcome = OutcomeFailed
		return r, true, false
	}

	r.Outcome = OutcomeFailed
	connected, probeErr := o.deliverer.Connected(ctx)
	if probeErr != nil || !connected {
		return r, false, true
	}
	return r, false, false
}

// pacedSleep waits the jittered inter-message delay, polling the control
// flags each tick so a stop lands within a second.
func (o *Orchestrator) pacedSleep(ctx context.Context) error {
	delay := o.nextDelay()
	o.logger.Debug("Pacing before next contact", zap.Duration("delay", delay))

	deadline := time.Now().Add(delay)
	for time.Now().Before(deadline) {
		if o.shouldStop(ctx) {
			return context.Canceled
		}
		if err := o.awaitResume(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.tick):
		}
	}
	return nil
}

// nextDelay jitters the base delay by a uniform offset in [-5s, +10s) and
// never drops below the configured floor. Uniform spacing looks scripted;
// the jitter does not. Base and floor are separate knobs: a base of 60s
// still swings down to 55s, while a base below the floor is lifted to it.
func (o *Orchestrator) nextDelay() time.Duration {
	jitter := o.jitterMin + time.Duration(o.rng.Int63n(int64(o.jitterMax-o.jitterMin)))
	delay := o.cfg.Send.Delay + jitter
	if delay < o.cfg.Send.MinDelay {
		delay = o.cfg.Send.MinDelay
	}
	return delay
}

func (o *Orchestrator) shouldStop(ctx context.Context) bool {
	return ctx.Err() != nil || o.state.Stopping()
}

// awaitResume blocks while the pause flag is up.
func (o *Orchestrator) awaitResume(ctx context.Context) error {
	for o.state.Paused() {
		if o.shouldStop(ctx) {
			return context.Canceled
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.tick):
		}
	}
	return nil
}

// finalize writes the run artifact, appends the history row, and logs the
// summary. Persistence failures are logged, never fatal: the send already
// happened.
func (o *Orchestrator) finalize(ctx context.Context, runID string, startedAt time.Time, stopped bool, log *zap.Logger) {
	counts := o.state.Snapshot()
	o.state.Logf("Run finished: %d sent, %d failed of %d planned",
		counts.Sent, counts.Failed, counts.Planned)

	snap := o.state.Snapshot()
	runLog := RunLog{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Planned:    snap.Planned,
		Sent:       snap.Sent,
		Failed:     snap.Failed,
		Stopped:    stopped,
		Results:    snap.Results,
		Log:        snap.Log,
	}

	if err := WriteRunLog(o.cfg.RunLog.Path, runLog); err != nil {
		log.Error("Failed to write run log", zap.Error(err))
	}
	if o.history != nil {
		if err := o.history.RecordRun(ctx, runLog); err != nil {
			log.Error("Failed to record run history", zap.Error(err))
		}
	}

	log.Info("Send run finished",
		zap.Int("planned", snap.Planned),
		zap.Int("sent", snap.Sent),
		zap.Int("failed", snap.Failed),
		zap.Bool("stopped", stopped),
		zap.Duration("elapsed", time.Since(startedAt)))
}
