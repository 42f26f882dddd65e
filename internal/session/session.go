// Package session runs one voice capture session: it dials the relay, streams
// microphone frames while listening, finalizes the transcript, and waits for
// the user to confirm or cancel it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/voxtrip/internal/frame"
	"github.com/rbright/voxtrip/internal/fsm"
	"github.com/rbright/voxtrip/internal/ipc"
	"github.com/rbright/voxtrip/internal/logging"
	"github.com/rbright/voxtrip/internal/observe"
	"github.com/rbright/voxtrip/internal/stream"
	"github.com/rbright/voxtrip/internal/transcript"
)

const (
	defaultFinalizeTimeout = 10 * time.Second
	eventQueue             = 8
	hideTimeout            = 800 * time.Millisecond
)

// Options tunes one controller.
type Options struct {
	// FinalizeTimeout bounds the wait for the relay to close after
	// end-of-stream. Default: 10s.
	FinalizeTimeout time.Duration
	// AutoConfirm confirms the transcript as soon as it is available.
	AutoConfirm bool
	Metrics     *observe.Metrics
}

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	SessionID       string
	State           fsm.State
	Transcript      string
	RemoteError     string
	Confirmed       bool
	Cancelled       bool
	Dismissed       bool
	NoSpeech        bool
	Err             error
	FramesSent      int64
	FramesDropped   int64
	BytesSent       int64
	FinalizeLatency time.Duration
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Outcome names how the session ended.
func (r Result) Outcome() string {
	switch {
	case r.Confirmed:
		return "confirmed"
	case r.Cancelled:
		return "cancelled"
	case r.Dismissed:
		return "dismissed"
	case r.NoSpeech && r.State == fsm.StateClosed:
		return "no_speech"
	case r.State == fsm.StateFailed:
		return "failed"
	case r.Err != nil:
		return "commit_failed"
	default:
		return "closed"
	}
}

type dialResult struct {
	conn Conn
	err  error
}

type acquireResult struct {
	frames <-chan frame.Frame
	err    error
}

// Controller owns one session. Run drives it from a single goroutine; Handle
// may be called concurrently to feed user commands into that goroutine.
type Controller struct {
	id        string
	logger    *slog.Logger
	dialer    Dialer
	resources Resources
	commit    Committer
	indicator Indicator
	metrics   *observe.Metrics
	opts      Options

	mu        sync.RWMutex
	state     fsm.State
	buffer    transcript.Buffer
	remoteErr string

	postMu   sync.Mutex
	finished bool
	events   chan event

	// Owned by the Run goroutine.
	dialed      chan dialResult
	dialing     bool
	dialCancel  context.CancelFunc
	acquired    chan acquireResult
	acquireStop context.CancelFunc
	conn        Conn
	frames      <-chan frame.Frame
	connEvents  <-chan stream.Event
	timer       *time.Timer
	timerC      <-chan time.Time
	stoppedAt   time.Time
	result      Result
	releaseOnce sync.Once
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(
	logger *slog.Logger,
	dialer Dialer,
	resources Resources,
	committer Committer,
	indicator Indicator,
	opts Options,
) *Controller {
	id := uuid.NewString()
	if logger == nil {
		logger = logging.Discard()
	}
	if committer == nil {
		committer = CommitFunc(func(context.Context, string) error { return nil })
	}
	if indicator == nil {
		indicator = noopIndicator{}
	}
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = defaultFinalizeTimeout
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observe.Discard()
	}

	return &Controller{
		id:        id,
		logger:    logger.With("session_id", id),
		dialer:    dialer,
		resources: resources,
		commit:    committer,
		indicator: indicator,
		metrics:   metrics,
		opts:      opts,
		state:     fsm.StateIdle,
		events:    make(chan event, eventQueue),
		dialed:    make(chan dialResult, 1),
		acquired:  make(chan acquireResult, 1),
	}
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Transcript returns the best-known transcript snapshot.
func (c *Controller) Transcript() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buffer.Text()
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(ev fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, ev)
	if err != nil {
		return err
	}
	c.logger.Debug("session transition", "from", string(c.state), "event", string(ev), "to", string(next))
	c.state = next
	return nil
}

// Run executes the session until it reaches closed or failed. Cancelling ctx
// dismisses the session.
func (c *Controller) Run(ctx context.Context) Result {
	c.result = Result{SessionID: c.id, StartedAt: time.Now()}
	c.metrics.SessionStarted(ctx)
	c.logger.Info("session started")

	if c.dialer == nil || c.resources == nil {
		c.result.Err = errors.New("session is missing its dialer or resources")
		_ = c.transition(fsm.EventStart)
		_ = c.transition(fsm.EventConnectFailed)
		return c.finish(ctx)
	}

	c.dispatch(ctx, startEvent{})
	for !fsm.Terminal(c.State()) {
		var ev event
		select {
		case <-ctx.Done():
			ev = dismissEvent{err: ctx.Err()}
		case ev = <-c.events:
		case res := <-c.dialed:
			c.dialing = false
			if res.err != nil {
				ev = connectFailedEvent{err: res.err}
			} else {
				ev = connectedEvent{conn: res.conn}
			}
		case res := <-c.acquired:
			ev = acquiredEvent{frames: res.frames, err: res.err}
		case f, ok := <-c.frames:
			if !ok {
				c.frames = nil
				continue
			}
			ev = frameEvent{frame: f}
		case se, ok := <-c.connEvents:
			if !ok {
				c.connEvents = nil
				continue
			}
			if _, closed := se.(stream.ClosedEvent); closed {
				c.connEvents = nil
			}
			ev = fromStream(se)
		case <-c.timerC:
			c.timerC = nil
			ev = finalizeTimeoutEvent{}
		}
		if ev != nil {
			c.dispatch(ctx, ev)
		}
	}

	return c.finish(ctx)
}

// dispatch routes ev to the handler of the current state.
func (c *Controller) dispatch(ctx context.Context, ev event) {
	// Effects must outlive a cancelled run context so teardown cues still play.
	ctx = context.WithoutCancel(ctx)

	state := c.State()
	if d, ok := ev.(dismissEvent); ok && !fsm.Terminal(state) {
		c.dismiss(ctx, d.err)
		return
	}

	switch state {
	case fsm.StateIdle:
		c.onIdle(ctx, ev)
	case fsm.StateConnecting:
		c.onConnecting(ctx, ev)
	case fsm.StateListening:
		c.onListening(ctx, ev)
	case fsm.StateFinalizing:
		c.onFinalizing(ctx, ev)
	case fsm.StateAwaitingConfirmation:
		c.onAwaiting(ctx, ev)
	default:
		c.ignore(state, ev)
	}
}

func (c *Controller) onIdle(ctx context.Context, ev event) {
	if _, ok := ev.(startEvent); !ok {
		c.ignore(fsm.StateIdle, ev)
		return
	}
	if err := c.transition(fsm.EventStart); err != nil {
		c.logger.Error("session start rejected", "error", err)
		return
	}
	c.indicator.ShowConnecting(ctx)

	dialCtx, cancel := context.WithCancel(ctx)
	c.dialCancel = cancel
	c.dialing = true
	go func() {
		conn, err := c.dialer.Dial(dialCtx)
		c.dialed <- dialResult{conn: conn, err: err}
	}()
}

func (c *Controller) onConnecting(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case connectedEvent:
		c.conn = e.conn
		c.connEvents = e.conn.Events()
		if err := c.resources.AttachConn(e.conn); err != nil {
			c.logger.Warn("attach connection", "error", err)
		}
		c.logger.Info("relay connected")

		// The microphone may wait on a permission grant, so it is opened off
		// the loop where dismiss can still reach it.
		acquireCtx, cancel := context.WithCancel(ctx)
		c.acquireStop = cancel
		go func() {
			frames, err := c.resources.Acquire(acquireCtx)
			c.acquired <- acquireResult{frames: frames, err: err}
		}()
	case acquiredEvent:
		if e.err == nil {
			c.frames = e.frames
			c.indicator.ShowListening(ctx)
		}
		if err := c.transition(fsm.EventConnected); err != nil {
			c.logger.Error("connected transition rejected", "error", err)
			return
		}
		if e.err != nil {
			c.onListening(ctx, captureFailedEvent{err: e.err})
		}
	case messageEvent:
		c.onMessage(ctx, e.msg)
	case malformedEvent:
		c.onMalformed(ctx, e.err)
	case remoteClosedEvent:
		if err := c.transition(fsm.EventConnectFailed); err != nil {
			c.logger.Error("connect failure transition rejected", "error", err)
			return
		}
		c.mu.RLock()
		remoteErr := c.remoteErr
		c.mu.RUnlock()
		c.fail(ctx, connectionDropped(e.err, remoteErr))
	case connectFailedEvent:
		if err := c.transition(fsm.EventConnectFailed); err != nil {
			c.logger.Error("connect failure transition rejected", "error", err)
			return
		}
		c.fail(ctx, e.err)
	default:
		c.ignore(fsm.StateConnecting, ev)
	}
}

func (c *Controller) onListening(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case frameEvent:
		c.sendFrame(ctx, e.frame)
	case messageEvent:
		c.onMessage(ctx, e.msg)
	case malformedEvent:
		c.onMalformed(ctx, e.err)
	case stopEvent:
		c.stopListening(ctx)
	case remoteClosedEvent:
		if err := c.transition(fsm.EventDropped); err != nil {
			c.logger.Error("dropped transition rejected", "error", err)
			return
		}
		c.mu.RLock()
		remoteErr := c.remoteErr
		c.mu.RUnlock()
		c.fail(ctx, connectionDropped(e.err, remoteErr))
	case captureFailedEvent:
		if err := c.transition(fsm.EventFail); err != nil {
			c.logger.Error("capture failure transition rejected", "error", err)
			return
		}
		c.fail(ctx, e.err)
	default:
		c.ignore(fsm.StateListening, ev)
	}
}

func (c *Controller) onFinalizing(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case messageEvent:
		c.onMessage(ctx, e.msg)
	case malformedEvent:
		c.onMalformed(ctx, e.err)
	case frameEvent:
		c.dropFrames(ctx, "not_listening", 1)
	case remoteClosedEvent:
		if e.err != nil {
			c.logger.Warn("relay closed abnormally while finalizing", "error", e.err)
		}
		if err := c.transition(fsm.EventRemoteClosed); err != nil {
			c.logger.Error("remote close transition rejected", "error", err)
			return
		}
		c.enterAwaiting(ctx)
	case finalizeTimeoutEvent:
		c.logger.Warn("relay did not close before finalize timeout", "timeout", c.opts.FinalizeTimeout.String())
		if err := c.transition(fsm.EventFinalizeTimeout); err != nil {
			c.logger.Error("finalize timeout transition rejected", "error", err)
			return
		}
		c.enterAwaiting(ctx)
	default:
		c.ignore(fsm.StateFinalizing, ev)
	}
}

func (c *Controller) onAwaiting(ctx context.Context, ev event) {
	switch ev.(type) {
	case confirmEvent:
		c.confirm(ctx)
	case cancelEvent:
		c.result.Cancelled = true
		c.indicator.CueCancel(ctx)
		if err := c.transition(fsm.EventCancel); err != nil {
			c.logger.Error("cancel transition rejected", "error", err)
			return
		}
		c.logger.Info("transcript discarded")
	case frameEvent:
		c.dropFrames(ctx, "not_listening", 1)
	default:
		c.ignore(fsm.StateAwaitingConfirmation, ev)
	}
}

// sendFrame hands one frame to the relay. Only the listening state streams.
func (c *Controller) sendFrame(ctx context.Context, f frame.Frame) {
	if !fsm.Streaming(c.State()) || c.conn == nil {
		c.dropFrames(ctx, "not_listening", 1)
		return
	}
	if err := c.conn.SendFrame(f); err != nil {
		reason := "closed"
		if errors.Is(err, stream.ErrQueueFull) {
			reason = "queue_full"
		}
		c.dropFrames(ctx, reason, 1)
		return
	}
	c.result.FramesSent++
	c.result.BytesSent += int64(2 * len(f))
	c.metrics.RecordFrameSent(ctx)
}

func (c *Controller) dropFrames(ctx context.Context, reason string, n int64) {
	c.result.FramesDropped += n
	c.metrics.RecordFramesDropped(ctx, reason, n)
}

// stopListening flushes every frame encoded so far, closes the audio stream,
// and starts the finalize wait.
func (c *Controller) stopListening(ctx context.Context) {
	if err := c.resources.StopCapture(); err != nil {
		c.logger.Warn("stop capture", "error", err)
	}
	if c.frames != nil {
		for f := range c.frames {
			c.sendFrame(ctx, f)
		}
		c.frames = nil
	}
	if err := c.conn.SendEndOfStream(); err != nil {
		c.logger.Warn("send end of stream", "error", err)
	}

	if err := c.transition(fsm.EventStop); err != nil {
		c.logger.Error("stop transition rejected", "error", err)
		return
	}
	c.stoppedAt = time.Now()
	c.timer = time.NewTimer(c.opts.FinalizeTimeout)
	c.timerC = c.timer.C

	c.indicator.CueStop(ctx)
	c.indicator.ShowFinalizing(ctx)
	c.logger.Info("audio stream ended", "frames_sent", c.result.FramesSent)
}

// enterAwaiting releases the session resources and surfaces the transcript.
func (c *Controller) enterAwaiting(ctx context.Context) {
	c.stopTimer()
	c.release()
	c.connEvents = nil

	c.result.FinalizeLatency = time.Since(c.stoppedAt)
	c.metrics.RecordFinalize(ctx, c.result.FinalizeLatency)

	c.mu.RLock()
	text := c.buffer.Text()
	empty := c.buffer.Empty()
	c.mu.RUnlock()

	c.result.NoSpeech = empty
	if empty {
		c.logger.Info("no speech recognized")
		text = ""
	}
	c.indicator.ShowConfirm(ctx, text)

	if c.opts.AutoConfirm {
		c.confirm(ctx)
	}
}

// confirm commits a non-empty transcript and closes the session.
func (c *Controller) confirm(ctx context.Context) {
	c.mu.RLock()
	text := c.buffer.Text()
	empty := c.buffer.Empty()
	c.mu.RUnlock()

	switch {
	case empty:
		c.result.Err = ErrNoSpeechDetected
	default:
		if err := c.commit.Commit(ctx, text); err != nil {
			c.result.Err = fmt.Errorf("%w: %w", errCommit, err)
			c.metrics.RecordError(ctx, KindCommit)
			c.logger.Error("commit transcript", "error", err)
			c.indicator.ShowError(ctx, KindCommit, err.Error())
		} else {
			c.result.Confirmed = true
			c.indicator.CueComplete(ctx)
		}
	}

	if err := c.transition(fsm.EventConfirm); err != nil {
		c.logger.Error("confirm transition rejected", "error", err)
	}
}

func (c *Controller) onMessage(ctx context.Context, msg stream.Message) {
	switch msg.Kind {
	case stream.KindIntermediate, stream.KindFinal:
		c.mu.Lock()
		var changed bool
		if msg.Kind == stream.KindFinal {
			changed = c.buffer.Final(msg.Text)
		} else {
			changed = c.buffer.Intermediate(msg.Text)
		}
		text := c.buffer.Text()
		c.mu.Unlock()

		if changed {
			c.indicator.ShowTranscript(ctx, text)
		}
	case stream.KindError:
		c.mu.Lock()
		c.remoteErr = msg.Text
		c.mu.Unlock()
		c.result.RemoteError = msg.Text
		c.metrics.RecordError(ctx, KindRemote)
		c.logger.Warn("relay reported error", "error", msg.Text)
		c.indicator.ShowError(ctx, KindRemote, msg.Text)
	}
}

func (c *Controller) onMalformed(ctx context.Context, err error) {
	c.metrics.RecordMalformed(ctx)
	c.logger.Warn("ignoring malformed relay message", "error", err)
}

// fail records a terminal error, releases the session, then surfaces the error.
func (c *Controller) fail(ctx context.Context, err error) {
	c.cancelPending()
	c.release()
	c.result.Err = err
	kind := Kind(err)
	c.metrics.RecordError(ctx, kind)
	c.logger.Error("session failed", "kind", kind, "error", err)
	c.indicator.ShowError(ctx, kind, "")
}

// dismiss aborts the session from any non-terminal state.
func (c *Controller) dismiss(ctx context.Context, cause error) {
	if cause == nil {
		cause = ErrDismissed
	}
	c.cancelPending()
	from := c.State()
	if err := c.transition(fsm.EventAbort); err != nil {
		c.logger.Error("abort transition rejected", "error", err)
		return
	}
	c.result.Dismissed = true
	c.result.Err = cause
	c.indicator.CueCancel(ctx)
	c.logger.Info("session dismissed", "from", string(from), "reason", cause.Error())
}

// cancelPending aborts a dial or microphone acquisition still in flight. A
// capture that opens afterwards is stopped by the released resources.
func (c *Controller) cancelPending() {
	if c.dialCancel != nil {
		c.dialCancel()
	}
	if c.acquireStop != nil {
		c.acquireStop()
	}
}

func (c *Controller) ignore(state fsm.State, ev event) {
	c.logger.Debug("ignoring event", "state", string(state), "event", eventName(ev))
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerC = nil
}

// release tears down capture and the connection exactly once.
func (c *Controller) release() {
	c.releaseOnce.Do(func() {
		if err := c.resources.Release(); err != nil {
			c.logger.Warn("release session resources", "error", err)
		}
	})
}

// finish seals the session: no further commands are accepted, a dial still in
// flight is collected and closed, and resources are released.
func (c *Controller) finish(ctx context.Context) Result {
	ctx = context.WithoutCancel(ctx)

	c.postMu.Lock()
	c.finished = true
	c.postMu.Unlock()

	c.cancelPending()
	c.stopTimer()
	if c.resources != nil {
		c.release()
		if c.dialing {
			if res := <-c.dialed; res.conn != nil {
				_ = c.resources.AttachConn(res.conn)
			}
			c.dialing = false
		}
		c.dropFrames(ctx, "pump_overflow", c.resources.DroppedFrames())
	}

	c.mu.RLock()
	c.result.State = c.state
	c.result.Transcript = c.buffer.Text()
	c.mu.RUnlock()
	c.result.FinishedAt = time.Now()

	outcome := c.result.Outcome()
	c.metrics.SessionFinished(ctx, outcome, c.result.FinishedAt.Sub(c.result.StartedAt))
	c.logger.Info("session finished",
		"outcome", outcome,
		"state", string(c.result.State),
		"frames_sent", c.result.FramesSent,
		"frames_dropped", c.result.FramesDropped,
		"bytes_sent", c.result.BytesSent,
		"finalize_latency_ms", c.result.FinalizeLatency.Milliseconds(),
	)

	if c.result.State != fsm.StateFailed && !errors.Is(c.result.Err, errCommit) {
		hideCtx, cancel := context.WithTimeout(ctx, hideTimeout)
		defer cancel()
		c.indicator.Hide(hideCtx)
	}
	return c.result
}

// post queues ev for the Run goroutine. It reports false once the session has
// finished or the queue is full.
func (c *Controller) post(ev event) bool {
	c.postMu.Lock()
	defer c.postMu.Unlock()
	if c.finished {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// Handle serves IPC commands for the active owner session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	state := c.State()
	switch req.Command {
	case ipc.CommandStatus:
		return c.respond(state, "status")
	case ipc.CommandToggle:
		switch state {
		case fsm.StateListening:
			return c.requestStop()
		case fsm.StateAwaitingConfirmation:
			return c.requestConfirm()
		default:
			return c.reject(state, fmt.Sprintf("cannot toggle from state %s", state))
		}
	case ipc.CommandStop:
		return c.requestStop()
	case ipc.CommandConfirm:
		return c.requestConfirm()
	case ipc.CommandCancel:
		return c.requestCancel()
	case ipc.CommandDismiss:
		return c.requestDismiss()
	default:
		return c.reject(state, fmt.Sprintf("unknown command: %s", req.Command))
	}
}

// requestStop enqueues a stop when the session is listening.
func (c *Controller) requestStop() ipc.Response {
	state := c.State()
	if state == fsm.StateFinalizing {
		return c.reject(state, "already finalizing")
	}
	if state != fsm.StateListening {
		return c.reject(state, fmt.Sprintf("cannot stop from state %s", state))
	}
	if !c.post(stopEvent{}) {
		return c.respond(state, "stop already requested")
	}
	return c.respond(state, "stop requested")
}

// requestConfirm enqueues a confirm when a transcript is awaiting confirmation.
func (c *Controller) requestConfirm() ipc.Response {
	state := c.State()
	if state != fsm.StateAwaitingConfirmation {
		return c.reject(state, fmt.Sprintf("cannot confirm from state %s", state))
	}
	if !c.post(confirmEvent{}) {
		return c.respond(state, "confirm already requested")
	}
	return c.respond(state, "confirm requested")
}

// requestCancel discards an awaiting transcript; earlier it dismisses the session.
func (c *Controller) requestCancel() ipc.Response {
	state := c.State()
	switch state {
	case fsm.StateAwaitingConfirmation:
		if !c.post(cancelEvent{}) {
			return c.respond(state, "cancel already requested")
		}
		return c.respond(state, "cancel requested")
	case fsm.StateConnecting, fsm.StateListening, fsm.StateFinalizing:
		if !c.post(dismissEvent{err: ErrDismissed}) {
			return c.respond(state, "cancel already requested")
		}
		return c.respond(state, "cancel requested")
	default:
		return c.reject(state, fmt.Sprintf("cannot cancel from state %s", state))
	}
}

// requestDismiss aborts the session from any non-terminal state.
func (c *Controller) requestDismiss() ipc.Response {
	state := c.State()
	if fsm.Terminal(state) {
		return c.reject(state, "session already finished")
	}
	if !c.post(dismissEvent{err: ErrDismissed}) {
		return c.respond(state, "dismiss already requested")
	}
	return c.respond(state, "dismiss requested")
}

func (c *Controller) respond(state fsm.State, message string) ipc.Response {
	return ipc.Response{
		OK:         true,
		State:      string(state),
		SessionID:  c.id,
		Transcript: c.Transcript(),
		Message:    message,
	}
}

func (c *Controller) reject(state fsm.State, message string) ipc.Response {
	return ipc.Response{OK: false, State: string(state), SessionID: c.id, Error: message}
}
