package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voxtrip/internal/audio"
	"github.com/rbright/voxtrip/internal/frame"
	"github.com/rbright/voxtrip/internal/fsm"
	"github.com/rbright/voxtrip/internal/ipc"
	"github.com/rbright/voxtrip/internal/lifecycle"
	"github.com/rbright/voxtrip/internal/stream"
)

type fakeIndicator struct {
	connecting   atomic.Int32
	listening    atomic.Int32
	finalizing   atomic.Int32
	stopCues     atomic.Int32
	completeCues atomic.Int32
	cancelCues   atomic.Int32
	hides        atomic.Int32

	// onError runs inside ShowError, before the kind is recorded.
	onError         func()
	releasedAtError atomic.Bool

	mu          sync.Mutex
	transcripts []string
	confirmText *string
	errorKinds  []string
}

func (f *fakeIndicator) ShowConnecting(context.Context) { f.connecting.Add(1) }
func (f *fakeIndicator) ShowListening(context.Context)  { f.listening.Add(1) }
func (f *fakeIndicator) ShowFinalizing(context.Context) { f.finalizing.Add(1) }
func (f *fakeIndicator) CueStop(context.Context)        { f.stopCues.Add(1) }
func (f *fakeIndicator) CueComplete(context.Context)    { f.completeCues.Add(1) }
func (f *fakeIndicator) CueCancel(context.Context)      { f.cancelCues.Add(1) }
func (f *fakeIndicator) Hide(context.Context)           { f.hides.Add(1) }

func (f *fakeIndicator) ShowTranscript(_ context.Context, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, text)
}

func (f *fakeIndicator) ShowConfirm(_ context.Context, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmText = &text
}

func (f *fakeIndicator) ShowError(_ context.Context, kind string, _ string) {
	if f.onError != nil {
		f.onError()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorKinds = append(f.errorKinds, kind)
}

func (f *fakeIndicator) errorList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.errorKinds...)
}

type fakeConn struct {
	events  chan stream.Event
	sendErr error

	mu     sync.Mutex
	frames []frame.Frame
	eos    atomic.Int32
	closes atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan stream.Event, 16)}
}

func (f *fakeConn) SendFrame(fr frame.Frame) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) SendEndOfStream() error {
	if f.eos.Add(1) > 1 {
		return stream.ErrEndOfStreamSent
	}
	return nil
}

func (f *fakeConn) Events() <-chan stream.Event { return f.events }

func (f *fakeConn) Close() error {
	f.closes.Add(1)
	return nil
}

func (f *fakeConn) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeConn) intermediate(text string) {
	f.events <- stream.MessageEvent{Message: stream.Message{Kind: stream.KindIntermediate, Text: text}}
}

func (f *fakeConn) final(text string) {
	f.events <- stream.MessageEvent{Message: stream.Message{Kind: stream.KindFinal, Text: text}}
}

func (f *fakeConn) remoteError(text string) {
	f.events <- stream.MessageEvent{Message: stream.Message{Kind: stream.KindError, Text: text}}
}

func (f *fakeConn) closed(err error) {
	f.events <- stream.ClosedEvent{Err: err}
}

type fakeMic struct {
	err   error
	opens atomic.Int32
	stops atomic.Int32

	mu   sync.Mutex
	sink func([]float32)
}

func (m *fakeMic) Open(_ context.Context, sink func([]float32)) (lifecycle.Stopper, error) {
	m.opens.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
	return m, nil
}

func (m *fakeMic) Stop() error {
	m.stops.Add(1)
	return nil
}

// speak delivers n frames worth of samples.
func (m *fakeMic) speak(n int) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	for i := 0; i < n; i++ {
		burst := make([]float32, frame.DefaultSamples)
		for j := range burst {
			burst[j] = 0.5
		}
		sink(burst)
	}
}

type harness struct {
	ctrl      *Controller
	conn      *fakeConn
	mic       *fakeMic
	ind       *fakeIndicator
	resources *lifecycle.Manager
	dials     atomic.Int32

	mu        sync.Mutex
	committed []string

	done chan Result
}

func newHarness(t *testing.T, opts Options, dialErr error) *harness {
	t.Helper()
	h := &harness{
		conn: newFakeConn(),
		mic:  &fakeMic{},
		ind:  &fakeIndicator{},
		done: make(chan Result, 1),
	}
	h.resources = lifecycle.New(h.mic, lifecycle.Options{})
	dialer := DialFunc(func(context.Context) (Conn, error) {
		h.dials.Add(1)
		if dialErr != nil {
			return nil, dialErr
		}
		return h.conn, nil
	})
	committer := CommitFunc(func(_ context.Context, text string) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.committed = append(h.committed, text)
		return nil
	})
	h.ctrl = NewController(nil, dialer, h.resources, committer, h.ind, opts)
	return h
}

func (h *harness) run(ctx context.Context) {
	go func() {
		h.done <- h.ctrl.Run(ctx)
	}()
}

func (h *harness) wait(t *testing.T) Result {
	t.Helper()
	select {
	case res := <-h.done:
		return res
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not finish (state=%s)", h.ctrl.State())
		return Result{}
	}
}

func (h *harness) commits() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.committed...)
}

func send(t *testing.T, ctrl *Controller, command string) ipc.Response {
	t.Helper()
	resp := ctrl.Handle(context.Background(), ipc.Request{Command: command})
	require.True(t, resp.OK, "%s rejected: %s", command, resp.Error)
	return resp
}

func TestRunConfirmCommitsFinalTranscript(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.run(context.Background())

	waitForState(t, h.ctrl, fsm.StateListening)
	require.Equal(t, int32(1), h.ind.connecting.Load())
	require.Equal(t, int32(1), h.ind.listening.Load())

	h.mic.speak(2)
	require.Eventually(t, func() bool { return h.conn.sent() == 2 }, 2*time.Second, 5*time.Millisecond)

	h.conn.intermediate("book a")
	require.Eventually(t, func() bool { return h.ctrl.Transcript() == "book a" }, 2*time.Second, 5*time.Millisecond)

	send(t, h.ctrl, "stop")
	waitForState(t, h.ctrl, fsm.StateFinalizing)
	require.Equal(t, int32(1), h.conn.eos.Load())
	require.Equal(t, int32(1), h.ind.stopCues.Load())

	h.conn.final("book a flight to Paris。")
	h.conn.closed(nil)
	waitForState(t, h.ctrl, fsm.StateAwaitingConfirmation)

	resp := send(t, h.ctrl, "status")
	require.Equal(t, "book a flight to Paris。", resp.Transcript)
	require.Equal(t, h.ctrl.ID(), resp.SessionID)

	send(t, h.ctrl, "confirm")
	res := h.wait(t)

	require.NoError(t, res.Err)
	require.Equal(t, fsm.StateClosed, res.State)
	require.True(t, res.Confirmed)
	require.Equal(t, "confirmed", res.Outcome())
	require.Equal(t, []string{"book a flight to Paris。"}, h.commits())
	require.Equal(t, int64(2), res.FramesSent)
	require.Equal(t, int64(2*2*frame.DefaultSamples), res.BytesSent)
	require.NotZero(t, res.FinishedAt)
	require.NotEmpty(t, res.SessionID)

	require.Equal(t, int32(1), h.mic.stops.Load())
	require.Equal(t, int32(1), h.conn.closes.Load())
	require.True(t, h.resources.Released())
	require.Equal(t, int32(1), h.ind.completeCues.Load())
	require.Equal(t, int32(1), h.ind.hides.Load())
}

func TestRunStopFlushesFramesEncodedWhileListening(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.run(context.Background())
	waitForState(t, h.ctrl, fsm.StateListening)

	h.mic.speak(3)
	send(t, h.ctrl, "stop")
	waitForState(t, h.ctrl, fsm.StateFinalizing)

	require.Equal(t, 3, h.conn.sent())
	require.Equal(t, int32(1), h.conn.eos.Load())

	send(t, h.ctrl, "dismiss")
	res := h.wait(t)
	require.Equal(t, int64(3), res.FramesSent)
}

func TestRunConnectFailure(t *testing.T) {
	dialErr := fmt.Errorf("%w: dial ws://relay: refused", stream.ErrConnection)
	h := newHarness(t, Options{}, dialErr)
	h.run(context.Background())

	res := h.wait(t)
	require.Equal(t, fsm.StateFailed, res.State)
	require.ErrorIs(t, res.Err, stream.ErrConnection)
	require.Equal(t, KindConnection, Kind(res.Err))
	require.Equal(t, "failed", res.Outcome())
	require.Zero(t, h.mic.opens.Load())
	require.True(t, h.resources.Released())
	require.Equal(t, []string{KindConnection}, h.ind.errorList())
	require.Zero(t, h.ind.hides.Load())
}

func TestRunMicrophonePermissionDenied(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.mic.err = fmt.Errorf("%w: access denied", audio.ErrPermissionDenied)
	h.run(context.Background())

	res := h.wait(t)
	require.Equal(t, fsm.StateFailed, res.State)
	require.ErrorIs(t, res.Err, audio.ErrPermissionDenied)
	require.Equal(t, KindPermissionDenied, Kind(res.Err))
	require.Equal(t, int32(1), h.conn.closes.Load(), "connection is released")
	require.Zero(t, h.conn.eos.Load())
}

func TestRunConnectionDroppedWhileListening(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.run(context.Background())
	waitForState(t, h.ctrl, fsm.StateListening)

	h.mic.speak(1)
	require.Eventually(t, func() bool { return h.conn.sent() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.conn.remoteError("quota exceeded")
	h.conn.closed(fmt.Errorf("%w: remote closed", stream.ErrConnection))

	res := h.wait(t)
	h.mic.speak(2)

	require.Equal(t, fsm.StateFailed, res.State)
	require.ErrorIs(t, res.Err, ErrConnectionDropped)
	require.Contains(t, res.Err.Error(), "quota exceeded")
	require.Equal(t, KindDropped, Kind(res.Err))
	require.Equal(t, "quota exceeded", res.RemoteError)
	require.Equal(t, int64(1), res.FramesSent)
	require.Equal(t, 1, h.conn.sent(), "nothing is sent after the drop")
	require.Zero(t, h.conn.eos.Load())
	require.Equal(t, int32(1), h.mic.stops.Load())
	require.Equal(t, int32(1), h.conn.closes.Load())
}

func TestRunFailureReleasesBeforeShowingError(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.ind.onError = func() {
		h.ind.releasedAtError.Store(h.resources.Released())
	}
	h.run(context.Background())
	waitForState(t, h.ctrl, fsm.StateListening)

	h.conn.closed(fmt.Errorf("%w: reset", stream.ErrConnection))
	res := h.wait(t)

	require.Equal(t, fsm.StateFailed, res.State)
	require.Equal(t, []string{KindDropped}, h.ind.errorList())
	require.True(t, h.ind.releasedAtError.Load())
	require.Equal(t, int32(1), h.mic.stops.Load())
	require.Equal(t, int32(1), h.conn.closes.Load())
}

func TestRunRemoteErrorIsNotFatal(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.run(context.Background())
	waitForState(t, h.ctrl, fsm.StateListening)

	h.conn.remoteError("transient upstream hiccup")
	h.conn.events <- stream.MalformedEvent{Err: stream.ErrProtocol}
	h.conn.intermediate("still here")
	require.Eventually(t, func() bool { return h.ctrl.Transcript() == "still here" }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, fsm.StateListening, h.ctrl.State())

	send(t, h.ctrl, "stop")
	waitForState(t, h.ctrl, fsm.StateFinalizing)
	h.conn.closed(nil)
	waitForState(t, h.ctrl, fsm.StateAwaitingConfirmation)
	send(t, h.ctrl, "toggle")

	res := h.wait(t)
	require.True(t, res.Confirmed)
	require.Equal(t, "transient upstream hiccup", res.RemoteError)
	require.Equal(t, []string{"still here"}, h.commits())
	require.Equal(t, []string{KindRemote}, h.ind.errorList())
}

func TestRunFinalizeTimeoutStillAwaitsConfirmation(t *testing.T) {
	h := newHarness(t, Options{FinalizeTimeout: 50 * time.Millisecond}, nil)
	h.run(context.Background())
	waitForState(t, h.ctrl, fsm.StateListening)

	h.conn.intermediate("partial words")
	require.Eventually(t, func() bool { return h.ctrl.Transcript() == "partial words" }, 2*time.Second, 5*time.Millisecond)
	send(t, h.ctrl, "toggle")
	waitForState(t, h.ctrl, fsm.StateAwaitingConfirmation)
	require.Equal(t, int32(1), h.conn.closes.Load())

	send(t, h.ctrl, "cancel")
	res := h.wait(t)

	require.NoError(t, res.Err)
	require.True(t, res.Cancelled)
	require.Equal(t, fsm.StateClosed, res.State)
	require.Equal(t, "partial words", res.Transcript)
	require.GreaterOrEqual(t, res.FinalizeLatency, 50*time.Millisecond)
	require.Empty(t, h.commits())
	require.Equal(t, int32(1), h.ind.cancelCues.Load())
}

func TestRunNoSpeechNeverCommits(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.run(context.Background())
	waitForState(t, h.ctrl, fsm.StateListening)

	send(t, h.ctrl, "stop")
	waitForState(t, h.ctrl, fsm.StateFinalizing)
	h.conn.final("")
	h.conn.closed(nil)
	waitForState(t, h.ctrl, fsm.StateAwaitingConfirmation)

	h.ind.mu.Lock()
	require.NotNil(t, h.ind.confirmText)
	require.Equal(t, "", *h.ind.confirmText)
	h.ind.mu.Unlock()

	send(t, h.ctrl, "confirm")
	res := h.wait(t)

	require.Equal(t, fsm.StateClosed, res.State)
	require.True(t, res.NoSpeech)
	require.ErrorIs(t, res.Err, ErrNoSpeechDetected)
	require.True(t, IsNoSpeech(res.Err))
	require.Equal(t, "no_speech", res.Outcome())
	require.Empty(t, h.commits())
	require.Zero(t, h.ind.completeCues.Load())
}

func TestRunAutoConfirm(t *testing.T) {
	h := newHarness(t, Options{AutoConfirm: true}, nil)
	h.run(context.Background())
	waitForState(t, h.ctrl, fsm.StateListening)

	send(t, h.ctrl, "stop")
	waitForState(t, h.ctrl, fsm.StateFinalizing)
	h.conn.final("hello")
	h.conn.closed(nil)

	res := h.wait(t)
	require.True(t, res.Confirmed)
	require.Equal(t, []string{"hello"}, h.commits())
}

func TestRunCommitFailure(t *testing.T) {
	ind := &fakeIndicator{}
	conn := newFakeConn()
	mic := &fakeMic{}
	ctrl := NewController(
		nil,
		DialFunc(func(context.Context) (Conn, error) { return conn, nil }),
		lifecycle.New(mic, lifecycle.Options{}),
		CommitFunc(func(context.Context, string) error { return errors.New("fill command exited 1") }),
		ind,
		Options{AutoConfirm: true},
	)

	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(context.Background()) }()

	waitForState(t, ctrl, fsm.StateListening)
	send(t, ctrl, "stop")
	waitForState(t, ctrl, fsm.StateFinalizing)
	conn.final("hello world")
	conn.closed(nil)

	res := <-resultCh
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "fill command exited 1")
	require.Equal(t, KindCommit, Kind(res.Err))
	require.Equal(t, fsm.StateClosed, res.State)
	require.Equal(t, "commit_failed", res.Outcome())
	require.Zero(t, ind.completeCues.Load())
	require.Zero(t, ind.hides.Load())
}

func TestRunContextCancelledDismissesAndReleases(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.run(ctx)
	waitForState(t, h.ctrl, fsm.StateListening)

	cancel()
	res := h.wait(t)

	require.Equal(t, fsm.StateClosed, res.State)
	require.True(t, res.Dismissed)
	require.ErrorIs(t, res.Err, context.Canceled)
	require.Equal(t, KindDismissed, Kind(res.Err))
	require.Equal(t, int32(1), h.mic.stops.Load())
	require.Equal(t, int32(1), h.conn.closes.Load())
	require.Equal(t, int32(1), h.ind.cancelCues.Load())
}

func TestDismissWhileConnectingClosesLateConnection(t *testing.T) {
	late := newFakeConn()
	dialStarted := make(chan struct{})
	resources := lifecycle.New(&fakeMic{}, lifecycle.Options{})
	dialer := DialFunc(func(ctx context.Context) (Conn, error) {
		close(dialStarted)
		<-ctx.Done()
		return late, nil
	})
	ctrl := NewController(nil, dialer, resources, nil, nil, Options{})

	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(context.Background()) }()

	<-dialStarted
	require.Equal(t, fsm.StateConnecting, ctrl.State())
	send(t, ctrl, "dismiss")

	var res Result
	select {
	case res = <-resultCh:
	case <-time.After(2 * time.Second):
		t.Fatal("dismiss did not finish the session")
	}

	require.Equal(t, fsm.StateClosed, res.State)
	require.ErrorIs(t, res.Err, ErrDismissed)
	require.Equal(t, "dismissed", res.Outcome())
	require.Equal(t, int32(1), late.closes.Load())
	require.True(t, resources.Released())
}

// slowMic models a sound server stuck on a permission prompt. Open returns
// when proceed closes, or when its context is cancelled unless ignoreCtx.
type slowMic struct {
	opening   chan struct{}
	proceed   chan struct{}
	ignoreCtx bool
	capture   fakeMic
}

func newSlowMic(ignoreCtx bool) *slowMic {
	return &slowMic{opening: make(chan struct{}), proceed: make(chan struct{}), ignoreCtx: ignoreCtx}
}

func (m *slowMic) Open(ctx context.Context, sink func([]float32)) (lifecycle.Stopper, error) {
	close(m.opening)
	done := ctx.Done()
	if m.ignoreCtx {
		done = nil
	}
	select {
	case <-done:
		return nil, ctx.Err()
	case <-m.proceed:
		return m.capture.Open(ctx, sink)
	}
}

func TestDismissWhileAcquiringMicrophone(t *testing.T) {
	interrupts := map[string]func(t *testing.T, ctrl *Controller, cancel context.CancelFunc){
		"dismiss command": func(t *testing.T, ctrl *Controller, _ context.CancelFunc) {
			send(t, ctrl, "dismiss")
		},
		"context cancelled": func(_ *testing.T, _ *Controller, cancel context.CancelFunc) {
			cancel()
		},
	}

	for name, interrupt := range interrupts {
		t.Run(name, func(t *testing.T) {
			mic := newSlowMic(false)
			t.Cleanup(func() { close(mic.proceed) })
			conn := newFakeConn()
			resources := lifecycle.New(mic, lifecycle.Options{})
			ind := &fakeIndicator{}
			dialer := DialFunc(func(context.Context) (Conn, error) { return conn, nil })
			ctrl := NewController(nil, dialer, resources, nil, ind, Options{})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			resultCh := make(chan Result, 1)
			go func() { resultCh <- ctrl.Run(ctx) }()

			<-mic.opening
			require.Equal(t, fsm.StateConnecting, ctrl.State())

			started := time.Now()
			interrupt(t, ctrl, cancel)

			var res Result
			select {
			case res = <-resultCh:
			case <-time.After(2 * time.Second):
				t.Fatalf("session stuck acquiring the microphone (state=%s)", ctrl.State())
			}
			require.Less(t, time.Since(started), 500*time.Millisecond)

			require.Equal(t, fsm.StateClosed, res.State)
			require.True(t, res.Dismissed)
			require.Equal(t, "dismissed", res.Outcome())
			require.True(t, resources.Released())
			require.Equal(t, int32(1), conn.closes.Load())
			require.Zero(t, ind.listening.Load())
			require.Zero(t, mic.capture.opens.Load())
		})
	}
}

func TestCaptureOpenedAfterDismissIsStopped(t *testing.T) {
	mic := newSlowMic(true)
	conn := newFakeConn()
	resources := lifecycle.New(mic, lifecycle.Options{})
	dialer := DialFunc(func(context.Context) (Conn, error) { return conn, nil })
	ctrl := NewController(nil, dialer, resources, nil, nil, Options{})

	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(context.Background()) }()

	<-mic.opening
	send(t, ctrl, "dismiss")

	select {
	case res := <-resultCh:
		require.Equal(t, fsm.StateClosed, res.State)
		require.True(t, res.Dismissed)
	case <-time.After(2 * time.Second):
		t.Fatal("dismiss waited for the microphone")
	}

	close(mic.proceed)
	require.Eventually(t, func() bool { return mic.capture.stops.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), mic.capture.opens.Load())
}

func TestConnectionDroppedWhileAcquiringFails(t *testing.T) {
	mic := newSlowMic(false)
	conn := newFakeConn()
	resources := lifecycle.New(mic, lifecycle.Options{})
	dialer := DialFunc(func(context.Context) (Conn, error) { return conn, nil })
	ctrl := NewController(nil, dialer, resources, nil, nil, Options{})

	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(context.Background()) }()

	<-mic.opening
	conn.closed(fmt.Errorf("%w: reset", stream.ErrConnection))

	select {
	case res := <-resultCh:
		require.Equal(t, fsm.StateFailed, res.State)
		require.ErrorIs(t, res.Err, ErrConnectionDropped)
		require.True(t, resources.Released())
	case <-time.After(2 * time.Second):
		t.Fatal("drop while acquiring did not end the session")
	}
	close(mic.proceed)
}

func TestCancelBeforeAwaitingDismisses(t *testing.T) {
	h := newHarness(t, Options{}, nil)
	h.run(context.Background())
	waitForState(t, h.ctrl, fsm.StateListening)

	send(t, h.ctrl, "cancel")
	res := h.wait(t)
	require.True(t, res.Dismissed)
	require.ErrorIs(t, res.Err, ErrDismissed)
	require.Zero(t, h.conn.eos.Load())
}

func TestRunWithoutDialerFails(t *testing.T) {
	ctrl := NewController(nil, nil, nil, nil, nil, Options{})
	res := ctrl.Run(context.Background())
	require.Equal(t, fsm.StateFailed, res.State)
	require.Error(t, res.Err)
	require.Equal(t, KindInternal, Kind(res.Err))
}

func waitForState(t *testing.T, ctrl *Controller, desired fsm.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State() == desired {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s (current=%s)", desired, ctrl.State())
}
