// Package indicator handles visual session notices and audio cue playback.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rbright/voxtrip/internal/config"
	"github.com/rbright/voxtrip/internal/hypr"
)

const (
	dispatchTimeout    = 400 * time.Millisecond
	stickyTimeoutMS    = 300000
	transcriptInterval = 250 * time.Millisecond
	maxTranscriptRunes = 120
)

const (
	colorConnecting = "rgb(f9e2af)"
	colorListening  = "rgb(89b4fa)"
	colorFinalizing = "rgb(cba6f7)"
	colorConfirm    = "rgb(a6e3a1)"
	colorError      = "rgb(f38ba8)"
)

// Notifier renders session state through the configured backend: Hyprland
// notifications, freedesktop notifications, or none.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	now      func() time.Time

	mu                    sync.Mutex
	desktopNotificationID uint32
	lastTranscript        time.Time
	soundMu               sync.Mutex
}

// New creates an indicator from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: messagesFor(cfg.Locale),
		now:      time.Now,
	}
}

// ShowConnecting signals that the relay is being dialed.
func (n *Notifier) ShowConnecting(ctx context.Context) {
	n.show(ctx, 1, stickyTimeoutMS, colorConnecting, n.messages.connecting)
}

// ShowListening signals that audio is streaming and emits the start cue.
func (n *Notifier) ShowListening(ctx context.Context) {
	n.playCue(cueStart)
	n.show(ctx, 1, stickyTimeoutMS, colorListening, n.messages.listening)
}

// ShowTranscript replaces the notice with the live transcript. Updates closer
// together than transcriptInterval are skipped.
func (n *Notifier) ShowTranscript(ctx context.Context, text string) {
	if !n.visual() || strings.TrimSpace(text) == "" {
		return
	}
	now := n.now()
	n.mu.Lock()
	if now.Sub(n.lastTranscript) < transcriptInterval {
		n.mu.Unlock()
		return
	}
	n.lastTranscript = now
	n.mu.Unlock()

	n.show(ctx, 1, stickyTimeoutMS, colorListening, truncate(text, maxTranscriptRunes))
}

// ShowFinalizing signals that the stream ended and the final text is pending.
func (n *Notifier) ShowFinalizing(ctx context.Context) {
	n.show(ctx, 1, stickyTimeoutMS, colorFinalizing, n.messages.finalizing)
}

// ShowConfirm presents the transcript for confirmation, or the no-speech
// notice when text is empty.
func (n *Notifier) ShowConfirm(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		n.show(ctx, 0, stickyTimeoutMS, colorError, n.messages.noSpeech)
		return
	}
	n.show(ctx, 5, stickyTimeoutMS, colorConfirm, n.messages.confirmPrompt(truncate(text, maxTranscriptRunes)))
}

// ShowError displays a localized failure message for kind.
func (n *Notifier) ShowError(ctx context.Context, kind string, detail string) {
	text := n.messages.errorFor(kind)
	if detail = strings.TrimSpace(detail); detail != "" {
		text += ": " + truncate(detail, maxTranscriptRunes)
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	n.show(ctx, 3, timeout, colorError, text)
}

// CueStop emits the stop cue.
func (n *Notifier) CueStop(context.Context) {
	n.playCue(cueStop)
}

// CueComplete emits the successful-commit cue.
func (n *Notifier) CueComplete(context.Context) {
	n.playCue(cueComplete)
}

// CueCancel emits the cancel cue.
func (n *Notifier) CueCancel(context.Context) {
	n.playCue(cueCancel)
}

// Hide dismisses the active indicator surface.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.visual() {
		return
	}
	n.run(ctx, n.dismiss)
}

func (n *Notifier) backend() string {
	return strings.ToLower(strings.TrimSpace(n.cfg.Backend))
}

func (n *Notifier) visual() bool {
	return n.cfg.Enable && n.backend() != "none"
}

// show replaces the current notice with text.
func (n *Notifier) show(ctx context.Context, icon int, timeoutMS int, color string, text string) {
	if !n.visual() {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, icon, timeoutMS, color, text)
	})
}

// notify dispatches indicator output through the configured backend.
func (n *Notifier) notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	if n.backend() == "desktop" {
		return n.notifyDesktop(ctx, timeoutMS, text)
	}
	// Hyprland notices stack, so the previous one is cleared first.
	if err := hypr.DismissNotify(ctx); err != nil {
		n.log("indicator dismiss before notify failed", err)
	}
	return hypr.Notify(ctx, icon, timeoutMS, color, text)
}

// dismiss removes indicator output from the configured backend.
func (n *Notifier) dismiss(ctx context.Context) error {
	if n.backend() == "desktop" {
		return n.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, timeoutMS int, text string) error {
	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "voxtrip"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, timeoutMS)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

// dismissDesktop closes the current desktop notification ID when present.
func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		if err := emitCue(ctx, kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}

func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return "…" + string(runes[len(runes)-limit+1:])
}
