package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/voxtrip/internal/audio"
	"github.com/rbright/voxtrip/internal/config"
	"github.com/rbright/voxtrip/internal/indicator"
	"github.com/rbright/voxtrip/internal/ipc"
	"github.com/rbright/voxtrip/internal/lifecycle"
	"github.com/rbright/voxtrip/internal/logging"
	"github.com/rbright/voxtrip/internal/observe"
	"github.com/rbright/voxtrip/internal/output"
	"github.com/rbright/voxtrip/internal/session"
	"github.com/rbright/voxtrip/internal/stream"
	"github.com/rbright/voxtrip/internal/version"
)

// owner holds everything the session-owning process runs besides the
// controller itself.
type owner struct {
	controller *session.Controller
	provider   *observe.Provider
	dump       *os.File
	logger     *slog.Logger
}

func newOwner(ctx context.Context, cfg config.Config, stdout io.Writer, logger *slog.Logger) (*owner, error) {
	o := &owner{logger: logger}

	metrics := observe.Discard()
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version.Version})
	if err != nil {
		logger.Warn("metrics provider unavailable", "error", err.Error())
	} else {
		o.provider = provider
		metrics = observe.DefaultMetrics()
	}

	streamCfg := stream.Config{
		URL:         cfg.Stream.URL,
		Token:       cfg.Stream.Token,
		DialTimeout: time.Duration(cfg.Stream.DialTimeoutMS) * time.Millisecond,
		SendQueue:   cfg.Stream.SendQueue,
		Logger:      logger,
	}
	if cfg.Debug.MessageDump {
		dump, err := logging.CreateDebugFile("stream", "jsonl")
		if err != nil {
			logger.Warn("stream message dump unavailable", "error", err.Error())
		} else {
			o.dump = dump
			streamCfg.MessageSink = dump
			logger.Info("stream message dump enabled", "path", dump.Name())
		}
	}

	extractor, err := output.NewExtractor(cfg.Extract)
	if err != nil {
		o.close(logger)
		return nil, fmt.Errorf("configure extraction: %w", err)
	}

	mic := audio.Microphone{
		Input:      cfg.Audio.Input,
		Fallback:   cfg.Audio.Fallback,
		SampleRate: cfg.Audio.SampleRate,
		Logger:     logger,
	}
	resources := lifecycle.New(lifecycle.MicrophoneFunc(func(ctx context.Context, sink func([]float32)) (lifecycle.Stopper, error) {
		capture, err := mic.Open(ctx, sink)
		if err != nil {
			return nil, err
		}
		return capture, nil
	}), lifecycle.Options{
		FrameSamples: cfg.Stream.FrameSamples,
		FrameQueue:   cfg.Stream.SendQueue,
	})

	o.controller = session.NewController(
		logger,
		session.StreamDialer(streamCfg),
		resources,
		output.NewCommitter(cfg, extractor, stdout, logger),
		indicator.New(cfg.Indicator, logger),
		session.Options{
			FinalizeTimeout: time.Duration(cfg.Stream.FinalizeTimeoutMS) * time.Millisecond,
			AutoConfirm:     cfg.Confirm.Auto,
			Metrics:         metrics,
		},
	)
	return o, nil
}

// run serves IPC (and /metrics when configured) for as long as the session
// runs. A failing IPC server dismisses the session.
func (o *owner) run(ctx context.Context, listener net.Listener, metricsAddr string) (session.Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	server := &ipc.Server{Handler: o.controller, Logger: o.logger}
	g.Go(func() error {
		return server.Serve(serveCtx, listener)
	})

	if addr := strings.TrimSpace(metricsAddr); addr != "" && o.provider != nil {
		g.Go(func() error {
			// Metrics are best effort; a busy port must not end the session.
			if err := o.provider.Serve(serveCtx, addr, o.logger); err != nil {
				o.logger.Warn("metrics endpoint failed", "error", err.Error())
			}
			return nil
		})
	}

	var result session.Result
	g.Go(func() error {
		defer stopServing()
		result = o.controller.Run(gctx)
		return nil
	})

	err := g.Wait()
	return result, err
}

func (o *owner) close(logger *slog.Logger) {
	if o.provider != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := o.provider.Shutdown(shutdownCtx); err != nil {
			logger.Debug("metrics shutdown failed", "error", err.Error())
		}
		cancel()
	}
	if o.dump != nil {
		_ = o.dump.Close()
	}
}
