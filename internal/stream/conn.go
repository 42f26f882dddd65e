// Package stream implements the recognition relay protocol over a websocket:
// binary PCM frames and an end-of-stream marker out, transcript messages in.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/rbright/voxtrip/internal/frame"
	"github.com/rbright/voxtrip/internal/logging"
)

var (
	// ErrConnection indicates the relay could not be reached or the link failed.
	ErrConnection = errors.New("stream connection failed")
	// ErrProtocol indicates an inbound message did not match the relay contract.
	ErrProtocol = errors.New("malformed stream message")
	// ErrClosed indicates a send after the connection was closed.
	ErrClosed = errors.New("stream closed")
	// ErrEndOfStreamSent indicates a send after end-of-stream.
	ErrEndOfStreamSent = errors.New("end of stream already sent")
	// ErrQueueFull indicates the outbound queue could not accept a frame.
	ErrQueueFull = errors.New("stream send queue full")
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultSendQueue   = 256
	writeTimeout       = 5 * time.Second
	readLimit          = 1 << 20
)

// Config controls one relay connection.
type Config struct {
	URL         string
	Token       string
	DialTimeout time.Duration
	SendQueue   int
	Logger      *slog.Logger
	// MessageSink receives every inbound payload as one JSON line when set.
	MessageSink io.Writer
}

// Event is one of MessageEvent, MalformedEvent, or ClosedEvent.
type Event interface {
	isEvent()
}

// MessageEvent carries a well-formed inbound message.
type MessageEvent struct {
	Message Message
}

// MalformedEvent reports an inbound payload that violated the contract.
type MalformedEvent struct {
	Err error
}

// ClosedEvent is delivered exactly once when the connection ends.
// Err is nil for a normal closure.
type ClosedEvent struct {
	Err error
}

func (MessageEvent) isEvent()   {}
func (MalformedEvent) isEvent() {}
func (ClosedEvent) isEvent()    {}

type outbound struct {
	typ  websocket.MessageType
	data []byte
}

// Conn is one open relay connection. Sends are ordered and non-blocking;
// inbound traffic is delivered through Events.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger
	sink   io.Writer

	out      chan outbound
	events   chan Event
	released chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	eosSent bool

	closing   atomic.Bool
	closeOnce sync.Once
	endOnce   sync.Once
	endErr    error
	wg        sync.WaitGroup

	framesSent atomic.Int64
	bytesSent  atomic.Int64
}

// Dial opens a connection to the relay. It returns either a ready connection
// or an error wrapping ErrConnection, never both.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	target := strings.TrimSpace(cfg.URL)
	if target == "" {
		return nil, fmt.Errorf("%w: relay url is empty", ErrConnection)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	headers := http.Header{}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, target, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnection, redactURL(target), err)
	}
	ws.SetReadLimit(readLimit)

	return newConn(ws, cfg), nil
}

func newConn(ws *websocket.Conn, cfg Config) *Conn {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:       ws,
		logger:   logger,
		sink:     cfg.MessageSink,
		out:      make(chan outbound, cfg.SendQueue),
		events:   make(chan Event, 64),
		released: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.wg.Add(2)
	go c.writeLoop()
	go c.readLoop()
	return c
}

// SendFrame queues one frame as a binary message. It never blocks.
func (c *Conn) SendFrame(f frame.Frame) error {
	if len(f) == 0 {
		return nil
	}
	return c.enqueue(outbound{typ: websocket.MessageBinary, data: f.Bytes()}, false)
}

// SendEndOfStream queues the end-of-stream marker behind all queued frames.
// It may succeed at most once per connection.
func (c *Conn) SendEndOfStream() error {
	return c.enqueue(outbound{typ: websocket.MessageText, data: endOfStream}, true)
}

func (c *Conn) enqueue(msg outbound, eos bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing.Load() || c.ctx.Err() != nil {
		return ErrClosed
	}
	if c.eosSent {
		return ErrEndOfStreamSent
	}

	if !eos {
		select {
		case c.out <- msg:
			return nil
		default:
			return ErrQueueFull
		}
	}

	select {
	case c.out <- msg:
		c.eosSent = true
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// Events returns inbound events. Exactly one ClosedEvent is delivered last,
// then the channel is closed.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// FramesSent reports binary frames written to the socket.
func (c *Conn) FramesSent() int64 {
	return c.framesSent.Load()
}

// BytesSent reports binary payload bytes written to the socket.
func (c *Conn) BytesSent() int64 {
	return c.bytesSent.Load()
}

// Close ends the connection with a normal closure. Queued but unwritten
// messages are discarded. It is idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.released)

		err = c.ws.Close(websocket.StatusNormalClosure, "session released")
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		c.end(nil)
		c.wg.Wait()
	})
	return err
}

// end records why the connection finished and stops both loops. First call wins.
func (c *Conn) end(err error) {
	c.endOnce.Do(func() {
		c.endErr = err
		c.cancel()
	})
}

func (c *Conn) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.out:
			writeCtx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.ws.Write(writeCtx, msg.typ, msg.data)
			cancel()
			if err != nil {
				if !c.closing.Load() {
					c.end(fmt.Errorf("%w: write: %w", ErrConnection, err))
				}
				return
			}
			if msg.typ == websocket.MessageBinary {
				c.framesSent.Add(1)
				c.bytesSent.Add(int64(len(msg.data)))
			}
		}
	}
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			c.end(c.classifyReadErr(err))
			c.deliver(ClosedEvent{Err: c.endErr})
			return
		}

		c.dump(typ, data)

		if typ != websocket.MessageText {
			c.deliver(MalformedEvent{Err: fmt.Errorf("%w: unexpected binary message (%d bytes)", ErrProtocol, len(data))})
			continue
		}
		msg, err := Decode(data)
		if err != nil {
			c.deliver(MalformedEvent{Err: err})
			continue
		}
		c.deliver(MessageEvent{Message: msg})
	}
}

// deliver blocks until the consumer reads ev or the owner releases the connection.
func (c *Conn) deliver(ev Event) {
	select {
	case c.events <- ev:
	case <-c.released:
	}
}

// classifyReadErr maps a read failure onto the close reason reported to consumers.
func (c *Conn) classifyReadErr(err error) error {
	if c.closing.Load() {
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	case -1:
		return fmt.Errorf("%w: read: %w", ErrConnection, err)
	default:
		return fmt.Errorf("%w: remote closed: %w", ErrConnection, err)
	}
}

// dump writes one inbound payload to the debug sink when configured.
func (c *Conn) dump(typ websocket.MessageType, data []byte) {
	if c.sink == nil {
		return
	}
	entry := struct {
		Time    time.Time       `json:"time"`
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload,omitempty"`
		Bytes   int             `json:"bytes"`
	}{
		Time:  time.Now().UTC(),
		Type:  typ.String(),
		Bytes: len(data),
	}
	if typ == websocket.MessageText && json.Valid(data) {
		entry.Payload = data
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if _, err := c.sink.Write(append(b, '\n')); err != nil {
		c.logger.Debug("stream message dump failed", "error", err.Error())
	}
}

// redactURL drops credentials and query parameters from a relay URL for error text.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "relay"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}
