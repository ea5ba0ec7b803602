package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tutorcast/internal/config"
	"tutorcast/internal/logging"
)

// Conn is the minimal connection surface the client needs. Satisfied by
// *websocket.Conn; tests substitute a fake.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Dialer establishes connections to the events endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// Client is the shared push-event connection. One connection serves every
// joined recording; incoming messages are demultiplexed by recording id and
// fanned out to that id's listeners.
type Client struct {
	url     string
	dialer  Dialer
	logger  *slog.Logger
	retries int
	delay   time.Duration

	// writeMu serializes every WriteJSON; gorilla/websocket allows at
	// most one concurrent writer per connection. Locked after mu, never
	// the other way around.
	writeMu sync.Mutex

	mu        sync.Mutex
	conn      Conn
	connected bool
	closed    bool
	joined    map[string]struct{}
	updates   map[string]map[uint64]func(ProcessingUpdate)
	errors    map[string]map[uint64]func(ProcessingError)
	nextSub   uint64
}

// Option customizes a Client.
type Option func(*Client)

// WithDialer substitutes the transport used to reach the backend.
func WithDialer(dialer Dialer) Option {
	return func(c *Client) { c.dialer = dialer }
}

// WithLogger sets the logger used for connection lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a client for the configured events endpoint. No connection is
// made until Connect or the first JoinRecording.
func New(cfg *config.Config, opts ...Option) *Client {
	client := &Client{
		url:     cfg.Server.EventsURL,
		dialer:  wsDialer{},
		logger:  logging.Discard(),
		retries: cfg.Events.ReconnectAttempts,
		delay:   time.Duration(cfg.Events.ReconnectDelay) * time.Second,
		joined:  make(map[string]struct{}),
		updates: make(map[string]map[uint64]func(ProcessingUpdate)),
		errors:  make(map[string]map[uint64]func(ProcessingError)),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Connect establishes the shared connection. Calling it while connected is
// a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		return err
	}
	c.conn = conn
	c.connected = true
	c.closed = false
	go c.readLoop(conn)
	c.logger.Debug("events connected", "url", c.url)
	return nil
}

// IsConnected reports the current transport state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnect tears the connection down and disables reconnection until the
// next Connect. Listener registrations and joined topics survive.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.closed = true
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// JoinRecording subscribes the connection to one recording's topic,
// connecting first if needed.
func (c *Client) JoinRecording(ctx context.Context, recordingID string) error {
	msg, err := newTopicMessage(eventJoinRecording, recordingID)
	if err != nil {
		return fmt.Errorf("encode join: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		if err := c.connectLocked(ctx); err != nil {
			return err
		}
	}
	c.joined[recordingID] = struct{}{}
	if err := c.send(c.conn, msg); err != nil {
		return fmt.Errorf("join recording %s: %w", recordingID, err)
	}
	return nil
}

func (c *Client) send(conn Conn, msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// LeaveRecording unsubscribes from the topic and discards every listener
// registered for that recording.
func (c *Client) LeaveRecording(recordingID string) error {
	c.mu.Lock()
	delete(c.joined, recordingID)
	delete(c.updates, recordingID)
	delete(c.errors, recordingID)
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	msg, err := newTopicMessage(eventLeaveRecording, recordingID)
	if err != nil {
		return fmt.Errorf("encode leave: %w", err)
	}
	if err := c.send(conn, msg); err != nil {
		return fmt.Errorf("leave recording %s: %w", recordingID, err)
	}
	return nil
}

// OnProcessingUpdate registers a listener for one recording's update
// events. The returned func removes exactly this registration.
func (c *Client) OnProcessingUpdate(recordingID string, fn func(ProcessingUpdate)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updates[recordingID] == nil {
		c.updates[recordingID] = make(map[uint64]func(ProcessingUpdate))
	}
	c.nextSub++
	id := c.nextSub
	c.updates[recordingID][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if set, ok := c.updates[recordingID]; ok {
			delete(set, id)
		}
	}
}

// OnProcessingError registers a listener for one recording's failure
// events. The returned func removes exactly this registration.
func (c *Client) OnProcessingError(recordingID string, fn func(ProcessingError)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errors[recordingID] == nil {
		c.errors[recordingID] = make(map[uint64]func(ProcessingError))
	}
	c.nextSub++
	id := c.nextSub
	c.errors[recordingID][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if set, ok := c.errors[recordingID]; ok {
			delete(set, id)
		}
	}
}

// readLoop owns conn until it fails or is replaced. On transport failure it
// attempts a bounded reconnect and rejoins the previously joined topics.
func (c *Client) readLoop(conn Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	switch msg.Event {
	case eventProcessingUpdate:
		var update ProcessingUpdate
		if err := unmarshalData(msg.Data, &update); err != nil {
			c.logger.Warn("malformed processing-update", "error", err)
			return
		}
		for _, fn := range c.updateListeners(update.RecordingID) {
			fn(update)
		}
	case eventProcessingError:
		var procErr ProcessingError
		if err := unmarshalData(msg.Data, &procErr); err != nil {
			c.logger.Warn("malformed processing-error", "error", err)
			return
		}
		for _, fn := range c.errorListeners(procErr.RecordingID) {
			fn(procErr)
		}
	default:
		// other server events carry nothing we track
	}
}

func (c *Client) updateListeners(recordingID string) []func(ProcessingUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.updates[recordingID]
	fns := make([]func(ProcessingUpdate), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	return fns
}

func (c *Client) errorListeners(recordingID string) []func(ProcessingError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.errors[recordingID]
	fns := make([]func(ProcessingError), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	return fns
}

func (c *Client) handleDisconnect(failed Conn, cause error) {
	c.mu.Lock()
	if c.conn != failed {
		// a newer connection took over; this loop is obsolete
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	closed := c.closed
	c.mu.Unlock()
	failed.Close()

	if closed {
		return
	}
	c.logger.Warn("events connection lost", "error", cause)
	c.reconnect()
}

func (c *Client) reconnect() {
	for attempt := 1; attempt <= c.retries; attempt++ {
		time.Sleep(c.delay)

		c.mu.Lock()
		if c.closed || c.connected {
			c.mu.Unlock()
			return
		}
		err := c.connectLocked(context.Background())
		if err == nil {
			joined := make([]string, 0, len(c.joined))
			for id := range c.joined {
				joined = append(joined, id)
			}
			conn := c.conn
			c.mu.Unlock()
			for _, id := range joined {
				msg, encErr := newTopicMessage(eventJoinRecording, id)
				if encErr != nil {
					continue
				}
				if writeErr := c.send(conn, msg); writeErr != nil {
					c.logger.Warn("rejoin failed", "recording", id, "error", writeErr)
				}
			}
			c.logger.Info("events reconnected", "attempt", attempt)
			return
		}
		c.mu.Unlock()
		c.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
	}
	c.logger.Error("events connection abandoned", "attempts", c.retries)
}
