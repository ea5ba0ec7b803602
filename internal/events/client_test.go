package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tutorcast/internal/config"
)

type fakeConn struct {
	incoming chan Message

	mu     sync.Mutex
	sent   []Message
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan Message, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v any) error {
	select {
	case msg := <-c.incoming:
		*(v.(*Message)) = msg
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, v.(Message))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sentMessages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) push(event string, payload any) {
	data, _ := json.Marshal(payload)
	c.incoming <- Message{Event: event, Data: data}
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  int
	dials int
}

func (d *fakeDialer) Dial(context.Context, string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail > 0 {
		d.fail--
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		if len(d.conns) > i {
			conn := d.conns[i]
			d.mu.Unlock()
			return conn
		}
		d.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection %d never established", i)
	return nil
}

func newTestClient(dialer *fakeDialer, attempts int) *Client {
	cfg := config.Config{}
	cfg.Server.EventsURL = "ws://backend.test/ws"
	cfg.Events.ReconnectAttempts = attempts
	return New(&cfg, WithDialer(dialer))
}

func decodeTopic(t *testing.T, msg Message) string {
	t.Helper()
	var payload topicPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("decode topic payload: %v", err)
	}
	return payload.RecordingID
}

func TestJoinRecordingConnectsAndSubscribes(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer, 5)

	if client.IsConnected() {
		t.Fatalf("client connected before first use")
	}
	if err := client.JoinRecording(context.Background(), "rec-1"); err != nil {
		t.Fatalf("JoinRecording: %v", err)
	}
	if !client.IsConnected() {
		t.Fatalf("client not connected after join")
	}

	sent := dialer.conn(t, 0).sentMessages()
	if len(sent) != 1 || sent[0].Event != eventJoinRecording {
		t.Fatalf("sent = %+v, want one join-recording", sent)
	}
	if id := decodeTopic(t, sent[0]); id != "rec-1" {
		t.Fatalf("joined id = %q", id)
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer, 5)

	for i := 0; i < 3; i++ {
		if err := client.Connect(context.Background()); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	if dialer.dialCount() != 1 {
		t.Fatalf("dials = %d, want 1", dialer.dialCount())
	}
}

func TestUpdateFanOutByRecordingID(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer, 5)

	got := make(chan ProcessingUpdate, 4)
	client.OnProcessingUpdate("rec-1", func(u ProcessingUpdate) { got <- u })
	client.OnProcessingUpdate("rec-1", func(u ProcessingUpdate) { got <- u })
	other := make(chan ProcessingUpdate, 1)
	client.OnProcessingUpdate("rec-2", func(u ProcessingUpdate) { other <- u })

	if err := client.JoinRecording(context.Background(), "rec-1"); err != nil {
		t.Fatalf("JoinRecording: %v", err)
	}
	conn := dialer.conn(t, 0)
	conn.push(eventProcessingUpdate, ProcessingUpdate{Step: "transcribing", RecordingID: "rec-1", Timestamp: "2026-02-03T10:00:01Z"})
	conn.push(eventProcessingUpdate, ProcessingUpdate{Step: "merging", RecordingID: "rec-unknown", Timestamp: "2026-02-03T10:00:02Z"})

	for i := 0; i < 2; i++ {
		select {
		case update := <-got:
			if update.Step != "transcribing" || update.RecordingID != "rec-1" {
				t.Fatalf("update = %+v", update)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("listener %d never invoked", i)
		}
	}
	select {
	case update := <-other:
		t.Fatalf("rec-2 listener invoked with %+v", update)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProcessingUpdateWireShape(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer, 5)

	got := make(chan ProcessingUpdate, 1)
	client.OnProcessingUpdate("rec-9", func(u ProcessingUpdate) { got <- u })
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// The server sends ISO-8601 timestamps, not epoch numbers.
	raw := json.RawMessage(`{"step":"ai-processing","recordingId":"rec-9","timestamp":"2026-02-03T10:15:00.123Z"}`)
	dialer.conn(t, 0).incoming <- Message{Event: eventProcessingUpdate, Data: raw}

	select {
	case update := <-got:
		if update.Step != "ai-processing" || update.Timestamp != "2026-02-03T10:15:00.123Z" {
			t.Fatalf("update = %+v", update)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("string-timestamp payload dropped as malformed")
	}
}

func TestUnsubscribeRemovesOnlyThatListener(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer, 5)

	first := make(chan ProcessingUpdate, 1)
	second := make(chan ProcessingUpdate, 1)
	unsubscribe := client.OnProcessingUpdate("rec-1", func(u ProcessingUpdate) { first <- u })
	client.OnProcessingUpdate("rec-1", func(u ProcessingUpdate) { second <- u })
	unsubscribe()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dialer.conn(t, 0).push(eventProcessingUpdate, ProcessingUpdate{Step: "merging", RecordingID: "rec-1"})

	select {
	case update := <-second:
		if update.Step != "merging" {
			t.Fatalf("update = %+v", update)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("surviving listener never invoked")
	}
	select {
	case <-first:
		t.Fatalf("unsubscribed listener invoked")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProcessingErrorDelivery(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer, 5)

	got := make(chan ProcessingError, 1)
	client.OnProcessingError("rec-1", func(e ProcessingError) { got <- e })
	if err := client.JoinRecording(context.Background(), "rec-1"); err != nil {
		t.Fatalf("JoinRecording: %v", err)
	}

	dialer.conn(t, 0).push(eventProcessingError, ProcessingError{
		Step:        "failed",
		RecordingID: "rec-1",
		Error:       "ffmpeg crashed",
		Timestamp:   "2026-02-03T10:00:03Z",
	})

	select {
	case procErr := <-got:
		if procErr.Error != "ffmpeg crashed" || procErr.Step != "failed" {
			t.Fatalf("error event = %+v", procErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("error listener never invoked")
	}
}

func TestLeaveRecordingDropsListeners(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer, 5)

	got := make(chan ProcessingUpdate, 1)
	client.OnProcessingUpdate("rec-1", func(u ProcessingUpdate) { got <- u })
	if err := client.JoinRecording(context.Background(), "rec-1"); err != nil {
		t.Fatalf("JoinRecording: %v", err)
	}
	if err := client.LeaveRecording("rec-1"); err != nil {
		t.Fatalf("LeaveRecording: %v", err)
	}

	conn := dialer.conn(t, 0)
	sent := conn.sentMessages()
	if len(sent) != 2 || sent[1].Event != eventLeaveRecording {
		t.Fatalf("sent = %+v, want join then leave", sent)
	}

	conn.push(eventProcessingUpdate, ProcessingUpdate{Step: "merging", RecordingID: "rec-1"})
	select {
	case update := <-got:
		t.Fatalf("listener invoked after leave: %+v", update)
	case <-time.After(50 * time.Millisecond):
	}
}

// serialConn flags any overlapping WriteJSON calls; gorilla/websocket
// panics when two writers hit the connection at once, so the client must
// never let that happen.
type serialConn struct {
	closed   chan struct{}
	once     sync.Once
	inFlight atomic.Bool
	overlaps atomic.Int32
	writes   atomic.Int32
}

func (c *serialConn) ReadJSON(any) error {
	<-c.closed
	return errors.New("connection closed")
}

func (c *serialConn) WriteJSON(any) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.overlaps.Add(1)
		return nil
	}
	c.writes.Add(1)
	time.Sleep(50 * time.Microsecond)
	c.inFlight.Store(false)
	return nil
}

func (c *serialConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type serialDialer struct {
	conn *serialConn
}

func (d *serialDialer) Dial(context.Context, string) (Conn, error) {
	return d.conn, nil
}

func TestConcurrentJoinLeaveWritesSerially(t *testing.T) {
	conn := &serialConn{closed: make(chan struct{})}
	cfg := config.Config{}
	cfg.Server.EventsURL = "ws://backend.test/ws"
	cfg.Events.ReconnectAttempts = 5
	client := New(&cfg, WithDialer(&serialDialer{conn: conn}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("rec-%d", n)
			if err := client.JoinRecording(context.Background(), id); err != nil {
				t.Errorf("JoinRecording(%s): %v", id, err)
				return
			}
			if err := client.LeaveRecording(id); err != nil {
				t.Errorf("LeaveRecording(%s): %v", id, err)
			}
		}(i)
	}
	wg.Wait()
	client.Disconnect()

	if n := conn.overlaps.Load(); n != 0 {
		t.Fatalf("overlapping WriteJSON calls = %d, want 0", n)
	}
	if n := conn.writes.Load(); n != 100 {
		t.Fatalf("writes = %d, want 100", n)
	}
}

func TestReconnectRejoinsTopics(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer, 3)

	got := make(chan ProcessingUpdate, 1)
	client.OnProcessingUpdate("rec-1", func(u ProcessingUpdate) { got <- u })
	if err := client.JoinRecording(context.Background(), "rec-1"); err != nil {
		t.Fatalf("JoinRecording: %v", err)
	}

	dialer.conn(t, 0).Close()

	replacement := dialer.conn(t, 1)
	deadline := time.Now().Add(2 * time.Second)
	for {
		sent := replacement.sentMessages()
		if len(sent) == 1 && sent[0].Event == eventJoinRecording && decodeTopic(t, sent[0]) == "rec-1" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("rejoin never sent, messages = %+v", sent)
		}
		time.Sleep(5 * time.Millisecond)
	}

	replacement.push(eventProcessingUpdate, ProcessingUpdate{Step: "ai-processing", RecordingID: "rec-1"})
	select {
	case update := <-got:
		if update.Step != "ai-processing" {
			t.Fatalf("update = %+v", update)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("listener never invoked after reconnect")
	}
}

func TestReconnectGivesUpAfterBoundedAttempts(t *testing.T) {
	dialer := &fakeDialer{fail: 0}
	client := newTestClient(dialer, 2)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dialer.mu.Lock()
	dialer.fail = 10
	dialer.mu.Unlock()

	dialer.conn(t, 0).Close()

	deadline := time.Now().Add(2 * time.Second)
	for dialer.dialCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("reconnect attempts = %d, want 2 more after initial dial", dialer.dialCount()-1)
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if n := dialer.dialCount(); n != 3 {
		t.Fatalf("dials = %d, want initial + 2 bounded retries", n)
	}
	if client.IsConnected() {
		t.Fatalf("client reports connected after abandoning reconnect")
	}
}

func TestDisconnectStopsReconnection(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(dialer, 5)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	client.Disconnect()
	if client.IsConnected() {
		t.Fatalf("client connected after Disconnect")
	}

	time.Sleep(50 * time.Millisecond)
	if dialer.dialCount() != 1 {
		t.Fatalf("dials = %d, want 1 (no reconnect after manual teardown)", dialer.dialCount())
	}
}
