package linkwatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errFake = errors.New("fake transport error")

type fakeClient struct {
	mu         sync.Mutex
	recv       ReceiveHandler
	state      StateHandler
	connectErr error
	connectCh  chan struct{} // when set, Connect waits for it
	sendErr    error
	sent       [][]byte

	// when sendGate is set, Send signals sendEntered and waits for the gate
	sendGate    chan struct{}
	sendEntered chan struct{}

	connects atomic.Int32
}

var _ ClientTransport = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{}
}

func (f *fakeClient) Connect(ctx context.Context, _ time.Duration) error {
	f.connects.Add(1)

	f.mu.Lock()
	ch := f.connectCh
	f.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connectErr
}

func (f *fakeClient) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connectErr = err
}

func (f *fakeClient) setSendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sendErr = err
}

func (f *fakeClient) Send(p []byte) error {
	f.mu.Lock()
	gate := f.sendGate
	f.mu.Unlock()
	if gate != nil {
		f.sendEntered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, append([]byte(nil), p...))

	return f.sendErr
}

func (f *fakeClient) gateSends() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	gate := make(chan struct{})
	f.sendGate = gate
	f.sendEntered = make(chan struct{}, 16)

	return f.sendEntered, func() {
		f.mu.Lock()
		f.sendGate = nil
		f.mu.Unlock()
		close(gate)
	}
}

func (f *fakeClient) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sent)
}

func (f *fakeClient) ReceiveHandler() ReceiveHandler {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.recv
}

func (f *fakeClient) SetReceiveHandler(h ReceiveHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.recv = h
}

func (f *fakeClient) SetStateHandler(h StateHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state = h
}

func (f *fakeClient) stateHandler() StateHandler {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

// deliver simulates inbound data.
func (f *fakeClient) deliver(p []byte) {
	if h := f.ReceiveHandler(); h != nil {
		h(p)
	}
}

func (f *fakeClient) Close() error { return nil }

type fakeListener struct {
	mu        sync.Mutex
	recv      ReceiveHandler
	state     StateHandler
	sessions  SessionHandler
	listenErr int // number of StartListen calls that fail
	closedIDs []SessionID
	closedAt  map[SessionID]time.Time
	sentTo    map[SessionID][][]byte

	listens atomic.Int32
}

var _ ListenerTransport = (*fakeListener)(nil)

func newFakeListener() *fakeListener {
	return &fakeListener{
		closedAt: make(map[SessionID]time.Time),
		sentTo:   make(map[SessionID][][]byte),
	}
}

func (f *fakeListener) StartListen() error {
	f.listens.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listenErr > 0 {
		f.listenErr--
		return errFake
	}

	return nil
}

func (f *fakeListener) Send(_ []byte) error { return nil }

func (f *fakeListener) ReceiveHandler() ReceiveHandler {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.recv
}

func (f *fakeListener) SetReceiveHandler(h ReceiveHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.recv = h
}

func (f *fakeListener) SetStateHandler(h StateHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state = h
}

func (f *fakeListener) SessionHandler() SessionHandler {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sessions
}

func (f *fakeListener) SetSessionHandler(h SessionHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessions = h
}

func (f *fakeListener) SendTo(id SessionID, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sentTo[id] = append(f.sentTo[id], append([]byte(nil), p...))

	return nil
}

func (f *fakeListener) CloseSession(id SessionID) error {
	f.mu.Lock()
	f.closedIDs = append(f.closedIDs, id)
	f.closedAt[id] = time.Now()
	h := f.sessions
	f.mu.Unlock()

	if h.Closed != nil {
		h.Closed(id)
	}

	return nil
}

func (f *fakeListener) Close() error { return nil }

func (f *fakeListener) open(id SessionID) {
	if h := f.SessionHandler(); h.Opened != nil {
		h.Opened(id)
	}
}

func (f *fakeListener) data(id SessionID, p []byte) {
	if h := f.SessionHandler(); h.Data != nil {
		h.Data(id, p)
	}
}

func (f *fakeListener) closedTime(id SessionID) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	at, ok := f.closedAt[id]

	return at, ok
}

func (f *fakeListener) noticesTo(id SessionID) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sentTo[id])
}

type fakeDriver struct {
	mu sync.Mutex
	fn func(State)
}

func (d *fakeDriver) SubscribeStatus(name string, fn func(State)) {
	if name != ConnectionStatusName {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.fn = fn
}

func (d *fakeDriver) publish(s State) {
	d.mu.Lock()
	fn := d.fn
	d.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

type statusEvent struct {
	handle Handle
	status State
}

type statusRecorder struct {
	mu     sync.Mutex
	events []statusEvent
}

func (r *statusRecorder) handle(h Handle, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, statusEvent{handle: h, status: s})
}

func (r *statusRecorder) all() []statusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]statusEvent(nil), r.events...)
}

func (r *statusRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.events)
}

func (r *statusRecorder) count(s State) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ev := range r.events {
		if ev.status == s {
			n++
		}
	}

	return n
}

type memConnLog struct {
	mu      sync.Mutex
	records []Record
}

func (l *memConnLog) Record(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, rec)

	return nil
}

func (l *memConnLog) all() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]Record(nil), l.records...)
}
