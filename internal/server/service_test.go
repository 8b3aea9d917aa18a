package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/snakeyard/internal/protocol/frame"
	"github.com/danmuck/snakeyard/internal/protocol/session"
	"github.com/danmuck/snakeyard/internal/testutil/testlog"
)

type chanSink struct {
	frames chan []byte
	mu     sync.Mutex
	closed bool
}

func newChanSink() *chanSink {
	return &chanSink{frames: make(chan []byte, 4096)}
}

func (s *chanSink) Name() string { return "test" }

func (s *chanSink) Send(b []byte) error {
	select {
	case s.frames <- b:
	default:
	}
	return nil
}

func (s *chanSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *chanSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type running struct {
	svc    *Service
	addr   string
	sink   *chanSink
	cancel context.CancelFunc
	done   chan error
}

func startService(t *testing.T, cfg ServiceConfig) *running {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	svc := NewServiceWithConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{
		svc:    svc,
		addr:   ln.Addr().String(),
		sink:   newChanSink(),
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() {
		r.done <- svc.Serve(ctx, ln, r.sink)
	}()
	t.Cleanup(cancel)
	return r
}

func (r *running) stop(t *testing.T) {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("service did not stop")
	}
}

func join(t *testing.T, addr string, clientID uint64, name string) (net.Conn, session.JoinAck) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	payload, err := session.EncodeJoinFrame(clientID, session.Join{ClientID: clientID, Name: name})
	if err != nil {
		t.Fatalf("encode join: %v", err)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write join: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	fr, err := frame.NewReader(conn, frame.ControlLimits()).ReadFrame()
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	ack, err := session.DecodeJoinAckFrame(fr)
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	return conn, ack
}

func TestServiceJoinAndBroadcast(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultServiceConfig()
	cfg.Arena.TickInterval = 10 * time.Millisecond
	cfg.Arena.Yard.Seed = 7
	r := startService(t, cfg)

	conn, ack := join(t, r.addr, 101, "ada")
	defer conn.Close()
	if !ack.Accepted || ack.Slot != 0 {
		t.Fatalf("ack=%+v", ack)
	}
	if ack.GroupAddr != cfg.GroupAddr {
		t.Fatalf("group=%q want %q", ack.GroupAddr, cfg.GroupAddr)
	}

	var sawSnapshot, sawBoard bool
	deadline := time.After(3 * time.Second)
	for !sawSnapshot || !sawBoard {
		select {
		case raw := <-r.sink.frames:
			_, msg, err := session.DecodeDatagram(raw)
			if err != nil {
				t.Fatalf("decode datagram: %v", err)
			}
			switch m := msg.(type) {
			case session.Snapshot:
				if m.Width != 30 || m.Height != 20 || len(m.Cells) != 600 {
					t.Fatalf("snapshot %dx%d cells=%d", m.Width, m.Height, len(m.Cells))
				}
				sawSnapshot = true
			case session.ScoreBoard:
				sawBoard = m.Tick > 0
			}
		case <-deadline:
			t.Fatalf("snapshot=%v board=%v", sawSnapshot, sawBoard)
		}
	}

	r.stop(t)
	if !r.sink.isClosed() {
		t.Fatalf("sink not closed on shutdown")
	}
}

func TestServiceRoomFull(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultServiceConfig()
	cfg.Arena.TickInterval = time.Hour
	r := startService(t, cfg)

	for i := 0; i < 5; i++ {
		conn, ack := join(t, r.addr, uint64(i+1), "")
		defer conn.Close()
		if !ack.Accepted || ack.Slot != i {
			t.Fatalf("join %d ack=%+v", i, ack)
		}
	}
	conn, ack := join(t, r.addr, 6, "late")
	defer conn.Close()
	if ack.Accepted || ack.Slot != -1 {
		t.Fatalf("sixth join ack=%+v", ack)
	}
	r.stop(t)
}

func TestServiceShutdownClosesClients(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultServiceConfig()
	cfg.Arena.TickInterval = time.Hour
	r := startService(t, cfg)

	conn, _ := join(t, r.addr, 55, "eve")
	defer conn.Close()
	r.stop(t)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expected closed connection after shutdown")
	}
	if n := r.svc.ActiveClients(); n != 0 {
		t.Fatalf("active clients=%d", n)
	}
}

func TestAdminRoutes(t *testing.T) {
	testlog.Start(t)
	svc := NewServiceWithConfig(DefaultServiceConfig())
	router := svc.AdminRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health body=%s", w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "snakeyard_") {
		t.Fatalf("metrics status=%d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/spectate", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("spectate without hub status=%d", w.Code)
	}
}
