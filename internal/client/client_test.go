package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/snakeyard/internal/egress"
	"github.com/danmuck/snakeyard/internal/protocol/session"
	"github.com/danmuck/snakeyard/internal/server"
	"github.com/danmuck/snakeyard/internal/testutil/testlog"
	"github.com/danmuck/snakeyard/internal/yard"
)

type discardSink struct{}

func (discardSink) Name() string      { return "discard" }
func (discardSink) Send([]byte) error { return nil }
func (discardSink) Close() error      { return nil }

func startServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cfg := server.DefaultServiceConfig()
	cfg.Arena.TickInterval = time.Hour
	svc := server.NewServiceWithConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx, ln, discardSink{}) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	return ln.Addr().String()
}

func testConfig(addr string) Config {
	cfg := DefaultConfig()
	cfg.ServerAddr = addr
	cfg.Session.ConnectTimeout = time.Second
	cfg.Session.HandshakeTimeout = 2 * time.Second
	return cfg
}

func TestConnectJoinAndMove(t *testing.T) {
	testlog.Start(t)
	addr := startServer(t)

	cfg := testConfig(addr)
	cfg.Name = "ada"
	c, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if c.ID() == 0 {
		t.Fatalf("client id not generated")
	}
	if c.Slot() != 0 || c.Ack().GroupAddr != server.DefaultServiceConfig().GroupAddr {
		t.Fatalf("ack=%+v", c.Ack())
	}
	if err := c.Move(yard.Up); err != nil {
		t.Fatalf("move: %v", err)
	}
	_ = c.Close()
	if err := c.Move(yard.Left); !errors.Is(err, ErrClosed) {
		t.Fatalf("move after close: %v", err)
	}
}

func TestConnectRoomFull(t *testing.T) {
	testlog.Start(t)
	addr := startServer(t)

	for i := 0; i < yard.MaxPlayers; i++ {
		c, err := Connect(context.Background(), testConfig(addr))
		if err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
		defer c.Close()
	}
	if _, err := Connect(context.Background(), testConfig(addr)); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
}

func TestConnectGivesUpAfterMaxTries(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := testConfig(addr)
	cfg.Session.MaxConnectTries = 3
	cfg.Session.Backoff.InitialDelay = time.Millisecond
	cfg.Session.Backoff.MaxDelay = 5 * time.Millisecond
	if _, err := Connect(context.Background(), cfg); !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}
}

func TestSubscribeDropsStaleSnapshots(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := Subscribe(ctx, "127.0.0.1:0", "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	mc := egress.DefaultMulticastConfig()
	mc.Group = sub.Addr().String()
	sink, err := egress.NewMulticastSink(mc)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	defer sink.Close()

	snapshot := func(tick uint64) session.Snapshot {
		return session.Snapshot{Tick: tick, Width: 1, Height: 1, Cells: []session.Cell{{Glyph: "  "}}}
	}
	send := func(id uint64, b session.Broadcast) {
		payload, err := session.EncodeBroadcast(id, b, session.EncodeOptions{})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := sink.Send(payload); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	send(1, snapshot(5))
	send(2, snapshot(3))
	send(3, session.Eliminated{ClientID: 8, Tick: 5, Score: 2})

	var got []session.Broadcast
	for len(got) < 2 {
		select {
		case msg := <-sub.Messages():
			got = append(got, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d messages", len(got))
		}
	}
	if s, ok := got[0].(session.Snapshot); !ok || s.Tick != 5 {
		t.Fatalf("first=%#v", got[0])
	}
	if _, ok := got[1].(session.Eliminated); !ok {
		t.Fatalf("stale snapshot delivered: %#v", got[1])
	}

	cancel()
	select {
	case _, ok := <-sub.Messages():
		if ok {
			t.Fatalf("unexpected message after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription not closed")
	}
}

func TestNewClientIDNonZero(t *testing.T) {
	testlog.Start(t)
	seen := make(map[uint64]struct{})
	for i := 0; i < 64; i++ {
		id := NewClientID()
		if id == 0 {
			t.Fatalf("zero id")
		}
		seen[id] = struct{}{}
	}
	if len(seen) < 60 {
		t.Fatalf("ids collide: %d distinct", len(seen))
	}
}
