// Package client is the player side of the yard protocol: a control
// connection for Join and Move, and a broadcast subscription for state.
package client

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/snakeyard/internal/protocol/frame"
	"github.com/danmuck/snakeyard/internal/protocol/session"
	"github.com/danmuck/snakeyard/internal/yard"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrRoomFull      = errors.New("client: room full")
	ErrConnectFailed = errors.New("client: connect failed")
	ErrClosed        = errors.New("client: closed")
)

type Config struct {
	ServerAddr string
	Name       string
	// ClientID is generated when zero.
	ClientID uint64
	// SubscribeAddr replaces the group handed out in the JoinAck. A unicast
	// address is bound directly instead of joining a group.
	SubscribeAddr string
	Interface     string
	Session       session.Config
}

func DefaultConfig() Config {
	return Config{
		ServerAddr: "127.0.0.1:41919",
		Session:    session.DefaultConfig(),
	}
}

// NewClientID derives a random nonzero 64-bit id from a v4 uuid.
func NewClientID() uint64 {
	u := uuid.New()
	id := binary.BigEndian.Uint64(u[:8])
	if id == 0 {
		id = binary.BigEndian.Uint64(u[8:])
	}
	if id == 0 {
		id = 1
	}
	return id
}

type Client struct {
	cfg  Config
	conn net.Conn
	ack  session.JoinAck

	writeMu sync.Mutex
	nextID  atomic.Uint64
	closed  atomic.Bool
}

// Connect dials with backoff, sends one Join and waits for its JoinAck. A
// rejected join returns ErrRoomFull.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ServerAddr) == "" {
		cfg.ServerAddr = DefaultConfig().ServerAddr
	}
	if cfg.ClientID == 0 {
		cfg.ClientID = NewClientID()
	}
	conn, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, conn: conn}
	if err := c.join(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func dial(ctx context.Context, cfg Config) (net.Conn, error) {
	backoff := session.NewBackoff(cfg.Session.Backoff, cfg.ClientID)
	dialer := net.Dialer{Timeout: cfg.Session.ConnectTimeout}
	for {
		conn, err := dialer.DialContext(ctx, "tcp", cfg.ServerAddr)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if limit := cfg.Session.MaxConnectTries; limit > 0 && backoff.Attempts()+1 >= limit {
			return nil, fmt.Errorf("%w: %s after %d tries: %v", ErrConnectFailed, cfg.ServerAddr, limit, err)
		}
		delay := backoff.Next()
		log.Debug().
			Err(err).
			Str("addr", cfg.ServerAddr).
			Int("attempt", backoff.Attempts()).
			Dur("delay", delay).
			Msg("client dial retry")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) join() error {
	id := c.nextID.Add(1)
	payload, err := session.EncodeJoinFrame(id, session.Join{ClientID: c.cfg.ClientID, Name: c.cfg.Name})
	if err != nil {
		return err
	}
	_ = c.conn.SetDeadline(time.Now().Add(c.cfg.Session.HandshakeTimeout))
	defer c.conn.SetDeadline(time.Time{})
	if _, err := c.conn.Write(payload); err != nil {
		return fmt.Errorf("client: write join: %w", err)
	}
	fr, err := frame.NewReader(c.conn, frame.ControlLimits()).ReadFrame()
	if err != nil {
		return fmt.Errorf("client: read join ack: %w", err)
	}
	ack, err := session.DecodeJoinAckFrame(fr)
	if err != nil {
		return err
	}
	if ack.ClientID != c.cfg.ClientID {
		return fmt.Errorf("%w: ack for client %d", session.ErrInvalidJoinAck, ack.ClientID)
	}
	if !ack.Accepted {
		return ErrRoomFull
	}
	c.ack = ack
	log.Info().
		Uint64("client_id", ack.ClientID).
		Int("slot", ack.Slot).
		Str("group", ack.GroupAddr).
		Msg("client joined")
	return nil
}

func (c *Client) ID() uint64 { return c.cfg.ClientID }

func (c *Client) Slot() int { return c.ack.Slot }

func (c *Client) Ack() session.JoinAck { return c.ack }

// Move sends one direction change. The server answers nothing.
func (c *Client) Move(dir yard.Direction) error {
	if c.closed.Load() {
		return ErrClosed
	}
	payload, err := session.EncodeMoveFrame(c.nextID.Add(1), session.Move{ClientID: c.cfg.ClientID, Direction: dir})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.Session.WriteTimeout))
	if _, err := c.conn.Write(payload); err != nil {
		return fmt.Errorf("client: write move: %w", err)
	}
	return nil
}

// Subscribe listens on the broadcast group from the JoinAck, or on
// SubscribeAddr when set.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	addr := strings.TrimSpace(c.cfg.SubscribeAddr)
	if addr == "" {
		addr = c.ack.GroupAddr
	}
	return Subscribe(ctx, addr, c.cfg.Interface)
}

func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}
