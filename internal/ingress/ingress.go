// Package ingress reads control frames from one client connection and turns
// them into arena commands. Each connection is served by its own goroutine;
// a fault closes that connection only.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/danmuck/snakeyard/internal/arena"
	"github.com/danmuck/snakeyard/internal/observability"
	"github.com/danmuck/snakeyard/internal/protocol/frame"
	"github.com/danmuck/snakeyard/internal/protocol/schema"
	"github.com/danmuck/snakeyard/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	ErrUnexpectedMessage = errors.New("ingress: unexpected message type")
	ErrJoinTimeout       = errors.New("ingress: join reply timeout")
)

type Config struct {
	// MoveRate and MoveBurst bound Move frames per connection. A zero rate
	// disables the limiter.
	MoveRate     rate.Limit
	MoveBurst    int
	JoinTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MoveRate:     50,
		MoveBurst:    10,
		JoinTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

// Handler feeds the arena's inbound channel.
type Handler struct {
	cfg     Config
	inbound chan<- arena.Command
}

func NewHandler(cfg Config, inbound chan<- arena.Command) *Handler {
	def := DefaultConfig()
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = def.JoinTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Handler{cfg: cfg, inbound: inbound}
}

// ServeConn reads frames until the peer disconnects or sends something
// malformed. It returns nil on a clean disconnect. The caller owns conn.
func (h *Handler) ServeConn(ctx context.Context, conn net.Conn) error {
	remote := conn.RemoteAddr().String()
	reader := frame.NewReader(conn, frame.ControlLimits())
	limiter := rate.NewLimiter(rate.Inf, 0)
	if h.cfg.MoveRate > 0 {
		limiter = rate.NewLimiter(h.cfg.MoveRate, h.cfg.MoveBurst)
	}
	joined := false

	for {
		fr, err := reader.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			observability.RecordIngressDrop("read")
			return fmt.Errorf("ingress: read %s: %w", remote, err)
		}

		switch fr.Header.MessageType {
		case schema.MsgJoin:
			j, err := session.DecodeJoinFrame(fr)
			if err != nil {
				observability.RecordIngressDrop("malformed")
				return err
			}
			if joined {
				log.Warn().Str("remote", remote).Uint64("client_id", j.ClientID).Msg("ingress duplicate join ignored")
				continue
			}
			joined = true
			if err := h.join(ctx, conn, fr.Header.MessageID, j); err != nil {
				return err
			}
		case schema.MsgMove:
			m, err := session.DecodeMoveFrame(fr)
			if err != nil {
				observability.RecordIngressDrop("malformed")
				return err
			}
			if !limiter.Allow() {
				observability.RecordIngressDrop("rate_limited")
				log.Debug().Str("remote", remote).Uint64("client_id", m.ClientID).Msg("ingress move rate limited")
				continue
			}
			h.inbound <- arena.Move{ClientID: m.ClientID, Direction: m.Direction}
		default:
			observability.RecordIngressDrop("unexpected_type")
			return fmt.Errorf("%w: %d", ErrUnexpectedMessage, fr.Header.MessageType)
		}
	}
}

// join hands the request to the arena and writes its single reply.
func (h *Handler) join(ctx context.Context, conn net.Conn, messageID uint64, j session.Join) error {
	reply := make(chan session.JoinAck, 1)
	h.inbound <- arena.Join{ClientID: j.ClientID, Name: j.Name, Reply: reply}

	timer := time.NewTimer(h.cfg.JoinTimeout)
	defer timer.Stop()
	var ack session.JoinAck
	select {
	case ack = <-reply:
	case <-timer.C:
		return ErrJoinTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	payload, err := session.EncodeJoinAckFrame(messageID, ack)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("ingress: write join ack: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	log.Info().
		Str("remote", conn.RemoteAddr().String()).
		Uint64("client_id", ack.ClientID).
		Bool("accepted", ack.Accepted).
		Int("slot", ack.Slot).
		Msg("ingress join answered")
	return nil
}
