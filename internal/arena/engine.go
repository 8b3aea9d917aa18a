package arena

import (
	"context"
	"time"

	"github.com/danmuck/snakeyard/internal/observability"
	"github.com/danmuck/snakeyard/internal/protocol/session"
	"github.com/danmuck/snakeyard/internal/yard"
	"github.com/rs/zerolog/log"
)

// Command is an inbound control message for the arena worker.
type Command interface {
	command()
}

// Join asks for a slot. Reply must have room for one value; the worker never
// blocks on it.
type Join struct {
	ClientID uint64
	Name     string
	Reply    chan<- session.JoinAck
}

type Move struct {
	ClientID  uint64
	Direction yard.Direction
}

func (Join) command() {}
func (Move) command() {}

type Config struct {
	Yard         yard.Config
	TickInterval time.Duration
	// GroupAddr is handed to every joining client as the broadcast group.
	GroupAddr string
}

func DefaultConfig() Config {
	return Config{
		Yard:         yard.DefaultConfig(),
		TickInterval: 100 * time.Millisecond,
	}
}

// Engine is the single worker that owns the yard and the registry.
type Engine struct {
	cfg      Config
	yard     *yard.Yard
	registry *Registry
	inbound  <-chan Command
	outbound chan<- session.Broadcast
}

func NewEngine(cfg Config, inbound <-chan Command, outbound chan<- session.Broadcast) (*Engine, error) {
	y, err := yard.New(cfg.Yard)
	if err != nil {
		return nil, err
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	return &Engine{
		cfg:      cfg,
		yard:     y,
		registry: NewRegistry(y, cfg.Yard.SnakeLength),
		inbound:  inbound,
		outbound: outbound,
	}, nil
}

// Run applies commands as they arrive and advances one tick per interval. It
// returns nil once the inbound channel is closed and drained.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	log.Info().
		Int("width", e.yard.Width()).
		Int("height", e.yard.Height()).
		Dur("tick", e.cfg.TickInterval).
		Msg("arena started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-e.inbound:
			if !ok {
				log.Info().Uint64("tick", e.yard.Tick()).Msg("arena inbound closed")
				return nil
			}
			e.apply(cmd)
		case <-ticker.C:
			if !e.drain() {
				log.Info().Uint64("tick", e.yard.Tick()).Msg("arena inbound closed")
				return nil
			}
			e.step()
		}
	}
}

// drain applies every queued command without blocking. It reports false when
// the inbound channel is closed.
func (e *Engine) drain() bool {
	for {
		select {
		case cmd, ok := <-e.inbound:
			if !ok {
				return false
			}
			e.apply(cmd)
		default:
			return true
		}
	}
}

func (e *Engine) apply(cmd Command) {
	switch c := cmd.(type) {
	case Join:
		slot, accepted := e.registry.Register(c.ClientID, c.Name)
		observability.RecordCommand("join", accepted)
		ack := session.JoinAck{
			ClientID:  c.ClientID,
			Accepted:  accepted,
			Slot:      slot,
			GroupAddr: e.cfg.GroupAddr,
		}
		if c.Reply == nil {
			return
		}
		select {
		case c.Reply <- ack:
		default:
			log.Warn().Uint64("client_id", c.ClientID).Msg("arena join reply dropped")
		}
	case Move:
		applied := e.registry.DispatchControl(c.ClientID, c.Direction)
		observability.RecordCommand("move", applied)
	default:
		log.Warn().Msgf("arena unknown command %T", cmd)
	}
}

// step advances one tick and publishes its snapshot, board and eliminations.
func (e *Engine) step() {
	start := time.Now()
	reports := e.yard.AdvanceTick()
	tick := e.yard.Tick()
	eliminated := e.registry.Release(reports, tick)

	e.outbound <- RenderSnapshot(e.yard)
	e.outbound <- session.ScoreBoard{Tick: tick, Entries: e.registry.BuildBoard()}
	for _, notice := range eliminated {
		e.outbound <- notice
	}
	observability.RecordTick(time.Since(start), e.yard.LiveCount(), len(eliminated))
}
