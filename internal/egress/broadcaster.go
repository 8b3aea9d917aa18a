// Package egress fans arena broadcasts out to every subscriber sink. Delivery
// is best effort: a failing sink is logged and counted, never retried.
package egress

import (
	"github.com/danmuck/snakeyard/internal/observability"
	"github.com/danmuck/snakeyard/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Sink receives fully encoded broadcast frames.
type Sink interface {
	Name() string
	Send(frame []byte) error
	Close() error
}

type Options struct {
	Compress bool
}

// Broadcaster is the single sender draining the outbound queue.
type Broadcaster struct {
	source <-chan session.Broadcast
	sinks  []Sink
	opts   session.EncodeOptions
	nextID uint64
}

func NewBroadcaster(source <-chan session.Broadcast, opts Options, sinks ...Sink) *Broadcaster {
	return &Broadcaster{
		source: source,
		sinks:  sinks,
		opts:   session.EncodeOptions{Compress: opts.Compress},
	}
}

// Run encodes each message once and hands it to every sink. It returns when
// the source is closed and drained.
func (b *Broadcaster) Run() {
	for msg := range b.source {
		b.publish(msg)
	}
	log.Info().Uint64("sent", b.nextID).Msg("egress source closed")
}

func (b *Broadcaster) publish(msg session.Broadcast) {
	b.nextID++
	kind := typeLabel(msg)
	payload, err := session.EncodeBroadcast(b.nextID, msg, b.opts)
	if err != nil {
		log.Error().Err(err).Str("type", kind).Msg("egress encode failed")
		return
	}
	for _, sink := range b.sinks {
		err := sink.Send(payload)
		observability.RecordEgressSend(sink.Name(), kind, len(payload), err)
		if err != nil {
			log.Warn().Err(err).Str("sink", sink.Name()).Str("type", kind).Msg("egress send failed")
		}
	}
}

func typeLabel(msg session.Broadcast) string {
	switch msg.(type) {
	case session.Snapshot:
		return "snapshot"
	case session.ScoreBoard:
		return "scoreboard"
	case session.Eliminated:
		return "eliminated"
	}
	return "unknown"
}
