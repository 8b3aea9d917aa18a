package arena

import (
	"fmt"
	"strings"

	"github.com/danmuck/snakeyard/internal/protocol/session"
	"github.com/danmuck/snakeyard/internal/yard"
	"github.com/rs/zerolog/log"
)

type player struct {
	clientID uint64
	name     string
}

// Registry binds durable client ids to yard slots. It is owned by the arena
// worker and takes no locks.
type Registry struct {
	yard        *yard.Yard
	snakeLength int
	bySlot      [yard.MaxPlayers]*player
	byClient    map[uint64]int

	// place is the placement hook; tests swap it for scripted positions.
	place func(length int) (int, bool)
}

func NewRegistry(y *yard.Yard, snakeLength int) *Registry {
	return &Registry{
		yard:        y,
		snakeLength: snakeLength,
		byClient:    make(map[uint64]int),
		place:       y.PlaceSnake,
	}
}

// Register places a snake for clientID. A client that already holds a slot
// gets the same slot back. A full room is a rejection with no side effects.
func (r *Registry) Register(clientID uint64, name string) (int, bool) {
	if slot, ok := r.byClient[clientID]; ok {
		log.Debug().Uint64("client_id", clientID).Int("slot", slot).Msg("registry duplicate join")
		return slot, true
	}
	slot, ok := r.place(r.snakeLength)
	if !ok {
		log.Info().Uint64("client_id", clientID).Msg("registry room full")
		return -1, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("player-%d", slot)
	}
	r.bySlot[slot] = &player{clientID: clientID, name: name}
	r.byClient[clientID] = slot
	log.Info().
		Uint64("client_id", clientID).
		Int("slot", slot).
		Str("name", name).
		Msg("registry joined")
	return slot, true
}

// Release turns the failed slots of one tick into Eliminated notices and
// forgets their clients.
func (r *Registry) Release(reports [yard.MaxPlayers]yard.SlotReport, tick uint64) []session.Eliminated {
	var out []session.Eliminated
	for slot, report := range reports {
		if !report.Failed {
			continue
		}
		p := r.bySlot[slot]
		if p == nil {
			log.Warn().Int("slot", slot).Msg("registry failed slot without a player")
			continue
		}
		out = append(out, session.Eliminated{
			ClientID: p.clientID,
			Tick:     tick,
			Score:    report.Score,
		})
		delete(r.byClient, p.clientID)
		r.bySlot[slot] = nil
		log.Info().
			Uint64("client_id", p.clientID).
			Int("slot", slot).
			Uint64("score", report.Score).
			Msg("registry eliminated")
	}
	return out
}

// DispatchControl steers the snake bound to clientID. Unknown or stale ids
// are dropped.
func (r *Registry) DispatchControl(clientID uint64, dir yard.Direction) bool {
	slot, ok := r.byClient[clientID]
	if !ok {
		log.Debug().Uint64("client_id", clientID).Str("dir", dir.String()).Msg("registry move for unknown client")
		return false
	}
	return r.yard.ApplyDirection(slot, dir)
}

// BuildBoard lists every slot with a positive score in ordinal order.
func (r *Registry) BuildBoard() []session.BoardEntry {
	var out []session.BoardEntry
	for slot, p := range r.bySlot {
		score := r.yard.Score(slot)
		if p == nil || score == 0 {
			continue
		}
		out = append(out, session.BoardEntry{
			Color: Palette[slot].Hex(),
			Text:  fmt.Sprintf("%s: %d", p.name, score),
		})
	}
	return out
}

func (r *Registry) Slot(clientID uint64) (int, bool) {
	slot, ok := r.byClient[clientID]
	return slot, ok
}

func (r *Registry) Players() int {
	return len(r.byClient)
}
