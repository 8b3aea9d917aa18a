package yard

import "github.com/rs/zerolog/log"

// AdvanceTick runs one full pass: stall countdown and movement per slot in
// ordinal order, bonus commit, cleanup of failed slots, bean refill. The
// returned reports carry each slot's score and whether it failed this tick;
// failed slots are already free when AdvanceTick returns.
func (y *Yard) AdvanceTick() [MaxPlayers]SlotReport {
	y.move()
	reports := y.cleanup()
	y.RefillBeans()
	y.tick++
	return reports
}

func (y *Yard) move() {
	for i := 0; i < MaxPlayers; i++ {
		s := &y.slots[i]
		if s.snake == nil || s.failed {
			continue
		}
		if s.stall > 0 {
			s.stall--
			continue
		}

		head := s.snake.Head()
		next := head.Step(s.snake.dir)
		if !y.InBounds(next) {
			y.markFailed(i, "wall")
			continue
		}
		y.set(head, Block{Kind: Body, Slot: i})

		dest := y.grid[y.index(next)]
		switch dest.Kind {
		case Empty:
			y.set(next, Block{Kind: Head, Slot: i, Dir: s.snake.dir})
			s.snake.pushHead(next)
			y.set(s.snake.popTail(), Block{})
		case Bean:
			y.set(next, Block{Kind: Head, Slot: i, Dir: s.snake.dir})
			s.snake.pushHead(next)
			s.bonus++
			y.beans--
		case Body:
			y.markFailed(i, "body")
			if dest.Slot != i {
				y.slots[dest.Slot].bonus += s.score
			}
		case Head:
			y.collideHeads(i, dest.Slot)
		}
	}
}

// collideHeads resolves mover running into owner's head. A lower-ordinal
// owner has already moved this tick and wins outright; a higher-ordinal owner
// has not moved yet and both snakes fail. Stall-protected owners never fail.
// Two adjacent heads facing each other therefore both fail.
func (y *Yard) collideHeads(mover, owner int) {
	y.markFailed(mover, "head")
	o := &y.slots[owner]
	if owner < mover || o.stall > 0 {
		o.bonus += y.slots[mover].score
		return
	}
	y.markFailed(owner, "head")
}

func (y *Yard) markFailed(slot int, cause string) {
	y.slots[slot].failed = true
	log.Debug().
		Int("slot", slot).
		Uint64("tick", y.tick).
		Str("cause", cause).
		Msg("yard snake failed")
}

// cleanup commits bonuses and frees failed slots.
func (y *Yard) cleanup() [MaxPlayers]SlotReport {
	var reports [MaxPlayers]SlotReport
	for i := 0; i < MaxPlayers; i++ {
		s := &y.slots[i]
		s.score += s.bonus
		s.bonus = 0
		reports[i] = SlotReport{Score: s.score, Failed: s.failed}
		if !s.failed {
			continue
		}
		for _, c := range s.snake.Cells() {
			y.set(c, Block{})
		}
		y.slots[i] = slotState{}
		y.occupied &^= 1 << i
	}
	return reports
}

// RefillBeans drops beans on random empty cells until the target is met or
// the grid has no empty cell left. It is a no-op at target.
func (y *Yard) RefillBeans() {
	if y.beans >= y.cfg.BeanTarget {
		return
	}
	empty := make([]int, 0, len(y.grid))
	for idx, b := range y.grid {
		if b.Kind == Empty {
			empty = append(empty, idx)
		}
	}
	for y.beans < y.cfg.BeanTarget && len(empty) > 0 {
		k := y.rng.Intn(len(empty))
		y.grid[empty[k]] = Block{Kind: Bean}
		empty[k] = empty[len(empty)-1]
		empty = empty[:len(empty)-1]
		y.beans++
	}
}
