package yard

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
)

var ErrInvalidConfig = errors.New("yard: invalid config")

type Config struct {
	Width       int
	Height      int
	BeanTarget  int
	SnakeLength int
	StallTicks  int
	// Seed drives placement and bean sampling; 0 seeds from the clock.
	Seed uint64
}

func DefaultConfig() Config {
	return Config{
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		BeanTarget:  DefaultBeanTarget,
		SnakeLength: DefaultSnakeLength,
		StallTicks:  DefaultStallTicks,
	}
}

func (c Config) Validate() error {
	if c.Width < 2 || c.Height < 2 {
		return fmt.Errorf("%w: grid %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.Width > 0xffff || c.Height > 0xffff {
		return fmt.Errorf("%w: grid %dx%d exceeds 65535", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.BeanTarget < 0 || c.BeanTarget > c.Width*c.Height {
		return fmt.Errorf("%w: bean target %d", ErrInvalidConfig, c.BeanTarget)
	}
	if c.SnakeLength < 1 {
		return fmt.Errorf("%w: snake length %d", ErrInvalidConfig, c.SnakeLength)
	}
	if c.StallTicks < 0 {
		return fmt.Errorf("%w: stall ticks %d", ErrInvalidConfig, c.StallTicks)
	}
	return nil
}

type slotState struct {
	snake  *Snake
	score  uint64
	bonus  uint64
	failed bool
	stall  int
}

// Yard is the authoritative grid and slot pool. It has exactly one owner and
// is not safe for concurrent use.
type Yard struct {
	cfg      Config
	grid     []Block
	slots    [MaxPlayers]slotState
	occupied uint8
	beans    int
	tick     uint64
	rng      *rand.Rand
}

// New builds an empty yard and seeds the initial beans.
func New(cfg Config) (*Yard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	y := &Yard{
		cfg:  cfg,
		grid: make([]Block, cfg.Width*cfg.Height),
		rng:  rand.New(rand.NewSource(seed)),
	}
	y.RefillBeans()
	return y, nil
}

func (y *Yard) Width() int     { return y.cfg.Width }
func (y *Yard) Height() int    { return y.cfg.Height }
func (y *Yard) Tick() uint64   { return y.tick }
func (y *Yard) Beans() int     { return y.beans }
func (y *Yard) Config() Config { return y.cfg }

func (y *Yard) InBounds(c Coord) bool {
	return c.Row >= 0 && c.Row < y.cfg.Height && c.Col >= 0 && c.Col < y.cfg.Width
}

// Block returns the cell at c; out-of-bounds cells read as Empty.
func (y *Yard) Block(c Coord) Block {
	if !y.InBounds(c) {
		return Block{}
	}
	return y.grid[y.index(c)]
}

func (y *Yard) Live(slot int) bool {
	return validSlot(slot) && y.occupied&(1<<slot) != 0
}

func (y *Yard) Head(slot int) (Coord, bool) {
	if !y.Live(slot) {
		return Coord{}, false
	}
	return y.slots[slot].snake.Head(), true
}

// Heading returns the stored (pending) direction of a live snake.
func (y *Yard) Heading(slot int) (Direction, bool) {
	if !y.Live(slot) {
		return 0, false
	}
	return y.slots[slot].snake.Direction(), true
}

func (y *Yard) Segments(slot int) []Coord {
	if !y.Live(slot) {
		return nil
	}
	return y.slots[slot].snake.Cells()
}

func (y *Yard) Score(slot int) uint64 {
	if !validSlot(slot) {
		return 0
	}
	return y.slots[slot].score
}

// Stall returns the remaining stall-protection ticks of a slot.
func (y *Yard) Stall(slot int) int {
	if !validSlot(slot) {
		return 0
	}
	return y.slots[slot].stall
}

// LiveCount returns how many slots hold a snake.
func (y *Yard) LiveCount() int {
	n := 0
	for i := 0; i < MaxPlayers; i++ {
		if y.occupied&(1<<i) != 0 {
			n++
		}
	}
	return n
}

// PlaceSnake puts a straight snake of the given length at a random free
// position in the lowest free slot. It returns false when the pool is full or
// when no straight run of that length fits the free cells.
func (y *Yard) PlaceSnake(length int) (int, bool) {
	if y.freeSlot() < 0 || length < 1 {
		return -1, false
	}
	if length > y.cfg.Width && length > y.cfg.Height {
		return -1, false
	}

	for attempt := 0; attempt < y.placementBudget(); attempt++ {
		head := Coord{Row: y.rng.Intn(y.cfg.Height), Col: y.rng.Intn(y.cfg.Width)}
		dir := directions[y.rng.Intn(len(directions))]
		if slot, ok := y.PlaceSnakeAt(head, dir, length); ok {
			return slot, true
		}
	}

	// Sampling keeps missing on a crowded grid; fall back to a full scan from
	// a random offset so placement still terminates.
	offset := y.rng.Intn(len(y.grid))
	for i := range y.grid {
		idx := (offset + i) % len(y.grid)
		head := Coord{Row: idx / y.cfg.Width, Col: idx % y.cfg.Width}
		for _, dir := range directions {
			if slot, ok := y.PlaceSnakeAt(head, dir, length); ok {
				return slot, true
			}
		}
	}
	log.Debug().Int("length", length).Msg("yard.PlaceSnake no room")
	return -1, false
}

// PlaceSnakeAt puts a straight snake whose head is at head facing dir, with
// the body trailing behind it, into the lowest free slot. The cell in front of
// the head must be inside the grid so a fresh snake never spawns facing a wall.
func (y *Yard) PlaceSnakeAt(head Coord, dir Direction, length int) (int, bool) {
	slot := y.freeSlot()
	if slot < 0 || length < 1 || !dir.Valid() {
		return -1, false
	}
	if !y.InBounds(head.Step(dir)) {
		return -1, false
	}
	cells := make([]Coord, 0, length)
	c := head
	for i := 0; i < length; i++ {
		if !y.InBounds(c) || y.grid[y.index(c)].Kind != Empty {
			return -1, false
		}
		cells = append(cells, c)
		c = c.Step(dir.Opposite())
	}

	y.set(head, Block{Kind: Head, Slot: slot, Dir: dir})
	for _, cell := range cells[1:] {
		y.set(cell, Block{Kind: Body, Slot: slot})
	}
	y.slots[slot] = slotState{
		snake: newSnake(cells, dir),
		stall: y.cfg.StallTicks,
	}
	y.occupied |= 1 << slot
	log.Debug().
		Int("slot", slot).
		Str("head", head.String()).
		Str("dir", dir.String()).
		Int("length", length).
		Msg("yard placed snake")
	return slot, true
}

// ApplyDirection stores dir as the slot's next heading. The exact reverse of
// the direction painted at the live head cell is rejected.
func (y *Yard) ApplyDirection(slot int, dir Direction) bool {
	if !y.Live(slot) || !dir.Valid() {
		return false
	}
	s := y.slots[slot].snake
	painted := y.grid[y.index(s.Head())]
	if painted.Kind == Head && painted.Slot == slot && dir == painted.Dir.Opposite() {
		return false
	}
	s.dir = dir
	return true
}

func (y *Yard) freeSlot() int {
	for i := 0; i < MaxPlayers; i++ {
		if y.occupied&(1<<i) == 0 {
			return i
		}
	}
	return -1
}

func (y *Yard) placementBudget() int {
	return 4 * len(y.grid)
}

func (y *Yard) index(c Coord) int {
	return c.Row*y.cfg.Width + c.Col
}

func (y *Yard) set(c Coord, b Block) {
	y.grid[y.index(c)] = b
}

func validSlot(slot int) bool {
	return slot >= 0 && slot < MaxPlayers
}
