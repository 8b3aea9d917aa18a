package yard

import (
	"errors"
	"testing"

	"github.com/danmuck/snakeyard/internal/testutil/testlog"
)

// quietConfig has no beans and no stall so scripted scenarios are exact.
func quietConfig() Config {
	return Config{Width: 30, Height: 20, BeanTarget: 0, SnakeLength: 3, StallTicks: 0, Seed: 1}
}

func mustYard(t *testing.T, cfg Config) *Yard {
	t.Helper()
	y, err := New(cfg)
	if err != nil {
		t.Fatalf("new yard: %v", err)
	}
	return y
}

func mustPlace(t *testing.T, y *Yard, head Coord, dir Direction, length int) int {
	t.Helper()
	slot, ok := y.PlaceSnakeAt(head, dir, length)
	if !ok {
		t.Fatalf("place %v %v len=%d failed", head, dir, length)
	}
	return slot
}

// checkInvariants verifies the grid and the segment lists agree exactly.
func checkInvariants(t *testing.T, y *Yard) {
	t.Helper()
	painted := 0
	beans := 0
	for _, b := range y.grid {
		switch b.Kind {
		case Body, Head:
			painted++
			if !y.Live(b.Slot) {
				t.Fatalf("tick %d: orphan %v cell for dead slot %d", y.tick, b.Kind, b.Slot)
			}
		case Bean:
			beans++
		}
	}
	segments := 0
	for slot := 0; slot < MaxPlayers; slot++ {
		cells := y.Segments(slot)
		segments += len(cells)
		for i, c := range cells {
			b := y.Block(c)
			if b.Slot != slot {
				t.Fatalf("tick %d: slot %d segment %v painted for slot %d", y.tick, slot, c, b.Slot)
			}
			want := Body
			if i == 0 {
				want = Head
			}
			if b.Kind != want {
				t.Fatalf("tick %d: slot %d segment %d at %v is %v want %v", y.tick, slot, i, c, b.Kind, want)
			}
		}
	}
	if painted != segments {
		t.Fatalf("tick %d: painted=%d segments=%d", y.tick, painted, segments)
	}
	if beans != y.beans {
		t.Fatalf("tick %d: grid beans=%d counter=%d", y.tick, beans, y.beans)
	}
	if y.beans > y.cfg.BeanTarget {
		t.Fatalf("tick %d: beans %d over target %d", y.tick, y.beans, y.cfg.BeanTarget)
	}
}

func TestConfigValidate(t *testing.T) {
	testlog.Start(t)
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.BeanTarget = bad.Width*bad.Height + 1
	if _, err := New(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestDirectionOpposite(t *testing.T) {
	testlog.Start(t)
	for _, d := range directions {
		if d.Opposite().Opposite() != d || d.Opposite() == d {
			t.Fatalf("bad opposite for %v", d)
		}
		parsed, err := ParseDirection(d.String())
		if err != nil || parsed != d {
			t.Fatalf("parse %q got=%v err=%v", d.String(), parsed, err)
		}
	}
	if Direction(0).Valid() || Direction(5).Valid() {
		t.Fatalf("out-of-range directions must be invalid")
	}
}

func TestRegisterScenarioStallThenMove(t *testing.T) {
	testlog.Start(t)
	y := mustYard(t, Config{Width: 30, Height: 20, BeanTarget: 5, SnakeLength: 3, StallTicks: 10, Seed: 42})
	slot, ok := y.PlaceSnake(3)
	if !ok || slot != 0 {
		t.Fatalf("place got slot=%d ok=%v", slot, ok)
	}
	if got := len(y.Segments(0)); got != 3 {
		t.Fatalf("segments=%d want 3", got)
	}
	if y.Stall(0) != 10 {
		t.Fatalf("stall=%d want 10", y.Stall(0))
	}
	checkInvariants(t, y)

	start, _ := y.Head(0)
	dir, _ := y.Heading(0)
	for i := 0; i < 10; i++ {
		y.AdvanceTick()
		checkInvariants(t, y)
		if h, _ := y.Head(0); h != start {
			t.Fatalf("tick %d: moved during stall %v -> %v", i+1, start, h)
		}
	}
	reports := y.AdvanceTick()
	checkInvariants(t, y)
	if reports[0].Failed {
		t.Fatalf("fresh snake failed on first move")
	}
	if h, _ := y.Head(0); h != start.Step(dir) {
		t.Fatalf("tick 11 head=%v want %v", h, start.Step(dir))
	}
}

func TestRefillBeansIdempotentAndCapped(t *testing.T) {
	testlog.Start(t)
	y := mustYard(t, DefaultConfig())
	if y.Beans() != DefaultBeanTarget {
		t.Fatalf("beans=%d want %d", y.Beans(), DefaultBeanTarget)
	}
	before := append([]Block(nil), y.grid...)
	y.RefillBeans()
	for i := range before {
		if before[i] != y.grid[i] {
			t.Fatalf("refill at target changed cell %d", i)
		}
	}
	checkInvariants(t, y)
}

func TestRefillBeansStopsWhenGridFull(t *testing.T) {
	testlog.Start(t)
	y := mustYard(t, Config{Width: 4, Height: 4, BeanTarget: 0, SnakeLength: 3, Seed: 3})
	mustPlace(t, y, Coord{0, 2}, Right, 3)
	y.cfg.BeanTarget = 16
	y.RefillBeans()
	if y.Beans() != 13 {
		t.Fatalf("beans=%d want 13", y.Beans())
	}
	y.RefillBeans()
	if y.Beans() != 13 {
		t.Fatalf("second refill beans=%d want 13", y.Beans())
	}
	if _, ok := y.PlaceSnake(3); ok {
		t.Fatalf("placement should fail on a full grid")
	}
}

func TestPlaceSnakePoolFullHasNoSideEffects(t *testing.T) {
	testlog.Start(t)
	y := mustYard(t, DefaultConfig())
	for i := 0; i < MaxPlayers; i++ {
		slot, ok := y.PlaceSnake(3)
		if !ok || slot != i {
			t.Fatalf("place %d got slot=%d ok=%v", i, slot, ok)
		}
	}
	before := append([]Block(nil), y.grid...)
	if slot, ok := y.PlaceSnake(3); ok || slot != -1 {
		t.Fatalf("sixth placement got slot=%d ok=%v", slot, ok)
	}
	for i := range before {
		if before[i] != y.grid[i] {
			t.Fatalf("rejected placement changed cell %d", i)
		}
	}
	checkInvariants(t, y)
}

func TestPlaceSnakeImpossibleLength(t *testing.T) {
	testlog.Start(t)
	y := mustYard(t, quietConfig())
	if _, ok := y.PlaceSnake(31); ok {
		t.Fatalf("length 31 cannot fit a 30x20 grid")
	}
	if y.LiveCount() != 0 {
		t.Fatalf("failed placement left a snake")
	}
}

func TestApplyDirectionRejectsReversal(t *testing.T) {
	testlog.Start(t)
	y := mustYard(t, quietConfig())
	slot := mustPlace(t, y, Coord{5, 5}, Right, 3)

	if y.ApplyDirection(slot, Left) {
		t.Fatalf("reversal accepted")
	}
	if d, _ := y.Heading(slot); d != Right {
		t.Fatalf("heading changed to %v", d)
	}
	if !y.ApplyDirection(slot, Up) {
		t.Fatalf("turn rejected")
	}
	// The painted head still faces right, so left stays rejected until a move.
	if y.ApplyDirection(slot, Left) {
		t.Fatalf("reversal of painted head accepted")
	}
	if !y.ApplyDirection(slot, Down) {
		t.Fatalf("down should be legal while painted right")
	}
	if y.ApplyDirection(3, Up) || y.ApplyDirection(slot, Direction(9)) {
		t.Fatalf("empty slot or invalid direction accepted")
	}
}

func TestKillStealAwardsBodyOwner(t *testing.T) {
	testlog.Start(t)
	y := mustYard(t, quietConfig())
	a := mustPlace(t, y, Coord{5, 5}, Right, 3)
	b := mustPlace(t, y, Coord{4, 6}, Up, 3) // body at (5,6) and (6,6)
	y.slots[a].score = 5

	y.move()
	if !y.slots[a].failed {
		t.Fatalf("snake A should fail running into B's body")
	}
	if y.slots[b].bonus != 5 {
		t.Fatalf("B bonus=%d want 5", y.slots[b].bonus)
	}
	reports := y.cleanup()
	if !reports[a].Failed || reports[a].Score != 5 {
		t.Fatalf("A report=%+v", reports[a])
	}
	if reports[b].Failed || reports[b].Score != 5 {
		t.Fatalf("B report=%+v", reports[b])
	}
	if y.Live(a) || y.Score(a) != 0 {
		t.Fatalf("A slot should be free and reset")
	}
	checkInvariants(t, y)
}

func TestHeadToHeadLowerOrdinalSurvives(t *testing.T) {
	testlog.Start(t)
	y := mustYard(t, quietConfig())
	mustPlace(t, y, Coord{0, 1}, Right, 1)
	mustPlace(t, y, Coord{2, 1}, Right, 1)
	two := mustPlace(t, y, Coord{10, 5}, Right, 3)
	mustPlace(t, y, Coord{4, 1}, Right, 1)
	four := mustPlace(t, y, Coord{10, 7}, Left, 3)
	if two != 2 || four != 4 {
		t.Fatalf("slots got %d and %d", two, four)
	}
	y.slots[four].score = 7

	y.move()
	if y.slots[two].failed {
		t.Fatalf("slot 2 should survive")
	}
	if !y.slots[four].failed {
		t.Fatalf("slot 4 should fail")
	}
	if y.slots[two].bonus != 7 {
		t.Fatalf("slot 2 bonus=%d want 7", y.slots[two].bonus)
	}
	reports := y.cleanup()
	failed := 0
	for _, r := range reports {
		if r.Failed {
			failed++
		}
	}
	if failed != 1 || !reports[four].Failed || reports[two].Score != 7 {
		t.Fatalf("reports=%+v", reports)
	}
	if h, _ := y.Head(two); h != (Coord{10, 6}) {
		t.Fatalf("slot 2 head=%v", h)
	}
	checkInvariants(t, y)
}

func TestHeadToHeadAdjacentBothFail(t *testing.T) {
	testlog.Start(t)
	y := mustYard(t, quietConfig())
	a := mustPlace(t, y, Coord{5, 5}, Right, 3)
	b := mustPlace(t, y, Coord{5, 6}, Left, 3)

	reports := y.AdvanceTick()
	if !reports[a].Failed || !reports[b].Failed {
		t.Fatalf("both should fail: %+v", reports)
	}
	if y.LiveCount() != 0 {
		t.Fatalf("live=%d", y.LiveCount())
	}
	checkInvariants(t, y)
}

func TestStallProtectedOwnerIsImmune(t *testing.T) {
	testlog.Start(t)
	y := mustYard(t, quietConfig())
	a := mustPlace(t, y, Coord{5, 5}, Right, 3)
	b := mustPlace(t, y, Coord{5, 6}, Left, 3)
	y.slots[b].stall = 5
	y.slots[a].score = 2

	reports := y.AdvanceTick()
	if !reports[a].Failed || reports[b].Failed {
		t.Fatalf("only the mover should fail: %+v", reports)
	}
	if reports[b].Score != 2 {
		t.Fatalf("protected owner score=%d want 2", reports[b].Score)
	}
	if y.Stall(b) != 4 {
		t.Fatalf("stall=%d want 4", y.Stall(b))
	}
	checkInvariants(t, y)
}

func TestWallAndSelfCollision(t *testing.T) {
	testlog.Start(t)
	y := mustYard(t, quietConfig())
	wall := mustPlace(t, y, Coord{0, 28}, Right, 1)
	coil := mustPlace(t, y, Coord{10, 10}, Right, 5)
	y.slots[coil].score = 3

	y.ApplyDirection(coil, Up)
	if r := y.AdvanceTick(); r[wall].Failed || r[coil].Failed {
		t.Fatalf("tick 1 reports=%+v", r)
	}
	y.ApplyDirection(coil, Left)
	r := y.AdvanceTick()
	if !r[wall].Failed {
		t.Fatalf("wall snake should fail leaving the grid")
	}
	if r[coil].Failed {
		t.Fatalf("coil failed too early")
	}
	y.ApplyDirection(coil, Down)
	r = y.AdvanceTick()
	if !r[coil].Failed || r[coil].Score != 3 {
		t.Fatalf("self collision report=%+v", r[coil])
	}
	checkInvariants(t, y)

	slot, ok := y.PlaceSnake(3)
	if !ok || slot != 0 || y.Score(0) != 0 {
		t.Fatalf("freed slot reuse got slot=%d ok=%v score=%d", slot, ok, y.Score(0))
	}
}

func TestBeanGrowsSnake(t *testing.T) {
	testlog.Start(t)
	y := mustYard(t, quietConfig())
	slot := mustPlace(t, y, Coord{5, 5}, Right, 3)
	y.cfg.BeanTarget = 1
	y.set(Coord{5, 6}, Block{Kind: Bean})
	y.beans = 1

	r := y.AdvanceTick()
	if r[slot].Score != 1 {
		t.Fatalf("score=%d want 1", r[slot].Score)
	}
	if got := len(y.Segments(slot)); got != 4 {
		t.Fatalf("length=%d want 4", got)
	}
	if y.Beans() != 1 {
		t.Fatalf("beans not refilled: %d", y.Beans())
	}
	checkInvariants(t, y)
}

func TestRandomPlayKeepsGridConsistent(t *testing.T) {
	testlog.Start(t)
	y := mustYard(t, Config{Width: 16, Height: 12, BeanTarget: 6, SnakeLength: 3, StallTicks: 2, Seed: 99})
	for tick := 0; tick < 500; tick++ {
		for y.LiveCount() < MaxPlayers {
			if _, ok := y.PlaceSnake(3); !ok {
				break
			}
		}
		for slot := 0; slot < MaxPlayers; slot++ {
			y.ApplyDirection(slot, directions[y.rng.Intn(len(directions))])
		}
		y.AdvanceTick()
		checkInvariants(t, y)
		if y.Beans() != y.cfg.BeanTarget {
			t.Fatalf("tick %d beans=%d", tick, y.Beans())
		}
	}
}
