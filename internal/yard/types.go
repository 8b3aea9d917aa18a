package yard

import "fmt"

// MaxPlayers bounds the slot pool.
const MaxPlayers = 5

const (
	DefaultWidth       = 30
	DefaultHeight      = 20
	DefaultBeanTarget  = 5
	DefaultSnakeLength = 3
	DefaultStallTicks  = 10
)

// Coord is a (row, column) grid position.
type Coord struct {
	Row int
	Col int
}

// Step returns the neighbor of c in direction d. The result may be out of bounds.
func (c Coord) Step(d Direction) Coord {
	switch d {
	case Left:
		return Coord{c.Row, c.Col - 1}
	case Right:
		return Coord{c.Row, c.Col + 1}
	case Up:
		return Coord{c.Row - 1, c.Col}
	case Down:
		return Coord{c.Row + 1, c.Col}
	}
	return c
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Direction is 1-based so the zero value is never a valid heading.
type Direction uint8

const (
	Left Direction = iota + 1
	Right
	Up
	Down
)

var directions = [...]Direction{Left, Right, Up, Down}

func (d Direction) Valid() bool {
	return d >= Left && d <= Down
}

func (d Direction) Opposite() Direction {
	switch d {
	case Left:
		return Right
	case Right:
		return Left
	case Up:
		return Down
	case Down:
		return Up
	}
	return d
}

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// ParseDirection accepts the names produced by Direction.String.
func ParseDirection(s string) (Direction, error) {
	for _, d := range directions {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("yard: unknown direction %q", s)
}

type BlockKind uint8

const (
	Empty BlockKind = iota
	Bean
	Body
	Head
)

func (k BlockKind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Bean:
		return "bean"
	case Body:
		return "body"
	case Head:
		return "head"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Block is the content of one grid cell. Slot is meaningful for Body and
// Head, Dir only for Head.
type Block struct {
	Kind BlockKind
	Slot int
	Dir  Direction
}

// SlotReport is the per-slot outcome of one tick.
type SlotReport struct {
	Score  uint64
	Failed bool
}
