package arena

import (
	"github.com/danmuck/snakeyard/internal/protocol/session"
	"github.com/danmuck/snakeyard/internal/yard"
	"github.com/gdamore/tcell/v2"
)

const (
	GlyphHeadLeft  = ": "
	GlyphHeadRight = " :"
	GlyphHeadUp    = "''"
	GlyphHeadDown  = ".."
	GlyphBean      = "()"
	GlyphEmpty     = "  "
)

// Palette is the per-slot snake color.
var Palette = [yard.MaxPlayers]tcell.Color{
	tcell.ColorDarkGray,
	tcell.ColorDarkRed,
	tcell.ColorDarkBlue,
	tcell.ColorDarkMagenta,
	tcell.ColorDarkCyan,
}

var (
	emptyCell = session.Cell{
		Kind:  uint8(yard.Empty),
		Color: tcell.ColorWhite.Hex(),
		Ink:   tcell.ColorWhite.Hex(),
		Glyph: GlyphEmpty,
	}
	beanCell = session.Cell{
		Kind:  uint8(yard.Bean),
		Color: tcell.ColorGreen.Hex(),
		Ink:   tcell.ColorYellow.Hex(),
		Glyph: GlyphBean,
	}
)

func headGlyph(d yard.Direction) string {
	switch d {
	case yard.Left:
		return GlyphHeadLeft
	case yard.Right:
		return GlyphHeadRight
	case yard.Up:
		return GlyphHeadUp
	case yard.Down:
		return GlyphHeadDown
	}
	return GlyphEmpty
}

// RenderCell maps one block to its wire cell.
func RenderCell(b yard.Block) session.Cell {
	switch b.Kind {
	case yard.Bean:
		return beanCell
	case yard.Body:
		return session.Cell{
			Kind:  uint8(yard.Body),
			Color: Palette[b.Slot].Hex(),
			Ink:   tcell.ColorWhite.Hex(),
			Glyph: GlyphEmpty,
		}
	case yard.Head:
		return session.Cell{
			Kind:  uint8(yard.Head),
			Color: Palette[b.Slot].Hex(),
			Ink:   tcell.ColorWhite.Hex(),
			Glyph: headGlyph(b.Dir),
		}
	}
	return emptyCell
}

// RenderSnapshot captures the whole grid in row-major order.
func RenderSnapshot(y *yard.Yard) session.Snapshot {
	w, h := y.Width(), y.Height()
	cells := make([]session.Cell, 0, w*h)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			cells = append(cells, RenderCell(y.Block(yard.Coord{Row: row, Col: col})))
		}
	}
	return session.Snapshot{
		Tick:   y.Tick(),
		Width:  uint16(w),
		Height: uint16(h),
		Cells:  cells,
	}
}
