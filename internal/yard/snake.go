package yard

import "container/list"

// Snake is an ordered run of cells with the head at the front.
type Snake struct {
	body *list.List
	dir  Direction
}

func newSnake(cells []Coord, dir Direction) *Snake {
	s := &Snake{body: list.New(), dir: dir}
	for _, c := range cells {
		s.body.PushBack(c)
	}
	return s
}

func (s *Snake) Head() Coord {
	return s.body.Front().Value.(Coord)
}

func (s *Snake) Tail() Coord {
	return s.body.Back().Value.(Coord)
}

func (s *Snake) Len() int {
	return s.body.Len()
}

func (s *Snake) Direction() Direction {
	return s.dir
}

func (s *Snake) pushHead(c Coord) {
	s.body.PushFront(c)
}

func (s *Snake) popTail() Coord {
	return s.body.Remove(s.body.Back()).(Coord)
}

// Cells returns the segments head first.
func (s *Snake) Cells() []Coord {
	out := make([]Coord, 0, s.body.Len())
	for e := s.body.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Coord))
	}
	return out
}
