package server

import "net"

// connSet tracks open control connections. The set is owned by its run
// goroutine; callers reach it over channels.
type connSet struct {
	track    chan net.Conn
	untrack  chan net.Conn
	closeAll chan chan int
	stop     chan struct{}
	done     chan struct{}
}

func newConnSet() *connSet {
	c := &connSet{
		track:    make(chan net.Conn),
		untrack:  make(chan net.Conn),
		closeAll: make(chan chan int),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *connSet) run() {
	defer close(c.done)
	conns := make(map[net.Conn]struct{})
	for {
		select {
		case conn := <-c.track:
			conns[conn] = struct{}{}
		case conn := <-c.untrack:
			delete(conns, conn)
		case reply := <-c.closeAll:
			n := len(conns)
			for conn := range conns {
				_ = conn.Close()
				delete(conns, conn)
			}
			reply <- n
		case <-c.stop:
			return
		}
	}
}

func (c *connSet) Track(conn net.Conn) {
	select {
	case c.track <- conn:
	case <-c.done:
		_ = conn.Close()
	}
}

func (c *connSet) Untrack(conn net.Conn) {
	select {
	case c.untrack <- conn:
	case <-c.done:
	}
}

// CloseAll closes every tracked connection and reports how many there were.
func (c *connSet) CloseAll() int {
	reply := make(chan int, 1)
	select {
	case c.closeAll <- reply:
		return <-reply
	case <-c.done:
		return 0
	}
}

// Stop ends the run goroutine. Call it once.
func (c *connSet) Stop() {
	close(c.stop)
	<-c.done
}
