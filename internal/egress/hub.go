package egress

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrHubClosed = errors.New("egress: hub closed")

const (
	spectatorWriteWait = 2 * time.Second
	spectatorReadLimit = 512
)

type spectator struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub is a websocket sink for spectators. The set of spectators is owned by
// the run goroutine; everything else talks to it over channels. A spectator
// whose buffer is full misses frames.
type Hub struct {
	upgrader   websocket.Upgrader
	bufferSize int

	register   chan *spectator
	unregister chan *spectator
	broadcast  chan []byte
	count      chan chan int
	done       chan struct{}
	closeOnce  sync.Once
}

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		bufferSize: bufferSize,
		register:   make(chan *spectator),
		unregister: make(chan *spectator),
		broadcast:  make(chan []byte),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	spectators := make(map[*spectator]struct{})
	for {
		select {
		case s := <-h.register:
			spectators[s] = struct{}{}
			log.Info().Int("spectators", len(spectators)).Msg("egress spectator joined")
		case s := <-h.unregister:
			if _, ok := spectators[s]; ok {
				delete(spectators, s)
				close(s.send)
				log.Info().Int("spectators", len(spectators)).Msg("egress spectator left")
			}
		case msg := <-h.broadcast:
			for s := range spectators {
				select {
				case s.send <- msg:
				default:
					log.Debug().Msg("egress spectator behind, frame skipped")
				}
			}
		case reply := <-h.count:
			reply <- len(spectators)
		case <-h.done:
			for s := range spectators {
				delete(spectators, s)
				close(s.send)
			}
			return
		}
	}
}

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) Send(frame []byte) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.broadcast <- frame:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

// Spectators reports how many websocket clients are attached.
func (h *Hub) Spectators() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// ServeHTTP upgrades the request and streams binary frames until either side
// goes away. Inbound messages are read and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("egress spectator upgrade failed")
		return
	}
	s := &spectator{conn: conn, send: make(chan []byte, h.bufferSize)}
	select {
	case h.register <- s:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go s.writeLoop()
	s.readLoop()
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

func (s *spectator) writeLoop() {
	defer s.conn.Close()
	for msg := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(spectatorWriteWait))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return
		}
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(spectatorWriteWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *spectator) readLoop() {
	s.conn.SetReadLimit(spectatorReadLimit)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
