package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/danmuck/snakeyard/internal/protocol/frame"
	"github.com/danmuck/snakeyard/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/ipv4"
)

// Subscription yields decoded broadcasts in arrival order. Snapshots that are
// not newer than the last one delivered are dropped.
type Subscription struct {
	conn net.PacketConn
	pc   *ipv4.PacketConn
	msgs chan session.Broadcast
}

// Subscribe joins group (a multicast host:port) or, for a unicast address,
// binds it directly.
func Subscribe(ctx context.Context, group string, iface string) (*Subscription, error) {
	addr, err := net.ResolveUDPAddr("udp4", strings.TrimSpace(group))
	if err != nil {
		return nil, fmt.Errorf("client: resolve group %q: %w", group, err)
	}

	bind := addr.String()
	if addr.IP.IsMulticast() {
		bind = net.JoinHostPort("0.0.0.0", strconv.Itoa(addr.Port))
	}
	conn, err := net.ListenPacket("udp4", bind)
	if err != nil {
		return nil, fmt.Errorf("client: listen %s: %w", bind, err)
	}
	pc := ipv4.NewPacketConn(conn)

	if addr.IP.IsMulticast() {
		var ifi *net.Interface
		if name := strings.TrimSpace(iface); name != "" {
			ifi, err = net.InterfaceByName(name)
			if err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("client: interface %q: %w", name, err)
			}
		}
		if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: addr.IP}); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("client: join group %s: %w", addr.IP, err)
		}
	}

	s := &Subscription{
		conn: conn,
		pc:   pc,
		msgs: make(chan session.Broadcast, 64),
	}
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	go s.readLoop(ctx)
	log.Info().Str("addr", conn.LocalAddr().String()).Str("group", addr.String()).Msg("client subscribed")
	return s, nil
}

func (s *Subscription) Messages() <-chan session.Broadcast {
	return s.msgs
}

func (s *Subscription) Addr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Subscription) Close() error {
	err := s.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Subscription) readLoop(ctx context.Context) {
	defer close(s.msgs)
	buf := make([]byte, frame.DatagramLimits().MaxBufferBytes)
	var lastTick uint64
	var haveSnapshot bool
	for {
		n, _, _, err := s.pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Msg("client subscription read failed")
			}
			return
		}
		_, msg, err := session.DecodeDatagram(buf[:n])
		if err != nil {
			log.Debug().Err(err).Int("bytes", n).Msg("client datagram dropped")
			continue
		}
		if snap, ok := msg.(session.Snapshot); ok {
			if haveSnapshot && snap.Tick <= lastTick {
				log.Debug().Uint64("tick", snap.Tick).Uint64("last", lastTick).Msg("client stale snapshot dropped")
				continue
			}
			haveSnapshot = true
			lastTick = snap.Tick
		}
		select {
		case s.msgs <- msg:
		case <-ctx.Done():
			return
		}
	}
}
