package egress

import (
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/ipv4"
)

type MulticastConfig struct {
	// Group is the destination host:port. A non-multicast address is sent to
	// as plain unicast, which keeps loopback setups working.
	Group     string
	Interface string
	TTL       int
	Loopback  bool
}

func DefaultMulticastConfig() MulticastConfig {
	return MulticastConfig{
		Group:    "234.51.4.19:19810",
		TTL:      1,
		Loopback: true,
	}
}

// MulticastSink writes each frame as one UDP datagram.
type MulticastSink struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
	dst  *net.UDPAddr
}

func NewMulticastSink(cfg MulticastConfig) (*MulticastSink, error) {
	dst, err := net.ResolveUDPAddr("udp4", strings.TrimSpace(cfg.Group))
	if err != nil {
		return nil, fmt.Errorf("egress: resolve group %q: %w", cfg.Group, err)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, fmt.Errorf("egress: open udp socket: %w", err)
	}
	pc := ipv4.NewPacketConn(conn)

	if dst.IP.IsMulticast() {
		if cfg.TTL > 0 {
			if err := pc.SetMulticastTTL(cfg.TTL); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("egress: set multicast ttl: %w", err)
			}
		}
		if err := pc.SetMulticastLoopback(cfg.Loopback); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("egress: set multicast loopback: %w", err)
		}
		if name := strings.TrimSpace(cfg.Interface); name != "" {
			ifi, err := net.InterfaceByName(name)
			if err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("egress: interface %q: %w", name, err)
			}
			if err := pc.SetMulticastInterface(ifi); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("egress: set multicast interface: %w", err)
			}
		}
	} else {
		log.Info().Str("dst", dst.String()).Msg("egress destination is not multicast, sending unicast")
	}

	log.Info().
		Str("group", dst.String()).
		Int("ttl", cfg.TTL).
		Bool("loopback", cfg.Loopback).
		Msg("egress multicast sink ready")
	return &MulticastSink{conn: conn, pc: pc, dst: dst}, nil
}

func (s *MulticastSink) Name() string { return "multicast" }

func (s *MulticastSink) Send(frame []byte) error {
	_, err := s.pc.WriteTo(frame, nil, s.dst)
	return err
}

func (s *MulticastSink) Close() error {
	return s.conn.Close()
}

func (s *MulticastSink) Group() string {
	return s.dst.String()
}
