// Package server wires the arena, ingress and egress workers into one
// process and owns their shutdown order.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/snakeyard/internal/arena"
	"github.com/danmuck/snakeyard/internal/egress"
	"github.com/danmuck/snakeyard/internal/ingress"
	"github.com/danmuck/snakeyard/internal/observability"
	"github.com/danmuck/snakeyard/internal/protocol/session"
	"github.com/danmuck/snakeyard/internal/queue"
	"github.com/rs/zerolog/log"
)

type ServiceConfig struct {
	ListenAddr string
	// AdminListenAddr enables the HTTP admin surface when set.
	AdminListenAddr    string
	GroupAddr          string
	MulticastInterface string
	MulticastTTL       int
	MulticastLoopback  bool
	Compress           bool
	SpectatorBuffer    int
	Arena              arena.Config
	Ingress            ingress.Config
}

func DefaultServiceConfig() ServiceConfig {
	mc := egress.DefaultMulticastConfig()
	return ServiceConfig{
		ListenAddr:        "127.0.0.1:41919",
		GroupAddr:         mc.Group,
		MulticastTTL:      mc.TTL,
		MulticastLoopback: mc.Loopback,
		Compress:          true,
		SpectatorBuffer:   16,
		Arena:             arena.DefaultConfig(),
		Ingress:           ingress.DefaultConfig(),
	}
}

type Service struct {
	cfg     ServiceConfig
	started time.Time

	readers sync.WaitGroup

	clientCount atomic.Int64
	hub         *egress.Hub
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	def := DefaultServiceConfig()
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if strings.TrimSpace(cfg.GroupAddr) == "" {
		cfg.GroupAddr = def.GroupAddr
	}
	if strings.TrimSpace(cfg.Arena.GroupAddr) == "" {
		cfg.Arena.GroupAddr = cfg.GroupAddr
	}
	observability.RegisterMetrics()
	return &Service{
		cfg:     cfg,
		started: time.Now(),
	}
}

func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// ActiveClients is the number of open control connections.
func (s *Service) ActiveClients() int64 {
	return s.clientCount.Load()
}

// Run listens on the configured addresses and blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := egress.NewMulticastSink(egress.MulticastConfig{
		Group:     s.cfg.GroupAddr,
		Interface: s.cfg.MulticastInterface,
		TTL:       s.cfg.MulticastTTL,
		Loopback:  s.cfg.MulticastLoopback,
	})
	if err != nil {
		return err
	}
	sinks := []egress.Sink{sink}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		_ = sink.Close()
		return fmt.Errorf("server: listen %s: %w", s.cfg.ListenAddr, err)
	}
	log.Info().Str("addr", ln.Addr().String()).Str("group", sink.Group()).Msg("server listening")

	adminErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		s.hub = egress.NewHub(s.cfg.SpectatorBuffer)
		sinks = append(sinks, s.hub)
		go func() {
			adminErr <- s.serveAdmin(ctx, addr)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln, sinks...)
	}()
	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			stop()
			<-serveErr
			return err
		}
		return <-serveErr
	}
}

// Serve runs every worker on an existing listener until ctx is done. Sinks
// are closed once the last broadcast has been handed to them.
func (s *Service) Serve(ctx context.Context, ln net.Listener, sinks ...egress.Sink) error {
	inbound := queue.NewUnbounded[arena.Command]()
	outbound := queue.NewUnbounded[session.Broadcast]()

	engine, err := arena.NewEngine(s.cfg.Arena, inbound.Out(), outbound.In())
	if err != nil {
		_ = ln.Close()
		inbound.Close()
		outbound.Close()
		closeSinks(sinks)
		return err
	}
	handler := ingress.NewHandler(s.cfg.Ingress, inbound.In())
	broadcaster := egress.NewBroadcaster(outbound.Out(), egress.Options{Compress: s.cfg.Compress}, sinks...)

	egressDone := make(chan struct{})
	go func() {
		defer close(egressDone)
		broadcaster.Run()
	}()
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(context.Background())
	}()

	conns := newConnSet()
	acceptErr := s.accept(ctx, ln, handler, conns)

	// Readers first, so nothing sends on the inbound queue after it closes.
	if n := conns.CloseAll(); n > 0 {
		log.Info().Int("conns", n).Msg("server closed client connections")
	}
	s.readers.Wait()
	conns.Stop()
	inbound.Close()
	if err := <-engineDone; err != nil {
		log.Warn().Err(err).Msg("server arena stopped")
	}
	outbound.Close()
	<-egressDone
	closeSinks(sinks)
	log.Info().Msg("server stopped")
	return acceptErr
}

func (s *Service) accept(ctx context.Context, ln net.Listener, handler *ingress.Handler, conns *connSet) error {
	defer ln.Close()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		conns.Track(conn)
		s.readers.Add(1)
		go s.handleConn(ctx, conn, handler, conns)
	}
}

func (s *Service) handleConn(ctx context.Context, conn net.Conn, handler *ingress.Handler, conns *connSet) {
	defer s.readers.Done()
	defer conn.Close()
	defer conns.Untrack(conn)
	remote := conn.RemoteAddr().String()
	observability.ConnectionOpened()
	active := s.clientCount.Add(1)
	log.Info().Str("remote", remote).Int64("active_clients", active).Msg("server client connected")
	defer func() {
		observability.ConnectionClosed()
		remaining := s.clientCount.Add(-1)
		log.Info().Str("remote", remote).Int64("active_clients", remaining).Msg("server client disconnected")
	}()

	if err := handler.ServeConn(ctx, conn); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("remote", remote).Msg("server connection dropped")
	}
}

func (s *Service) serveAdmin(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.AdminRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("server admin listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: admin %s: %w", addr, err)
	}
	return nil
}

func closeSinks(sinks []egress.Sink) {
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			log.Warn().Err(err).Str("sink", sink.Name()).Msg("server sink close failed")
		}
	}
}
