// yardwatch joins a yard, optionally steers at random, and logs what the
// broadcast group carries.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/snakeyard/internal/client"
	"github.com/danmuck/snakeyard/internal/logging"
	"github.com/danmuck/snakeyard/internal/protocol/session"
	"github.com/danmuck/snakeyard/internal/yard"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
)

func main() {
	addr := flag.String("addr", client.DefaultConfig().ServerAddr, "yard control address")
	name := flag.String("name", "", "display name")
	sub := flag.String("subscribe", "", "override the broadcast address from the join reply")
	iface := flag.String("iface", "", "multicast interface")
	wander := flag.Duration("wander", 0, "steer at random on this interval (0 disables)")
	flag.Parse()

	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := client.DefaultConfig()
	cfg.ServerAddr = *addr
	cfg.Name = *name
	cfg.SubscribeAddr = *sub
	cfg.Interface = *iface
	if err := run(ctx, cfg, *wander); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "yardwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg client.Config, wander time.Duration) error {
	c, err := client.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	subscription, err := c.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer subscription.Close()

	if wander > 0 {
		go steer(ctx, c, wander)
	}

	for msg := range subscription.Messages() {
		switch m := msg.(type) {
		case session.Snapshot:
			log.Debug().Uint64("tick", m.Tick).Int("cells", len(m.Cells)).Msg("yardwatch snapshot")
		case session.ScoreBoard:
			for _, e := range m.Entries {
				log.Info().Uint64("tick", m.Tick).Str("entry", e.Text).Msg("yardwatch board")
			}
		case session.Eliminated:
			ev := log.Info()
			if m.ClientID == c.ID() {
				ev = log.Warn()
			}
			ev.Uint64("client_id", m.ClientID).Uint64("tick", m.Tick).Uint64("score", m.Score).Msg("yardwatch eliminated")
			if m.ClientID == c.ID() {
				return nil
			}
		}
	}
	return ctx.Err()
}

func steer(ctx context.Context, c *client.Client, every time.Duration) {
	rng := rand.New(rand.NewSource(c.ID()))
	dirs := []yard.Direction{yard.Left, yard.Right, yard.Up, yard.Down}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Move(dirs[rng.Intn(len(dirs))]); err != nil {
				log.Warn().Err(err).Msg("yardwatch move failed")
				return
			}
		}
	}
}
