package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/snakeyard/internal/server"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

const envConfigPath = "YARD_CONFIG"

// yardctl config.toml keys.
type fileConfig struct {
	Addr               string  `toml:"addr"`
	AdminListenAddr    string  `toml:"admin_listen_addr"`
	GroupAddr          string  `toml:"group_addr"`
	MulticastInterface string  `toml:"multicast_interface"`
	MulticastTTL       int     `toml:"multicast_ttl"`
	MulticastLoopback  bool    `toml:"multicast_loopback"`
	Compress           bool    `toml:"compress"`
	SpectatorBuffer    int     `toml:"spectator_buffer"`
	TickInterval       string  `toml:"tick_interval"`
	Width              int     `toml:"width"`
	Height             int     `toml:"height"`
	BeanTarget         int     `toml:"bean_target"`
	SnakeLength        int     `toml:"snake_length"`
	StallTicks         int     `toml:"stall_ticks"`
	Seed               uint64  `toml:"seed"`
	MoveRate           float64 `toml:"move_rate"`
	MoveBurst          int     `toml:"move_burst"`
	JoinTimeout        string  `toml:"join_timeout"`
}

// loadEnv reads .env files into the process environment. Missing files are
// not an error.
func loadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env %s: %w", f, err)
		}
	}
	return nil
}

// resolveConfigPath prefers the flag, then YARD_CONFIG.
func resolveConfigPath(flagPath string) string {
	if p := strings.TrimSpace(flagPath); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(envConfigPath))
}

// loadServiceConfig overlays the keys present in path on the defaults. An
// empty path yields the defaults.
func loadServiceConfig(path string) (server.ServiceConfig, error) {
	cfg := server.DefaultServiceConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return server.ServiceConfig{}, fmt.Errorf("load yard config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return server.ServiceConfig{}, fmt.Errorf("load yard config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("group_addr") {
		cfg.GroupAddr = strings.TrimSpace(raw.GroupAddr)
		cfg.Arena.GroupAddr = cfg.GroupAddr
	}
	if meta.IsDefined("multicast_interface") {
		cfg.MulticastInterface = strings.TrimSpace(raw.MulticastInterface)
	}
	if meta.IsDefined("multicast_ttl") {
		cfg.MulticastTTL = raw.MulticastTTL
	}
	if meta.IsDefined("multicast_loopback") {
		cfg.MulticastLoopback = raw.MulticastLoopback
	}
	if meta.IsDefined("compress") {
		cfg.Compress = raw.Compress
	}
	if meta.IsDefined("spectator_buffer") {
		cfg.SpectatorBuffer = raw.SpectatorBuffer
	}
	if meta.IsDefined("tick_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.TickInterval))
		if err != nil || d <= 0 {
			return server.ServiceConfig{}, fmt.Errorf("load yard config: tick_interval %q", raw.TickInterval)
		}
		cfg.Arena.TickInterval = d
	}
	if meta.IsDefined("width") {
		cfg.Arena.Yard.Width = raw.Width
	}
	if meta.IsDefined("height") {
		cfg.Arena.Yard.Height = raw.Height
	}
	if meta.IsDefined("bean_target") {
		cfg.Arena.Yard.BeanTarget = raw.BeanTarget
	}
	if meta.IsDefined("snake_length") {
		cfg.Arena.Yard.SnakeLength = raw.SnakeLength
	}
	if meta.IsDefined("stall_ticks") {
		cfg.Arena.Yard.StallTicks = raw.StallTicks
	}
	if meta.IsDefined("seed") {
		cfg.Arena.Yard.Seed = raw.Seed
	}
	if meta.IsDefined("move_rate") {
		cfg.Ingress.MoveRate = rate.Limit(raw.MoveRate)
	}
	if meta.IsDefined("move_burst") {
		cfg.Ingress.MoveBurst = raw.MoveBurst
	}
	if meta.IsDefined("join_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.JoinTimeout))
		if err != nil || d <= 0 {
			return server.ServiceConfig{}, fmt.Errorf("load yard config: join_timeout %q", raw.JoinTimeout)
		}
		cfg.Ingress.JoinTimeout = d
	}

	if err := cfg.Arena.Yard.Validate(); err != nil {
		return server.ServiceConfig{}, fmt.Errorf("load yard config: %w", err)
	}
	return cfg, nil
}
