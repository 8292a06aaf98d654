package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Server configures the relay.
type Server struct {
	Addr            string        `env:"RELAY_ADDR" envDefault:":8080"`
	DatabaseURL     string        `env:"DATABASE_URL"` // empty keeps the journal in memory
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogDev          bool          `env:"LOG_DEV" envDefault:"false"`
	ReadTimeout     time.Duration `env:"WS_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"3s"`
	PingInterval    time.Duration `env:"WS_PING_INTERVAL" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	OutboxSize      int           `env:"OUTBOX_SIZE" envDefault:"64"`
	JournalQueue    int           `env:"JOURNAL_QUEUE" envDefault:"256"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Peer configures the headless lockstep client.
type Peer struct {
	RelayURL           string        `env:"RELAY_URL" envDefault:"ws://localhost:8080/ws"`
	SessionCode        string        `env:"SESSION_CODE"`
	MaxWaitFrames      int           `env:"MAX_WAIT_FRAMES" envDefault:"6"`
	CheckpointInterval int           `env:"CHECKPOINT_INTERVAL" envDefault:"60"`
	TickRate           int           `env:"TICK_RATE" envDefault:"60"`
	PingInterval       time.Duration `env:"PING_INTERVAL" envDefault:"2s"`
	InputScript        string        `env:"INPUT_SCRIPT" envDefault:"idle"` // idle or wander
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	LogDev             bool          `env:"LOG_DEV" envDefault:"false"`
}

// LoadServer reads an optional .env file and then the environment.
func LoadServer(files ...string) (Server, error) {
	var cfg Server
	if err := load(&cfg, files); err != nil {
		return Server{}, err
	}
	if cfg.OutboxSize <= 0 {
		return Server{}, fmt.Errorf("OUTBOX_SIZE must be positive, got %d", cfg.OutboxSize)
	}
	return cfg, nil
}

func LoadPeer(files ...string) (Peer, error) {
	var cfg Peer
	if err := load(&cfg, files); err != nil {
		return Peer{}, err
	}
	if cfg.TickRate <= 0 {
		return Peer{}, fmt.Errorf("TICK_RATE must be positive, got %d", cfg.TickRate)
	}
	return cfg, nil
}

func load(target any, files []string) error {
	// godotenv never overrides variables already set in the environment
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
