package driver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Zidane-Khaled/RetroVerse/internal/engine"
	"github.com/Zidane-Khaled/RetroVerse/internal/input"
	"github.com/Zidane-Khaled/RetroVerse/internal/lockstep"
	"github.com/Zidane-Khaled/RetroVerse/internal/protocol"
)

const DefaultTickRate = 60

// Sync is the part of lockstep.Coordinator the loop drives.
type Sync interface {
	State() lockstep.ConnState
	Role() protocol.Role
	Frame() input.Frame
	RecordLocal(ctx context.Context, s input.State)
	CanAdvance() bool
	Inputs() (local, remote input.State)
	Checkpoint(ctx context.Context, digest string)
	Advance()
	Reset()
}

// InputSource yields the local controller state; it is polled once per frame.
type InputSource interface {
	Poll() input.State
}

type InputFunc func() input.State

func (f InputFunc) Poll() input.State { return f() }

// Loop calls the coordinator and the engine in the order lockstep needs:
// record local input, ask to advance, tick with both inputs, checkpoint the
// digest, advance.
//
// Step and Reset may be called from different goroutines.
type Loop struct {
	mu     sync.Mutex
	sync   Sync
	engine engine.Engine
	input  InputSource
	log    *zap.Logger
	period time.Duration

	recorded      bool
	recordedFrame input.Frame
	seated        bool
	ticks         uint64
}

func New(s Sync, e engine.Engine, in InputSource, tickRate int, log *zap.Logger) *Loop {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	if log == nil {
		log = zap.NewNop()
	}
	if in == nil {
		in = InputFunc(func() input.State { return input.State{} })
	}
	return &Loop{
		sync:   s,
		engine: e,
		input:  in,
		log:    log,
		period: time.Second / time.Duration(tickRate),
	}
}

// Step runs one display refresh and reports whether the simulation advanced.
// When it did not, nothing in the engine was touched.
func (l *Loop) Step(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sync.State() != lockstep.Ready {
		return false
	}

	f := l.sync.Frame()
	if !l.recorded || l.recordedFrame != f {
		l.sync.RecordLocal(ctx, l.input.Poll())
		l.recorded, l.recordedFrame = true, f
	}

	if !l.sync.CanAdvance() {
		return false
	}

	if !l.seated {
		if s, ok := l.engine.(engine.Seater); ok {
			s.Seat(l.sync.Role())
		}
		l.seated = true
	}

	local, remote := l.sync.Inputs()
	l.engine.Tick(local, remote)
	l.sync.Checkpoint(ctx, l.engine.Digest())
	l.sync.Advance()
	l.ticks++
	return true
}

// Reset restarts the match from frame 0: the coordinator and the engine are
// reset together and the next Step records local input afresh.
func (l *Loop) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sync.Reset()
	l.engine.Reset()
	l.recorded = false
	l.recordedFrame = 0
	l.seated = false
	l.log.Info("match reset")
}

// Ticks is the number of frames this loop has simulated.
func (l *Loop) Ticks() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

// Run steps the loop at the tick rate until ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	l.log.Info("frame loop started", zap.Duration("period", l.period))
	for {
		select {
		case <-ctx.Done():
			l.log.Info("frame loop stopped", zap.Uint64("ticks", l.Ticks()))
			return nil
		case <-ticker.C:
			l.Step(ctx)
		}
	}
}
