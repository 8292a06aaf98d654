package lockstep

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Zidane-Khaled/RetroVerse/internal/input"
	"github.com/Zidane-Khaled/RetroVerse/internal/protocol"
)

const (
	DefaultMaxWaitFrames      = 6  // ~100ms at 60 Hz
	DefaultCheckpointInterval = 60 // one checkpoint a second
	DefaultSendTimeout        = 3 * time.Second

	// checkpoint-frame digests kept for comparing against a lagging peer
	historyDepth = 4
)

type ConnState int

const (
	Connecting ConnState = iota
	AwaitingPeer
	Ready
	Paused
	Desynced
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case AwaitingPeer:
		return "awaiting_peer"
	case Ready:
		return "ready"
	case Paused:
		return "paused"
	case Desynced:
		return "desynced"
	default:
		return "unknown"
	}
}

// Transport is the send half of the connection to the relay.
type Transport interface {
	Send(ctx context.Context, msg protocol.Envelope) error
}

type Config struct {
	MaxWaitFrames      int
	CheckpointInterval int
	SendTimeout        time.Duration
	Logger             *zap.Logger
	Now                func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxWaitFrames <= 0 {
		c.MaxWaitFrames = DefaultMaxWaitFrames
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = DefaultCheckpointInterval
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type localDigest struct {
	frame  input.Frame
	digest string
	ok     bool
}

// Coordinator decides when the local simulation may advance a frame, keeps
// both players' inputs, and exchanges checkpoints to detect desync.
//
// The frame loop and the transport's read loop call into it concurrently.
type Coordinator struct {
	mu        sync.Mutex
	cfg       Config
	log       *zap.Logger
	transport Transport
	sink      EventSink

	local  *input.Buffer
	remote *input.Buffer

	frame     input.Frame
	waitCount int
	permitted bool

	state     ConnState
	connected bool
	role      protocol.Role

	lastCheckpointFrame int64 // -1 until the first checkpoint is sent
	lastLocal           localDigest
	history             map[input.Frame]string
	remoteCheckpoint    *protocol.Checkpoint
	remotePending       bool

	pingSent time.Time
	latency  time.Duration
}

func New(t Transport, sink EventSink, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = nopSink{}
	}
	return &Coordinator{
		cfg:                 cfg,
		log:                 cfg.Logger,
		transport:           t,
		sink:                sink,
		local:               input.NewBuffer(),
		remote:              input.NewBuffer(),
		state:               Connecting,
		lastCheckpointFrame: -1,
		history:             make(map[input.Frame]string),
	}
}

// effects collects what a locked section wants done once the lock is gone.
type effects struct {
	sends  []protocol.Envelope
	events []func(EventSink)
}

func (c *Coordinator) flush(ctx context.Context, fx effects) {
	for _, ev := range fx.events {
		ev(c.sink)
	}
	for _, msg := range fx.sends {
		if err := c.send(ctx, msg); err != nil {
			c.log.Warn("send failed", zap.String("type", string(msg.Type)), zap.Error(err))
			c.Disconnected("send failed")
			return
		}
	}
}

func (c *Coordinator) send(ctx context.Context, msg protocol.Envelope) error {
	if c.transport == nil {
		return errors.New("no transport")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SendTimeout)
	defer cancel()
	return c.transport.Send(ctx, msg)
}

// Connected records that the transport is up: Connecting -> AwaitingPeer.
func (c *Coordinator) Connected() {
	c.mu.Lock()
	c.connected = true
	if c.state == Connecting {
		c.state = AwaitingPeer
	}
	c.mu.Unlock()
}

// Disconnected records a transport error or close. Any state but Desynced
// becomes Paused; there is no automatic resume.
func (c *Coordinator) Disconnected(reason string) {
	c.mu.Lock()
	c.connected = false
	var fx effects
	c.pauseLocked(reason, &fx)
	c.mu.Unlock()
	c.flush(context.Background(), fx)
}

func (c *Coordinator) pauseLocked(reason string, fx *effects) {
	if c.state == Paused || c.state == Desynced {
		return
	}
	c.log.Info("paused", zap.String("reason", reason), zap.Uint64("frame", uint64(c.frame)))
	c.state = Paused
	fx.events = append(fx.events, func(s EventSink) { s.OnPause(reason) })
}

// Receive applies one raw message from the relay. Malformed or unknown
// messages are logged and ignored.
func (c *Coordinator) Receive(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.log.Warn("ignoring message", zap.Error(err))
		return
	}
	c.Dispatch(msg)
}

func (c *Coordinator) Dispatch(msg protocol.Envelope) {
	c.mu.Lock()
	var fx effects

	switch msg.Type {
	case protocol.TypeStart:
		if c.state != Connecting && c.state != AwaitingPeer {
			c.log.Warn("unexpected start", zap.Stringer("state", c.state))
			break
		}
		role := msg.Role
		c.role = role
		c.state = Ready
		c.log.Info("session ready", zap.String("role", string(role)))
		fx.events = append(fx.events, func(s EventSink) { s.OnReady(role) })

	case protocol.TypeInput:
		c.remote.Record(msg.Packet.Frame, msg.Packet.Buttons)

	case protocol.TypeCheckpoint:
		cp := *msg.Checkpoint
		c.remoteCheckpoint = &cp
		c.remotePending = true
		c.compareLocked(&fx)

	case protocol.TypePause:
		c.pauseLocked(msg.Reason, &fx)

	case protocol.TypePong:
		if !c.pingSent.IsZero() {
			c.latency = c.cfg.Now().Sub(c.pingSent)
			c.pingSent = time.Time{}
		}

	default:
		c.log.Debug("ignoring message", zap.String("type", string(msg.Type)))
	}

	c.mu.Unlock()
	c.flush(context.Background(), fx)
}

// RecordLocal stores the local player's input for the current frame and,
// when Ready, sends it to the peer.
func (c *Coordinator) RecordLocal(ctx context.Context, s input.State) {
	c.mu.Lock()
	var fx effects
	c.local.Record(c.frame, s)
	if c.connected && c.state == Ready {
		fx.sends = append(fx.sends, protocol.Input(c.frame, s))
	}
	c.mu.Unlock()
	c.flush(ctx, fx)
}

// CanAdvance reports whether the current frame may be simulated. It is true
// as soon as the peer's input for the frame has arrived, or once the peer
// has been waited on for more than MaxWaitFrames polls, in which case its
// input is predicted.
func (c *Coordinator) CanAdvance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Ready {
		return false
	}
	if c.remote.IsRecorded(c.frame) {
		c.waitCount = 0
		c.permitted = true
		return true
	}

	c.waitCount++
	if c.waitCount > c.cfg.MaxWaitFrames {
		c.log.Warn("remote input timeout, using prediction", zap.Uint64("frame", uint64(c.frame)))
		c.waitCount = 0
		c.permitted = true
		return true
	}
	return false
}

// Inputs returns the local and remote input for the current frame. The
// remote input is a prediction when none was received.
func (c *Coordinator) Inputs() (local, remote input.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local.Get(c.frame), c.remote.Get(c.frame)
}

func (c *Coordinator) InputsAt(f input.Frame) (local, remote input.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local.Get(f), c.remote.Get(f)
}

// Checkpoint takes the engine digest for the current frame. On checkpoint
// frames it is sent to the peer, once per frame.
func (c *Coordinator) Checkpoint(ctx context.Context, digest string) {
	c.mu.Lock()
	var fx effects

	f := c.frame
	c.lastLocal = localDigest{frame: f, digest: digest, ok: true}

	interval := input.Frame(c.cfg.CheckpointInterval)
	if f%interval == 0 {
		c.history[f] = digest
		for hf := range c.history {
			if hf+interval*historyDepth <= f {
				delete(c.history, hf)
			}
		}

		if int64(f) != c.lastCheckpointFrame {
			c.lastCheckpointFrame = int64(f)
			if c.connected {
				fx.sends = append(fx.sends, protocol.CheckpointMsg(protocol.Checkpoint{
					Frame:     f,
					Digest:    digest,
					Timestamp: c.cfg.Now().UnixMilli(),
				}))
				c.log.Debug("checkpoint sent", zap.Uint64("frame", uint64(f)))
			}
		}
	}

	c.compareLocked(&fx)
	c.mu.Unlock()
	c.flush(ctx, fx)
}

func (c *Coordinator) localDigestFor(f input.Frame) (string, bool) {
	if c.lastLocal.ok && c.lastLocal.frame == f {
		return c.lastLocal.digest, true
	}
	d, ok := c.history[f]
	return d, ok
}

// compareLocked checks the pending remote checkpoint against the local
// digest for the same frame. A checkpoint for a frame not reached yet stays
// pending until that frame's digest is supplied.
func (c *Coordinator) compareLocked(fx *effects) {
	cp := c.remoteCheckpoint
	if !c.remotePending || cp == nil || c.state == Desynced {
		return
	}

	local, ok := c.localDigestFor(cp.Frame)
	if !ok {
		if cp.Frame < c.frame {
			c.log.Debug("no local digest for remote checkpoint", zap.Uint64("frame", uint64(cp.Frame)))
			c.remotePending = false
		}
		return
	}
	c.remotePending = false

	if local == cp.Digest {
		return
	}

	d := Desync{Frame: cp.Frame, Local: local, Remote: cp.Digest}
	c.log.Error("desync detected",
		zap.Uint64("frame", uint64(d.Frame)),
		zap.String("local", d.Local),
		zap.String("remote", d.Remote),
	)
	c.state = Desynced
	fx.events = append(fx.events, func(s EventSink) { s.OnDesync(d) })
}

// Advance moves to the next frame. It must follow a CanAdvance that
// returned true; any other call is ignored. A tick permitted before a pause
// or desync arrived still completes, so the frame counter stays in step
// with the engine.
func (c *Coordinator) Advance() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.permitted {
		c.log.Warn("advance without permission ignored", zap.Uint64("frame", uint64(c.frame)))
		return
	}
	c.permitted = false
	c.frame++
	c.remote.Prune(c.frame)
	c.local.Prune(c.frame)
}

// Ping sends a latency probe; the relay answers it directly.
func (c *Coordinator) Ping(ctx context.Context) {
	c.mu.Lock()
	var fx effects
	if c.connected {
		c.pingSent = c.cfg.Now()
		fx.sends = append(fx.sends, protocol.Ping())
	}
	c.mu.Unlock()
	c.flush(ctx, fx)
}

// Reset clears frames, buffers and checkpoints. It is the only way out of
// Desynced.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frame = 0
	c.waitCount = 0
	c.permitted = false
	c.local.Reset()
	c.remote.Reset()
	c.lastCheckpointFrame = -1
	c.lastLocal = localDigest{}
	clear(c.history)
	c.remoteCheckpoint = nil
	c.remotePending = false

	switch {
	case !c.connected:
		c.state = Connecting
	case c.role == "":
		c.state = AwaitingPeer
	default:
		c.state = Ready
	}
}

func (c *Coordinator) Frame() input.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

func (c *Coordinator) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) Role() protocol.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *Coordinator) Latency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latency
}

type Status struct {
	Frame            input.Frame
	State            ConnState
	Role             protocol.Role
	WaitCount        int
	Latency          time.Duration
	RemoteCheckpoint *protocol.Checkpoint
}

func (c *Coordinator) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Frame:     c.frame,
		State:     c.state,
		Role:      c.role,
		WaitCount: c.waitCount,
		Latency:   c.latency,
	}
	if c.remoteCheckpoint != nil {
		cp := *c.remoteCheckpoint
		st.RemoteCheckpoint = &cp
	}
	return st
}
