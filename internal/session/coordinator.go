// Package session coordinates the connection to one AirPods accessory.
//
// The Coordinator runs the connect flow (scan, connect, identify the
// model), keeps the resulting session, gates the audio controls on the
// model's capabilities and notifies registered callbacks on every change.
//
// Only one connection attempt runs at a time. There are no retries; a
// failed attempt returns to Disconnected and reports the error.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"podcompanion/internal/bluez"
	"podcompanion/internal/model"
)

var (
	ErrAttemptPending   = errors.New("connection attempt already in progress")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
	ErrUnsupported      = errors.New("not supported by this model")
)

// Connector finds and connects accessories. *bluez.Client implements it.
type Connector interface {
	Scan(ctx context.Context) (*bluez.Device, error)
	Connect(ctx context.Context, d *bluez.Device) error
	Disconnect(ctx context.Context, d *bluez.Device) error
	Refresh(ctx context.Context, d *bluez.Device) (*bluez.Device, error)
}

// Options tune a Coordinator. Zero values use the defaults.
type Options struct {
	Resolver       model.Resolver
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
}

// UpdateCallback is called with a snapshot after every state change.
type UpdateCallback func(State)

// Coordinator owns the session state.
type Coordinator struct {
	conn Connector
	opts Options

	// notifyMu serializes snapshot and delivery so callbacks see states
	// in order.
	notifyMu sync.Mutex

	mu        sync.RWMutex
	callbacks []UpdateCallback
	status    Status
	pending   bool
	device    *bluez.Device
	session   *Session
	lastModel model.Model
	noise     NoiseMode
	spatial   SpatialMode
	battery   *Battery
}

// NewCoordinator creates a disconnected coordinator.
func NewCoordinator(conn Connector, opts Options) *Coordinator {
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 10 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	return &Coordinator{
		conn:    conn,
		opts:    opts,
		noise:   NoiseOff,
		spatial: SpatialOff,
	}
}

// RegisterCallback registers cb and immediately calls it with the current
// state. Callbacks must not call back into the Coordinator.
func (c *Coordinator) RegisterCallback(cb UpdateCallback) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.callbacks = append(c.callbacks, cb)
	state := c.snapshot()
	c.mu.Unlock()

	cb(state)
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot()
}

func (c *Coordinator) snapshot() State {
	s := State{
		Status:    c.status,
		LastModel: c.lastModel,
		Noise:     c.noise,
		Spatial:   c.spatial,
	}
	if c.session != nil {
		sess := *c.session
		s.Session = &sess
	}
	s.Battery = c.battery.clone()
	return s
}

// notify sends the current state to all callbacks. Must be called without
// holding mu.
func (c *Coordinator) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.RLock()
	state := c.snapshot()
	callbacks := make([]UpdateCallback, len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.mu.RUnlock()

	for _, cb := range callbacks {
		cb(state)
	}
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.notify()
}

// Connect scans for an accessory, connects to it and identifies its model.
func (c *Coordinator) Connect(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	switch {
	case c.pending:
		c.mu.Unlock()
		return nil, ErrAttemptPending
	case c.status == Connected:
		c.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	c.pending = true
	c.status = Scanning
	c.mu.Unlock()
	c.notify()

	device, err := c.attempt(ctx)

	c.mu.Lock()
	c.pending = false
	if err != nil {
		c.status = Disconnected
		c.mu.Unlock()
		c.notify()
		slog.Warn("connection attempt failed", "error", err)
		return nil, err
	}

	m := c.opts.Resolver.Resolve(device.Discovered())
	sess := &Session{
		ID:           uuid.New(),
		Name:         device.DisplayName(),
		Address:      device.Address,
		Path:         string(device.Path),
		Model:        m,
		Capabilities: model.CapabilitiesOf(m),
		ConnectedAt:  time.Now(),
	}
	c.status = Connected
	c.device = device
	c.session = sess
	c.lastModel = m
	c.noise = NoiseOff
	c.spatial = SpatialOff
	c.battery = batteryFrom(device.Proximity)
	c.mu.Unlock()
	c.notify()

	slog.Info("connected", "name", sess.Name, "model", m, "session", sess.ID)
	out := *sess
	return &out, nil
}

func (c *Coordinator) attempt(ctx context.Context) (*bluez.Device, error) {
	scanCtx, cancel := context.WithTimeout(ctx, c.opts.ScanTimeout)
	device, err := c.conn.Scan(scanCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	c.setStatus(Connecting)

	connectCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	if err := c.conn.Connect(connectCtx, device); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return device, nil
}

// Disconnect ends the session. The last model is kept.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return ErrAttemptPending
	}
	if c.status != Connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	device := c.device
	c.mu.Unlock()

	err := c.conn.Disconnect(ctx, device)
	if err != nil {
		// The accessory may already be gone; the session ends either way.
		slog.Warn("disconnect failed", "device", device.Path, "error", err)
	}

	c.mu.Lock()
	c.status = Disconnected
	c.device = nil
	c.session = nil
	c.battery = nil
	c.noise = NoiseOff
	c.spatial = SpatialOff
	c.mu.Unlock()
	c.notify()

	return err
}

// Toggle disconnects when connected and connects otherwise.
func (c *Coordinator) Toggle(ctx context.Context) error {
	if c.State().Status == Connected {
		return c.Disconnect(ctx)
	}
	_, err := c.Connect(ctx)
	return err
}

// Refresh re-reads the connected accessory and updates the battery state.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.RLock()
	device := c.device
	connected := c.status == Connected
	c.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}

	fresh, err := c.conn.Refresh(ctx, device)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.device != device {
		// Disconnected or reconnected meanwhile.
		c.mu.Unlock()
		return nil
	}
	c.device = fresh
	if b := batteryFrom(fresh.Proximity); b != nil {
		c.battery = b
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// SetNoiseMode changes the noise control mode.
func (c *Coordinator) SetNoiseMode(mode NoiseMode) error {
	c.mu.Lock()
	if c.status != Connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if !mode.Supported(c.session.Capabilities) {
		c.mu.Unlock()
		return fmt.Errorf("noise mode %q: %w", mode, ErrUnsupported)
	}
	c.noise = mode
	c.mu.Unlock()
	c.notify()
	return nil
}

// SetSpatialMode changes the spatial audio mode.
func (c *Coordinator) SetSpatialMode(mode SpatialMode) error {
	c.mu.Lock()
	if c.status != Connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if !mode.Supported(c.session.Capabilities) {
		c.mu.Unlock()
		return fmt.Errorf("spatial mode %q: %w", mode, ErrUnsupported)
	}
	c.spatial = mode
	c.mu.Unlock()
	c.notify()
	return nil
}
