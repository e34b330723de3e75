package symstream

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/symstream/supply"
	"github.com/ggoodman/symstream/supply/memorysupply"
	"github.com/google/uuid"
)

// Option configures a Device.
type Option func(*deviceConfig)

type deviceConfig struct {
	symbol    Symbol
	mode      SupplyMode
	supply    uint64
	supplySet bool
	perm      fs.FileMode
	store     supply.Store
	logger    *slog.Logger
	metrics   MetricsSink
}

// WithSymbol sets the symbol served by the device. Default: Fox.
func WithSymbol(sym Symbol) Option {
	return func(c *deviceConfig) { c.symbol = sym }
}

// WithMode sets the supply mode. Default: ModeSession.
func WithMode(m SupplyMode) Option {
	return func(c *deviceConfig) { c.mode = m }
}

// WithSupply sets the initial count for bounded modes. Zero is a valid,
// empty supply. Default: SupplyMode.DefaultSupply.
func WithSupply(n uint64) Option {
	return func(c *deviceConfig) { c.supply = n; c.supplySet = true }
}

// WithPerm sets the permission bits advertised for the endpoint. Default: 0o444.
func WithPerm(perm fs.FileMode) Option {
	return func(c *deviceConfig) { c.perm = perm.Perm() }
}

// WithStore sets where counters live. The caller keeps ownership of the
// store. Default: a private memorysupply.Store closed with the Device.
func WithStore(s supply.Store) Option {
	return func(c *deviceConfig) {
		if s != nil {
			c.store = s
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *deviceConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics installs a MetricsSink.
func WithMetrics(m MetricsSink) Option {
	return func(c *deviceConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Device is a registered symbol stream endpoint. It is safe for concurrent use.
type Device struct {
	name       string
	symbol     Symbol
	mode       SupplyMode
	initial    uint64
	perm       fs.FileMode
	store      supply.Store
	ownedStore bool
	log        *slog.Logger
	metrics    MetricsSink
	tags       map[string]string

	shared *sharedSupply
	closed atomic.Bool
	open   atomic.Int64

	storeOnce sync.Once
	storeErr  error
}

// sharedSupply is the ModeShared counter plus the number of local holders
// (the device and each open session). Together they count as one holder in
// the store; the last local holder releases it there.
type sharedSupply struct {
	counter supply.Counter
	refs    atomic.Int64
}

// Register creates a device named name. In ModeShared it also creates the
// shared counter, attaching to an existing one if the store already holds it.
// Every device registered against the same store and name holds the counter,
// and it is destroyed only after the last of them and its sessions let go.
func Register(ctx context.Context, name string, opts ...Option) (*Device, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("device name is required")
	}

	cfg := &deviceConfig{
		symbol:  Fox,
		mode:    ModeSession,
		perm:    0o444,
		logger:  slog.Default(),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.symbol.Width() == 0 {
		return nil, ErrSymbolWidth
	}
	if !cfg.mode.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(cfg.mode))
	}
	if !cfg.supplySet {
		cfg.supply = cfg.mode.DefaultSupply()
	}

	d := &Device{
		name:    name,
		symbol:  cfg.symbol,
		mode:    cfg.mode,
		initial: cfg.supply,
		perm:    cfg.perm,
		store:   cfg.store,
		metrics: cfg.metrics,
		tags:    map[string]string{"device": name, "mode": cfg.mode.String()},
	}
	d.log = cfg.logger.With(slog.String("device", name))
	if d.store == nil {
		d.store = memorysupply.New()
		d.ownedStore = true
	}

	if d.mode == ModeShared {
		c, err := d.store.Acquire(ctx, d.sharedKey(), d.initial)
		if err != nil {
			d.closeOwnedStore()
			return nil, fmt.Errorf("acquire shared supply: %w", err)
		}
		d.shared = &sharedSupply{counter: c}
		d.shared.refs.Store(1)
	}

	d.logBanner(ctx)
	d.log.InfoContext(ctx, "device.register.ok",
		slog.String("mode", d.mode.String()),
		slog.Uint64("supply", d.initial),
		slog.String("symbol", d.symbol.String()),
		slog.String("perm", d.perm.String()),
	)
	return d, nil
}

func (d *Device) logBanner(ctx context.Context) {
	title := strings.ToUpper(d.name[:1]) + d.name[1:]
	line := fmt.Sprintf("| %s are supported on this host! |", title)
	border := "+" + strings.Repeat("-", len(line)-2) + "+"
	d.log.InfoContext(ctx, border)
	d.log.InfoContext(ctx, line)
	d.log.InfoContext(ctx, border)
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Symbol returns the symbol the device serves.
func (d *Device) Symbol() Symbol { return d.symbol }

// Mode returns the supply mode.
func (d *Device) Mode() SupplyMode { return d.mode }

// Perm returns the endpoint's permission bits.
func (d *Device) Perm() fs.FileMode { return d.perm }

// InitialSupply returns the count bounded counters start from.
func (d *Device) InitialSupply() uint64 { return d.initial }

// OpenSessions returns the number of sessions opened and not yet closed.
func (d *Device) OpenSessions() int64 { return d.open.Load() }

// Remaining reports the shared supply in ModeShared. ok is false in other modes.
func (d *Device) Remaining(ctx context.Context) (n uint64, ok bool, err error) {
	if d.shared == nil {
		return 0, false, nil
	}
	n, err = d.shared.counter.Load(ctx)
	return n, true, err
}

func (d *Device) sharedKey() string { return d.name + ":shared" }

func (d *Device) sessionKey(id string) string { return d.name + ":session:" + id }

// Open starts a new session bound to the counter the supply mode calls for.
func (d *Device) Open(ctx context.Context) (*Session, error) {
	if d.closed.Load() {
		return nil, ErrDeviceClosed
	}
	id := uuid.NewString()

	s, err := d.bind(ctx, id, func(key string) (supply.Counter, error) {
		return d.store.Create(ctx, key, d.initial)
	})
	if err != nil {
		d.log.ErrorContext(ctx, "session.open.fail", slog.String("err", err.Error()))
		return nil, fmt.Errorf("open session: %w", err)
	}
	d.metrics.IncCounter(MetricSessionsOpened, d.tags)
	s.log.InfoContext(ctx, "session.open.ok")
	return s, nil
}

// Resume rebinds a session previously returned by Open, possibly by another
// process sharing the same store. In ModeSession the session's private
// counter must still exist.
func (d *Device) Resume(ctx context.Context, id string) (*Session, error) {
	if d.closed.Load() {
		return nil, ErrDeviceClosed
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}

	s, err := d.bind(ctx, id, func(key string) (supply.Counter, error) {
		c, err := d.store.Lookup(ctx, key)
		if errors.Is(err, supply.ErrCounterNotFound) {
			return nil, ErrSessionNotFound
		}
		return c, err
	})
	if err != nil {
		return nil, err
	}
	s.log.DebugContext(ctx, "session.resume.ok")
	return s, nil
}

func (d *Device) bind(ctx context.Context, id string, private func(key string) (supply.Counter, error)) (*Session, error) {
	s := &Session{id: id, dev: d, log: d.log.With(slog.String("session", id))}
	switch d.mode {
	case ModeSession:
		c, err := private(d.sessionKey(id))
		if err != nil {
			return nil, err
		}
		s.counter = c
		s.private = true
	case ModeShared:
		if !d.acquireShared() {
			return nil, ErrDeviceClosed
		}
		s.counter = d.shared.counter
	}
	d.open.Add(1)
	return s, nil
}

func (d *Device) acquireShared() bool {
	for {
		n := d.shared.refs.Load()
		if n <= 0 {
			return false
		}
		if d.shared.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (d *Device) releaseShared(ctx context.Context) error {
	if d.shared.refs.Add(-1) != 0 {
		return nil
	}
	destroyed, err := d.store.Release(context.WithoutCancel(ctx), d.sharedKey())
	if err != nil {
		return fmt.Errorf("release shared supply: %w", err)
	}
	if destroyed {
		d.log.InfoContext(ctx, "supply.shared.destroy")
	}
	return nil
}

// sessionDone records that a session let go of the device. The last one to
// do so after Close shuts down an owned store.
func (d *Device) sessionDone() error {
	if d.open.Add(-1) == 0 && d.closed.Load() {
		return d.closeOwnedStore()
	}
	return nil
}

// Close unregisters the device. Open sessions keep working; the shared
// counter is released once the last of them closes, and a store created by
// Register is closed at the same point.
func (d *Device) Close(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if d.shared != nil {
		errs = append(errs, d.releaseShared(ctx))
	}
	if d.open.Load() == 0 {
		errs = append(errs, d.closeOwnedStore())
	}
	d.log.InfoContext(ctx, "device.close.ok")
	return errors.Join(errs...)
}

func (d *Device) closeOwnedStore() error {
	if !d.ownedStore {
		return nil
	}
	d.storeOnce.Do(func() { d.storeErr = d.store.Close() })
	return d.storeErr
}
