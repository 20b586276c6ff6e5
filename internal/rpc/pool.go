package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"mach/internal/asset"
	"mach/internal/failure"
	"mach/internal/plugin"
)

// Dialer opens one duplex stream to a fresh engine host.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

var errPoolClosed = errors.New("connection closed")

// slot serializes calls on mu. The stream has its own lock so Close can
// drop it while a call is still waiting on the host.
type slot struct {
	mu     sync.Mutex
	index  int
	nextID uint64

	connMu sync.Mutex
	rwc    io.ReadWriteCloser
	closed bool
}

func (s *slot) conn() io.ReadWriteCloser {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.rwc
}

// attach installs rwc unless the slot was closed meanwhile.
func (s *slot) attach(rwc io.ReadWriteCloser) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		_ = rwc.Close()
		return false
	}
	s.rwc = rwc
	return true
}

func (s *slot) reset() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.rwc != nil {
		_ = s.rwc.Close()
		s.rwc = nil
	}
}

func (s *slot) close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.closed = true
	if s.rwc == nil {
		return nil
	}
	err := s.rwc.Close()
	s.rwc = nil
	return err
}

// Pool is a Connection multiplexed over a fixed set of slots. Calls are
// dealt round-robin; each slot handles one call at a time and dials its
// stream on first use or after a failure.
type Pool struct {
	engine  string
	session string
	dial    Dialer
	timeout time.Duration

	slots  []*slot
	next   atomic.Uint64
	dials  atomic.Int64
	closed atomic.Bool
}

var _ plugin.Connection = (*Pool)(nil)

func newPool(engine string, dial Dialer, slots int, timeout time.Duration) *Pool {
	if slots < 1 {
		slots = 1
	}
	p := &Pool{
		engine:  engine,
		session: uuid.NewString(),
		dial:    dial,
		timeout: timeout,
		slots:   make([]*slot, slots),
	}
	for i := range p.slots {
		p.slots[i] = &slot{index: i}
	}
	return p
}

// Session identifies this connection in host logs.
func (p *Pool) Session() string { return p.session }

// Slots returns the pool size.
func (p *Pool) Slots() int { return len(p.slots) }

// Dials counts streams opened so far, restarts included.
func (p *Pool) Dials() int64 { return p.dials.Load() }

func (p *Pool) Ping(ctx context.Context) error {
	return p.call(ctx, p.engine, MethodPing, struct{}{}, nil)
}

func (p *Pool) Resolve(ctx context.Context, pluginName string, dep *asset.Dependency) (*plugin.ResolveResult, error) {
	var resp ResolveResponse
	if err := p.call(ctx, p.qualified(pluginName), MethodResolve, resolveRequestOf(pluginName, dep), &resp); err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, nil
	}
	return &plugin.ResolveResult{FilePath: resp.FilePath}, nil
}

func (p *Pool) Transform(ctx context.Context, pluginName string, view plugin.AssetView, cfg plugin.ConfigView) (*plugin.Patch, error) {
	var patch plugin.Patch
	req := TransformRequest{Plugin: pluginName, Asset: view, Config: cfg}
	if err := p.call(ctx, p.qualified(pluginName), MethodTransform, req, &patch); err != nil {
		return nil, err
	}
	return &patch, nil
}

// Close tears down every open stream. Hosts see EOF and exit; calls still
// waiting on a host fail with a PluginError.
func (p *Pool) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	var errs []error
	for _, s := range p.slots {
		if err := s.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) qualified(name string) string {
	return p.engine + ":" + name
}

func (p *Pool) pick() *slot {
	i := p.next.Add(1) - 1
	return p.slots[i%uint64(len(p.slots))]
}

func (p *Pool) call(ctx context.Context, pluginID, method string, in, out any) error {
	s := p.pick()
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.closed.Load() {
		return &failure.PluginError{Plugin: pluginID, Op: method, Err: errPoolClosed}
	}
	if s.conn() == nil {
		if err := p.open(ctx, s, pluginID); err != nil {
			return err
		}
	}
	return p.exchange(ctx, s, pluginID, method, in, out)
}

func (p *Pool) open(ctx context.Context, s *slot, pluginID string) error {
	rwc, err := p.dial(ctx)
	if err != nil {
		return &failure.PluginError{Plugin: pluginID, Op: "start", Err: err}
	}
	p.dials.Add(1)
	if !s.attach(rwc) {
		return &failure.PluginError{Plugin: pluginID, Op: "start", Err: errPoolClosed}
	}
	hello := HelloRequest{Session: p.session, Engine: p.engine, Protocol: ProtocolVersion, Slot: s.index}
	var resp HelloResponse
	if err := p.exchange(ctx, s, pluginID, MethodHello, hello, &resp); err != nil {
		s.reset()
		return err
	}
	if resp.Session != p.session {
		s.reset()
		return &failure.PluginError{Plugin: pluginID, Op: MethodHello, Err: fmt.Errorf("session mismatch: got %q", resp.Session)}
	}
	return nil
}

type reply struct {
	env Envelope
	err error
}

// exchange sends one request on s and waits for its answer. On deadline
// the stream is dropped; the reader goroutine unblocks when it closes.
func (p *Pool) exchange(ctx context.Context, s *slot, pluginID, method string, in, out any) error {
	payload, err := msgpack.Marshal(in)
	if err != nil {
		return &failure.PluginError{Plugin: pluginID, Op: method, Err: err}
	}
	s.nextID++
	req := Envelope{ID: s.nextID, Method: method, Payload: payload}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	rwc := s.conn()
	if rwc == nil {
		return &failure.PluginError{Plugin: pluginID, Op: method, Err: errPoolClosed}
	}
	done := make(chan reply, 1)
	go func() {
		env, err := roundTrip(rwc, &req)
		done <- reply{env: env, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-callCtx.Done():
		s.reset()
		if ctx.Err() == nil {
			return &failure.PluginTimeout{Plugin: pluginID, Op: method}
		}
		return ctx.Err()
	}
	if r.err != nil {
		s.reset()
		return &failure.PluginError{Plugin: pluginID, Op: method, Err: r.err}
	}
	if r.env.ID != req.ID {
		s.reset()
		return &failure.PluginError{Plugin: pluginID, Op: method, Err: fmt.Errorf("response id %d, want %d", r.env.ID, req.ID)}
	}
	if r.env.Error != "" {
		return &RemoteError{Method: method, Message: r.env.Error}
	}
	if out == nil || len(r.env.Payload) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(r.env.Payload, out); err != nil {
		return &failure.PluginError{Plugin: pluginID, Op: method, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func roundTrip(rw io.ReadWriter, req *Envelope) (Envelope, error) {
	var env Envelope
	data, err := msgpack.Marshal(req)
	if err != nil {
		return env, err
	}
	if err := writeFrame(rw, data); err != nil {
		return env, err
	}
	frame, err := readFrame(rw)
	if err != nil {
		return env, err
	}
	err = msgpack.Unmarshal(frame, &env)
	return env, err
}
