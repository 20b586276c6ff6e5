package rpc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"mach/internal/asset"
	"mach/internal/failure"
	"mach/internal/plugin"
)

func TestFramingMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	msg1 := []byte("one")
	msg2 := []byte{}
	if err := writeFrame(&buf, msg1); err != nil {
		t.Fatalf("write message 1: %v", err)
	}
	if err := writeFrame(&buf, msg2); err != nil {
		t.Fatalf("write message 2: %v", err)
	}
	got1, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("read message 1: %v", err)
	}
	got2, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("read message 2: %v", err)
	}
	if string(got1) != "one" || len(got2) != 0 {
		t.Fatalf("unexpected frames %q %q", got1, got2)
	}
	if _, err := readFrame(&buf); !errors.Is(err, io.EOF) {
		t.Fatalf("read past end: err = %v, want EOF", err)
	}
}

func TestFramingRejectsOversizedAndTruncated(t *testing.T) {
	big := bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff})
	if _, err := readFrame(big); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("oversized: err = %v", err)
	}
	short := bytes.NewReader([]byte{0, 0, 0, 5, 'a', 'b'})
	if _, err := readFrame(short); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("truncated: err = %v", err)
	}
}

type testHandler struct {
	block   chan struct{}
	entered chan struct{}
	resolve func(ResolveRequest) (*plugin.ResolveResult, error)
}

func (h *testHandler) Resolve(_ context.Context, req ResolveRequest) (*plugin.ResolveResult, error) {
	if h.resolve != nil {
		return h.resolve(req)
	}
	return nil, nil
}

func (h *testHandler) Transform(_ context.Context, req TransformRequest) (*plugin.Patch, error) {
	if h.entered != nil {
		h.entered <- struct{}{}
	}
	if h.block != nil {
		<-h.block
	}
	if strings.Contains(string(req.Asset.Content), "boom") {
		return nil, errors.New("cannot transform " + req.Asset.FilePath)
	}
	return &plugin.Patch{
		NewKind:           "js",
		NewContent:        []byte("export default " + string(req.Asset.Content) + ";"),
		ContentSet:        true,
		AddedDependencies: []asset.DependencyOptions{{Specifier: "./x", LinkingSymbols: []asset.LinkingSymbol{asset.Named("x")}}},
	}, nil
}

// pipeHost serves h on in-process pipes, one per dial.
func pipeHost(t *testing.T, h Handler, opts Options) (*Host, *atomic.Int32) {
	t.Helper()
	var dials atomic.Int32
	host := NewHost("test", func(context.Context) (io.ReadWriteCloser, error) {
		dials.Add(1)
		client, server := net.Pipe()
		go func() {
			_ = Serve(context.Background(), server, "test", h)
			_ = server.Close()
		}()
		return client, nil
	}, opts)
	return host, &dials
}

func start(t *testing.T, h *Host) *Pool {
	t.Helper()
	conn, err := h.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn.(*Pool)
}

func TestResolveAndTransform(t *testing.T) {
	h := &testHandler{resolve: func(req ResolveRequest) (*plugin.ResolveResult, error) {
		if req.Specifier == "virtual:a" && req.Plugin == "virtual" && req.ResolveFrom == "/p/src" {
			return &plugin.ResolveResult{FilePath: "/p/a.js"}, nil
		}
		return nil, nil
	}}
	host, _ := pipeHost(t, h, Options{Slots: 2, Timeout: time.Second})
	pool := start(t, host)
	ctx := context.Background()

	if _, err := uuid.Parse(pool.Session()); err != nil {
		t.Fatalf("session %q is not a uuid: %v", pool.Session(), err)
	}
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	res, err := pool.Resolve(ctx, "virtual", &asset.Dependency{Specifier: "virtual:a", ResolveFrom: "/p/src"})
	if err != nil || res == nil || res.FilePath != "/p/a.js" {
		t.Fatalf("Resolve = %+v, %v", res, err)
	}
	res, err = pool.Resolve(ctx, "virtual", &asset.Dependency{Specifier: "other", ResolveFrom: "/p/src"})
	if err != nil || res != nil {
		t.Fatalf("yielding Resolve = %+v, %v", res, err)
	}

	patch, err := pool.Transform(ctx, "json", plugin.AssetView{FilePath: "a.json", Kind: "json", Content: []byte(`{"a":1}`)}, plugin.ConfigView{})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	want := &plugin.Patch{
		NewKind:           "js",
		NewContent:        []byte(`export default {"a":1};`),
		ContentSet:        true,
		AddedDependencies: []asset.DependencyOptions{{Specifier: "./x", LinkingSymbols: []asset.LinkingSymbol{asset.Named("x")}}},
	}
	if diff := cmp.Diff(want, patch); diff != "" {
		t.Fatalf("patch (-want +got):\n%s", diff)
	}
}

func TestRemoteErrorIsNotTransportError(t *testing.T) {
	host, dials := pipeHost(t, &testHandler{}, Options{Slots: 1, Timeout: time.Second})
	pool := start(t, host)
	_, err := pool.Transform(context.Background(), "t", plugin.AssetView{FilePath: "a.txt", Content: []byte("boom")}, plugin.ConfigView{})
	var re *RemoteError
	if !errors.As(err, &re) || re.Message != "cannot transform a.txt" {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if _, err := pool.Transform(context.Background(), "t", plugin.AssetView{Content: []byte("1")}, plugin.ConfigView{}); err != nil {
		t.Fatalf("slot unusable after remote error: %v", err)
	}
	if dials.Load() != 1 {
		t.Fatalf("dials = %d, want 1", dials.Load())
	}
}

func TestRoundRobinDialsEachSlotOnce(t *testing.T) {
	host, dials := pipeHost(t, &testHandler{}, Options{Slots: 3, Timeout: time.Second})
	pool := start(t, host)
	for i := 0; i < 7; i++ {
		if err := pool.Ping(context.Background()); err != nil {
			t.Fatalf("Ping %d: %v", i, err)
		}
	}
	if dials.Load() != 3 || pool.Dials() != 3 {
		t.Fatalf("dials = %d/%d, want 3", dials.Load(), pool.Dials())
	}
}

func TestDeadlineYieldsPluginTimeout(t *testing.T) {
	h := &testHandler{block: make(chan struct{})}
	defer close(h.block)
	host, dials := pipeHost(t, h, Options{Slots: 1, Timeout: 50 * time.Millisecond})
	pool := start(t, host)

	_, err := pool.Transform(context.Background(), "slow", plugin.AssetView{FilePath: "a.js"}, plugin.ConfigView{})
	var pt *failure.PluginTimeout
	if !errors.As(err, &pt) {
		t.Fatalf("err = %v, want PluginTimeout", err)
	}
	if pt.Plugin != "test:slow" || pt.Op != MethodTransform {
		t.Fatalf("timeout = %+v", pt)
	}
	if failure.ExitCode(err) != failure.ExitPlugin {
		t.Fatalf("exit code = %d", failure.ExitCode(err))
	}
	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("Ping after timeout: %v", err)
	}
	if dials.Load() != 2 {
		t.Fatalf("dials = %d, want a redial after timeout", dials.Load())
	}
}

func TestClosedPoolRejectsCalls(t *testing.T) {
	host, _ := pipeHost(t, &testHandler{}, Options{Slots: 1})
	pool := start(t, host)
	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	var pe *failure.PluginError
	if err := pool.Ping(context.Background()); !errors.As(err, &pe) {
		t.Fatalf("Ping after Close: err = %v", err)
	}
}

func TestCloseInterruptsCallWithoutDeadline(t *testing.T) {
	h := &testHandler{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	defer close(h.block)
	host, _ := pipeHost(t, h, Options{Slots: 1})
	pool := start(t, host)

	errc := make(chan error, 1)
	go func() {
		_, err := pool.Transform(context.Background(), "hung", plugin.AssetView{FilePath: "a.js"}, plugin.ConfigView{})
		errc <- err
	}()
	<-h.entered

	closed := make(chan error, 1)
	go func() { closed <- pool.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Close blocked behind a running call")
	}

	select {
	case err := <-errc:
		var pe *failure.PluginError
		if !errors.As(err, &pe) || pe.Plugin != "test:hung" {
			t.Fatalf("err = %v, want PluginError", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("call still waiting after Close")
	}
}

func TestDialFailureIsPluginError(t *testing.T) {
	host := NewHost("gone", func(context.Context) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such host")
	}, Options{})
	pool := start(t, host)
	var pe *failure.PluginError
	if err := pool.Ping(context.Background()); !errors.As(err, &pe) || pe.Op != "start" {
		t.Fatalf("err = %v", err)
	}
}

func TestExecHostNeedsCommand(t *testing.T) {
	if _, err := NewExecHost("node", nil, "", Options{}); err == nil {
		t.Fatalf("empty argv accepted")
	}
}
