package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"mach/internal/config"
	"mach/internal/plugin"
)

// Options size a connection.
type Options struct {
	Slots   int
	Timeout time.Duration
}

// Host starts pooled connections to one engine.
type Host struct {
	engine string
	dial   Dialer
	opts   Options
}

var _ plugin.Host = (*Host)(nil)

func NewHost(engine string, dial Dialer, opts Options) *Host {
	return &Host{engine: engine, dial: dial, opts: opts}
}

func (h *Host) Engine() string { return h.engine }

// Start returns a pool without dialing; slots connect on first call.
func (h *Host) Start(context.Context) (plugin.Connection, error) {
	return newPool(h.engine, h.dial, h.opts.Slots, h.opts.Timeout), nil
}

// NewExecHost runs argv once per slot and talks to it over stdin/stdout.
// The binary is looked up when a slot dials.
func NewExecHost(engine string, argv []string, dir string, opts Options) (*Host, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("engine %s: empty command", engine)
	}
	args := append([]string(nil), argv[1:]...)
	return NewHost(engine, func(context.Context) (io.ReadWriteCloser, error) {
		bin, err := exec.LookPath(argv[0])
		if err != nil {
			return nil, err
		}
		return startProcess(bin, args, dir)
	}, opts), nil
}

// Factory builds exec hosts from the engine commands in cfg's .machrc.
func Factory(cfg *config.MachConfig) plugin.HostFactory {
	return func(engine string) (plugin.Host, error) {
		h, err := NewExecHost(engine, cfg.Machrc.EngineCommand(engine), cfg.Root, Options{
			Slots:   cfg.Workers(),
			Timeout: cfg.PluginTimeout,
		})
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

// procConn is a running host process seen as a stream.
type procConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr *tail

	once sync.Once
	err  error
}

const closeGrace = 2 * time.Second

func startProcess(bin string, args []string, dir string) (*procConn, error) {
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	stderr := &tail{max: 4096}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &procConn{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

func (c *procConn) Read(p []byte) (int, error) {
	n, err := c.stdout.Read(p)
	if err != nil && errors.Is(err, io.EOF) {
		if msg := c.stderr.String(); msg != "" {
			return n, fmt.Errorf("host exited: %s", msg)
		}
	}
	return n, err
}

func (c *procConn) Write(p []byte) (int, error) {
	return c.stdin.Write(p)
}

// Close ends the host's stdin and gives it closeGrace to exit before
// killing it.
func (c *procConn) Close() error {
	c.once.Do(func() {
		_ = c.stdin.Close()
		exited := make(chan error, 1)
		go func() { exited <- c.cmd.Wait() }()
		select {
		case <-exited:
		case <-time.After(closeGrace):
			_ = c.cmd.Process.Kill()
			<-exited
		}
	})
	return c.err
}

// tail keeps the last max bytes written to it.
type tail struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
