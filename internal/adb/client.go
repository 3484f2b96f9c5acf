package adb

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/nerrad567/packpilot/internal/infrastructure/config"
)

// Logger defines the logging interface used by the adb package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Executor runs a binary and returns its stdout and stderr.
type Executor interface {
	Execute(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// execExecutor runs commands with os/exec.
type execExecutor struct{}

func (execExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // binary path comes from operator config
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Client runs adb commands.
type Client struct {
	path      string
	port      int
	superuser bool
	exec      Executor
	logger    Logger

	mu   sync.RWMutex
	root map[string]bool // serials with a working "su"
}

// NewClient creates a client for the adb binary in cfg. When
// cfg.Superuser is set, Connect probes each device for root and shell
// commands on rooted devices run through "su -c".
func NewClient(cfg config.ADBConfig) *Client {
	return &Client{
		path:      cfg.Path,
		port:      cfg.ServerPort,
		superuser: cfg.Superuser,
		exec:      execExecutor{},
		logger:    noopLogger{},
		root:      make(map[string]bool),
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// SetExecutor replaces the command executor.
func (c *Client) SetExecutor(e Executor) {
	c.exec = e
}

// Path returns the adb binary path.
func (c *Client) Path() string {
	return c.path
}

// Run executes adb with args and returns stdout. A non-zero exit, or
// output on stderr with an empty stdout, is reported as ErrCommandFailed.
func (c *Client) Run(ctx context.Context, args ...string) ([]byte, error) {
	full := args
	if c.port > 0 && c.port != defaultServerPort {
		full = append([]string{"-P", fmt.Sprint(c.port)}, args...)
	}

	stdout, stderr, err := c.exec.Execute(ctx, c.path, full...)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return stdout, fmt.Errorf("%w: adb %s: %v: %s", ErrCommandFailed, strings.Join(args, " "), err, bytes.TrimSpace(stderr))
	}
	if len(stdout) == 0 && len(bytes.TrimSpace(stderr)) > 0 {
		return nil, fmt.Errorf("%w: adb %s: %s", ErrCommandFailed, strings.Join(args, " "), bytes.TrimSpace(stderr))
	}
	return stdout, nil
}

// Shell runs a shell command on serial, through "su -c" when the device
// was found to be rooted.
func (c *Client) Shell(ctx context.Context, serial string, cmd ...string) ([]byte, error) {
	args := []string{"-s", serial, "shell"}
	if c.isRoot(serial) {
		args = append(args, "su", "-c", shellQuote(strings.Join(cmd, " ")))
	} else {
		args = append(args, cmd...)
	}
	return c.Run(ctx, args...)
}

func (c *Client) isRoot(serial string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.root[serial]
}

// Devices returns the serials adb lists in the "device" state.
func (c *Client) Devices(ctx context.Context) ([]string, error) {
	out, err := c.Run(ctx, "devices")
	if err != nil {
		return nil, err
	}
	return parseDevices(out), nil
}

func parseDevices(out []byte) []string {
	var serials []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 2 && fields[1] == "device" {
			serials = append(serials, fields[0])
		}
	}
	return serials
}

// Connect attaches a network device (serial "host:port"). A device that
// is already attached is disconnected first so a stale transport is not
// reused. With superuser enabled, root is probed afterwards.
func (c *Client) Connect(ctx context.Context, serial string) error {
	attached, err := c.Devices(ctx)
	if err != nil {
		return err
	}
	for _, s := range attached {
		if s == serial {
			c.logger.Info("device already connected, reconnecting", "serial", serial)
			if _, err := c.Run(ctx, "disconnect", serial); err != nil {
				c.logger.Warn("disconnect failed", "serial", serial, "error", err)
			}
			break
		}
	}

	out, err := c.Run(ctx, "connect", serial)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectFailed, serial, err)
	}
	msg := strings.ToLower(string(out))
	if !strings.Contains(msg, "connected to") || strings.Contains(msg, "cannot") {
		return fmt.Errorf("%w: %s: %s", ErrConnectFailed, serial, strings.TrimSpace(string(out)))
	}
	c.logger.Info("device connected", "serial", serial)

	if c.superuser {
		c.probeRoot(ctx, serial)
	}
	return nil
}

// probeRoot records whether "su -c whoami" prints root on serial.
func (c *Client) probeRoot(ctx context.Context, serial string) {
	out, err := c.Run(ctx, "-s", serial, "shell", "su", "-c", "whoami")
	ok := err == nil && strings.TrimSpace(string(out)) == "root"

	c.mu.Lock()
	c.root[serial] = ok
	c.mu.Unlock()

	if ok {
		c.logger.Info("superuser enabled", "serial", serial)
	} else {
		c.logger.Warn("superuser unavailable, using plain shell", "serial", serial, "error", err)
	}
}

// IsRoot reports whether shell commands on serial run as root.
func (c *Client) IsRoot(serial string) bool {
	return c.isRoot(serial)
}
