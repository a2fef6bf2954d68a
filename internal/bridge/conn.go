// Package bridge owns the single logical connection from the agent-facing
// tool surface to the host executor. It establishes the socket with a
// bounded retry policy, frames commands over it one at a time, and tears
// it down whenever the transport becomes untrustworthy.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/forgebridge/forgebridge/internal/wire"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Defaults mirror the host executor's own timeouts: connects are quick,
// but a single command can cover a full render.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultCallTimeout    = 180 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 1 * time.Second
)

// Config describes how to reach the host executor.
type Config struct {
	Network        string // "tcp" or "unix"
	Addr           string
	AuthToken      string // included on privileged commands; empty disables
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// Conn is the bridge's one logical connection to the host executor.
//
// The framing protocol carries no request IDs, so calls cannot be
// multiplexed: Send holds a mutex for the whole request/response exchange
// and concurrent callers queue behind it.
type Conn struct {
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	sock       net.Conn
	state      State
	retryCount int
	lastErr    error

	dial  func(network, addr string, timeout time.Duration) (net.Conn, error)
	sleep func(time.Duration)
}

// New creates a disconnected Conn. The first Send dials.
func New(cfg Config, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{
		cfg:   cfg.withDefaults(),
		log:   log,
		state: StateDisconnected,
		dial:  net.DialTimeout,
		sleep: time.Sleep,
	}
}

// State reports the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError reports the most recent transport failure, if any.
func (c *Conn) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect establishes the socket if it is not already up, retrying up to
// the configured attempt ceiling with a fixed delay between attempts.
func (c *Conn) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Conn) connectLocked() error {
	if c.sock != nil {
		return nil
	}

	c.state = StateConnecting
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		sock, err := c.dial(c.cfg.Network, c.cfg.Addr, c.cfg.ConnectTimeout)
		if err == nil {
			c.sock = sock
			c.state = StateConnected
			c.retryCount = 0
			c.lastErr = nil
			c.log.Info("connected to host",
				zap.String("network", c.cfg.Network),
				zap.String("addr", c.cfg.Addr))
			return nil
		}

		lastErr = err
		c.retryCount++
		c.log.Warn("connect attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.cfg.MaxRetries),
			zap.Error(err))
		if attempt < c.cfg.MaxRetries {
			c.sleep(c.cfg.RetryDelay)
		}
	}

	c.state = StateFailed
	c.lastErr = lastErr
	return fmt.Errorf("%w: %d attempts to %s failed: %v",
		ErrConnection, c.cfg.MaxRetries, c.cfg.Addr, lastErr)
}

// Send issues one command and blocks until its result arrives or the call
// timeout elapses. The result is returned verbatim; a host-side handler
// failure is a successful Send with result.Success == false.
func (c *Conn) Send(ctx context.Context, command string, params any) (*wire.CommandResult, error) {
	req, err := wire.NewRequest(command, params)
	if err != nil {
		return nil, err
	}
	if c.cfg.AuthToken != "" {
		req.AuthToken = c.cfg.AuthToken
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.cfg.CallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.sock.SetDeadline(deadline); err != nil {
		c.dropLocked(StateDisconnected, err)
		return nil, fmt.Errorf("%w: setting deadline: %v", ErrConnection, err)
	}

	c.log.Debug("sending command", zap.String("command", command))
	if err := wire.WriteMessage(c.sock, req); err != nil {
		c.dropLocked(StateDisconnected, err)
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: writing %s", ErrTimeout, command)
		}
		return nil, fmt.Errorf("%w: writing %s: %v", ErrConnection, command, err)
	}

	res, err := wire.ReadResult(c.sock)
	if err != nil {
		c.dropLocked(StateDisconnected, err)
		switch {
		case isTimeout(err):
			return nil, fmt.Errorf("%w: no response to %s within %s",
				ErrTimeout, command, c.cfg.CallTimeout)
		case errors.Is(err, wire.ErrFraming), errors.Is(err, wire.ErrMalformedPayload):
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		default:
			return nil, fmt.Errorf("%w: reading response to %s: %v", ErrConnection, command, err)
		}
	}

	c.sock.SetDeadline(time.Time{}) //nolint: errcheck
	return res, nil
}

// Call sends a command and decodes a successful result into a raw JSON
// payload, converting a host-side failure into an error. Tools that only
// relay the host's JSON use this instead of Send.
func (c *Conn) Call(ctx context.Context, command string, params any) (json.RawMessage, error) {
	res, err := c.Send(ctx, command, params)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("host error: %s", res.Error)
	}
	return res.Result, nil
}

// Close tears down the socket. The Conn can be reused; the next Send
// reconnects.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(StateDisconnected, nil)
}

// dropLocked closes the socket and records the failure. Callers hold mu.
func (c *Conn) dropLocked(state State, cause error) {
	if c.sock != nil {
		c.sock.Close() //nolint: errcheck
		c.sock = nil
	}
	c.state = state
	if cause != nil {
		c.lastErr = cause
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
