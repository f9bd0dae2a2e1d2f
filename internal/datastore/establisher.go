package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aims-api/internal/storage"
)

// DefaultConnectTimeout bounds a single connection attempt.
const DefaultConnectTimeout = 10 * time.Second

// ErrUnavailable reports that neither the primary nor the fallback datastore
// could be reached.
var ErrUnavailable = errors.New("datastore unavailable")

// Connector opens a repository at an address and verifies it answers.
type Connector interface {
	Connect(ctx context.Context, addr string) (storage.Repository, error)
}

// Ephemeral is a running in-process datastore server.
type Ephemeral interface {
	Addr() string
	Close() error
}

// Provisioner starts a fresh, empty ephemeral datastore.
type Provisioner interface {
	Provision(ctx context.Context) (Ephemeral, error)
}

// Connection is the active datastore handle held for the process lifetime.
type Connection struct {
	Store     storage.Repository
	Addr      string
	Driver    string
	Ephemeral bool

	server Ephemeral
}

// Close releases the repository and then any ephemeral server backing it.
func (c *Connection) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Store != nil {
		if err := c.Store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repository: %w", err))
		}
	}
	if c.server != nil {
		if err := c.server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stop ephemeral datastore: %w", err))
		}
	}
	return errors.Join(errs...)
}

// FatalError is returned when the establisher ends in the Failed state.
type FatalError struct {
	Primary  error
	Fallback error
}

func (e *FatalError) Error() string {
	var b strings.Builder
	b.WriteString(ErrUnavailable.Error())
	if e.Primary != nil {
		b.WriteString(": primary: ")
		b.WriteString(e.Primary.Error())
	}
	if e.Fallback != nil {
		b.WriteString("; fallback: ")
		b.WriteString(e.Fallback.Error())
	}
	return b.String()
}

func (e *FatalError) Unwrap() []error {
	errs := []error{ErrUnavailable}
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// errFallbackDisabled is the fallback cause recorded when fallback is off.
var errFallbackDisabled = errors.New("fallback disabled")

// Establisher drives the connection state machine. It is used once at
// startup and is not safe for concurrent Establish calls.
type Establisher struct {
	Connector       Connector
	Provisioner     Provisioner
	Logger          *slog.Logger
	DisableFallback bool
	// Timeout bounds each connection attempt. Zero uses DefaultConnectTimeout.
	Timeout time.Duration
	// OnTransition observes every state change, including the initial one.
	OnTransition func(State)

	state State
}

// State reports the current state of the establisher.
func (e *Establisher) State() State {
	return e.state
}

// Establish connects to primaryAddr, falling back to an ephemeral datastore
// when the primary cannot be reached. A nil connection is always accompanied
// by a *FatalError.
func (e *Establisher) Establish(ctx context.Context, primaryAddr string) (*Connection, error) {
	if e.Connector == nil {
		return nil, fmt.Errorf("datastore connector is required")
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e.state = StateIdle
	e.notify(StateIdle)

	e.transition(StateTryingPrimary)
	store, primaryErr := e.connect(ctx, primaryAddr)
	if primaryErr == nil {
		e.transition(StateConnected)
		conn := newConnection(store, primaryAddr, false, nil)
		logger.Info("datastore connected", "driver", conn.Driver, "addr", storage.RedactAddr(primaryAddr))
		return conn, nil
	}
	logger.Error("primary datastore connection failed", "addr", redactOrEmpty(primaryAddr), "error", primaryErr)

	if e.DisableFallback || e.Provisioner == nil {
		e.transition(StateFailed)
		return nil, &FatalError{Primary: primaryErr, Fallback: errFallbackDisabled}
	}

	logger.Info("attempting in-memory datastore")
	e.transition(StateTryingFallback)
	server, err := e.Provisioner.Provision(ctx)
	if err != nil {
		fallbackErr := fmt.Errorf("provision ephemeral datastore: %w", err)
		logger.Error("in-memory datastore failed", "error", fallbackErr)
		e.transition(StateFailed)
		return nil, &FatalError{Primary: primaryErr, Fallback: fallbackErr}
	}

	addr := server.Addr()
	store, err = e.connect(ctx, addr)
	if err != nil {
		if closeErr := server.Close(); closeErr != nil {
			logger.Warn("stop ephemeral datastore", "error", closeErr)
		}
		logger.Error("in-memory datastore failed", "addr", storage.RedactAddr(addr), "error", err)
		e.transition(StateFailed)
		return nil, &FatalError{Primary: primaryErr, Fallback: err}
	}

	e.transition(StateConnected)
	conn := newConnection(store, addr, true, server)
	logger.Warn("connected to in-memory datastore; data will be lost on restart", "driver", conn.Driver, "addr", addr)
	return conn, nil
}

func (e *Establisher) connect(ctx context.Context, addr string) (storage.Repository, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("datastore address is empty")
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	store, err := e.Connector.Connect(attemptCtx, addr)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("connector returned no repository for %s", storage.RedactAddr(addr))
	}
	return store, nil
}

func (e *Establisher) transition(next State) {
	if !validTransition(e.state, next) {
		panic(fmt.Sprintf("datastore: invalid transition %s -> %s", e.state, next))
	}
	e.state = next
	e.notify(next)
}

func (e *Establisher) notify(state State) {
	if e.OnTransition != nil {
		e.OnTransition(state)
	}
}

func newConnection(store storage.Repository, addr string, ephemeral bool, server Ephemeral) *Connection {
	return &Connection{
		Store:     store,
		Addr:      addr,
		Driver:    store.Driver(),
		Ephemeral: ephemeral,
		server:    server,
	}
}

func redactOrEmpty(addr string) string {
	if strings.TrimSpace(addr) == "" {
		return ""
	}
	return storage.RedactAddr(addr)
}
