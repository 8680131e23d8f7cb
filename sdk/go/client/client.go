// Package client is the controller SDK for a dimensify server. A Client
// sends one request at a time and waits for its response, over either the
// websocket or the QUIC endpoint.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
)

// Client represents a controller connection
type Client struct {
	mu        sync.Mutex
	transport transport
	closed    bool

	config Config
	logger log.Log
}

// Config holds configuration for the client
type Config struct {
	ConnectTimeout time.Duration
	MessageTimeout time.Duration
	MaxMessageSize int64

	// TLSConfig is used by DialQUIC. A nil value skips certificate
	// verification, matching the server's self-signed default.
	TLSConfig *tls.Config

	Logger log.Log
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		MessageTimeout: 10 * time.Second,
		MaxMessageSize: 4 << 20,
	}
}

// transport carries one encoded request and returns the encoded response.
type transport interface {
	roundTrip(ctx context.Context, body []byte) ([]byte, error)
	close() error
}

func newClient(config Config, t transport, kind string) *Client {
	logger := config.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		transport: t,
		config:    config,
		logger:    logger.With(log.Component("client"), log.String("transport", kind)),
	}
}

// Do sends req and returns the server's response. An Error response is
// returned as a protocol.ErrorResponse error.
func (c *Client) Do(ctx context.Context, req protocol.ProtoRequest) (protocol.ProtoResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if _, ok := ctx.Deadline(); !ok && c.config.MessageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.MessageTimeout)
		defer cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}

	data, err := c.transport.roundTrip(ctx, body)
	if err != nil {
		c.logger.Debug("request failed", log.String("request", req.Variant()), log.Error(err))
		return nil, err
	}
	resp, err := protocol.DecodeResponse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if e, ok := resp.(protocol.ErrorResponse); ok {
		return resp, e
	}
	return resp, nil
}

// Apply sends one command.
func (c *Client) Apply(ctx context.Context, cmd protocol.WorldCommand) (protocol.ProtoResponse, error) {
	return c.Do(ctx, protocol.ApplyCommand{Command: cmd})
}

func (c *Client) applyEntity(ctx context.Context, cmd protocol.WorldCommand) (protocol.EntityRef, error) {
	resp, err := c.Apply(ctx, cmd)
	if err != nil {
		return 0, err
	}
	r, ok := resp.(protocol.CommandResponseEntity)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected %s response", ErrInvalidMessage, resp.Variant())
	}
	return r.Entity, nil
}

// Spawn creates an entity carrying components.
func (c *Client) Spawn(ctx context.Context, components ...protocol.ProtoComponent) (protocol.EntityRef, error) {
	return c.applyEntity(ctx, protocol.NewSpawn(components...))
}

func (c *Client) Insert(ctx context.Context, entity protocol.EntityRef, components ...protocol.ProtoComponent) (protocol.EntityRef, error) {
	return c.applyEntity(ctx, protocol.NewInsert(entity, components...))
}

func (c *Client) Update(ctx context.Context, entity protocol.EntityRef, component protocol.ProtoComponent) (protocol.EntityRef, error) {
	return c.applyEntity(ctx, protocol.Update{Entity: entity, Component: component})
}

func (c *Client) Remove(ctx context.Context, entity protocol.EntityRef, component protocol.ComponentID) (protocol.EntityRef, error) {
	return c.applyEntity(ctx, protocol.Remove{Entity: entity, Component: component})
}

func (c *Client) Despawn(ctx context.Context, entity protocol.EntityRef) (protocol.EntityRef, error) {
	return c.applyEntity(ctx, protocol.Despawn{Entity: entity})
}

// Clear removes every controller-spawned entity.
func (c *Client) Clear(ctx context.Context) error {
	resp, err := c.Apply(ctx, protocol.Clear{})
	if err != nil {
		return err
	}
	if _, ok := resp.(protocol.Ack); !ok {
		return fmt.Errorf("%w: unexpected %s response", ErrInvalidMessage, resp.Variant())
	}
	return nil
}

// List returns the controller-visible entities.
func (c *Client) List(ctx context.Context) ([]protocol.EntityInfo, error) {
	resp, err := c.Do(ctx, protocol.List{})
	if err != nil {
		return nil, err
	}
	r, ok := resp.(protocol.Entities)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected %s response", ErrInvalidMessage, resp.Variant())
	}
	return r.Entities, nil
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.transport.close()
}
