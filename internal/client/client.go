// Package client talks to a remote aegis gate over gRPC.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	aegisv1 "github.com/ppiankov/aegis/api/aegis/v1"
	"github.com/ppiankov/aegis/internal/model"
)

// DefaultTimeout bounds each call when the caller's context has no deadline.
const DefaultTimeout = 5 * time.Second

// Client connects to an aegis gate.
type Client struct {
	conn   *grpc.ClientConn
	client *aegisv1.CommandGateClient
}

// New creates a gRPC client for addr. The connection is lazy; an
// unreachable gate shows up as an error on the first call.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gate: %w", err)
	}
	return &Client{
		conn:   conn,
		client: aegisv1.NewCommandGateClient(conn),
	}, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}

// Submit sends raw to the gate and waits for its decision.
func (c *Client) Submit(ctx context.Context, raw model.RawCommand) (aegisv1.SubmitResponse, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out aegisv1.SubmitResponse
	req, err := aegisv1.CommandToStruct(raw)
	if err != nil {
		return out, fmt.Errorf("encode command: %w", err)
	}
	resp, err := c.client.Submit(ctx, req)
	if err != nil {
		return out, err
	}
	if err := aegisv1.FromStruct(resp, &out); err != nil {
		return out, fmt.Errorf("decode decision: %w", err)
	}
	return out, nil
}

// Allowed reports whether the gate accepted raw.
// Fail-closed: any transport or decode error reads as not allowed.
func (c *Client) Allowed(ctx context.Context, raw model.RawCommand) (bool, string) {
	out, err := c.Submit(ctx, raw)
	if err != nil {
		return false, fmt.Sprintf("gate unreachable: %v", err)
	}
	return out.Decision.Accepted(), out.Decision.Reason
}

// Status returns the session, safe-mode and vehicle state.
func (c *Client) Status(ctx context.Context) (aegisv1.StatusResponse, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var out aegisv1.StatusResponse
	resp, err := c.client.SafeMode(ctx)
	if err != nil {
		return out, err
	}
	return out, aegisv1.FromStruct(resp, &out)
}

// RecentEvents returns the last n log events.
func (c *Client) RecentEvents(ctx context.Context, n int) ([]model.LogEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	req, err := structpb.NewStruct(map[string]any{"n": n})
	if err != nil {
		return nil, err
	}
	resp, err := c.client.RecentEvents(ctx, req)
	if err != nil {
		return nil, err
	}
	var out aegisv1.EventsResponse
	if err := aegisv1.FromStruct(resp, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
