package mcp

import (
	"context"

	"github.com/tarsy-dev/tarsy/pkg/config"
	"github.com/tarsy-dev/tarsy/pkg/hooks"
	"github.com/tarsy-dev/tarsy/pkg/masking"
)

// ClientFactory creates per-session Client instances and wires tool
// executors to the masking service and the hook pipeline.
type ClientFactory struct {
	registry   *config.MCPServerRegistry
	masking    *masking.Service
	dispatcher *hooks.Dispatcher

	// createClientFn overrides real transport creation in tests.
	createClientFn func(ctx context.Context, serverIDs []string) (*Client, error)
}

// NewClientFactory creates a new factory. maskingService and dispatcher may
// be nil (masking and interaction recording disabled, respectively).
func NewClientFactory(
	registry *config.MCPServerRegistry,
	maskingService *masking.Service,
	dispatcher *hooks.Dispatcher,
) *ClientFactory {
	return &ClientFactory{
		registry:   registry,
		masking:    maskingService,
		dispatcher: dispatcher,
	}
}

// CreateClient creates a new Client connected to the specified servers.
// The caller is responsible for calling Close() when done.
func (f *ClientFactory) CreateClient(ctx context.Context, serverIDs []string) (*Client, error) {
	if f.createClientFn != nil {
		return f.createClientFn(ctx, serverIDs)
	}

	client := newClient(f.registry)
	if err := client.Initialize(ctx, serverIDs); err != nil {
		_ = client.Close() // Clean up partial initialization
		return nil, err
	}
	return client, nil
}

// CreateToolExecutor creates a fully-wired ToolExecutor for a session.
// This is the primary entry point used by the session executor.
func (f *ClientFactory) CreateToolExecutor(
	ctx context.Context,
	sessionID string,
	serverIDs []string,
	toolFilter map[string][]string,
) (*ToolExecutor, *Client, error) {
	client, err := f.CreateClient(ctx, serverIDs)
	if err != nil {
		return nil, nil, err
	}
	executor := NewToolExecutor(client, f.registry, serverIDs, toolFilter, f.masking, f.dispatcher, sessionID)
	return executor, client, nil
}
