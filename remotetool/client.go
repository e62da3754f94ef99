// Package remotetool implements RemoteToolClient: a persistent session to a
// remote tool server providing discovery, unary calls, and server-streaming
// calls, with header propagation merged from server/tool/task/call levels.
package remotetool

import (
	"context"
	"time"

	"github.com/aether-frame/aether-frame/contracts"
)

// Transport is the wire-level contract a concrete transport (e.g.
// remotetool/grpc) implements. Client wraps a Transport with discovery
// caching and header-merge semantics so transports stay thin.
type Transport interface {
	ListTools(ctx context.Context, headers map[string]string) ([]contracts.UniversalTool, error)
	CallTool(ctx context.Context, name string, params map[string]any, headers map[string]string) (contracts.ToolResult, error)
	CallToolStream(ctx context.Context, name string, params map[string]any, headers map[string]string, emit func(contracts.ToolResult)) error
	Close(ctx context.Context) error
}

// Options configures a Client.
type Options struct {
	// DefaultHeaders are server-level defaults, lowest precedence in the
	// header merge.
	DefaultHeaders map[string]string
	// DiscoveryTTL governs how long ListTools results are cached; the first
	// ListTools call after expiry refetches synchronously. Zero disables
	// caching.
	DiscoveryTTL time.Duration
}

// Client implements tools.RemoteSource over a Transport, applying the
// header-merge precedence from the remote tool server protocol: server
// default < tool-level < task-level < call-site < injected X-AF-User-Id.
// Tool-level headers are read from the discovered tool's
// Metadata["mcp_headers"]; task-level from ToolRequest.SessionContext's
// Metadata["mcp_headers"]; call-site from ToolRequest.Metadata["mcp_headers"].
type Client struct {
	defaults  map[string]string
	transport Transport
	cache     *ttlCache
	specs     map[string]contracts.UniversalTool
}

// New constructs a Client over transport.
func New(transport Transport, opts Options) *Client {
	c := &Client{transport: transport, defaults: opts.DefaultHeaders, specs: map[string]contracts.UniversalTool{}}
	if opts.DiscoveryTTL > 0 {
		c.cache = newTTLCache(opts.DiscoveryTTL)
	}
	return c
}

// ListTools returns the remote server's tool catalog, served from cache
// when fresh.
func (c *Client) ListTools(ctx context.Context) ([]contracts.UniversalTool, error) {
	if c.cache != nil {
		if cached, ok := c.cache.get(); ok {
			return cached, nil
		}
	}
	discovered, err := c.transport.ListTools(ctx, c.defaults)
	if err != nil {
		return nil, err
	}
	for _, spec := range discovered {
		c.specs[spec.Name] = spec
	}
	if c.cache != nil {
		c.cache.set(discovered)
	}
	return discovered, nil
}

// CallTool implements tools.RemoteSource, merging headers per the
// documented precedence before issuing a unary call.
func (c *Client) CallTool(ctx context.Context, req contracts.ToolRequest) (contracts.ToolResult, error) {
	headers := c.headersFor(req)
	return c.transport.CallTool(ctx, req.QualifiedName(), req.Parameters, headers)
}

// CallToolStream implements tools.RemoteSource's streaming counterpart.
func (c *Client) CallToolStream(ctx context.Context, req contracts.ToolRequest, emit func(contracts.ToolResult)) error {
	headers := c.headersFor(req)
	return c.transport.CallToolStream(ctx, req.QualifiedName(), req.Parameters, headers, emit)
}

func (c *Client) headersFor(req contracts.ToolRequest) map[string]string {
	toolHeaders := mcpHeaders(c.specs[req.QualifiedName()].Metadata)
	var taskHeaders map[string]string
	if req.SessionContext != nil {
		taskHeaders = mcpHeaders(req.SessionContext.Metadata)
	}
	callHeaders := mcpHeaders(req.Metadata)
	headers := MergeHeaders(c.defaults, toolHeaders, taskHeaders, callHeaders)
	if req.UserContext != nil {
		if userID := contracts.ResolveUserID(req.UserContext); userID != "" {
			headers["X-AF-User-Id"] = userID
		}
	}
	return headers
}

func mcpHeaders(md map[string]any) map[string]string {
	if md == nil {
		return nil
	}
	raw, ok := md["mcp_headers"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := map[string]string{}
		for k, val := range v {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}

// Shutdown closes the underlying transport, implementing tools.RemoteSource.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.transport.Close(ctx)
}

// MergeHeaders performs a right-biased merge across header maps in
// ascending precedence order: later maps win on key collision. Nil maps
// are skipped.
func MergeHeaders(layers ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}
