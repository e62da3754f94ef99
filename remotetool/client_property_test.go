package remotetool

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/aether-frame/aether-frame/contracts"
)

// recordingTransport captures the headers passed to CallTool so tests can
// assert on the merged result without a live wire transport.
type recordingTransport struct {
	gotHeaders map[string]string
}

func (r *recordingTransport) ListTools(ctx context.Context, headers map[string]string) ([]contracts.UniversalTool, error) {
	return nil, nil
}

func (r *recordingTransport) CallTool(ctx context.Context, name string, params map[string]any, headers map[string]string) (contracts.ToolResult, error) {
	r.gotHeaders = headers
	return contracts.ToolResult{Status: contracts.ToolStatusSuccess}, nil
}

func (r *recordingTransport) CallToolStream(ctx context.Context, name string, params map[string]any, headers map[string]string, emit func(contracts.ToolResult)) error {
	r.gotHeaders = headers
	return nil
}

func (r *recordingTransport) Close(ctx context.Context) error { return nil }

// headerLayers describes which of the four precedence layers are present
// for a single "X-Layer" key; the highest-precedence present layer must win.
type headerLayers struct {
	hasDefault, hasTool, hasTask, hasCall bool
}

// TestHeaderMergePrecedenceProperty verifies remotetool's documented
// precedence order: server-default < tool-level < task-level < call-site.
func TestHeaderMergePrecedenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("the highest-precedence present layer wins for a colliding key", prop.ForAll(
		func(layers headerLayers) bool {
			transport := &recordingTransport{}
			defaults := map[string]string{}
			if layers.hasDefault {
				defaults["X-Layer"] = "default"
			}
			client := New(transport, Options{DefaultHeaders: defaults})

			if layers.hasTool {
				client.specs["ns.tool"] = contracts.UniversalTool{
					Name:     "ns.tool",
					Metadata: map[string]any{"mcp_headers": map[string]string{"X-Layer": "tool"}},
				}
			}

			req := contracts.ToolRequest{ToolNamespace: "ns", ToolName: "tool"}
			if layers.hasTask {
				req.SessionContext = &contracts.SessionContext{
					Metadata: map[string]any{"mcp_headers": map[string]string{"X-Layer": "task"}},
				}
			}
			if layers.hasCall {
				req.Metadata = map[string]any{"mcp_headers": map[string]string{"X-Layer": "call"}}
			}

			if _, err := client.CallTool(context.Background(), req); err != nil {
				return false
			}

			want, anyPresent := "", false
			for _, l := range []struct {
				present bool
				value   string
			}{
				{layers.hasDefault, "default"},
				{layers.hasTool, "tool"},
				{layers.hasTask, "task"},
				{layers.hasCall, "call"},
			} {
				if l.present {
					want = l.value
					anyPresent = true
				}
			}
			if !anyPresent {
				_, ok := transport.gotHeaders["X-Layer"]
				return !ok
			}
			return transport.gotHeaders["X-Layer"] == want
		},
		genHeaderLayers(),
	))

	properties.TestingRun(t)
}

// TestHeaderMergeInjectsUserIDProperty verifies that a resolved UserContext
// always yields an X-AF-User-Id header, independent of the other layers.
func TestHeaderMergeInjectsUserIDProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a non-nil UserContext always yields X-AF-User-Id", prop.ForAll(
		func(userID string) bool {
			transport := &recordingTransport{}
			client := New(transport, Options{})
			req := contracts.ToolRequest{
				ToolName:    "tool",
				UserContext: &contracts.UserContext{UserID: userID},
			}
			if _, err := client.CallTool(context.Background(), req); err != nil {
				return false
			}
			got, ok := transport.gotHeaders["X-AF-User-Id"]
			return ok && got != ""
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func genHeaderLayers() gopter.Gen {
	return gopter.CombineGens(
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	).Map(func(vals []any) headerLayers {
		return headerLayers{
			hasDefault: vals[0].(bool),
			hasTool:    vals[1].(bool),
			hasTask:    vals[2].(bool),
			hasCall:    vals[3].(bool),
		}
	})
}
