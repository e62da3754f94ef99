// Package grpc implements remotetool.Transport over a gRPC connection to a
// remote tool server. list_tools and call_tool are unary RPCs; call_tool_stream
// is server-streaming. Requests/responses are carried as
// google.golang.org/protobuf structpb.Struct values so the transport needs
// no service-specific generated stubs, and headers propagate as outgoing
// gRPC metadata.
package grpc

import (
	"context"
	"fmt"

	"github.com/aether-frame/aether-frame/contracts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	methodListTools      = "/aetherframe.remotetool.v1.ToolServer/ListTools"
	methodCallTool       = "/aetherframe.remotetool.v1.ToolServer/CallTool"
	methodCallToolStream = "/aetherframe.remotetool.v1.ToolServer/CallToolStream"
)

// Transport implements remotetool.Transport over a single *grpc.ClientConn.
type Transport struct {
	conn *grpc.ClientConn
}

// New wraps an established connection. Callers own the connection's
// lifecycle outside of Close, which merely forwards to conn.Close.
func New(conn *grpc.ClientConn) *Transport {
	return &Transport{conn: conn}
}

// ListTools issues the discovery RPC and decodes the reply's "tools" field
// into UniversalTool values.
func (t *Transport) ListTools(ctx context.Context, headers map[string]string) ([]contracts.UniversalTool, error) {
	ctx = attachHeaders(ctx, headers)
	req, _ := structpb.NewStruct(map[string]any{})
	reply := &structpb.Struct{}
	if err := t.conn.Invoke(ctx, methodListTools, req, reply); err != nil {
		return nil, fmt.Errorf("remotetool: list_tools: %w", err)
	}
	raw, ok := reply.Fields["tools"]
	if !ok {
		return nil, nil
	}
	return decodeTools(raw.GetListValue()), nil
}

// CallTool issues the unary call RPC.
func (t *Transport) CallTool(ctx context.Context, name string, params map[string]any, headers map[string]string) (contracts.ToolResult, error) {
	ctx = attachHeaders(ctx, headers)
	req, err := structpb.NewStruct(map[string]any{"name": name, "params": params})
	if err != nil {
		return contracts.ToolResult{}, fmt.Errorf("remotetool: encode request: %w", err)
	}
	reply := &structpb.Struct{}
	if err := t.conn.Invoke(ctx, methodCallTool, req, reply); err != nil {
		return contracts.ToolResult{ToolName: name, Status: contracts.ToolStatusError, ErrorMessage: err.Error()}, nil
	}
	return decodeResult(name, reply), nil
}

// CallToolStream issues the server-streaming call RPC, invoking emit once
// per received message.
func (t *Transport) CallToolStream(ctx context.Context, name string, params map[string]any, headers map[string]string, emit func(contracts.ToolResult)) error {
	ctx = attachHeaders(ctx, headers)
	req, err := structpb.NewStruct(map[string]any{"name": name, "params": params})
	if err != nil {
		return fmt.Errorf("remotetool: encode request: %w", err)
	}
	desc := &grpc.StreamDesc{ServerStreams: true}
	stream, err := t.conn.NewStream(ctx, desc, methodCallToolStream)
	if err != nil {
		return fmt.Errorf("remotetool: open stream: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		return fmt.Errorf("remotetool: send request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("remotetool: close send: %w", err)
	}
	for {
		reply := &structpb.Struct{}
		if err := stream.RecvMsg(reply); err != nil {
			if err.Error() == "EOF" {
				return nil
			}
			return fmt.Errorf("remotetool: recv: %w", err)
		}
		emit(decodeResult(name, reply))
	}
}

// Close closes the underlying connection.
func (t *Transport) Close(ctx context.Context) error {
	return t.conn.Close()
}

func attachHeaders(ctx context.Context, headers map[string]string) context.Context {
	md := metadata.MD{}
	for k, v := range headers {
		md.Append(k, v)
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		md.Append(k, v)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func decodeTools(list *structpb.ListValue) []contracts.UniversalTool {
	if list == nil {
		return nil
	}
	out := make([]contracts.UniversalTool, 0, len(list.Values))
	for _, v := range list.Values {
		s := v.GetStructValue()
		if s == nil {
			continue
		}
		out = append(out, contracts.UniversalTool{
			Name:              stringField(s, "name"),
			Description:       stringField(s, "description"),
			Namespace:         stringField(s, "namespace"),
			SupportsStreaming: boolField(s, "supports_streaming"),
			ParametersSchema:  structField(s, "input_schema"),
		})
	}
	return out
}

func decodeResult(name string, s *structpb.Struct) contracts.ToolResult {
	status := contracts.ToolStatusSuccess
	if stringField(s, "status") != "" {
		status = contracts.ToolResultStatus(stringField(s, "status"))
	}
	var data any
	if v, ok := s.Fields["result_data"]; ok {
		data = v.AsInterface()
	}
	return contracts.ToolResult{
		ToolName:     name,
		Status:       status,
		ResultData:   data,
		ErrorMessage: stringField(s, "error_message"),
	}
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	if v, ok := s.Fields[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func boolField(s *structpb.Struct, key string) bool {
	if s == nil {
		return false
	}
	if v, ok := s.Fields[key]; ok {
		return v.GetBoolValue()
	}
	return false
}

func structField(s *structpb.Struct, key string) map[string]any {
	if s == nil {
		return nil
	}
	if v, ok := s.Fields[key]; ok {
		if st := v.GetStructValue(); st != nil {
			return st.AsMap()
		}
	}
	return nil
}
