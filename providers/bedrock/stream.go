package bedrock

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/aether-frame/aether-frame/model"
)

// streamer adapts a Bedrock ConverseStream event stream to model.Streamer.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	out    *bedrockruntime.ConverseStreamOutput
	chunks chan model.Chunk

	mu       sync.Mutex
	errSet   bool
	finalErr error
}

func newStreamer(ctx context.Context, out *bedrockruntime.ConverseStreamOutput) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{ctx: cctx, cancel: cancel, out: out, chunks: make(chan model.Chunk, 32)}
	go s.run()
	return s
}

func (s *streamer) Recv() (model.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		s.setErr(err)
		return model.Chunk{}, err
	}
}

func (s *streamer) Close() error {
	s.cancel()
	if s.out == nil {
		return nil
	}
	return s.out.GetStream().Close()
}

type toolBuffer struct {
	id, name  string
	fragments []string
}

func (tb *toolBuffer) finalInput() map[string]any {
	joined := strings.Join(tb.fragments, "")
	if strings.TrimSpace(joined) == "" {
		return map[string]any{}
	}
	return decodeJSONObject(joined)
}

func (s *streamer) run() {
	defer close(s.chunks)
	stream := s.out.GetStream()
	defer stream.Close()

	toolBlocks := map[int32]*toolBuffer{}
	var stopReason string

	for event := range stream.Events() {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		switch ev := event.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockStart:
			if toolStart, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
				toolBlocks[aws.ToInt32(ev.Value.ContentBlockIndex)] = &toolBuffer{
					id:   aws.ToString(toolStart.Value.ToolUseId),
					name: aws.ToString(toolStart.Value.Name),
				}
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			idx := aws.ToInt32(ev.Value.ContentBlockIndex)
			switch delta := ev.Value.Delta.(type) {
			case *brtypes.ContentBlockDeltaMemberText:
				if delta.Value == "" {
					continue
				}
				if !s.emit(model.Chunk{Type: model.ChunkTypeText, Text: delta.Value}) {
					return
				}
			case *brtypes.ContentBlockDeltaMemberToolUse:
				if tb := toolBlocks[idx]; tb != nil {
					tb.fragments = append(tb.fragments, aws.ToString(delta.Value.Input))
				}
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockStop:
			idx := aws.ToInt32(ev.Value.ContentBlockIndex)
			if tb := toolBlocks[idx]; tb != nil {
				delete(toolBlocks, idx)
				if !s.emit(model.Chunk{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{
					ID: tb.id, Name: tb.name, Payload: tb.finalInput(),
				}}) {
					return
				}
			}
		case *brtypes.ConverseStreamOutputMemberMessageStop:
			stopReason = string(ev.Value.StopReason)
		case *brtypes.ConverseStreamOutputMemberMetadata:
			if u := ev.Value.Usage; u != nil {
				usage := model.TokenUsage{
					InputTokens:  int(aws.ToInt32(u.InputTokens)),
					OutputTokens: int(aws.ToInt32(u.OutputTokens)),
					TotalTokens:  int(aws.ToInt32(u.TotalTokens)),
				}
				if !s.emit(model.Chunk{Type: model.ChunkTypeUsage, UsageDelta: &usage}) {
					return
				}
			}
			if !s.emit(model.Chunk{Type: model.ChunkTypeStop, StopReason: stopReason}) {
				return
			}
		}
	}
	if err := stream.Err(); err != nil {
		s.setErr(err)
	} else if err := s.ctx.Err(); err != nil {
		s.setErr(err)
	}
}

func (s *streamer) emit(chunk model.Chunk) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.ctx.Done():
		s.setErr(s.ctx.Err())
		return false
	}
}

func (s *streamer) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errSet {
		return
	}
	s.errSet, s.finalErr = true, err
}

func (s *streamer) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalErr
}

func decodeJSONObject(raw string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	return out
}
