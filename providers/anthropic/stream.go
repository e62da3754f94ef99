package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/aether-frame/aether-frame/model"
)

// streamer adapts an Anthropic Messages SSE stream to model.Streamer.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
	chunks chan model.Chunk

	mu       sync.Mutex
	errSet   bool
	finalErr error
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion]) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{ctx: cctx, cancel: cancel, stream: stream, chunks: make(chan model.Chunk, 32)}
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
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	toolBlocks := map[int64]*toolBuffer{}
	var stopReason string

	for s.stream.Next() {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				toolBlocks[ev.Index] = &toolBuffer{id: toolUse.ID, name: toolUse.Name}
			}
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text == "" {
					continue
				}
				if !s.emit(model.Chunk{Type: model.ChunkTypeText, Text: delta.Text}) {
					return
				}
			case sdk.InputJSONDelta:
				if tb := toolBlocks[ev.Index]; tb != nil {
					tb.fragments = append(tb.fragments, delta.PartialJSON)
				}
			}
		case sdk.ContentBlockStopEvent:
			if tb := toolBlocks[ev.Index]; tb != nil {
				delete(toolBlocks, ev.Index)
				payload, _ := decodeToolPayload(json.RawMessage(tb.finalInput())).(map[string]any)
				if !s.emit(model.Chunk{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{
					ID: tb.id, Name: tb.name, Payload: payload,
				}}) {
					return
				}
			}
		case sdk.MessageDeltaEvent:
			stopReason = string(ev.Delta.StopReason)
			usage := model.TokenUsage{
				InputTokens:      int(ev.Usage.InputTokens),
				OutputTokens:     int(ev.Usage.OutputTokens),
				TotalTokens:      int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
				CacheReadTokens:  int(ev.Usage.CacheReadInputTokens),
				CacheWriteTokens: int(ev.Usage.CacheCreationInputTokens),
			}
			if !s.emit(model.Chunk{Type: model.ChunkTypeUsage, UsageDelta: &usage}) {
				return
			}
		case sdk.MessageStopEvent:
			if !s.emit(model.Chunk{Type: model.ChunkTypeStop, StopReason: stopReason}) {
				return
			}
		}
	}
	if err := s.stream.Err(); err != nil {
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

type toolBuffer struct {
	id, name  string
	fragments []string
}

func (tb *toolBuffer) finalInput() string {
	joined := strings.Join(tb.fragments, "")
	if strings.TrimSpace(joined) == "" {
		return "{}"
	}
	return joined
}
