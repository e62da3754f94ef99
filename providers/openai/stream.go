package openai

import (
	"context"
	"io"
	"sync"

	"github.com/openai/openai-go"

	"github.com/aether-frame/aether-frame/model"
)

// streamer adapts an OpenAI chat completion stream to model.Streamer,
// accumulating per-index tool-call argument fragments and emitting the
// completed tool calls once the stream ends, ahead of the stop chunk.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *openai.Stream[openai.ChatCompletionChunk]
	chunks chan model.Chunk

	mu       sync.Mutex
	errSet   bool
	finalErr error
}

func newStreamer(ctx context.Context, stream *openai.Stream[openai.ChatCompletionChunk]) model.Streamer {
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

type toolCallAccumulator struct {
	id, name string
	args     string
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	toolCalls := map[int64]*toolCallAccumulator{}
	var stopReason string

	for s.stream.Next() {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		chunk := s.stream.Current()
		if u := chunk.Usage; u.TotalTokens != 0 {
			usage := model.TokenUsage{
				InputTokens:  int(u.PromptTokens),
				OutputTokens: int(u.CompletionTokens),
				TotalTokens:  int(u.TotalTokens),
			}
			if !s.emit(model.Chunk{Type: model.ChunkTypeUsage, UsageDelta: &usage}) {
				return
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			stopReason = string(choice.FinishReason)
		}
		if choice.Delta.Content != "" {
			if !s.emit(model.Chunk{Type: model.ChunkTypeText, Text: choice.Delta.Content}) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			acc := toolCalls[tc.Index]
			if acc == nil {
				acc = &toolCallAccumulator{}
				toolCalls[tc.Index] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			acc.args += tc.Function.Arguments
		}
	}
	if err := s.stream.Err(); err != nil {
		s.setErr(err)
	} else if err := s.ctx.Err(); err != nil {
		s.setErr(err)
	} else {
		for _, acc := range toolCalls {
			if !s.emit(model.Chunk{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{
				ID: acc.id, Name: acc.name, Payload: parseArguments(acc.args),
			}}) {
				return
			}
		}
		s.emit(model.Chunk{Type: model.ChunkTypeStop, StopReason: stopReason})
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
