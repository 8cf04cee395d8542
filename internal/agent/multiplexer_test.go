package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/handoff/internal/retrieval"
)

func collectFrames(t *testing.T, ch <-chan Frame) []Frame {
	t.Helper()
	var frames []Frame
	timeout := time.After(2 * time.Second)
	for {
		select {
		case frame, ok := <-ch:
			if !ok {
				return frames
			}
			frames = append(frames, frame)
		case <-timeout:
			t.Fatal("timed out draining frame channel")
		}
	}
}

func augmented(n int) *retrieval.AugmentResult {
	hits := make([]retrieval.Hit, n)
	for i := range hits {
		hits[i] = retrieval.Hit{ID: string(rune('a' + i)), Title: "Doc", Score: 0.5}
	}
	return &retrieval.AugmentResult{
		Results:     hits,
		ResultCount: n,
		HasResults:  n > 0,
		IsNoMatch:   n == 0,
	}
}

func TestMultiplex_SourcesFrameComesFirst(t *testing.T) {
	src := make(chan Frame, 3)
	src <- Frame{Type: FrameText, Text: "Hello"}
	src <- Frame{Type: FrameText, Text: " there"}
	close(src)

	out := Multiplex(context.Background(), augmented(2), src)
	frames := collectFrames(t, out)

	require.Len(t, frames, 3)
	assert.Equal(t, FrameSources, frames[0].Type)
	assert.Len(t, frames[0].Sources, 2)
	assert.Equal(t, FrameText, frames[1].Type)
	assert.Equal(t, "Hello", frames[1].Text)
	assert.Equal(t, " there", frames[2].Text)
}

func TestMultiplex_NoResultsPassesThrough(t *testing.T) {
	src := make(chan Frame, 2)
	src <- Frame{Type: FrameText, Text: "plain"}
	close(src)

	out := Multiplex(context.Background(), augmented(0), src)
	frames := collectFrames(t, out)

	require.Len(t, frames, 1)
	assert.Equal(t, FrameText, frames[0].Type)
}

func TestMultiplex_NilResultPassesThrough(t *testing.T) {
	src := make(chan Frame, 1)
	src <- Frame{Type: FrameDone}
	close(src)

	out := Multiplex(context.Background(), nil, src)
	frames := collectFrames(t, out)

	require.Len(t, frames, 1)
	assert.Equal(t, FrameDone, frames[0].Type)
}

func TestMultiplex_PreservesFrameOrder(t *testing.T) {
	src := make(chan Frame, 5)
	src <- Frame{Type: FrameText, Text: "1"}
	src <- Frame{Type: FrameToolCall, ToolCall: &ToolCall{Name: ToolEscalate}}
	src <- Frame{Type: FrameToolResult, ToolResult: map[string]any{"ok": true}}
	src <- Frame{Type: FrameText, Text: "2"}
	close(src)

	out := Multiplex(context.Background(), augmented(1), src)
	frames := collectFrames(t, out)

	require.Len(t, frames, 5)
	types := make([]FrameType, len(frames))
	for i, f := range frames {
		types[i] = f.Type
	}
	assert.Equal(t, []FrameType{FrameSources, FrameText, FrameToolCall, FrameToolResult, FrameText}, types)
}

func TestMultiplex_ContextCancellationStopsRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := make(chan Frame) // never written, never closed

	out := Multiplex(ctx, nil, src)
	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok, "expected closed channel")
	case <-time.After(2 * time.Second):
		t.Fatal("output channel not closed after cancellation")
	}
}
