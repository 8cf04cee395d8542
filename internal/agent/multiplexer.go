package agent

import (
	"context"

	"github.com/rendis/handoff/internal/retrieval"
)

// Multiplex wraps an agent response stream with the out-of-band
// augmentation event. When the retrieval result carries at least one
// hit, one synthetic sources frame is emitted before any byte of the
// underlying stream; every subsequent frame is relayed verbatim in its
// original order. With no hits (or a nil result) the stream passes
// through untouched.
//
// The returned channel is unbuffered: frames are forwarded one at a
// time as they arrive, preserving the source's backpressure.
func Multiplex(ctx context.Context, result *retrieval.AugmentResult, src <-chan Frame) <-chan Frame {
	out := make(chan Frame)

	go func() {
		defer close(out)

		if result != nil && result.HasResults {
			sources := make([]retrieval.Source, len(result.Results))
			for i, hit := range result.Results {
				sources[i] = hit.AsSource()
			}
			select {
			case out <- Frame{Type: FrameSources, Sources: sources}:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case frame, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
