// Package audio defines the capture-side types for the hark pipeline: the
// [Frame] transport unit, the [Source] capture abstraction, and the bounded
// [FrameQueue] that bridges the capture context and the processing loop.
//
// Implementations of [Source] are provided by device-specific adapter
// packages (e.g., audio/portaudio). The interface is intentionally narrow so
// the session orchestrator stays decoupled from capture details.
package audio

import "context"

// FrameFunc receives captured frames. It is invoked from the source's
// capture context — possibly a realtime-scheduled thread — and therefore
// must complete in bounded time and must never block. The intended body is
// a single non-blocking [FrameQueue.Enqueue] call.
type FrameFunc func(Frame)

// Source produces a sequence of fixed-duration audio frames from a capture
// device.
//
// Implementations must be safe for concurrent use of Stop against a running
// Start.
type Source interface {
	// Start begins capture and invokes fn for every frame read from the
	// device. The callback contract of [FrameFunc] applies. Start returns
	// an error if the device cannot be opened or capture is already running.
	// The supplied ctx bounds the lifetime of the capture; cancelling it is
	// equivalent to calling Stop.
	Start(ctx context.Context, fn FrameFunc) error

	// Stop halts capture and releases the device. After Stop returns, fn is
	// no longer invoked. Calling Stop more than once is safe and returns nil.
	Stop() error
}
