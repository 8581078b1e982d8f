// SPDX-License-Identifier: MIT
// Package transport publishes analysis frames to external consumers. The
// engine core never depends on a concrete transport; it talks to the
// Transport interface and keeps running when no transport is configured.
package transport

import "djviz/internal/analysis"

// Transport defines a generic interface for sending processed data or
// events. Implementations must be thread-safe and must never block the
// caller on a slow consumer.
type Transport interface {
	Send(data any) error
	Close() error
}

// FrameSource provides the most recent analysis frame to publishers that
// run on their own cadence instead of the render loop's.
type FrameSource interface {
	LatestFrame() analysis.AudioAnalysis
}
