// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

// Package stream implements the progress/result delivery protocol shared by
// the SSE and WebSocket endpoints. A stream is a sequence of JSON frames:
// zero or more progress frames followed by exactly one terminal frame
// (complete or error). Large payloads are split into indexed chunks the
// receiver reassembles by concatenation.
package stream

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/Roughriver74/bitrix-dash/internal/metrics"
)

// Frame type discriminators.
const (
	TypeProgress     = "progress"
	TypeChunkedStart = "chunked_start"
	TypeChunk        = "chunk"
	TypeComplete     = "complete"
	TypeError        = "error"
)

const (
	// ChunkThreshold is the serialized payload size, in bytes, at which
	// delivery switches from a single inline complete frame to chunks.
	ChunkThreshold = 50000

	// ChunkSize is the maximum chunk body size in bytes.
	ChunkSize = 50000

	// interChunkDelay paces chunk emission so a slow consumer's transport
	// buffer is not flooded.
	interChunkDelay = 50 * time.Millisecond
)

// ErrTerminated is returned when a frame is emitted after the stream
// already reached a terminal state.
var ErrTerminated = errors.New("stream: already terminated")

// Frame is one streaming envelope. Progress and Index are pointers so a
// legitimate zero survives omitempty.
type Frame struct {
	Type string `json:"type"`

	// progress
	Message  string `json:"message,omitempty"`
	Progress *int   `json:"progress,omitempty"`

	// chunked_start
	TotalChunks int `json:"totalChunks,omitempty"`
	TotalSize   int `json:"totalSize,omitempty"`

	// chunk
	Index  *int   `json:"index,omitempty"`
	Data   string `json:"data,omitempty"`
	IsLast bool   `json:"isLast,omitempty"`

	// complete
	Payload  json.RawMessage `json:"-"`
	LoadTime int64           `json:"loadTime,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// MarshalJSON splices the raw complete payload into the "data" field. Chunk
// frames carry data as a plain string; complete frames carry the result
// object itself, so the two cannot share one typed field.
func (f Frame) MarshalJSON() ([]byte, error) {
	type alias Frame
	if len(f.Payload) == 0 {
		return json.Marshal(alias(f))
	}
	return json.Marshal(struct {
		alias
		Payload json.RawMessage `json:"data"`
	}{alias: alias(f), Payload: f.Payload})
}

// Sink delivers frames over some ordered transport. Send returning an error
// means the consumer is gone; the emitter stops producing.
type Sink interface {
	Send(frame Frame) error
}

// Emitter drives one stream through its lifecycle: an initial 0% progress
// frame, milestone progress frames with monotonically non-decreasing
// percentages, then exactly one terminal frame.
type Emitter struct {
	sink         Sink
	started      time.Time
	lastProgress int
	terminated   bool
	chunkDelay   time.Duration
}

// NewEmitter creates an emitter over the sink. The load timer starts now.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{
		sink:       sink,
		started:    time.Now(),
		chunkDelay: interChunkDelay,
	}
}

func (e *Emitter) send(frame Frame) error {
	if e.terminated {
		return ErrTerminated
	}
	if err := e.sink.Send(frame); err != nil {
		// Consumer disconnected; no further frames can be delivered.
		e.terminated = true
		return err
	}
	metrics.StreamFramesSent.WithLabelValues(frame.Type).Inc()
	return nil
}

// Start emits the initial 0% progress frame. Call before any pipeline work.
func (e *Emitter) Start() error {
	return e.Progress("Starting", 0)
}

// Progress emits a milestone. Percentages below the highest already sent
// are raised to it, keeping the reported progress monotonic.
func (e *Emitter) Progress(message string, percent int) error {
	if percent < e.lastProgress {
		percent = e.lastProgress
	}
	if percent > 100 {
		percent = 100
	}
	e.lastProgress = percent

	p := percent
	return e.send(Frame{Type: TypeProgress, Message: message, Progress: &p})
}

// Complete serializes the payload and emits the terminal success sequence:
// either a single complete frame with the payload inline, or a chunked_start
// frame, every chunk in index order, and a trailing complete frame carrying
// only timing metadata. ctx cancellation aborts between chunks.
func (e *Emitter) Complete(ctx context.Context, payload interface{}) error {
	if e.terminated {
		return ErrTerminated
	}

	serialized, err := json.Marshal(payload)
	if err != nil {
		return e.Fail("failed to serialize result")
	}
	loadTime := time.Since(e.started).Milliseconds()

	if len(serialized) < ChunkThreshold {
		if err := e.send(Frame{Type: TypeComplete, Payload: serialized, LoadTime: loadTime}); err != nil {
			return err
		}
		metrics.StreamBytesSent.Add(float64(len(serialized)))
		e.terminated = true
		return nil
	}

	totalChunks := (len(serialized) + ChunkSize - 1) / ChunkSize
	if err := e.send(Frame{Type: TypeChunkedStart, TotalChunks: totalChunks, TotalSize: len(serialized)}); err != nil {
		return err
	}

	for i := 0; i < totalChunks; i++ {
		if i > 0 && e.chunkDelay > 0 {
			select {
			case <-ctx.Done():
				e.terminated = true
				return ctx.Err()
			case <-time.After(e.chunkDelay):
			}
		}

		start := i * ChunkSize
		end := start + ChunkSize
		if end > len(serialized) {
			end = len(serialized)
		}

		index := i
		frame := Frame{
			Type:   TypeChunk,
			Index:  &index,
			Data:   string(serialized[start:end]),
			IsLast: i == totalChunks-1,
		}
		if err := e.send(frame); err != nil {
			return err
		}
		metrics.StreamBytesSent.Add(float64(end - start))
	}

	if err := e.send(Frame{Type: TypeComplete, LoadTime: loadTime}); err != nil {
		return err
	}
	e.terminated = true
	return nil
}

// Fail emits the terminal error frame.
func (e *Emitter) Fail(message string) error {
	if err := e.send(Frame{Type: TypeError, Error: message}); err != nil {
		return err
	}
	e.terminated = true
	return nil
}

// Terminated reports whether a terminal frame has been emitted or the
// consumer has disconnected.
func (e *Emitter) Terminated() bool {
	return e.terminated
}
