// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/harmonyd/harmonyd/lib/codec"
)

// zstdSizeThreshold is the encoded-payload size below which lz4's
// speed is preferred over zstd's ratio: small segments rarely have
// enough repetition for zstd's window to pay for its extra CPU cost.
const zstdSizeThreshold = 4096

// codecZstd and codecLZ4 tag a flushed segment's first byte so a
// later reader knows which decompressor to use.
const (
	codecZstd byte = 'Z'
	codecLZ4  byte = 'L'
)

// flusher holds the on-disk flush configuration for a Log. A Log with
// a nil flusher records events in memory only.
type flusher struct {
	dir string
	seq int
}

// EnableFlush configures dir as the destination for compressed
// segment files. Segments are named history-%08d.seg in flush order.
func (l *Log) EnableFlush(dir string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flusher = &flusher{dir: dir}
}

// Flush drains every buffered event and writes it as one compressed
// segment file. It is a no-op if disk flush was never enabled or
// nothing has been recorded since the last flush.
func (l *Log) Flush() (path string, err error) {
	l.mu.Lock()
	fl := l.flusher
	if fl == nil {
		l.mu.Unlock()
		return "", nil
	}
	events := l.drainLocked()
	fl.seq++
	seq := fl.seq
	dir := fl.dir
	l.mu.Unlock()

	if len(events) == 0 {
		return "", nil
	}

	encoded, err := codec.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("history: encoding segment: %w", err)
	}

	payload, tag, err := compress(encoded)
	if err != nil {
		return "", fmt.Errorf("history: compressing segment: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("history: creating %s: %w", dir, err)
	}
	name := filepath.Join(dir, fmt.Sprintf("history-%08d.seg", seq))
	out := make([]byte, 0, len(payload)+1)
	out = append(out, tag)
	out = append(out, payload...)
	if err := os.WriteFile(name, out, 0644); err != nil {
		return "", fmt.Errorf("history: writing %s: %w", name, err)
	}
	return name, nil
}

// compress picks zstd for larger payloads and lz4 for smaller ones:
// below zstdSizeThreshold bytes, zstd's ratio advantage rarely
// justifies its CPU cost, so the lz4 fast path wins.
func compress(data []byte) (payload []byte, tag byte, err error) {
	if len(data) < zstdSizeThreshold {
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, 0, err
		}
		if err := w.Close(); err != nil {
			return nil, 0, err
		}
		return buf.Bytes(), codecLZ4, nil
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, 0, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), codecZstd, nil
}

// Decompress reverses compress, reading the leading codec tag written
// by Flush.
func Decompress(segment []byte) ([]byte, error) {
	if len(segment) == 0 {
		return nil, fmt.Errorf("history: empty segment")
	}
	tag, payload := segment[0], segment[1:]
	switch tag {
	case codecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(payload, nil)
	case codecLZ4:
		r := lz4.NewReader(bytes.NewReader(payload))
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("history: unknown segment codec tag %q", tag)
	}
}

// Run flushes periodically at interval until ctx is canceled. Callers
// typically launch this in its own goroutine at daemon startup.
func (l *Log) Run(ctx context.Context, interval time.Duration) {
	ticker := l.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_, _ = l.Flush()
			return
		case <-ticker.C:
			_, _ = l.Flush()
		}
	}
}
