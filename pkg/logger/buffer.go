package logger

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultBufferLines = 1000

// RingBuffer keeps the most recent lines up to a fixed capacity. Older lines
// are overwritten and counted as dropped.
type RingBuffer struct {
	mu      sync.RWMutex
	lines   []string
	next    int
	wrapped bool
	dropped uint64
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = defaultBufferLines
	}
	return &RingBuffer{lines: make([]string, capacity)}
}

func (b *RingBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wrapped {
		b.dropped++
	}
	b.lines[b.next] = line
	b.next++
	if b.next == len(b.lines) {
		b.next = 0
		b.wrapped = true
	}
}

// GetLast returns up to n lines, oldest first. n <= 0 returns everything held.
func (b *RingBuffer) GetLast(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	held := b.sizeLocked()
	if n <= 0 || n > held {
		n = held
	}
	out := make([]string, 0, n)
	for i := held - n; i < held; i++ {
		out = append(out, b.lines[b.indexLocked(i)])
	}
	return out
}

func (b *RingBuffer) Capacity() int {
	return len(b.lines)
}

func (b *RingBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sizeLocked()
}

// Dropped reports how many lines were overwritten since creation.
func (b *RingBuffer) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

func (b *RingBuffer) sizeLocked() int {
	if b.wrapped {
		return len(b.lines)
	}
	return b.next
}

// indexLocked maps a logical position (0 = oldest) to a slot.
func (b *RingBuffer) indexLocked(i int) int {
	if !b.wrapped {
		return i
	}
	return (b.next + i) % len(b.lines)
}

// bufferingHandler tees records to the next handler and keeps a plain-text
// copy in the ring buffer for the get_server_logs tool.
type bufferingHandler struct {
	next   slog.Handler
	buffer *RingBuffer
	// prefix holds attrs bound through With, already formatted.
	prefix string
	group  string
}

func newBufferingHandler(next slog.Handler, buffer *RingBuffer) slog.Handler {
	return &bufferingHandler{next: next, buffer: buffer}
}

func (h *bufferingHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h *bufferingHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf bytes.Buffer
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(ts.Format(time.RFC3339))
	buf.WriteByte(' ')
	buf.WriteString(r.Level.String())
	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	buf.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.group, a)
		return true
	})
	h.buffer.Append(buf.String())
	return h.next.Handle(ctx, r)
}

func (h *bufferingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var buf bytes.Buffer
	buf.WriteString(h.prefix)
	for _, a := range attrs {
		writeAttr(&buf, h.group, a)
	}
	return &bufferingHandler{next: h.next.WithAttrs(attrs), buffer: h.buffer, prefix: buf.String(), group: h.group}
}

func (h *bufferingHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &bufferingHandler{next: h.next.WithGroup(name), buffer: h.buffer, prefix: h.prefix, group: group}
}

func writeAttr(buf *bytes.Buffer, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	buf.WriteByte(' ')
	if group != "" {
		buf.WriteString(group)
		buf.WriteByte('.')
	}
	buf.WriteString(a.Key)
	buf.WriteByte('=')
	buf.WriteString(a.Value.Resolve().String())
}
