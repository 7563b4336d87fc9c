// Package broadcast fans frames and events out to every connected viewer.
// Delivery is all-attempted: a failed send removes only the affected
// session and never blocks or aborts the others.
package broadcast

import (
	"bytes"
	"encoding/json"
	"runtime"
	"sync"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/sirupsen/logrus"

	"github.com/ansari-belal-ahmad/remote-desktop/internal/framebuf"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/metrics"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/security"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/session"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/types"
)

// Broadcaster drains the frame buffer and pushes each frame to every
// registered session concurrently.
type Broadcaster struct {
	registry *session.Registry
	buf      *framebuf.Buffer
	sec      *security.Manager
	metrics  *metrics.Metrics
	log      *logrus.Entry

	// compressionLevel applies to serialized events; frames are already
	// compressed by the encoder.
	compressionLevel int
}

// New wires the broadcaster to its collaborators.
func New(registry *session.Registry, buf *framebuf.Buffer, sec *security.Manager, m *metrics.Metrics, compressionLevel int) *Broadcaster {
	return &Broadcaster{
		registry:         registry,
		buf:              buf,
		sec:              sec,
		metrics:          m,
		log:              logrus.WithField("component", "broadcast"),
		compressionLevel: compressionLevel,
	}
}

// Run drains the frame buffer until it is closed. The blocking wait on the
// buffer is the loop's only suspension point.
func (b *Broadcaster) Run() {
	for {
		frame, err := b.buf.Next()
		if err != nil {
			b.log.Info("frame buffer closed, broadcast loop exiting")
			return
		}
		b.BroadcastFrame(frame)
		runtime.Gosched()
	}
}

// BroadcastFrame sends one encoded frame to all current sessions.
func (b *Broadcaster) BroadcastFrame(frame []byte) {
	sessions := b.registry.Snapshot()
	if len(sessions) == 0 {
		return
	}

	payload, err := b.sec.Encrypt(frame)
	if err != nil {
		b.log.WithError(err).Error("frame encryption failed")
		b.metrics.RecordError("encrypt")
		return
	}

	b.fanOut(sessions, func(s *session.Session) error {
		return s.SendBinary(payload)
	}, "frame")
	b.metrics.RecordFrame(len(payload))
}

// BroadcastEvent serializes an event, optionally compresses and encrypts
// it, and fans it out with the same failure isolation as frames.
func (b *Broadcaster) BroadcastEvent(et types.EventType, details map[string]any) {
	sessions := b.registry.Snapshot()
	if len(sessions) == 0 {
		return
	}

	if details == nil {
		details = map[string]any{}
	}
	ev := types.Event{
		Timestamp: time.Now().Format("15:04:05"),
		Type:      et,
		Details:   details,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		b.log.WithError(err).Error("event marshal failed")
		b.metrics.RecordError("event")
		return
	}

	// Compressed or encrypted events go out as binary messages; otherwise
	// plain text.
	binary := false
	if b.compressionLevel > 0 {
		data, err = compress(data, b.compressionLevel)
		if err != nil {
			b.log.WithError(err).Error("event compression failed")
			b.metrics.RecordError("event")
			return
		}
		binary = true
	}
	if b.sec.Enabled() {
		data, err = b.sec.Encrypt(data)
		if err != nil {
			b.log.WithError(err).Error("event encryption failed")
			b.metrics.RecordError("event")
			return
		}
		binary = true
	}

	send := func(s *session.Session) error { return s.SendText(data) }
	if binary {
		send = func(s *session.Session) error { return s.SendBinary(data) }
	}
	b.fanOut(sessions, send, "event")
	b.metrics.EventsSent.Inc()
}

// fanOut attempts delivery to every session concurrently. A failed session
// is removed from the registry and closed; the rest are untouched.
func (b *Broadcaster) fanOut(sessions []*session.Session, send func(*session.Session) error, kind string) {
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			if err := send(s); err != nil {
				b.log.WithError(err).WithField("remote", s.RemoteID()).Warnf("%s send failed, dropping session", kind)
				// Closing the transport also ends the session's read
				// loop, which owns the connection-count accounting.
				b.registry.Remove(s)
				_ = s.Close()
				b.metrics.RecordError(kind + "_send")
			}
		}(s)
	}
	wg.Wait()
}

func compress(data []byte, level int) ([]byte, error) {
	var out bytes.Buffer
	zw, err := zlib.NewWriterLevel(&out, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
