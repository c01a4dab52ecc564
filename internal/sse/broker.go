// Package sse streams backup progress to HTTP clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/everzim/internal/backup"
)

// Event types sent to clients.
const (
	TypeStarted   = "backup.started"
	TypeProgress  = "backup.progress"
	TypeFinished  = "backup.finished"
	TypeConverted = "note.converted"
	TypeFailed    = "note.failed"
)

const clientBuffer = 64

// Event is a message broadcast to every client.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Progress is the payload of backup.progress. Outside a run, Total counts
// the notes converted one by one (uploads, the inbox watcher) since the
// last run began.
type Progress struct {
	Total     int  `json:"total"`
	Converted int  `json:"converted"`
	Failed    int  `json:"failed"`
	Running   bool `json:"running"`
}

// Summary is the payload of backup.finished.
type Summary struct {
	Progress
	MissingAssets int    `json:"missing_assets"`
	Fetched       int    `json:"fetched_images"`
	Error         string `json:"error,omitempty"`
}

var _ backup.RunObserver = (*Broker)(nil)

// Broker fans backup events out to SSE clients. All state lives in one
// goroutine; public methods hand it closures over a channel.
type Broker struct {
	throttle time.Duration

	cmds    chan func(*hub)
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// hub is the state owned by the broker goroutine.
type hub struct {
	clients  map[chan []byte]struct{}
	progress Progress
	seen     bool // a run began or a note was reported
	lastSent time.Time
	throttle time.Duration
}

// NewBroker creates a broker that sends backup.progress at most once per
// progressThrottle while notes are being reported.
func NewBroker(progressThrottle time.Duration) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = 2 * time.Second
	}
	b := &Broker{
		throttle: progressThrottle,
		cmds:     make(chan func(*hub), 256),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)

	h := &hub{clients: make(map[chan []byte]struct{}), throttle: b.throttle}
	for {
		select {
		case fn := <-b.cmds:
			fn(h)
		case <-b.stopCh:
			for {
				select {
				case fn := <-b.cmds:
					fn(h)
				default:
					for ch := range h.clients {
						close(ch)
					}
					return
				}
			}
		}
	}
}

// do runs fn on the broker goroutine. It reports false once the broker is
// closed.
func (b *Broker) do(fn func(*hub)) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.cmds <- fn:
		return true
	case <-b.stopped:
		return false
	}
}

// Close stops the broker and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. A client joining after a run began first
// receives the current progress.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if !b.do(func(h *hub) { h.add(ch) }) {
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.do(func(h *hub) {
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	if !b.do(func(h *hub) { resp <- len(h.clients) }) {
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts an arbitrary event.
func (b *Broker) Publish(event Event) {
	b.do(func(h *hub) { h.broadcast(event.Type, event.Data) })
}

// PublishNoteEvent reports one note, with kind backup.EventConverted or
// backup.EventFailed, followed by a throttled backup.progress. Other kinds
// are ignored. It has the shape of a backup.EventFunc.
func (b *Broker) PublishNoteEvent(kind, path string) {
	b.do(func(h *hub) { h.note(kind, path) })
}

// BeginRun implements backup.RunObserver.
func (b *Broker) BeginRun(total int) {
	b.do(func(h *hub) {
		h.progress = Progress{Total: total, Running: true}
		h.seen = true
		h.lastSent = time.Now()
		h.broadcast(TypeStarted, map[string]int{"total": total})
	})
}

// EndRun implements backup.RunObserver. The run's own counts replace the
// ones gathered from note events.
func (b *Broker) EndRun(stats backup.Stats, err error) {
	b.do(func(h *hub) {
		h.progress.Converted = stats.Converted
		h.progress.Failed = stats.Failed
		h.progress.Running = false
		h.seen = true
		h.sendProgress()

		sum := Summary{Progress: h.progress, MissingAssets: stats.MissingAssets, Fetched: stats.Fetched}
		if err != nil {
			sum.Error = err.Error()
		}
		h.broadcast(TypeFinished, sum)
	})
}

func (h *hub) add(ch chan []byte) {
	h.clients[ch] = struct{}{}
	if h.seen {
		h.send(ch, TypeProgress, h.progress)
	}
}

func (h *hub) note(kind, path string) {
	var typ string
	switch kind {
	case backup.EventConverted:
		h.progress.Converted++
		typ = TypeConverted
	case backup.EventFailed:
		h.progress.Failed++
		typ = TypeFailed
	default:
		return
	}
	if !h.progress.Running {
		h.progress.Total++
	}
	h.seen = true
	h.broadcast(typ, map[string]string{"path": path})

	if time.Since(h.lastSent) >= h.throttle {
		h.sendProgress()
	}
}

func (h *hub) sendProgress() {
	h.lastSent = time.Now()
	h.broadcast(TypeProgress, h.progress)
}

func (h *hub) broadcast(typ string, data interface{}) {
	msg, ok := encode(typ, data)
	if !ok {
		return
	}
	for ch := range h.clients {
		deliver(ch, msg)
	}
}

func (h *hub) send(ch chan []byte, typ string, data interface{}) {
	if msg, ok := encode(typ, data); ok {
		deliver(ch, msg)
	}
}

func encode(typ string, data interface{}) ([]byte, bool) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", typ, payload)), true
}

// deliver drops msg when the client is not keeping up.
func deliver(ch chan []byte, msg []byte) {
	select {
	case ch <- msg:
	default:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
