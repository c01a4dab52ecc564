package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/everzim/internal/backup"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "note.converted", Data: map[string]string{"path": "a.txt"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: note.converted") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"path":"a.txt"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestPublishNoteEvent_ProgressThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event triggers backup.progress, the second is throttled.
	b.PublishNoteEvent("converted", "a.txt")
	b.PublishNoteEvent("failed", "b.html")

	time.Sleep(50 * time.Millisecond)
	progress, converted, failed := 0, 0, 0
	for _, s := range drain(ch) {
		switch {
		case strings.Contains(s, "event: backup.progress"):
			progress++
			if !strings.Contains(s, `"converted":1`) || !strings.Contains(s, `"failed":0`) {
				t.Errorf("progress totals in %q", s)
			}
		case strings.Contains(s, "event: note.converted"):
			converted++
		case strings.Contains(s, "event: note.failed"):
			failed++
		}
	}

	if converted != 1 || failed != 1 {
		t.Errorf("note events = %d/%d, want 1/1", converted, failed)
	}
	if progress != 1 {
		t.Errorf("progress events = %d, want 1 (throttled)", progress)
	}
}

func TestPublishNoteEvent_TotalsAccumulate(t *testing.T) {
	b := NewBroker(10 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent("converted", "a.txt")
	b.PublishNoteEvent("converted", "b.txt")
	time.Sleep(30 * time.Millisecond)
	b.PublishNoteEvent("failed", "c.html")
	time.Sleep(50 * time.Millisecond)

	var last string
	for _, s := range drain(ch) {
		if strings.Contains(s, "event: backup.progress") {
			last = s
		}
	}
	if !strings.Contains(last, `{"total":3,"converted":2,"failed":1,"running":false}`) {
		t.Errorf("last progress = %q", last)
	}
}

func TestRunLifecycle(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.BeginRun(3)
	b.PublishNoteEvent("converted", "a.txt")
	b.PublishNoteEvent("failed", "b.html")
	b.EndRun(backup.Stats{Converted: 2, Failed: 1, MissingAssets: 4, Fetched: 1}, errors.New("disk full"))
	time.Sleep(50 * time.Millisecond)

	msgs := drain(ch)
	var types []string
	for _, m := range msgs {
		line, _, _ := strings.Cut(m, "\n")
		types = append(types, strings.TrimPrefix(line, "event: "))
	}
	want := []string{TypeStarted, TypeConverted, TypeFailed, TypeProgress, TypeFinished}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", types, want)
	}
	if !strings.Contains(msgs[0], `{"total":3}`) {
		t.Errorf("started = %q", msgs[0])
	}
	if !strings.Contains(msgs[3], `{"total":3,"converted":2,"failed":1,"running":false}`) {
		t.Errorf("progress = %q", msgs[3])
	}
	for _, part := range []string{`"missing_assets":4`, `"fetched_images":1`, `"error":"disk full"`, `"total":3`} {
		if !strings.Contains(msgs[4], part) {
			t.Errorf("finished %q missing %s", msgs[4], part)
		}
	}
}

func TestSubscribe_LateClientGetsSnapshot(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	early := b.Subscribe()
	if msgs := drain(early); len(msgs) != 0 {
		t.Fatalf("no run yet, got %v", msgs)
	}
	b.Unsubscribe(early)

	b.BeginRun(10)
	b.PublishNoteEvent("converted", "a.txt")

	late := b.Subscribe()
	defer b.Unsubscribe(late)
	if b.ClientCount() != 1 {
		t.Fatal("expected 1 client")
	}
	msgs := drain(late)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "event: backup.progress") ||
		!strings.Contains(msgs[0], `{"total":10,"converted":1,"failed":0,"running":true}`) {
		t.Errorf("snapshot = %v", msgs)
	}
}

func TestPublishNoteEvent_UnknownKindIgnored(t *testing.T) {
	b := NewBroker(10 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent("deleted", "x.txt")
	time.Sleep(50 * time.Millisecond)
	if msgs := drain(ch); len(msgs) != 0 {
		t.Errorf("unexpected messages: %v", msgs)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "note.converted", Data: map[string]string{"path": "x.txt"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: note.converted") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "note.converted", Data: map[string]string{"path": "x.txt"}})
	b.PublishNoteEvent("converted", "x.txt")
}
