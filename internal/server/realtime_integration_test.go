package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/feedback"
)

type sseEvent struct {
	name string
	data string
}

func openEventStream(t *testing.T, serverURL, userID string) (*http.Response, <-chan sseEvent) {
	t.Helper()
	request, err := http.NewRequest(http.MethodGet, serverURL+"/events", http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	request.Header.Set("Authorization", "Bearer "+userID)
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = response.Body.Close()
	})

	events := make(chan sseEvent, 16)
	go func() {
		defer close(events)
		reader := bufio.NewReader(response.Body)
		current := sseEvent{}
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "event:"):
				current.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				current.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "" && current.name != "":
				events <- current
				current = sseEvent{}
			}
		}
	}()
	return response, events
}

func awaitEvent(t *testing.T, events <-chan sseEvent, name string) sseEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", name)
		case event, ok := <-events:
			if !ok {
				t.Fatalf("stream closed before %s event", name)
			}
			if event.name == name {
				return event
			}
		}
	}
}

func waitForSubscribers(t *testing.T, dispatcher *RealtimeDispatcher, count int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		dispatcher.mu.RLock()
		total := 0
		for _, subscribers := range dispatcher.subscribers {
			total += len(subscribers)
		}
		dispatcher.mu.RUnlock()
		if total >= count {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers", count)
}

func TestEventStreamDeliversBroadcastAndPersonalEvents(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	handler := newTestHTTPHandler(t, handlerOptions{realtime: dispatcher, heartbeat: time.Hour})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	readerResponse, readerEvents := openEventStream(t, server.URL, "user-1")
	if readerResponse.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", readerResponse.StatusCode)
	}
	if contentType := readerResponse.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/event-stream") {
		t.Fatalf("unexpected content type %q", contentType)
	}
	awaitEvent(t, readerEvents, realtimeEventHeartbeat)
	waitForSubscribers(t, dispatcher, 1)

	dispatcher.PostAdded(context.Background(), feedback.PostSummary{ID: "post-1", Title: "Dark mode"})
	added := awaitEvent(t, readerEvents, RealtimeEventPostAdded)
	var addedPayload struct {
		Data feedback.PostSummary `json:"data"`
	}
	if err := json.Unmarshal([]byte(added.data), &addedPayload); err != nil {
		t.Fatalf("failed to decode event payload: %v", err)
	}
	if addedPayload.Data.ID != "post-1" {
		t.Fatalf("unexpected post payload %#v", addedPayload.Data)
	}

	dispatcher.PostRead(context.Background(), feedback.ReadReceipt{PostID: "post-1", UserID: "user-1"})
	read := awaitEvent(t, readerEvents, RealtimeEventReadState)
	if !strings.Contains(read.data, `"postId":"post-1"`) {
		t.Fatalf("unexpected read-state payload %s", read.data)
	}
}

func TestEventStreamRejectsAnonymousCallers(t *testing.T) {
	handler := newTestHTTPHandler(t, handlerOptions{})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/events", http.NoBody))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"UNAUTHORIZED"`) {
		t.Fatalf("expected rpc error envelope, got %s", recorder.Body.String())
	}
}
