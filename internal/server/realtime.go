package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/feedback"
)

const (
	RealtimeEventPostAdded = "post-added"
	RealtimeEventReadState = "read-state"
	realtimeEventHeartbeat = "heartbeat"
)

// RealtimeMessage is one event for the /events stream. An empty UserID addresses every
// subscriber.
type RealtimeMessage struct {
	UserID    string
	EventType string
	Payload   any
	Timestamp time.Time
}

// RealtimeDispatcher fans mutation events out to per-user subscriber channels. Slow
// subscribers drop messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers a stream for userID until ctx ends or the returned cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregisterSubscriber(userID, subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers message to the subscribers of message.UserID, or to everyone when the
// user id is empty.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = d.clock().UTC()
	}

	d.mu.RLock()
	var copies []*realtimeSubscriber
	if message.UserID == "" {
		for _, subscribers := range d.subscribers {
			for _, subscriber := range subscribers {
				copies = append(copies, subscriber)
			}
		}
	} else {
		for _, subscriber := range d.subscribers[message.UserID] {
			copies = append(copies, subscriber)
		}
	}
	d.mu.RUnlock()

	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// PostAdded broadcasts a new post to every subscriber.
func (d *RealtimeDispatcher) PostAdded(_ context.Context, post feedback.PostSummary) {
	d.Publish(RealtimeMessage{EventType: RealtimeEventPostAdded, Payload: post})
}

// PostRead tells the reader's other sessions that a post is now read.
func (d *RealtimeDispatcher) PostRead(_ context.Context, receipt feedback.ReadReceipt) {
	d.Publish(RealtimeMessage{UserID: receipt.UserID, EventType: RealtimeEventReadState, Payload: receipt})
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(userID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(userID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}
