package feedback

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/rpc"
	sqlite "github.com/glebarez/sqlite"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	viewerUser = "viewer-1"
	otherUser  = "other-1"
)

var baseTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:feedback_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&Post{}, &Comment{}, &ReadReceipt{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	store, err := NewGormStore(db, func() time.Time { return baseTime })
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store, db
}

func seedPost(t *testing.T, db *gorm.DB, id, authorID string, offset time.Duration, mutate ...func(*Post)) Post {
	t.Helper()
	createdAt := baseTime.Add(offset)
	post := Post{
		ID:        id,
		AuthorID:  authorID,
		Title:     "Title " + id,
		Text:      "Body " + id,
		Published: true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	for _, apply := range mutate {
		apply(&post)
	}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("failed to seed post %s: %v", id, err)
	}
	return post
}

func seedComment(t *testing.T, db *gorm.DB, id, postID, authorID string) {
	t.Helper()
	comment := Comment{ID: id, PostID: postID, AuthorID: authorID, Text: "reply " + id, CreatedAt: baseTime}
	if err := db.Create(&comment).Error; err != nil {
		t.Fatalf("failed to seed comment %s: %v", id, err)
	}
}

func seedReceipt(t *testing.T, db *gorm.DB, postID, userID string) {
	t.Helper()
	receipt := ReadReceipt{PostID: postID, UserID: userID, CreatedAt: baseTime}
	if err := db.Create(&receipt).Error; err != nil {
		t.Fatalf("failed to seed receipt %s/%s: %v", postID, userID, err)
	}
}

type stubUsers struct {
	existing map[string]bool
}

func (s stubUsers) UserExists(_ context.Context, userID string) (bool, error) {
	return s.existing[userID], nil
}

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("post-%03d", s.next), nil
}

type recordedEvents struct {
	mu       sync.Mutex
	added    []PostSummary
	receipts []ReadReceipt
}

func (r *recordedEvents) PostAdded(_ context.Context, post PostSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, post)
}

func (r *recordedEvents) PostRead(_ context.Context, receipt ReadReceipt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, receipt)
}

type routerFixture struct {
	router   *Router
	events   *recordedEvents
	recorder *tracetest.SpanRecorder
}

func newTestRouter(t *testing.T, store Store, logger *zap.Logger) routerFixture {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	builder, err := rpc.NewBuilder(rpc.BuilderConfig{
		Tracer: provider.Tracer("feedback-test"),
		Users:  stubUsers{existing: map[string]bool{viewerUser: true, otherUser: true}},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("failed to construct builder: %v", err)
	}

	events := &recordedEvents{}
	clockTick := 0
	service, err := NewService(ServiceConfig{
		Store: store,
		Clock: func() time.Time {
			clockTick++
			return baseTime.Add(time.Duration(clockTick) * time.Hour)
		},
		IDProvider: &sequenceIDs{},
		Logger:     logger,
		Events:     events,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return routerFixture{router: NewRouter(builder.Protected(), service), events: events, recorder: recorder}
}

func session(userID string) *rpc.Session {
	return &rpc.Session{UserID: userID}
}

func intPtr(value int) *int {
	return &value
}

func itemIDs(items []ProcessedItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}
