package feedback

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
	MaxTitleLength   = 190
	MaxTextLength    = 10000
)

var (
	errMissingStore      = errors.New("store is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew  = "feedback.service.new"
	opList        = "feedback.list"
	opUnreadCount = "feedback.unread_count"
	opByID        = "feedback.by_id"
	opAdd         = "feedback.add"
	opSetRead     = "feedback.set_read"
)

// EventPublisher receives notifications after mutations commit.
type EventPublisher interface {
	PostAdded(ctx context.Context, post PostSummary)
	PostRead(ctx context.Context, receipt ReadReceipt)
}

type ServiceConfig struct {
	Store      Store
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	Events     EventPublisher
}

// Service implements the post operations. Every method expects call to carry a
// session already checked by the protected procedure.
type Service struct {
	store      Store
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	events     EventPublisher
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newStoreError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newStoreError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:      cfg.Store,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		events:     cfg.Events,
	}, nil
}

type ListInput struct {
	Filter Filter  `json:"filter" validate:"omitempty,oneof=all draft unread replied repliedByMe unreplied unrepliedByMe"`
	Order  Order   `json:"order" validate:"omitempty,oneof=asc desc"`
	Limit  *int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
	Cursor *string `json:"cursor,omitempty"`
}

type ListOutput struct {
	Items      []ProcessedItem `json:"items"`
	NextCursor *string         `json:"nextCursor,omitempty"`
}

// List returns one page of posts. One extra row is fetched to detect a following page;
// its id becomes the next cursor. Items come back in reverse of the query order.
func (s *Service) List(ctx context.Context, call rpc.Call, input ListInput) (ListOutput, error) {
	viewerID := call.UserID()
	filter := input.Filter
	if filter == "" {
		filter = FilterAll
	}
	order := input.Order
	if order == "" {
		order = OrderDesc
	}
	limit := DefaultListLimit
	if input.Limit != nil {
		limit = *input.Limit
	}
	cursor := ""
	if input.Cursor != nil {
		cursor = *input.Cursor
	}

	posts, err := s.store.FindMany(ctx, ListQuery{
		Predicate: PredicateFor(filter, viewerID),
		ViewerID:  viewerID,
		Order:     order,
		Take:      limit + 1,
		Cursor:    cursor,
	})
	if err != nil {
		s.logError(ctx, opList, "find_many_failed", err, zap.String("filter", string(filter)))
		return ListOutput{}, rpc.Internal(err)
	}

	var nextCursor *string
	if len(posts) > limit {
		next := posts[limit].ID
		nextCursor = &next
		posts = posts[:limit]
	}

	items := make([]ProcessedItem, 0, len(posts))
	for _, post := range posts {
		items = append(items, ProcessPost(post, viewerID))
	}
	slices.Reverse(items)

	return ListOutput{Items: items, NextCursor: nextCursor}, nil
}

type UnreadCountOutput struct {
	UnreadCount int64 `json:"unreadCount"`
	TotalCount  int64 `json:"totalCount"`
}

// UnreadCount reports visible posts minus the viewer's receipts. Receipts on hidden posts
// still count as read, so the result can go negative.
func (s *Service) UnreadCount(ctx context.Context, call rpc.Call, _ struct{}) (UnreadCountOutput, error) {
	viewerID := call.UserID()
	var total, read int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		count, err := s.store.CountVisible(groupCtx)
		total = count
		return err
	})
	group.Go(func() error {
		count, err := s.store.CountReadBy(groupCtx, viewerID)
		read = count
		return err
	})
	if err := group.Wait(); err != nil {
		s.logError(ctx, opUnreadCount, "count_failed", err, zap.String("user_id", viewerID))
		return UnreadCountOutput{}, rpc.Internal(err)
	}

	return UnreadCountOutput{UnreadCount: total - read, TotalCount: total}, nil
}

type ByIDInput struct {
	ID string `json:"id" validate:"required"`
}

func (s *Service) ByID(ctx context.Context, call rpc.Call, input ByIDInput) (ProcessedItem, error) {
	viewerID := call.UserID()
	post, err := s.store.FindByID(ctx, input.ID, viewerID)
	if err != nil {
		s.logError(ctx, opByID, "find_failed", err, zap.String("post_id", input.ID))
		return ProcessedItem{}, rpc.Internal(err)
	}
	if post == nil {
		return ProcessedItem{}, postNotFound(input.ID)
	}
	return ProcessPost(*post, viewerID), nil
}

type AddInput struct {
	Title     string `json:"title" validate:"required,max=190"`
	Text      string `json:"text" validate:"required,max=10000"`
	Published *bool  `json:"published,omitempty"`
}

// Validate rejects whitespace-only fields, which the tags accept.
func (i AddInput) Validate() error {
	fieldErrors := map[string][]string{}
	if strings.TrimSpace(i.Title) == "" {
		fieldErrors["title"] = []string{"must not be blank"}
	}
	if strings.TrimSpace(i.Text) == "" {
		fieldErrors["text"] = []string{"must not be blank"}
	}
	if len(fieldErrors) > 0 {
		return rpc.Validation(fieldErrors)
	}
	return nil
}

func (s *Service) Add(ctx context.Context, call rpc.Call, input AddInput) (PostSummary, error) {
	authorID := call.UserID()
	postID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(ctx, opAdd, "id_generation_failed", err, zap.String("user_id", authorID))
		return PostSummary{}, rpc.Internal(err)
	}

	published := true
	if input.Published != nil {
		published = *input.Published
	}
	now := s.clock().UTC()
	post := Post{
		ID:        postID,
		AuthorID:  authorID,
		Title:     strings.TrimSpace(input.Title),
		Text:      strings.TrimSpace(input.Text),
		Published: published,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, &post); err != nil {
		s.logError(ctx, opAdd, "create_failed", err, zap.String("user_id", authorID))
		return PostSummary{}, rpc.Internal(err)
	}

	summary := Summarize(post)
	if s.events != nil {
		s.events.PostAdded(ctx, summary)
	}
	return summary, nil
}

type SetReadInput struct {
	ID string `json:"id" validate:"required"`
}

func (s *Service) SetRead(ctx context.Context, call rpc.Call, input SetReadInput) (ReadReceipt, error) {
	userID := call.UserID()
	exists, err := s.store.PostExists(ctx, input.ID)
	if err != nil {
		s.logError(ctx, opSetRead, "lookup_failed", err, zap.String("post_id", input.ID))
		return ReadReceipt{}, rpc.Internal(err)
	}
	if !exists {
		return ReadReceipt{}, postNotFound(input.ID)
	}

	receipt, err := s.store.UpsertReadReceipt(ctx, input.ID, userID)
	if err != nil {
		s.logError(ctx, opSetRead, "upsert_failed", err,
			zap.String("post_id", input.ID),
			zap.String("user_id", userID))
		return ReadReceipt{}, rpc.Internal(err)
	}

	if s.events != nil {
		s.events.PostRead(ctx, receipt)
	}
	return receipt, nil
}

func postNotFound(postID string) *rpc.Error {
	return rpc.NotFound(fmt.Sprintf("No post with id '%s'", postID))
}

func (s *Service) logError(ctx context.Context, operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logging.WithTrace(ctx, s.logger).Error("feedback service error", attrs...)
}
