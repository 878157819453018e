package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("database handle is required")

// StoreError reports a failed persistence operation with a stable "<op>.<reason>" code.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

func (e *StoreError) Code() string {
	return e.code
}

const (
	opStoreNew         = "feedback.store.new"
	opFindMany         = "feedback.find_many"
	opFindByID         = "feedback.find_by_id"
	opPostExists       = "feedback.post_exists"
	opCountVisible     = "feedback.count_visible"
	opCountReadBy      = "feedback.count_read_by"
	opCreatePost       = "feedback.create_post"
	opUpsertReceipt    = "feedback.upsert_read_receipt"
	opCreateComment    = "feedback.create_comment"
	reasonQueryFailed  = "query_failed"
	reasonInsertFailed = "insert_failed"
)

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ListQuery describes one page fetch. Take is the number of rows to load; Cursor, when
// set, is the id of the first row to include.
type ListQuery struct {
	Predicate Predicate
	ViewerID  string
	Order     Order
	Take      int
	Cursor    string
}

// Store is the persistence boundary for posts, comments, and read receipts.
type Store interface {
	// FindMany returns posts matching q ordered by (created_at, id) in q.Order, with
	// comments and the viewer's read receipt loaded. An unknown cursor yields no rows.
	FindMany(ctx context.Context, q ListQuery) ([]Post, error)
	// FindByID returns nil without error when no post has the id.
	FindByID(ctx context.Context, postID, viewerID string) (*Post, error)
	PostExists(ctx context.Context, postID string) (bool, error)
	CountVisible(ctx context.Context) (int64, error)
	CountReadBy(ctx context.Context, userID string) (int64, error)
	Create(ctx context.Context, post *Post) error
	// UpsertReadReceipt stores the receipt unless one already exists for the pair and
	// returns the stored row.
	UpsertReadReceipt(ctx context.Context, postID, userID string) (ReadReceipt, error)
	CreateComment(ctx context.Context, comment *Comment) error
}

// GormStore implements Store over GORM. It works against SQLite and Postgres.
type GormStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewGormStore wraps db. A nil clock defaults to time.Now.
func NewGormStore(db *gorm.DB, clock func() time.Time) (*GormStore, error) {
	if db == nil {
		return nil, newStoreError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if clock == nil {
		clock = time.Now
	}
	return &GormStore{db: db, clock: clock}, nil
}

func (s *GormStore) FindMany(ctx context.Context, q ListQuery) ([]Post, error) {
	direction := "DESC"
	before, atOrBefore := "<", "<="
	if q.Order == OrderAsc {
		direction = "ASC"
		before, atOrBefore = ">", ">="
	}

	query := s.db.WithContext(ctx).Model(&Post{}).Scopes(predicateScope(q.Predicate))
	if q.Cursor != "" {
		var anchor Post
		err := s.db.WithContext(ctx).Select("id", "created_at").Where("id = ?", q.Cursor).Take(&anchor).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []Post{}, nil
		}
		if err != nil {
			return nil, newStoreError(opFindMany, "cursor_lookup_failed", err)
		}
		query = query.Where(
			fmt.Sprintf("(posts.created_at %s ? OR (posts.created_at = ? AND posts.id %s ?))", before, atOrBefore),
			anchor.CreatedAt, anchor.CreatedAt, anchor.ID,
		)
	}

	var posts []Post
	err := query.
		Order("posts.created_at "+direction).
		Order("posts.id "+direction).
		Limit(q.Take).
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.created_at ASC").Order("comments.id ASC")
		}).
		Preload("ReadReceipts", "user_id = ?", q.ViewerID).
		Find(&posts).Error
	if err != nil {
		return nil, newStoreError(opFindMany, reasonQueryFailed, err)
	}
	return posts, nil
}

func (s *GormStore) FindByID(ctx context.Context, postID, viewerID string) (*Post, error) {
	var post Post
	err := s.db.WithContext(ctx).
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.created_at ASC").Order("comments.id ASC")
		}).
		Preload("ReadReceipts", "user_id = ?", viewerID).
		Where("id = ?", postID).
		Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, newStoreError(opFindByID, reasonQueryFailed, err)
	}
	return &post, nil
}

func (s *GormStore) PostExists(ctx context.Context, postID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
		return false, newStoreError(opPostExists, reasonQueryFailed, err)
	}
	return count > 0, nil
}

func (s *GormStore) CountVisible(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Post{}).Where("hidden = ?", false).Count(&count).Error; err != nil {
		return 0, newStoreError(opCountVisible, reasonQueryFailed, err)
	}
	return count, nil
}

func (s *GormStore) CountReadBy(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&ReadReceipt{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, newStoreError(opCountReadBy, reasonQueryFailed, err)
	}
	return count, nil
}

func (s *GormStore) Create(ctx context.Context, post *Post) error {
	if err := s.db.WithContext(ctx).Omit("Comments", "ReadReceipts").Create(post).Error; err != nil {
		return newStoreError(opCreatePost, reasonInsertFailed, err)
	}
	return nil
}

func (s *GormStore) UpsertReadReceipt(ctx context.Context, postID, userID string) (ReadReceipt, error) {
	insert := ReadReceipt{PostID: postID, UserID: userID, CreatedAt: s.clock().UTC()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&insert).Error
	if err != nil {
		return ReadReceipt{}, newStoreError(opUpsertReceipt, reasonInsertFailed, err)
	}

	var stored ReadReceipt
	err = s.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Take(&stored).Error
	if err != nil {
		return ReadReceipt{}, newStoreError(opUpsertReceipt, reasonQueryFailed, err)
	}
	return stored, nil
}

func (s *GormStore) CreateComment(ctx context.Context, comment *Comment) error {
	if err := s.db.WithContext(ctx).Create(comment).Error; err != nil {
		return newStoreError(opCreateComment, reasonInsertFailed, err)
	}
	return nil
}

func predicateScope(p Predicate) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if p.Published != nil {
			db = db.Where("posts.published = ?", *p.Published)
		}
		if p.NotReadBy != "" {
			db = db.Where("NOT EXISTS (SELECT 1 FROM read_receipts WHERE read_receipts.post_id = posts.id AND read_receipts.user_id = ?)", p.NotReadBy)
		}
		if p.HasComment != nil {
			subquery, args := commentSubquery(*p.HasComment)
			db = db.Where("EXISTS ("+subquery+")", args...)
		}
		if p.LacksComment != nil {
			subquery, args := commentSubquery(*p.LacksComment)
			db = db.Where("NOT EXISTS ("+subquery+")", args...)
		}
		return db
	}
}

func commentSubquery(match CommentMatch) (string, []any) {
	const base = "SELECT 1 FROM comments WHERE comments.post_id = posts.id"
	if match.AuthorID == "" {
		return base, nil
	}
	return base + " AND comments.author_id = ?", []any{match.AuthorID}
}
