package feedback

import "time"

// Post is a submitted feedback item.
type Post struct {
	ID           string        `gorm:"column:id;primaryKey;size:64;not null"`
	AuthorID     string        `gorm:"column:author_id;size:190;not null;index"`
	Title        string        `gorm:"column:title;size:190;not null"`
	Text         string        `gorm:"column:text;type:text;not null"`
	Published    bool          `gorm:"column:published;not null"`
	Hidden       bool          `gorm:"column:hidden;not null;default:false;index"`
	CreatedAt    time.Time     `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time     `gorm:"column:updated_at;not null"`
	Comments     []Comment     `gorm:"foreignKey:PostID;references:ID"`
	ReadReceipts []ReadReceipt `gorm:"foreignKey:PostID;references:ID"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "posts"
}

// Comment is a reply attached to a post. Comments are authored elsewhere; this package
// reads them for filtering and display.
type Comment struct {
	ID        string    `gorm:"column:id;primaryKey;size:64;not null"`
	PostID    string    `gorm:"column:post_id;size:64;not null;index"`
	AuthorID  string    `gorm:"column:author_id;size:190;not null;index"`
	Text      string    `gorm:"column:text;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// ReadReceipt records that a user has read a post. The composite key allows at most one
// receipt per (post, user).
type ReadReceipt struct {
	PostID    string    `gorm:"column:post_id;primaryKey;size:64;not null" json:"postId"`
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null;index" json:"userId"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName provides the explicit table binding for GORM.
func (ReadReceipt) TableName() string {
	return "read_receipts"
}

// Filter selects a subset of posts relative to the viewer.
type Filter string

const (
	FilterAll           Filter = "all"
	FilterDraft         Filter = "draft"
	FilterUnread        Filter = "unread"
	FilterReplied       Filter = "replied"
	FilterRepliedByMe   Filter = "repliedByMe"
	FilterUnreplied     Filter = "unreplied"
	FilterUnrepliedByMe Filter = "unrepliedByMe"
)

// Order is the creation-time sort direction.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// PostSummary is the projection returned when a post is created.
type PostSummary struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Published bool      `json:"published"`
	Hidden    bool      `json:"hidden"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProcessedComment is a comment annotated for the viewer.
type ProcessedComment struct {
	ID               string    `json:"id"`
	AuthorID         string    `json:"authorId"`
	Text             string    `json:"text"`
	CreatedAt        time.Time `json:"createdAt"`
	AuthoredByViewer bool      `json:"authoredByViewer"`
}

// ProcessedItem is a post with its comments, annotated for the viewer.
type ProcessedItem struct {
	PostSummary
	Comments         []ProcessedComment `json:"comments"`
	CommentCount     int                `json:"commentCount"`
	AuthoredByViewer bool               `json:"authoredByViewer"`
	ReadByViewer     bool               `json:"readByViewer"`
	RepliedByViewer  bool               `json:"repliedByViewer"`
}
