package feedback

// CommentMatch selects comments on a post. An empty AuthorID matches any author.
type CommentMatch struct {
	AuthorID string
}

// Predicate is the store-neutral form of a list filter. Zero value matches every post.
type Predicate struct {
	Published    *bool
	NotReadBy    string
	HasComment   *CommentMatch
	LacksComment *CommentMatch
}

// PredicateFor translates a filter into a predicate relative to viewerID.
func PredicateFor(filter Filter, viewerID string) Predicate {
	switch filter {
	case FilterDraft:
		published := false
		return Predicate{Published: &published}
	case FilterUnread:
		return Predicate{NotReadBy: viewerID}
	case FilterReplied:
		return Predicate{HasComment: &CommentMatch{}}
	case FilterRepliedByMe:
		return Predicate{HasComment: &CommentMatch{AuthorID: viewerID}}
	case FilterUnreplied:
		return Predicate{LacksComment: &CommentMatch{}}
	case FilterUnrepliedByMe:
		return Predicate{LacksComment: &CommentMatch{AuthorID: viewerID}}
	default:
		return Predicate{}
	}
}
