package feedback

// Summarize projects a post onto the fields returned by post.add.
func Summarize(post Post) PostSummary {
	return PostSummary{
		ID:        post.ID,
		AuthorID:  post.AuthorID,
		Title:     post.Title,
		Text:      post.Text,
		Published: post.Published,
		Hidden:    post.Hidden,
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
	}
}

// ProcessPost annotates a loaded post for viewerID. post.ReadReceipts is expected to hold
// at most the viewer's own receipt; receipts by other users are ignored.
func ProcessPost(post Post, viewerID string) ProcessedItem {
	comments := make([]ProcessedComment, 0, len(post.Comments))
	repliedByViewer := false
	for _, comment := range post.Comments {
		authored := viewerID != "" && comment.AuthorID == viewerID
		if authored {
			repliedByViewer = true
		}
		comments = append(comments, ProcessedComment{
			ID:               comment.ID,
			AuthorID:         comment.AuthorID,
			Text:             comment.Text,
			CreatedAt:        comment.CreatedAt,
			AuthoredByViewer: authored,
		})
	}

	readByViewer := false
	for _, receipt := range post.ReadReceipts {
		if receipt.UserID == viewerID {
			readByViewer = true
			break
		}
	}

	return ProcessedItem{
		PostSummary:      Summarize(post),
		Comments:         comments,
		CommentCount:     len(comments),
		AuthoredByViewer: viewerID != "" && post.AuthorID == viewerID,
		ReadByViewer:     readByViewer,
		RepliedByViewer:  repliedByViewer,
	}
}
