package notify

import (
	"context"

	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
)

// CommentPoster posts a comment on a pull request.
type CommentPoster interface {
	CreateComment(ctx context.Context, number int, body string) error
}

// GitHubNotifier comments on the submission's pull request.
type GitHubNotifier struct {
	client CommentPoster
}

func NewGitHubNotifier(client CommentPoster) *GitHubNotifier {
	return &GitHubNotifier{client: client}
}

func (n *GitHubNotifier) Post(ctx context.Context, sub model.Submission, message string) error {
	if sub.Number <= 0 {
		return appErr.Newf(appErr.NotificationFailed, "submission %d has no pull request number", sub.ID)
	}
	return n.client.CreateComment(ctx, sub.Number, message)
}
