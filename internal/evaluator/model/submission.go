package model

import "time"

// Submission is one proposed contribution, typically an open pull request.
type Submission struct {
	ID        int64     `json:"id"`
	Login     string    `json:"login"`
	SourceURL string    `json:"source_url"`
	Branch    string    `json:"branch"`
	UpdatedAt time.Time `json:"updated_at"`
	Mergeable bool      `json:"mergeable"`

	// Number is the pull request number on the origin; comments are addressed by it.
	Number int `json:"number,omitempty"`

	// Display fields used by the published results summary.
	HTMLURL   string `json:"html_url,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Email     string `json:"email,omitempty"`
}

// UpdatedAtEpoch returns UpdatedAt as UTC epoch seconds, the unit every status
// timestamp is stored in.
func (s Submission) UpdatedAtEpoch() int64 {
	if s.UpdatedAt.IsZero() {
		return 0
	}
	return s.UpdatedAt.UTC().Unix()
}

// Summary is the public description of a submission published with its results.
type Summary struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	SourceURL   string `json:"source_url"`
	PullRequest string `json:"pull_request"`
	Avatar      string `json:"avatar"`
	Email       string `json:"email"`
}

// Summarize builds the results summary for s.
func (s Submission) Summarize() Summary {
	return Summary{
		ID:          s.ID,
		Login:       s.Login,
		SourceURL:   s.SourceURL,
		PullRequest: s.HTMLURL,
		Avatar:      s.AvatarURL,
		Email:       s.Email,
	}
}
