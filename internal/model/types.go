package model

import "time"

// Post represents a subset of twoot fields used by the bot.
type Post struct {
	ID          int64
	AuthorID    string
	Author      string
	Content     string
	ParentID    int64 // 0 when not a reply
	CreatedAt   time.Time
	LikeCount   int
	RepostCount int
	ReplyCount  int
}

// TokenKind distinguishes bearer tokens from cookie-backed sessions.
type TokenKind string

const (
	TokenBearer  TokenKind = "bearer"
	TokenSession TokenKind = "session"
)

// Token is a cached platform credential for one identity.
type Token struct {
	Identity  string
	Value     string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time // zero when the platform declared no expiry
	LastUsed  time.Time
}

// Expired reports whether the token carries an expiry in the past.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !t.ExpiresAt.After(now)
}

// EngagementEvent captures an action the bot performed.
type EngagementEvent struct {
	Timestamp time.Time
	Type      string // like, repost, reply
	PostID    int64
}
