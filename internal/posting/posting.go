package posting

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/khanasif1/twooter/internal/apiclient"
	"github.com/khanasif1/twooter/internal/auth"
	"github.com/khanasif1/twooter/internal/logging"
	"github.com/khanasif1/twooter/internal/model"
)

// MaxContentLen is the platform's published maximum post length.
const MaxContentLen = 500

// Outcome tags the result of an idempotent engagement call.
type Outcome int

const (
	Applied Outcome = iota
	AlreadyDone
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case AlreadyDone:
		return "already_done"
	default:
		return "failed"
	}
}

// Service wraps the platform's content endpoints. Authenticated calls get
// exactly one re-authentication and replay on a 401/403.
type Service struct {
	client *apiclient.Client
	auth   *auth.Manager
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewService(client *apiclient.Client, mgr *auth.Manager) *Service {
	return &Service{client: client, auth: mgr, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// authedDo issues an authenticated call, refreshing the token once if the
// platform rejects it.
func (s *Service) authedDo(ctx context.Context, method, path string, body any) (*apiclient.Result, error) {
	// The raw token value keys the refresh dedupe; the bearer header is
	// empty for cookie sessions.
	stale := s.auth.Token()
	res, err := s.client.Do(ctx, method, path, body, s.auth.Bearer())
	if err != nil {
		return nil, err
	}
	if res.Class != apiclient.ClassAuthError {
		return res, nil
	}
	logging.Info("token_rejected_reauth", map[string]any{"path": path, "status": res.Status})
	if err := s.auth.Reauthenticate(ctx, stale); err != nil {
		return nil, err
	}
	return s.client.Do(ctx, method, path, body, s.auth.Bearer())
}

type wirePost struct {
	ID       int64  `json:"id"`
	Content  string `json:"content"`
	ParentID *int64 `json:"parent_id"`
	Author   struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"author"`
	CreatedAt   time.Time `json:"created_at"`
	LikeCount   int       `json:"like_count"`
	RepostCount int       `json:"repost_count"`
	ReplyCount  int       `json:"reply_count"`
}

func (w wirePost) toModel() model.Post {
	p := model.Post{
		ID:          w.ID,
		AuthorID:    w.Author.ID,
		Author:      w.Author.Username,
		Content:     w.Content,
		CreatedAt:   w.CreatedAt,
		LikeCount:   w.LikeCount,
		RepostCount: w.RepostCount,
		ReplyCount:  w.ReplyCount,
	}
	if w.ParentID != nil {
		p.ParentID = *w.ParentID
	}
	return p
}

// CreatePost creates a new twoot, or a reply when parentID is non-zero.
// Content length is validated locally before any network call.
func (s *Service) CreatePost(ctx context.Context, content string, parentID int64, embed string) (int64, error) {
	if content == "" {
		return 0, fmt.Errorf("%w: empty content", model.ErrValidation)
	}
	if len([]rune(content)) > MaxContentLen {
		return 0, fmt.Errorf("%w: content length %d exceeds %d", model.ErrValidation, len([]rune(content)), MaxContentLen)
	}
	// parent_id is always present in the payload; the API requires the
	// field even when null.
	var parent any
	if parentID != 0 {
		parent = parentID
	}
	body := map[string]any{"content": content, "parent_id": parent}
	if embed != "" {
		body["embed"] = embed
	}
	res, err := s.authedDo(ctx, http.MethodPost, "/twoots/", body)
	if err != nil {
		return 0, err
	}
	if res.Class != apiclient.ClassOK {
		return 0, res.Err()
	}
	var out struct {
		Data wirePost `json:"data"`
	}
	if err := res.Decode(&out); err != nil {
		return 0, err
	}
	logging.Info("post_created", map[string]any{"id": out.Data.ID, "parent_id": parentID})
	return out.Data.ID, nil
}

// ThreadResult reports how far a thread got. IDs holds the created prefix;
// FailedIndex is -1 when every post succeeded.
type ThreadResult struct {
	IDs         []int64
	FailedIndex int
	Err         error
}

// CreateThread posts contents in order, each one replying to the previous,
// waiting delay between calls. On failure the created prefix is reported
// and later items are not attempted; there is no remote rollback.
func (s *Service) CreateThread(ctx context.Context, contents []string, delay time.Duration) ThreadResult {
	out := ThreadResult{FailedIndex: -1}
	var parent int64
	for i, c := range contents {
		if i > 0 && delay > 0 {
			if err := s.sleep(ctx, delay); err != nil {
				out.FailedIndex, out.Err = i, err
				return out
			}
		}
		id, err := s.CreatePost(ctx, c, parent, "")
		if err != nil {
			out.FailedIndex, out.Err = i, err
			return out
		}
		out.IDs = append(out.IDs, id)
		parent = id
	}
	return out
}

// Like likes a post. A conflict means it was already liked, which counts
// as success.
func (s *Service) Like(ctx context.Context, id int64) (Outcome, error) {
	return s.toggle(ctx, http.MethodPost, fmt.Sprintf("/twoots/%d/like", id))
}

// Unlike removes a like; "not liked" conflicts count as success.
func (s *Service) Unlike(ctx context.Context, id int64) (Outcome, error) {
	return s.toggle(ctx, http.MethodDelete, fmt.Sprintf("/twoots/%d/like", id))
}

// Repost reposts a post with the same idempotence contract as Like.
func (s *Service) Repost(ctx context.Context, id int64) (Outcome, error) {
	return s.toggle(ctx, http.MethodPost, fmt.Sprintf("/twoots/%d/repost", id))
}

// Unrepost removes a repost.
func (s *Service) Unrepost(ctx context.Context, id int64) (Outcome, error) {
	return s.toggle(ctx, http.MethodDelete, fmt.Sprintf("/twoots/%d/repost", id))
}

func (s *Service) toggle(ctx context.Context, method, path string) (Outcome, error) {
	var body any
	if method == http.MethodPost {
		body = map[string]any{}
	}
	res, err := s.authedDo(ctx, method, path, body)
	if err != nil {
		return Failed, err
	}
	switch {
	case res.Class == apiclient.ClassOK:
		return Applied, nil
	case res.Status == http.StatusConflict:
		// Desired end state already holds.
		return AlreadyDone, nil
	default:
		return Failed, res.Err()
	}
}

// Get fetches a single post.
func (s *Service) Get(ctx context.Context, id int64) (model.Post, error) {
	res, err := s.client.Do(ctx, http.MethodGet, fmt.Sprintf("/twoots/%d/", id), nil, s.auth.Bearer())
	if err != nil {
		return model.Post{}, err
	}
	if res.Class != apiclient.ClassOK {
		return model.Post{}, res.Err()
	}
	var out struct {
		Data wirePost `json:"data"`
	}
	if err := res.Decode(&out); err != nil {
		return model.Post{}, err
	}
	return out.Data.toModel(), nil
}

// Replies fetches the replies to a post.
func (s *Service) Replies(ctx context.Context, id int64) ([]model.Post, error) {
	return s.list(ctx, fmt.Sprintf("/twoots/%d/replies", id))
}

// Search returns posts matching the query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]model.Post, error) {
	path := "/search?q=" + url.QueryEscape(query)
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}
	return s.list(ctx, path)
}

// UserPosts returns a user's recent posts.
func (s *Service) UserPosts(ctx context.Context, username string) ([]model.Post, error) {
	return s.list(ctx, fmt.Sprintf("/users/%s/twoots", url.PathEscape(username)))
}

func (s *Service) list(ctx context.Context, path string) ([]model.Post, error) {
	res, err := s.client.Do(ctx, http.MethodGet, path, nil, s.auth.Bearer())
	if err != nil {
		return nil, err
	}
	if res.Class != apiclient.ClassOK {
		return nil, res.Err()
	}
	var out struct {
		Data []wirePost `json:"data"`
	}
	if err := res.Decode(&out); err != nil {
		return nil, err
	}
	posts := make([]model.Post, 0, len(out.Data))
	for _, w := range out.Data {
		posts = append(posts, w.toModel())
	}
	return posts, nil
}

// BulkOutcome is one entry of a BulkLike report.
type BulkOutcome struct {
	ID      int64
	Outcome Outcome
	Err     error
}

// BulkLike likes each id sequentially with delay between calls, reporting
// per-id outcomes instead of failing the batch on the first error.
func (s *Service) BulkLike(ctx context.Context, ids []int64, delay time.Duration) []BulkOutcome {
	out := make([]BulkOutcome, 0, len(ids))
	for i, id := range ids {
		if i > 0 && delay > 0 {
			if err := s.sleep(ctx, delay); err != nil {
				out = append(out, BulkOutcome{ID: id, Outcome: Failed, Err: err})
				return out
			}
		}
		o, err := s.Like(ctx, id)
		out = append(out, BulkOutcome{ID: id, Outcome: o, Err: err})
	}
	return out
}
