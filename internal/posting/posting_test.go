package posting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/khanasif1/twooter/internal/apiclient"
	"github.com/khanasif1/twooter/internal/auth"
	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/model"
	"github.com/khanasif1/twooter/internal/tokenstore"
)

func testBot() config.BotConfig {
	return config.BotConfig{Username: "teambot", Password: "pw", Email: "bot@example.com", DisplayName: "Team Bot"}
}

// newTestService wires a service against ts with a fresh token store and an
// authenticated manager.
func newTestService(t *testing.T, ts *httptest.Server, team config.TeamConfig, retryAttempts int) *Service {
	t.Helper()
	store, err := tokenstore.Open(filepath.Join(t.TempDir(), "tokens.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	client := apiclient.New(ts.URL, 5*time.Second, retryAttempts, 10*time.Millisecond, 1000, 1000)
	mgr := auth.NewManager(client, store, testBot(), team)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := NewService(client, mgr)
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return s
}

func loginOK(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			_ = json.NewEncoder(w).Encode(map[string]any{"token": token})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestEndToEndInviteRegistrationThenPost(t *testing.T) {
	// Direct login fails, invite registration succeeds, and the resulting
	// token authenticates the post that follows.
	var postAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["invite_code"] != "ABC123" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok_1"})
	})
	mux.HandleFunc("/twoots/", func(w http.ResponseWriter, r *http.Request) {
		postAuth = r.Header.Get("Authorization")
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["content"] != "hello" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 42}})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s := newTestService(t, ts, config.TeamConfig{InviteCode: "ABC123"}, 2)
	id, err := s.CreatePost(context.Background(), "hello", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
	if postAuth != "Bearer tok_1" {
		t.Fatalf("auth header = %q, want Bearer tok_1", postAuth)
	}
}

func TestSessionLoginAuthenticatesViaCookie(t *testing.T) {
	// A login response with no token field means cookie-based auth: the
	// session cookie rides the client's jar and no bearer header is sent.
	var gotAuth string
	var gotCookie string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s3ss", Path: "/"})
		_, _ = w.Write([]byte("{}"))
	})
	mux.HandleFunc("/twoots/", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 7}})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s := newTestService(t, ts, config.TeamConfig{}, 0)
	id, err := s.CreatePost(context.Background(), "hello", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if id != 7 {
		t.Fatalf("id = %d", id)
	}
	if gotAuth != "" {
		t.Fatalf("auth header = %q, session auth must not send a bearer", gotAuth)
	}
	if gotCookie != "s3ss" {
		t.Fatalf("session cookie = %q, want s3ss", gotCookie)
	}
}

func TestCreatePostValidatesLengthLocally(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok"})
			return
		}
		calls++
	}))
	defer ts.Close()

	s := newTestService(t, ts, config.TeamConfig{}, 0)
	_, err := s.CreatePost(context.Background(), strings.Repeat("x", MaxContentLen+1), 0, "")
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if calls != 0 {
		t.Fatal("over-long content must not reach the network")
	}
}

func TestLikeTwiceIsIdempotent(t *testing.T) {
	likes := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginOK("tok"))
	mux.HandleFunc("/twoots/7/like", func(w http.ResponseWriter, r *http.Request) {
		likes++
		if likes > 1 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 7}})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s := newTestService(t, ts, config.TeamConfig{}, 0)
	ctx := context.Background()
	out, err := s.Like(ctx, 7)
	if err != nil || out != Applied {
		t.Fatalf("first like: %v %v", out, err)
	}
	out, err = s.Like(ctx, 7)
	if err != nil || out != AlreadyDone {
		t.Fatalf("second like should be already_done, got %v %v", out, err)
	}
}

func TestCreateThreadStopsAtFirstFailure(t *testing.T) {
	var created []string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginOK("tok"))
	nextID := int64(100)
	mux.HandleFunc("/twoots/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		content, _ := body["content"].(string)
		if content == "second" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		created = append(created, content)
		nextID++
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": nextID}})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s := newTestService(t, ts, config.TeamConfig{}, 0)
	res := s.CreateThread(context.Background(), []string{"first", "second", "third"}, time.Millisecond)
	if len(res.IDs) != 1 {
		t.Fatalf("created prefix = %v, want one post", res.IDs)
	}
	if res.FailedIndex != 1 {
		t.Fatalf("failed index = %d, want 1", res.FailedIndex)
	}
	if res.Err == nil {
		t.Fatal("expected the failure to be reported")
	}
	for _, c := range created {
		if c == "third" {
			t.Fatal("third post must not be attempted after the second fails")
		}
	}
}

func TestThreadRepliesChainToPreviousPost(t *testing.T) {
	var parents []any
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginOK("tok"))
	nextID := int64(10)
	mux.HandleFunc("/twoots/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		parents = append(parents, body["parent_id"])
		nextID++
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": nextID}})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s := newTestService(t, ts, config.TeamConfig{}, 0)
	res := s.CreateThread(context.Background(), []string{"a", "b", "c"}, 0)
	if res.FailedIndex != -1 || len(res.IDs) != 3 {
		t.Fatalf("thread result: %+v", res)
	}
	if parents[0] != nil {
		t.Fatalf("first post parent = %v, want null", parents[0])
	}
	// JSON numbers decode as float64.
	if parents[1] != float64(11) || parents[2] != float64(12) {
		t.Fatalf("parents = %v, want chain 11, 12", parents)
	}
}

func TestAuthErrorTriggersSingleReauthAndReplay(t *testing.T) {
	logins := 0
	likes := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		logins++
		_ = json.NewEncoder(w).Encode(map[string]any{"token": fmt.Sprintf("tok_%d", logins)})
	})
	mux.HandleFunc("/twoots/9/like", func(w http.ResponseWriter, r *http.Request) {
		likes++
		if r.Header.Get("Authorization") != "Bearer tok_2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 9}})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s := newTestService(t, ts, config.TeamConfig{}, 0)
	out, err := s.Like(context.Background(), 9)
	if err != nil || out != Applied {
		t.Fatalf("like after reauth: %v %v", out, err)
	}
	if logins != 2 {
		t.Fatalf("logins = %d, want initial + one refresh", logins)
	}
	if likes != 2 {
		t.Fatalf("likes = %d, want original + exactly one replay", likes)
	}
}

func TestBulkLikeAggregatesPerIDOutcomes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginOK("tok"))
	mux.HandleFunc("/twoots/1/like", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 1}})
	})
	mux.HandleFunc("/twoots/2/like", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	mux.HandleFunc("/twoots/3/like", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s := newTestService(t, ts, config.TeamConfig{}, 0)
	out := s.BulkLike(context.Background(), []int64{1, 2, 3}, time.Millisecond)
	if len(out) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(out))
	}
	if out[0].Outcome != Applied || out[0].Err != nil {
		t.Fatalf("id 1: %+v", out[0])
	}
	if out[1].Outcome != AlreadyDone || out[1].Err != nil {
		t.Fatalf("id 2: %+v", out[1])
	}
	if out[2].Outcome != Failed || out[2].Err == nil {
		t.Fatalf("id 3: %+v", out[2])
	}
}

func TestSearchParsesPosts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", loginOK("tok"))
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "ctf" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"id": 5, "content": "ctf writeup", "author": map[string]any{"id": "u1", "username": "alice"}, "like_count": 3},
		}})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s := newTestService(t, ts, config.TeamConfig{}, 0)
	posts, err := s.Search(context.Background(), "ctf", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0].ID != 5 || posts[0].Author != "alice" || posts[0].LikeCount != 3 {
		t.Fatalf("posts = %+v", posts)
	}
}
