package engage

import (
	"context"
	"strings"
	"time"

	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/logging"
	"github.com/khanasif1/twooter/internal/metrics"
	"github.com/khanasif1/twooter/internal/model"
	"github.com/khanasif1/twooter/internal/posting"
	"github.com/khanasif1/twooter/internal/ratelimit"
	"github.com/khanasif1/twooter/internal/schedule"
	"github.com/khanasif1/twooter/internal/util"
)

// ContentOps is the slice of posting operations the loop drives.
type ContentOps interface {
	Search(ctx context.Context, query string, limit int) ([]model.Post, error)
	Like(ctx context.Context, id int64) (posting.Outcome, error)
	Repost(ctx context.Context, id int64) (posting.Outcome, error)
	CreatePost(ctx context.Context, content string, parentID int64, embed string) (int64, error)
}

// Orchestrator runs the discover -> filter -> act -> sleep loop. A single
// goroutine owns it; stopping happens via context cancellation checked
// between cycles and between actions, never in the middle of a write.
type Orchestrator struct {
	ops      ContentOps
	limiter  *ratelimit.Window
	cfg      config.EngagementConfig
	identity string
	seen     *seenSet

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(ops ContentOps, limiter *ratelimit.Window, cfg config.EngagementConfig, identity string) *Orchestrator {
	n := cfg.SeenCapacity
	if n <= 0 {
		n = 500
	}
	return &Orchestrator{
		ops:      ops,
		limiter:  limiter,
		cfg:      cfg,
		identity: identity,
		seen:     newSeenSet(n),
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run loops until ctx is cancelled. Discovery errors are logged and the
// loop carries on; only cancellation stops it.
func (o *Orchestrator) Run(ctx context.Context) error {
	logging.Info("engage_loop_start", map[string]any{
		"keywords": o.cfg.Keywords, "actions": o.cfg.Actions, "interval": o.cfg.CheckInterval.String(),
	})
	for {
		if err := ctx.Err(); err != nil {
			logging.Info("engage_loop_stop", nil)
			return err
		}
		now := o.now()
		if schedule.IsQuiet(now, o.cfg.QuietHours) {
			next := schedule.NextWindow(now, o.cfg.QuietHours)
			logging.Info("engage_quiet_hours", map[string]any{"until": next.Format(time.RFC3339)})
			if err := o.sleep(ctx, next.Sub(now)); err != nil {
				return err
			}
			continue
		}
		start := time.Now()
		if err := o.RunOnce(ctx); err != nil {
			metrics.EngageCycleErrors.Inc()
			logging.Error("engage_cycle_error", map[string]any{"error": err.Error()})
		}
		metrics.EngageCycles.Inc()
		metrics.ObserveCycleDuration(start)
		if err := o.sleep(ctx, o.cfg.CheckInterval); err != nil {
			logging.Info("engage_loop_stop", nil)
			return err
		}
	}
}

// RunOnce performs one discover/filter/act cycle.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	candidates, err := o.discover(ctx)
	if err != nil {
		return err
	}
	for _, p := range candidates {
		if ctx.Err() != nil {
			// Stop between candidates; never mid-write.
			return nil
		}
		o.act(ctx, p)
	}
	return nil
}

func (o *Orchestrator) discover(ctx context.Context) ([]model.Post, error) {
	max := o.cfg.MaxCandidates
	if max <= 0 {
		max = 10
	}
	var out []model.Post
	ids := make(map[int64]bool)
	var lastErr error
	for _, kw := range o.cfg.Keywords {
		if len(out) >= max {
			break
		}
		posts, err := o.ops.Search(ctx, kw, max-len(out))
		if err != nil {
			lastErr = err
			logging.Warn("engage_search_failed", map[string]any{"keyword": kw, "error": err.Error()})
			continue
		}
		for _, p := range posts {
			if len(out) >= max {
				break
			}
			if ids[p.ID] || !o.retain(p) {
				continue
			}
			ids[p.ID] = true
			out = append(out, p)
		}
	}
	if out == nil && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// retain applies the filtering stage: keyword relevance, not our own post,
// not already engaged.
func (o *Orchestrator) retain(p model.Post) bool {
	if o.seen.Has(p.ID) {
		return false
	}
	if o.identity != "" && strings.EqualFold(p.Author, o.identity) {
		return false
	}
	return util.ContainsAnyCaseInsensitive(p.Content, o.cfg.Keywords)
}

func (o *Orchestrator) act(ctx context.Context, p model.Post) {
	// Writes run on a non-cancellable context so a stop signal lets the
	// in-flight action finish instead of leaving it half applied.
	actCtx := context.WithoutCancel(ctx)
	engaged := false
	for _, kind := range o.cfg.Actions {
		if ctx.Err() != nil {
			break
		}
		if !o.limiter.Admit(kind) {
			metrics.IncAction(kind, "denied")
			logging.Info("engage_rate_denied", map[string]any{"kind": kind, "post": p.ID})
			continue
		}
		outcome, err := o.perform(actCtx, kind, p)
		if err != nil {
			metrics.IncAction(kind, "failed")
			logging.Warn("engage_action_failed", map[string]any{"kind": kind, "post": p.ID, "error": err.Error()})
			continue
		}
		metrics.IncAction(kind, outcome.String())
		logging.Info("engage_action", map[string]any{"kind": kind, "post": p.ID, "outcome": outcome.String()})
		engaged = true
	}
	if engaged {
		o.seen.Add(p.ID)
	}
}

func (o *Orchestrator) perform(ctx context.Context, kind string, p model.Post) (posting.Outcome, error) {
	switch kind {
	case "like":
		return o.ops.Like(ctx, p.ID)
	case "repost":
		return o.ops.Repost(ctx, p.ID)
	case "reply":
		text := o.replyText(p)
		if _, err := o.ops.CreatePost(ctx, text, p.ID, ""); err != nil {
			return posting.Failed, err
		}
		return posting.Applied, nil
	default:
		return posting.Failed, nil
	}
}

func (o *Orchestrator) replyText(p model.Post) string {
	text := o.cfg.ReplyText
	if text == "" {
		text = "Interesting take!"
	}
	if kw := util.MatchingKeyword(p.Content, o.cfg.Keywords); kw != "" {
		text = strings.ReplaceAll(text, "{keyword}", kw)
	}
	return text
}

// seenSet remembers the last cap post ids so the loop does not engage the
// same post twice, without growing unbounded.
type seenSet struct {
	cap   int
	order []int64
	ids   map[int64]bool
}

func newSeenSet(cap int) *seenSet {
	return &seenSet{cap: cap, ids: make(map[int64]bool)}
}

func (s *seenSet) Has(id int64) bool { return s.ids[id] }

func (s *seenSet) Add(id int64) {
	if s.ids[id] {
		return
	}
	s.ids[id] = true
	s.order = append(s.order, id)
	if len(s.order) > s.cap {
		old := s.order[0]
		s.order = s.order[1:]
		delete(s.ids, old)
	}
}
