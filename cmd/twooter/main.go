package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/khanasif1/twooter/internal/apiclient"
	"github.com/khanasif1/twooter/internal/auth"
	"github.com/khanasif1/twooter/internal/cmdlog"
	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/engage"
	"github.com/khanasif1/twooter/internal/metrics"
	"github.com/khanasif1/twooter/internal/posting"
	"github.com/khanasif1/twooter/internal/ratelimit"
	"github.com/khanasif1/twooter/internal/theme"
	"github.com/khanasif1/twooter/internal/tokenstore"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "login":
		cmdLogin()
	case "logout":
		cmdLogout()
	case "whoami":
		cmdWhoami()
	case "post":
		cmdPost()
	case "reply":
		cmdReply()
	case "thread":
		cmdThread()
	case "like", "unlike", "repost", "unrepost":
		cmdToggle(cmd)
	case "get":
		cmdGet()
	case "replies":
		cmdReplies()
	case "search":
		cmdSearch()
	case "engage":
		cmdEngage()
	case "sweep":
		cmdSweep()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: twooter <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./twooter.yaml")
	fmt.Println("  login       Authenticate and cache the session token")
	fmt.Println("  logout      Clear the cached token (best-effort server revoke)")
	fmt.Println("  whoami      Show the authenticated identity")
	fmt.Println("  post        Create a post")
	fmt.Println("  reply       Reply to a post")
	fmt.Println("  thread      Create a thread of connected posts")
	fmt.Println("  like        Like a post (unlike/repost/unrepost likewise)")
	fmt.Println("  get         Fetch a post")
	fmt.Println("  replies     Fetch replies to a post")
	fmt.Println("  search      Search posts")
	fmt.Println("  engage      Run the auto-engagement loop")
	fmt.Println("  sweep       Remove expired cached tokens")
}

type bot struct {
	cfg   config.Config
	store *tokenstore.Store
	mgr   *auth.Manager
	posts *posting.Service
}

func newBot(cfgPath string) (*bot, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := tokenstore.Open(cfg.Storage.TokensDB)
	if err != nil {
		return nil, err
	}
	client := apiclient.New(cfg.API.BaseURL, cfg.API.Timeout, cfg.API.RetryAttempts, cfg.API.RetryDelay, cfg.API.RPS, cfg.API.Burst)
	mgr := auth.NewManager(client, store, cfg.Bot, cfg.Team)
	return &bot{cfg: cfg, store: store, mgr: mgr, posts: posting.NewService(client, mgr)}, nil
}

func (b *bot) close() { _ = b.store.Close() }

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func startedBot(ctx context.Context, cfgPath string) *bot {
	b, err := newBot(cfgPath)
	if err != nil {
		fail(err)
	}
	if err := b.mgr.Start(ctx); err != nil {
		b.close()
		fail(err)
	}
	return b
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./twooter.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		fail(err)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdLogin() {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	cfgPath := fs.String("config", "./twooter.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	_ = cmdlog.Run("login", func() error {
		b, err := newBot(*cfgPath)
		if err != nil {
			return err
		}
		defer b.close()
		if err := b.mgr.Start(context.Background()); err != nil {
			return err
		}
		fmt.Println("Logged in as:", b.mgr.Identity())
		return nil
	})
}

func cmdLogout() {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	cfgPath := fs.String("config", "./twooter.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	_ = cmdlog.Run("logout", func() error {
		b, err := newBot(*cfgPath)
		if err != nil {
			return err
		}
		defer b.close()
		ctx := context.Background()
		_ = b.mgr.Start(ctx)
		if err := b.mgr.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	})
}

func cmdWhoami() {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	cfgPath := fs.String("config", "./twooter.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	_ = cmdlog.Run("whoami", func() error {
		ctx := context.Background()
		b := startedBot(ctx, *cfgPath)
		defer b.close()
		who, err := b.mgr.WhoAmI(ctx)
		if err != nil {
			return err
		}
		fmt.Println(who)
		return nil
	})
}

func cmdPost() {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	cfgPath := fs.String("config", "./twooter.yaml", "config path")
	embed := fs.String("embed", "", "URL to embed")
	_ = fs.Parse(os.Args[2:])
	content := strings.Join(fs.Args(), " ")
	_ = cmdlog.Run("post", func() error {
		ctx := context.Background()
		b := startedBot(ctx, *cfgPath)
		defer b.close()
		id, err := b.posts.CreatePost(ctx, content, 0, *embed)
		if err != nil {
			return err
		}
		fmt.Println("Created post:", id)
		return nil
	})
}

func cmdReply() {
	fs := flag.NewFlagSet("reply", flag.ExitOnError)
	cfgPath := fs.String("config", "./twooter.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 2 {
		fail(fmt.Errorf("usage: twooter reply <post-id> <content>"))
	}
	parent := mustID(fs.Arg(0))
	content := strings.Join(fs.Args()[1:], " ")
	_ = cmdlog.Run("reply", func() error {
		ctx := context.Background()
		b := startedBot(ctx, *cfgPath)
		defer b.close()
		id, err := b.posts.CreatePost(ctx, content, parent, "")
		if err != nil {
			return err
		}
		fmt.Println("Created reply:", id)
		return nil
	})
}

func cmdThread() {
	fs := flag.NewFlagSet("thread", flag.ExitOnError)
	cfgPath := fs.String("config", "./twooter.yaml", "config path")
	delay := fs.Duration("delay", time.Second, "delay between posts")
	_ = fs.Parse(os.Args[2:])
	contents := fs.Args()
	if len(contents) == 0 {
		fail(fmt.Errorf("usage: twooter thread <post> [post...]"))
	}
	_ = cmdlog.Run("thread", func() error {
		ctx := context.Background()
		b := startedBot(ctx, *cfgPath)
		defer b.close()
		res := b.posts.CreateThread(ctx, contents, *delay)
		for _, id := range res.IDs {
			fmt.Println("Created post:", id)
		}
		if res.FailedIndex >= 0 {
			return fmt.Errorf("thread stopped at item %d: %w", res.FailedIndex, res.Err)
		}
		return nil
	})
}

func cmdToggle(kind string) {
	fs := flag.NewFlagSet(kind, flag.ExitOnError)
	cfgPath := fs.String("config", "./twooter.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fail(fmt.Errorf("usage: twooter %s <post-id>", kind))
	}
	id := mustID(fs.Arg(0))
	_ = cmdlog.Run(kind, func() error {
		ctx := context.Background()
		b := startedBot(ctx, *cfgPath)
		defer b.close()
		var out posting.Outcome
		var err error
		switch kind {
		case "like":
			out, err = b.posts.Like(ctx, id)
		case "unlike":
			out, err = b.posts.Unlike(ctx, id)
		case "repost":
			out, err = b.posts.Repost(ctx, id)
		case "unrepost":
			out, err = b.posts.Unrepost(ctx, id)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %d: %s\n", kind, id, out)
		return nil
	})
}

func cmdGet() {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	cfgPath := fs.String("config", "./twooter.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fail(fmt.Errorf("usage: twooter get <post-id>"))
	}
	id := mustID(fs.Arg(0))
	_ = cmdlog.Run("get", func() error {
		ctx := context.Background()
		b := startedBot(ctx, *cfgPath)
		defer b.close()
		p, err := b.posts.Get(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("#%d @%s: %s (likes=%d reposts=%d replies=%d)\n",
			p.ID, p.Author, p.Content, p.LikeCount, p.RepostCount, p.ReplyCount)
		return nil
	})
}

func cmdReplies() {
	fs := flag.NewFlagSet("replies", flag.ExitOnError)
	cfgPath := fs.String("config", "./twooter.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fail(fmt.Errorf("usage: twooter replies <post-id>"))
	}
	id := mustID(fs.Arg(0))
	_ = cmdlog.Run("replies", func() error {
		ctx := context.Background()
		b := startedBot(ctx, *cfgPath)
		defer b.close()
		posts, err := b.posts.Replies(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range posts {
			fmt.Printf("#%d @%s: %s\n", p.ID, p.Author, p.Content)
		}
		return nil
	})
}

func cmdSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	cfgPath := fs.String("config", "./twooter.yaml", "config path")
	limit := fs.Int("limit", 20, "max results")
	_ = fs.Parse(os.Args[2:])
	query := strings.Join(fs.Args(), " ")
	_ = cmdlog.Run("search", func() error {
		ctx := context.Background()
		b := startedBot(ctx, *cfgPath)
		defer b.close()
		posts, err := b.posts.Search(ctx, query, *limit)
		if err != nil {
			return err
		}
		for _, p := range posts {
			fmt.Printf("#%d @%s: %s\n", p.ID, p.Author, p.Content)
		}
		return nil
	})
}

func cmdEngage() {
	fs := flag.NewFlagSet("engage", flag.ExitOnError)
	cfgPath := fs.String("config", "./twooter.yaml", "config path")
	keywords := fs.String("keywords", "", "comma-separated keyword override")
	_ = fs.Parse(os.Args[2:])
	_ = cmdlog.Run("engage", func() error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		b := startedBot(ctx, *cfgPath)
		defer b.close()
		metrics.StartServer(b.cfg.Metrics.Addr)
		ecfg := b.cfg.Engagement
		if *keywords != "" {
			ecfg.Keywords = splitCSV(*keywords)
		}
		limiter := ratelimit.New(time.Hour, ecfg.MaxPerHour, ecfg.PerAction)
		orch := engage.NewOrchestrator(b.posts, limiter, ecfg, b.mgr.Identity())
		err := orch.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

func cmdSweep() {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	cfgPath := fs.String("config", "./twooter.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	_ = cmdlog.Run("sweep", func() error {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			return err
		}
		store, err := tokenstore.Open(cfg.Storage.TokensDB)
		if err != nil {
			return err
		}
		defer store.Close()
		n, err := store.SweepExpired(context.Background(), time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Println("Removed expired tokens:", n)
		return nil
	})
}

func mustID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fail(fmt.Errorf("invalid post id %q", s))
	}
	return id
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
