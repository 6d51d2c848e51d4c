package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/webidx/ftindex/internal/bloom"
	"github.com/webidx/ftindex/internal/level"
	"github.com/webidx/ftindex/internal/manager"
	"github.com/webidx/ftindex/pkg/config"
	pkgerrors "github.com/webidx/ftindex/pkg/errors"
	"github.com/webidx/ftindex/pkg/grpc"
	"github.com/webidx/ftindex/pkg/health"
	"github.com/webidx/ftindex/pkg/kafka"
	"github.com/webidx/ftindex/pkg/logger"
	"github.com/webidx/ftindex/pkg/metrics"
	"github.com/webidx/ftindex/pkg/postgres"
	pkgredis "github.com/webidx/ftindex/pkg/redis"
)

// console is the indexer REPL (§6): a thin dispatcher over *manager.Manager
// reading one command per line from stdin until "quit" or EOF.
type console struct {
	mgr    *manager.Manager
	cfg    config.IndexerConfig
	out    *bufio.Writer
	logger *slog.Logger
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer console", "root", cfg.Indexer.Root)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ledger *manager.Ledger
	if pg, err := postgres.New(cfg.Postgres); err != nil {
		slog.Warn("postgres unavailable, ingestion runs will not be recorded", "error", err)
	} else {
		defer pg.Close()
		ledger = manager.NewLedger(pg)
	}

	var redisClient *pkgredis.Client
	if rc, err := pkgredis.NewClient(cfg.Redis); err != nil {
		slog.Warn("redis unavailable, query cache disabled", "error", err)
	} else {
		defer rc.Close()
		redisClient = rc
	}

	events := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ShardMerged)
	defer events.Close()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	checker := health.NewChecker()
	checker.Register("shard_root", func(ctx context.Context) health.ComponentHealth {
		if info, err := os.Stat(cfg.Indexer.Root); err != nil || !info.IsDir() {
			return health.ComponentHealth{Status: health.StatusDown, Message: fmt.Sprintf("root %s unavailable", cfg.Indexer.Root)}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	startHealthServer(cfg.Metrics.Port+1, checker)

	mgr := manager.New(cfg.Indexer, redisClient, cfg.Redis, events, ledger, m)
	defer func() {
		if err := mgr.Close(ctx); err != nil {
			slog.Error("failed to close manager cleanly", "error", err)
		}
	}()

	rpcServer := grpc.NewServer()
	manager.RegisterRPC(rpcServer, mgr)
	go func() {
		if err := rpcServer.Serve(cfg.RPC.Addr); err != nil {
			slog.Warn("rpc server stopped", "addr", cfg.RPC.Addr, "error", err)
		}
	}()
	defer rpcServer.Stop()

	c := &console{mgr: mgr, cfg: cfg.Indexer, out: bufio.NewWriter(os.Stdout), logger: slog.Default().With("component", "console")}
	code := c.run(ctx, os.Stdin)
	os.Exit(code)
}

// startHealthServer exposes the Kubernetes-style liveness/readiness
// endpoints registered on checker, on its own port next to the metrics
// server (§2.2 ambient stack).
func startHealthServer(port int, checker *health.Checker) {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", checker.LiveHandler())
	mux.HandleFunc("/readyz", checker.ReadyHandler())
	addr := fmt.Sprintf(":%d", port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Warn("health server stopped", "addr", addr, "error", err)
		}
	}()
}

// run reads one command per line until "quit" or EOF/ctx cancellation,
// returning the process exit code (§6: "Exit code 0 on quit, nonzero on
// fatal error").
func (c *console) run(ctx context.Context, stdin *os.File) int {
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return 0
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		if cmd == "quit" {
			c.out.Flush()
			return 0
		}

		if err := c.dispatch(ctx, cmd, args); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			c.logger.Error("command failed", "command", cmd, "error", err)
		}
		c.out.Flush()
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "reading stdin: %v\n", err)
		return pkgerrors.ExitCode(pkgerrors.New(pkgerrors.ErrInternal, 1, "stdin read failed"))
	}
	return 0
}

func (c *console) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "index":
		return c.cmdIndex(ctx, args)
	case "index_link":
		return c.cmdIndexLink(ctx, args)
	case "search":
		return c.cmdSearch(ctx, args)
	case "word":
		return c.cmdWord(args)
	case "word_domain":
		return c.cmdWordDomain(args)
	case "word_num":
		return c.cmdWordNum(args)
	case "harmonic":
		return c.cmdHarmonic(args)
	case "bloom":
		return c.cmdBloom(args)
	case "url_data":
		return c.cmdURLData(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *console) cmdIndex(ctx context.Context, args []string) error {
	batch, limit, err := parseBatchArgs(args)
	if err != nil {
		return err
	}
	if err := c.mgr.IndexBatch(ctx, batch, limit); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "indexed %s\n", batch)
	return nil
}

func (c *console) cmdIndexLink(ctx context.Context, args []string) error {
	batch, limit, err := parseBatchArgs(args)
	if err != nil {
		return err
	}
	// No bloom filter is passed, so every link row in the batch is kept.
	if err := c.mgr.IndexLinkBatch(ctx, batch, limit, nil); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "indexed links from %s\n", batch)
	return nil
}

func parseBatchArgs(args []string) (batch string, limit int, err error) {
	if len(args) < 1 {
		return "", 0, fmt.Errorf("usage: <command> <batch> [limit]")
	}
	batch = args[0]
	if len(args) >= 2 {
		limit, err = strconv.Atoi(args[1])
		if err != nil {
			return "", 0, fmt.Errorf("invalid limit %q: %w", args[1], err)
		}
	}
	return batch, limit, nil
}

func (c *console) cmdSearch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: search <terms...>")
	}
	query := strings.Join(args, " ")
	result, err := c.mgr.Find(ctx, query, c.cfg.MaxSections*c.cfg.MaxPerSection)
	if err != nil {
		return err
	}
	if len(result.Results) == 0 {
		fmt.Fprintln(c.out, "no results")
		return nil
	}
	for _, r := range result.Results {
		fmt.Fprintf(c.out, "%d\tscore=%.4f\tlinks=%d\n", r.Value, r.Score, r.NumURLLinks)
	}
	return nil
}

func (c *console) cmdWord(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: word <term>")
	}
	hosts, err := c.mgr.FindHosts(args[0])
	if err != nil {
		return err
	}
	for _, h := range hosts {
		fmt.Fprintf(c.out, "%d\tscore=%.4f\n", h.Value, h.Score)
	}
	return nil
}

func (c *console) cmdWordDomain(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: word_domain <domain> <term>")
	}
	urls, err := c.mgr.FindURL(args[0], args[1])
	if err != nil {
		return err
	}
	for _, u := range urls {
		fmt.Fprintf(c.out, "%d\tscore=%.4f\n", u.Value, u.Score)
	}
	return nil
}

func (c *console) cmdWordNum(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: word_num <term>")
	}
	count, err := c.mgr.FindWordCount(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, count)
	return nil
}

func (c *console) cmdHarmonic(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: harmonic <url>")
	}
	score, err := c.mgr.Harmonic(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%.6f\n", score)
	return nil
}

// cmdBloom answers "bloom <host> <path>": path names a newline-delimited
// list of URLs belonging to host, which is built into a fresh filter sized
// from the configured expected-items/false-positive rate and immediately
// probed with each of its own entries, reporting the entry count and the
// observed false-negative count (always 0 for a correct filter). The filter
// is discarded after the report: "index_link" takes no filter file, so this
// is a stand-alone diagnostic and the only command that exercises
// internal/bloom end to end.
func (c *console) cmdBloom(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: bloom <host> <path>")
	}
	host, path := args[0], args[1]

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	filter := bloom.New(c.cfg.BloomExpectedItems, c.cfg.BloomFalsePositive)
	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		urls = append(urls, line)
		filter.Add(level.URLHash(line))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	missing := 0
	for _, u := range urls {
		if !filter.Contains(level.URLHash(u)) {
			missing++
		}
	}

	fmt.Fprintf(c.out, "host=%s entries=%d false_negatives=%d\n", host, len(urls), missing)
	return nil
}

// cmdURLData answers "url_data <url>" by resolving url's stored metadata
// blob through whatever internal/urlstore.Store the manager was wired with
// (none by default: §1 ships no key/value engine for this contract).
func (c *console) cmdURLData(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: url_data <url>")
	}
	data, found, err := c.mgr.URLData(ctx, args[0])
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(c.out, "not found")
		return nil
	}
	fmt.Fprintf(c.out, "%d bytes\n", len(data))
	return nil
}
