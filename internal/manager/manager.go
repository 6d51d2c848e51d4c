// Package manager implements the index manager (§4.F): it owns the levels
// and the sharded builders backing each, coordinates threaded ingestion,
// and answers find() queries by intersecting postings across query terms
// and folding in link-derived score boosts.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/webidx/ftindex/internal/bloom"
	"github.com/webidx/ftindex/internal/level"
	"github.com/webidx/ftindex/internal/mergesched"
	"github.com/webidx/ftindex/internal/posting"
	"github.com/webidx/ftindex/internal/shard"
	"github.com/webidx/ftindex/internal/urlstore"
	"github.com/webidx/ftindex/pkg/config"
	"github.com/webidx/ftindex/pkg/kafka"
	"github.com/webidx/ftindex/pkg/metrics"
	pkgredis "github.com/webidx/ftindex/pkg/redis"
	"github.com/webidx/ftindex/pkg/resilience"
	"github.com/webidx/ftindex/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// FindResult is the ranked outcome of a search query.
type FindResult struct {
	Query   string               `json:"query"`
	Results []level.ReturnRecord `json:"results"`
}

// Manager owns every level and coordinates ingestion, merge, and query
// against them (§4.F). The manager borrows levels only through the Level
// interface for lifecycle fan-out (§9); it reaches into the concrete
// DomainLevel/URLLevel/WordLevel/LinkLevel types directly for the
// per-level find methods the CLI's word/word_domain/word_num/search
// commands each need.
type Manager struct {
	cfg    config.IndexerConfig
	logger *slog.Logger

	domain *level.DomainLevel
	url    *level.URLLevel
	word   *level.WordLevel
	link   *level.LinkLevel

	docSizeMu sync.RWMutex
	docSizes  map[uint64]uint32

	scheduler *mergesched.Scheduler
	cache     *queryCache
	ledger    *Ledger
	events    *kafka.Producer
	metrics   *metrics.Metrics
	store     urlstore.Store
}

// New constructs a manager over four levels sharing cfg.Root/cfg.NumShards.
// redisClient/events/ledger/m may each be nil, in which case the
// corresponding ambient feature (cache, event publish, ledger, metrics) is
// silently skipped.
func New(cfg config.IndexerConfig, redisClient *pkgredis.Client, redisCfg config.RedisConfig, events *kafka.Producer, ledger *Ledger, m *metrics.Metrics) *Manager {
	mgr := &Manager{
		cfg:       cfg,
		logger:    slog.Default().With("component", "manager"),
		docSizes:  map[uint64]uint32{},
		scheduler: mergesched.New(),
		cache:     newQueryCache(redisClient, redisCfg, m),
		ledger:    ledger,
		events:    events,
		metrics:   m,
	}
	mgr.domain = level.NewDomainLevel(cfg.Root, "domain", cfg.NumShards, cfg.HashTableSize, cfg.MaxPerSection, cfg.MaxSections, nil)
	mgr.url = level.NewURLLevel(cfg.Root, cfg.MaxPerSection, cfg.MaxSections)
	mgr.word = level.NewWordLevel(cfg.Root, "word", cfg.NumShards, cfg.HashTableSize, cfg.MaxPerSection, cfg.MaxSections, mgr.lookupDocSize)
	mgr.link = level.NewLinkLevel(cfg.Root, "link", cfg.NumShards, cfg.HashTableSize, cfg.MaxPerSection, cfg.MaxSections)
	mgr.scheduler.Start()
	return mgr
}

// Close drains the merge scheduler and runs a final merge over every level
// (stop_merge_thread), joining the background worker before returning.
func (m *Manager) Close(ctx context.Context) error {
	return m.scheduler.Stop(func() error { return m.Merge(ctx) })
}

// SetURLStore wires a urlstore.Store into the manager so URLData can resolve
// a url's stored metadata blob. Left nil, URLData reports the store as
// unconfigured rather than failing the whole manager (§1's URL store is an
// external contract, not a shipped engine).
func (m *Manager) SetURLStore(s urlstore.Store) {
	m.store = s
}

// URLData returns the raw UrlDataStore+url+redirect blob for url from the
// wired urlstore.Store, if any. The lookup is bounded by
// cfg.URLStoreTimeout so a slow or wedged out-of-scope store engine can't
// hang the console indefinitely.
func (m *Manager) URLData(ctx context.Context, url string) ([]byte, bool, error) {
	if m.store == nil {
		return nil, false, errors.New("url store not configured")
	}
	var data []byte
	var found bool
	err := resilience.WithTimeout(ctx, m.cfg.URLStoreTimeout, "urlstore.Get", func(ctx context.Context) error {
		var getErr error
		data, found, getErr = m.store.Get(level.URLHash(url))
		return getErr
	})
	if err != nil {
		return nil, false, err
	}
	return data, found, nil
}

func (m *Manager) lookupDocSize(urlHash uint64) uint32 {
	m.docSizeMu.RLock()
	defer m.docSizeMu.RUnlock()
	return m.docSizes[urlHash]
}

func (m *Manager) levels() []level.Level {
	return []level.Level{m.domain, m.url, m.word, m.link}
}

// AddIndexFilesThreaded partitions paths across numThreads workers; each
// worker streams its files' TSV rows through every level's IndexDocument,
// periodically flushing full builders (§4.F, §4.G). Unlike the source
// platform, which reparses each file once per level, every file here is
// parsed exactly once and the parsed Document fanned out to all levels: a
// deliberate efficiency improvement that preserves per-level semantics.
func (m *Manager) AddIndexFilesThreaded(ctx context.Context, paths []string, numThreads int) error {
	run, err := m.startRun(ctx, "index", paths)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numThreads)
	for _, path := range paths {
		path := path
		g.Go(func() error { return m.indexOneFile(gctx, path) })
	}
	runErr := g.Wait()

	m.finishRun(ctx, run, len(paths), runErr)
	return runErr
}

func (m *Manager) indexOneFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		m.logger.Error("failed to open index file, skipping", "path", path, "error", err)
		return nil
	}
	defer f.Close()

	return level.ReadTSV(f, func(doc level.Document) error {
		size := uint32(0)
		for i := 1; i <= 4; i++ {
			size += uint32(len(doc.Columns[i]))
		}
		m.docSizeMu.Lock()
		m.docSizes[doc.URLHash] = size
		m.docSizeMu.Unlock()

		for _, lv := range m.levels() {
			lv.IndexDocument(doc)
		}
		m.flushFullBuilders()
		if m.metrics != nil {
			m.metrics.DocsIndexedTotal.WithLabelValues("all").Inc()
		}
		return nil
	})
}

// errBatchLimitReached signals IndexBatch/IndexLinkBatch's row-counting
// callback to stop scanning early; it never escapes to a caller.
var errBatchLimitReached = errors.New("batch row limit reached")

// IndexBatch indexes a single TSV batch file, optionally capping the
// number of rows consumed at limit (0 means unlimited). This backs the CLI's
// "index <batch> [limit]" command, which names one file directly rather
// than handing AddIndexFilesThreaded a path list.
func (m *Manager) IndexBatch(ctx context.Context, path string, limit int) error {
	run, err := m.startRun(ctx, "index", []string{path})
	if err != nil {
		return err
	}
	runErr := m.indexOneFileLimited(ctx, path, limit)
	m.finishRun(ctx, run, 1, runErr)
	return runErr
}

func (m *Manager) indexOneFileLimited(ctx context.Context, path string, limit int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening index batch %s: %w", path, err)
	}
	defer f.Close()

	rows := 0
	err = level.ReadTSV(f, func(doc level.Document) error {
		if limit > 0 && rows >= limit {
			return errBatchLimitReached
		}
		rows++

		size := uint32(0)
		for i := 1; i <= 4; i++ {
			size += uint32(len(doc.Columns[i]))
		}
		m.docSizeMu.Lock()
		m.docSizes[doc.URLHash] = size
		m.docSizeMu.Unlock()

		for _, lv := range m.levels() {
			lv.IndexDocument(doc)
		}
		m.flushFullBuilders()
		if m.metrics != nil {
			m.metrics.DocsIndexedTotal.WithLabelValues("all").Inc()
		}
		return nil
	})
	if errors.Is(err, errBatchLimitReached) {
		return nil
	}
	return err
}

// IndexLinkBatch indexes a single link TSV file, optionally capping the
// number of rows consumed at limit. Backs the CLI's "index_link <batch>
// [limit]" command.
func (m *Manager) IndexLinkBatch(ctx context.Context, path string, limit int, filter *bloom.Filter) error {
	run, err := m.startRun(ctx, "index_link", []string{path})
	if err != nil {
		return err
	}
	runErr := m.indexOneLinkFileLimited(ctx, path, limit, filter)
	m.finishRun(ctx, run, 1, runErr)
	return runErr
}

func (m *Manager) indexOneLinkFileLimited(ctx context.Context, path string, limit int, filter *bloom.Filter) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening link batch %s: %w", path, err)
	}
	defer f.Close()

	rows := 0
	err = level.ReadLinkTSV(f, func(doc level.LinkDocument) error {
		if limit > 0 && rows >= limit {
			return errBatchLimitReached
		}
		rows++

		outcome := "kept"
		if filter != nil && !filter.Contains(doc.TargetURLHash) {
			outcome = "filtered"
		}
		m.link.IndexLinkDocument(doc, filter)
		if m.metrics != nil {
			m.metrics.LinkEdgesTotal.WithLabelValues(outcome).Inc()
		}
		return nil
	})
	if errors.Is(err, errBatchLimitReached) {
		return nil
	}
	return err
}

// AddLinkFilesThreaded ingests link files (source -> target + anchor text)
// into link_level, optionally filtering out targets the bloom filter
// reports as unknown (§4.F).
func (m *Manager) AddLinkFilesThreaded(ctx context.Context, paths []string, numThreads int, filter *bloom.Filter) error {
	run, err := m.startRun(ctx, "index_link", paths)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numThreads)
	for _, path := range paths {
		path := path
		g.Go(func() error { return m.indexOneLinkFile(gctx, path, filter) })
	}
	runErr := g.Wait()

	m.finishRun(ctx, run, len(paths), runErr)
	return runErr
}

func (m *Manager) indexOneLinkFile(ctx context.Context, path string, filter *bloom.Filter) error {
	f, err := os.Open(path)
	if err != nil {
		m.logger.Error("failed to open link file, skipping", "path", path, "error", err)
		return nil
	}
	defer f.Close()

	return level.ReadLinkTSV(f, func(doc level.LinkDocument) error {
		outcome := "kept"
		if filter != nil && !filter.Contains(doc.TargetURLHash) {
			outcome = "filtered"
		}
		m.link.IndexLinkDocument(doc, filter)
		if m.metrics != nil {
			m.metrics.LinkEdgesTotal.WithLabelValues(outcome).Inc()
		}
		return nil
	})
}

// flushFullBuilders walks every builder across every level and enqueues
// any that have crossed the in-memory cache threshold onto the merge
// scheduler, which appends them on its own background worker (§4.G): the
// ingestion goroutine that noticed the full builder never blocks on the
// append itself.
func (m *Manager) flushFullBuilders() {
	enqueueFull(m.scheduler, "domain", m.domain.Builders().All(), m.logger)
	enqueueFull(m.scheduler, "word", m.word.Builders().All(), m.logger)
	enqueueFull(m.scheduler, "link", m.link.Builders().All(), m.logger)
	enqueueFull(m.scheduler, "url", m.url.Builders(), m.logger)
}

func enqueueFull[R posting.Record[R]](s *mergesched.Scheduler, levelName string, builders []*shard.Builder[R], logger *slog.Logger) {
	for i, b := range builders {
		if b.Full() {
			s.Enqueue(fmt.Sprintf("%s/%d", levelName, i), b)
		}
	}
}

// Merge compacts every builder in every level, publishing a shard.merged
// event per level on success (§4.F.1, §4.G).
func (m *Manager) Merge(ctx context.Context) error {
	for _, lv := range m.levels() {
		start := time.Now()
		err := lv.Merge()
		status := "ok"
		if err != nil {
			status = "error"
			m.logger.Error("level merge failed", "level", lv.Name(), "error", err)
		}
		if m.metrics != nil {
			m.metrics.ShardMergesTotal.WithLabelValues(lv.Name(), status).Inc()
			m.metrics.ShardMergeDuration.WithLabelValues(lv.Name()).Observe(time.Since(start).Seconds())
		}
		if err == nil && m.events != nil {
			_ = m.events.Publish(ctx, kafka.Event{
				Key:   lv.Name(),
				Value: map[string]any{"level": lv.Name(), "merged_at": time.Now().UTC()},
			})
		}
	}
	return nil
}

// Truncate deletes every level's on-disk state.
func (m *Manager) Truncate() error {
	for _, lv := range m.levels() {
		if err := lv.Truncate(); err != nil {
			return fmt.Errorf("truncating level %s: %w", lv.Name(), err)
		}
	}
	return nil
}

// Optimize runs the post-ingestion pass (word_level's calculate_scores +
// sort_by_scores) over every level that needs one.
func (m *Manager) Optimize() error {
	for _, lv := range m.levels() {
		if err := lv.Optimize(); err != nil {
			return fmt.Errorf("optimizing level %s: %w", lv.Name(), err)
		}
	}
	return nil
}

// FindHosts answers the "word" CLI command: which hosts mention term.
func (m *Manager) FindHosts(term string) ([]level.ReturnRecord, error) {
	recs, _, err := m.domain.Find(level.TermHash(term))
	if err != nil {
		return nil, err
	}
	return toReturnRecords(recs), nil
}

// FindURL answers the "word_domain" CLI command: which urls within domain
// mention term. domain is a bare hostname; it is hashed the same way
// ingestion hashes a document's host (HostHash parses out the hostname
// from a full URL), so a synthetic scheme is prefixed before hashing.
func (m *Manager) FindURL(domain, term string) ([]level.ReturnRecord, error) {
	hostHash := level.HostHash("http://" + domain)
	recs, err := m.url.FindForHost(hostHash, level.TermHash(term))
	if err != nil {
		return nil, err
	}
	return toReturnRecords(recs), nil
}

// FindWordCount answers the "word_num" CLI command: the posting count for
// term in word_level (the pre-cap total size of the key's posting list,
// §4.C's totals[key] edge case).
func (m *Manager) FindWordCount(term string) (int, error) {
	_, total, err := m.word.Find(level.TermHash(term))
	return total, err
}

// Find answers the "search" CLI command (§4.F find()): tokenizes query,
// intersects word_level postings across terms by value, folds in
// link_level's anchor-text boost per term, and returns the top-limit
// results by combined score. Wrapped by the Redis + singleflight query
// cache (§4.F.2).
func (m *Manager) Find(ctx context.Context, query string, limit int) (*FindResult, error) {
	ctx, span := tracing.StartChildSpan(ctx, "manager.Find")
	span.SetAttr("query", query)
	span.SetAttr("limit", limit)
	defer func() { span.End(); span.Log() }()

	start := time.Now()
	result, hit, err := m.cache.getOrCompute(ctx, query, limit, func() (*FindResult, error) {
		return m.findUncached(query, limit)
	})
	status := "miss"
	if hit {
		status = "hit"
	}
	if err != nil {
		status = "error"
	}
	if m.metrics != nil {
		m.metrics.QueriesTotal.WithLabelValues(status).Inc()
		m.metrics.QueryLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
		if hit {
			m.metrics.CacheHitsTotal.Inc()
		} else {
			m.metrics.CacheMissesTotal.Inc()
		}
	}
	return result, err
}

// findUncached intersects every query term's word_level postings by url
// (AND semantics, combined score is the sum across terms), then for each
// term folds that term's link_level postings into the combined results
// via apply_url_links. A capped posting list is only locally sorted by
// value within each maxPerSection chunk rather than globally, so the
// apply_url_links merge-join below is exact only for keys whose list was
// never capped — the same implicit assumption the distilled design
// carries, not one this index corrects.
func (m *Manager) findUncached(query string, limit int) (*FindResult, error) {
	terms := level.Tokenize(query)
	if len(terms) == 0 {
		return &FindResult{Query: query}, nil
	}

	combined := map[uint64]*level.ReturnRecord{}
	matchCount := map[uint64]int{}

	for _, term := range terms {
		termHash := level.TermHash(term)
		postings, _, err := m.word.Find(termHash)
		if err != nil {
			return nil, err
		}
		for _, p := range postings {
			rec, ok := combined[p.Value]
			if !ok {
				rec = &level.ReturnRecord{Value: p.Value}
				combined[p.Value] = rec
			}
			rec.Score += p.Score
			matchCount[p.Value]++
		}

		links, _, err := m.link.Find(termHash)
		if err != nil {
			return nil, err
		}
		if len(links) == 0 || len(postings) == 0 {
			continue
		}
		sortRecordsByValue(postings)
		matching := resultsForPostings(combined, postings)
		applied := level.ApplyURLLinks(links, matching)
		writeBack(combined, matching)
		if m.metrics != nil && applied > 0 {
			m.metrics.LinksAppliedTotal.Add(float64(applied))
		}
	}

	var out []level.ReturnRecord
	for v, rec := range combined {
		if matchCount[v] == len(terms) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return &FindResult{Query: query, Results: out}, nil
}

func sortRecordsByValue(postings []posting.Counted) {
	sort.Slice(postings, func(i, j int) bool { return postings[i].Value < postings[j].Value })
}

// resultsForPostings builds a Value-ascending slice of ReturnRecord
// snapshots for exactly the urls postings names, for apply_url_links'
// merge-join to operate on.
func resultsForPostings(combined map[uint64]*level.ReturnRecord, postings []posting.Counted) []level.ReturnRecord {
	out := make([]level.ReturnRecord, 0, len(postings))
	for _, p := range postings {
		if rec, ok := combined[p.Value]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

// writeBack copies each updated snapshot's Score/NumURLLinks back onto the
// shared record. Both fields are full replacements, not increments: the
// snapshot passed to apply_url_links already carried forward whatever
// value earlier terms had accumulated.
func writeBack(combined map[uint64]*level.ReturnRecord, updated []level.ReturnRecord) {
	for _, r := range updated {
		if rec, ok := combined[r.Value]; ok {
			rec.Score = r.Score
			rec.NumURLLinks = r.NumURLLinks
		}
	}
}

func toReturnRecords(recs []posting.Basic) []level.ReturnRecord {
	out := make([]level.ReturnRecord, len(recs))
	for i, r := range recs {
		out[i] = level.ReturnRecord{Value: r.Value, Score: r.Score}
	}
	return out
}

func (m *Manager) startRun(ctx context.Context, command string, paths []string) (*Run, error) {
	batch := ""
	if len(paths) > 0 {
		batch = paths[0]
	}
	if m.ledger == nil {
		return &Run{Command: command, Batch: batch}, nil
	}
	return m.ledger.Start(ctx, command, "ftindex", batch)
}

func (m *Manager) finishRun(ctx context.Context, run *Run, fileCount int, runErr error) {
	status := "ok"
	if runErr != nil {
		status = "error"
	}
	if m.metrics != nil {
		m.metrics.IngestionRunsTotal.WithLabelValues(run.Command, status).Inc()
	}
	if m.ledger != nil {
		if err := m.ledger.Finish(ctx, run, fileCount, int(m.cfg.NumShards), runErr); err != nil {
			m.logger.Error("failed to finalize ingestion run", "error", err)
		}
	}
	if m.events != nil {
		_ = m.events.Publish(ctx, kafka.Event{
			Key:   run.Command,
			Value: map[string]any{"command": run.Command, "file_count": fileCount, "completed_at": time.Now().UTC()},
		})
	}
}
