package manager

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/webidx/ftindex/internal/level"
	"github.com/webidx/ftindex/internal/urlstore"
	"github.com/webidx/ftindex/pkg/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.IndexerConfig{
		Root:          t.TempDir(),
		NumShards:     2,
		HashTableSize: 0,
		MaxPerSection: 100,
		MaxSections:   4,
	}
	m := New(cfg, nil, config.RedisConfig{}, nil, nil, nil)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func writeIndexFile(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.tsv")
	content := strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestManagerIndexAndSearchIntersectsTerms(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	path := writeIndexFile(t,
		"http://a.example/1\tgo programming\tfast language\t\t",
		"http://b.example/2\tgo tutorial\t\t\t",
		"http://c.example/3\tpython programming\t\t\t",
	)

	if err := m.AddIndexFilesThreaded(ctx, []string{path}, 2); err != nil {
		t.Fatalf("AddIndexFilesThreaded: %v", err)
	}
	if err := m.Merge(ctx); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := m.Optimize(); err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	result, err := m.Find(ctx, "go programming", 10)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(result.Results) != 1 {
		t.Fatalf("Find(go programming) = %+v, want exactly one url (only a.example has both terms)", result.Results)
	}
}

func TestManagerFindWordCountReflectsPostingCount(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	path := writeIndexFile(t,
		"http://a.example/1\tshared\t\t\t",
		"http://b.example/2\tshared\t\t\t",
	)
	if err := m.AddIndexFilesThreaded(ctx, []string{path}, 1); err != nil {
		t.Fatalf("AddIndexFilesThreaded: %v", err)
	}
	if err := m.Merge(ctx); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	count, err := m.FindWordCount("shared")
	if err != nil {
		t.Fatalf("FindWordCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("FindWordCount(shared) = %d, want 2", count)
	}
}

func TestManagerFindHostsAndFindURL(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	path := writeIndexFile(t,
		"http://a.example/1\tquery term\t\t\t",
	)
	if err := m.AddIndexFilesThreaded(ctx, []string{path}, 1); err != nil {
		t.Fatalf("AddIndexFilesThreaded: %v", err)
	}
	if err := m.Merge(ctx); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	hosts, err := m.FindHosts("query")
	if err != nil {
		t.Fatalf("FindHosts: %v", err)
	}
	if len(hosts) != 1 {
		t.Fatalf("FindHosts(query) = %+v, want one host", hosts)
	}

	urls, err := m.FindURL("a.example", "query")
	if err != nil {
		t.Fatalf("FindURL: %v", err)
	}
	if len(urls) != 1 {
		t.Fatalf("FindURL(a.example, query) = %+v, want one url", urls)
	}
}

func TestManagerURLDataUnconfiguredReturnsError(t *testing.T) {
	m := testManager(t)
	if _, _, err := m.URLData(context.Background(), "http://a.example/1"); err == nil {
		t.Fatal("URLData with no store wired = nil error, want error")
	}
}

func TestManagerURLDataResolvesFromStaticStore(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	url := "http://a.example/1"
	key := level.URLHash(url)
	store := urlstore.NewStaticStore(map[uint64][]byte{key: []byte("blob")})
	m.SetURLStore(store)

	data, found, err := m.URLData(ctx, url)
	if err != nil {
		t.Fatalf("URLData: %v", err)
	}
	if !found || string(data) != "blob" {
		t.Fatalf("URLData(%q) = (%q, %v), want (blob, true)", url, data, found)
	}

	if _, found, err := m.URLData(ctx, "http://a.example/missing"); err != nil || found {
		t.Fatalf("URLData(missing) = found=%v err=%v, want found=false err=nil", found, err)
	}
}

func TestManagerFindEmptyQueryReturnsNoResults(t *testing.T) {
	m := testManager(t)
	result, err := m.Find(context.Background(), "   ", 10)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(result.Results) != 0 {
		t.Fatalf("Find(empty) = %+v, want no results", result.Results)
	}
}
