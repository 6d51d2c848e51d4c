package main

import (
	"bytes"
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/webidx/ftindex/internal/manager"
	"github.com/webidx/ftindex/pkg/config"
)

func TestParseBatchArgsRequiresBatch(t *testing.T) {
	if _, _, err := parseBatchArgs(nil); err == nil {
		t.Fatal("parseBatchArgs(nil) = nil error, want usage error")
	}
}

func TestParseBatchArgsOptionalLimit(t *testing.T) {
	batch, limit, err := parseBatchArgs([]string{"batch.tsv", "10"})
	if err != nil {
		t.Fatalf("parseBatchArgs: %v", err)
	}
	if batch != "batch.tsv" || limit != 10 {
		t.Fatalf("parseBatchArgs = (%q, %d), want (batch.tsv, 10)", batch, limit)
	}
}

func TestParseBatchArgsRejectsNonNumericLimit(t *testing.T) {
	if _, _, err := parseBatchArgs([]string{"batch.tsv", "many"}); err == nil {
		t.Fatal("parseBatchArgs with non-numeric limit = nil error, want error")
	}
}

func testConsole(t *testing.T) *console {
	t.Helper()
	cfg := config.IndexerConfig{
		Root: t.TempDir(), NumShards: 2, HashTableSize: 0,
		MaxPerSection: 100, MaxSections: 4,
		BloomExpectedItems: 100, BloomFalsePositive: 0.01,
	}
	mgr := manager.New(cfg, nil, config.RedisConfig{}, nil, nil, nil)
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	var buf bytes.Buffer
	return &console{mgr: mgr, cfg: cfg, out: bufio.NewWriter(&buf)}
}

func TestConsoleBloomReportsNoFalseNegatives(t *testing.T) {
	c := testConsole(t)
	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte("http://a.example/1\nhttp://a.example/2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var buf bytes.Buffer
	c.out = bufio.NewWriter(&buf)
	if err := c.cmdBloom([]string{"a.example", path}); err != nil {
		t.Fatalf("cmdBloom: %v", err)
	}
	c.out.Flush()

	if got := buf.String(); !strings.Contains(got, "entries=2") || !strings.Contains(got, "false_negatives=0") {
		t.Fatalf("cmdBloom output = %q, want entries=2 and false_negatives=0", got)
	}
}

func TestConsoleWordNumRoundTrip(t *testing.T) {
	c := testConsole(t)
	batch := filepath.Join(t.TempDir(), "batch.tsv")
	if err := os.WriteFile(batch, []byte("http://a.example/1\tshared\t\t\t\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	ctx := context.Background()
	if err := c.cmdIndex(ctx, []string{batch}); err != nil {
		t.Fatalf("cmdIndex: %v", err)
	}
	if err := c.mgr.Merge(ctx); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	var buf bytes.Buffer
	c.out = bufio.NewWriter(&buf)
	if err := c.cmdWordNum([]string{"shared"}); err != nil {
		t.Fatalf("cmdWordNum: %v", err)
	}
	c.out.Flush()
	if strings.TrimSpace(buf.String()) != "1" {
		t.Fatalf("cmdWordNum output = %q, want 1", buf.String())
	}
}
