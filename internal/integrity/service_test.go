package integrity

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vrui-vr/networkviewer/internal/netstore"
)

const goodDocument = `{"nodes":[{"id":"a"},{"id":"b"}],"links":[{"source":"a","target":"b"}]}`

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := netstore.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewService(fs, slog.New(slog.DiscardHandler), 1<<20), dir
}

// seed writes a document straight into the store directory, bypassing
// the store's own upload validation the way out-of-band tooling would.
func seed(t *testing.T, dir, name, document string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(document), 0o644); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
}

func findResult(t *testing.T, results []CheckResult, name string) CheckResult {
	t.Helper()
	for _, r := range results {
		if r.CheckName == name {
			return r
		}
	}
	t.Fatalf("no %q check in results", name)
	return CheckResult{}
}

func TestCheckAllCleanStore(t *testing.T) {
	svc, dir := newTestService(t)
	seed(t, dir, "good", goodDocument)

	results, err := svc.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(results))
	}
	for _, r := range results {
		if r.HasIssues {
			t.Errorf("check %s reported issues: %s", r.CheckName, r.Details)
		}
	}
}

func TestCheckAllFindsBrokenDocuments(t *testing.T) {
	svc, dir := newTestService(t)
	seed(t, dir, "good", goodDocument)
	seed(t, dir, "dangling", `{"nodes":[{"id":"a"}],"links":[{"source":"a","target":"ghost"}]}`)
	seed(t, dir, "mangled", `{"nodes":[`)
	seed(t, dir, "hollow", `{"nodes":[],"links":[]}`)

	results, err := svc.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}

	parse := findResult(t, results, "document_parse")
	if parse.IssueCount != 2 || !parse.HasIssues {
		t.Errorf("expected 2 unparseable documents, got %d", parse.IssueCount)
	}
	if !strings.Contains(parse.Details, "dangling") {
		t.Errorf("expected the dangling document named, got %q", parse.Details)
	}

	empty := findResult(t, results, "empty_documents")
	if empty.IssueCount != 1 {
		t.Errorf("expected 1 empty document, got %d", empty.IssueCount)
	}
}

func TestCheckAllFlagsOversizeDocuments(t *testing.T) {
	dir := t.TempDir()
	fs, err := netstore.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	svc := NewService(fs, slog.New(slog.DiscardHandler), 16)
	seed(t, dir, "big", goodDocument)

	results, err := svc.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	size := findResult(t, results, "document_size")
	if size.IssueCount != 1 {
		t.Errorf("expected 1 oversize document, got %d", size.IssueCount)
	}
}

func TestCheckSimulationPassesHealthyNetwork(t *testing.T) {
	svc, dir := newTestService(t)
	seed(t, dir, "good", goodDocument)
	seed(t, dir, "mangled", `{"nodes":[`)

	results, err := svc.CheckSimulation(context.Background(), 30)
	if err != nil {
		t.Fatalf("CheckSimulation: %v", err)
	}
	for _, r := range results {
		if r.HasIssues {
			t.Errorf("check %s reported issues: %s", r.CheckName, r.Details)
		}
	}
}

func TestCleanRemovesUnparseableDocuments(t *testing.T) {
	svc, dir := newTestService(t)
	seed(t, dir, "good", goodDocument)
	seed(t, dir, "mangled", `{"nodes":[`)

	removed, err := svc.Clean(context.Background(), true)
	if err != nil {
		t.Fatalf("Clean dry run: %v", err)
	}
	if len(removed) != 1 || removed[0] != "mangled" {
		t.Fatalf("expected a dry run naming mangled, got %v", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "mangled.json")); err != nil {
		t.Fatal("dry run must not delete anything")
	}

	removed, err = svc.Clean(context.Background(), false)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("expected 1 deletion, got %v", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "mangled.json")); !os.IsNotExist(err) {
		t.Fatal("expected the mangled document deleted")
	}
	if _, err := os.Stat(filepath.Join(dir, "good.json")); err != nil {
		t.Fatal("expected the good document kept")
	}
}

func TestStats(t *testing.T) {
	svc, dir := newTestService(t)
	seed(t, dir, "good", goodDocument)
	seed(t, dir, "mangled", `{"nodes":[`)

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Documents != 2 {
		t.Errorf("expected 2 documents, got %d", stats.Documents)
	}
	if stats.TotalNodes != 2 || stats.TotalLinks != 1 {
		t.Errorf("expected 2 nodes and 1 link, got %d and %d", stats.TotalNodes, stats.TotalLinks)
	}
	if stats.Unparseable != 1 {
		t.Errorf("expected 1 unparseable document, got %d", stats.Unparseable)
	}
	if stats.Largest != "good" {
		t.Errorf("expected good as the largest document, got %q", stats.Largest)
	}
}
