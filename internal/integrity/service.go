// Package integrity checks stored network documents for problems the
// serving path would only discover at load time.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/vrui-vr/networkviewer/internal/graph"
	"github.com/vrui-vr/networkviewer/internal/netstore"
	"github.com/vrui-vr/networkviewer/internal/protocol"
	"github.com/vrui-vr/networkviewer/internal/sim"
)

// Service runs consistency checks over a network document store.
type Service struct {
	store    netstore.Store
	log      *slog.Logger
	maxBytes int64
}

// NewService creates an integrity service. maxBytes is the upload
// limit documents are checked against; zero disables the size check.
func NewService(store netstore.Store, log *slog.Logger, maxBytes int64) *Service {
	return &Service{store: store, log: log, maxBytes: maxBytes}
}

// CheckResult contains the result of one named check across the store.
type CheckResult struct {
	CheckName  string
	IssueCount int
	Details    string
	CheckedAt  time.Time
	HasIssues  bool
}

// sampleLimit caps how many broken documents a result names.
const sampleLimit = 5

func newResult(name, detail string, issues []string) CheckResult {
	r := CheckResult{
		CheckName:  name,
		IssueCount: len(issues),
		Details:    detail,
		CheckedAt:  time.Now(),
		HasIssues:  len(issues) > 0,
	}
	if len(issues) > 0 {
		sample := issues
		if len(sample) > sampleLimit {
			sample = sample[:sampleLimit]
		}
		r.Details = detail + ": " + strings.Join(sample, "; ")
	}
	return r
}

// CheckAll validates every stored document: it must parse, resolve
// all link endpoints, stay under the size limit, and contain at
// least one node.
func (s *Service) CheckAll(ctx context.Context) ([]CheckResult, error) {
	infos, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}

	var unparseable, oversize, empty []string
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		document, err := s.store.Get(ctx, info.Name)
		if err != nil {
			return nil, fmt.Errorf("read network %q: %w", info.Name, err)
		}
		network, err := graph.Parse(document)
		if err != nil {
			unparseable = append(unparseable, fmt.Sprintf("%s (%v)", info.Name, err))
			continue
		}
		if s.maxBytes > 0 && int64(len(document)) > s.maxBytes {
			oversize = append(oversize, fmt.Sprintf("%s (%d bytes)", info.Name, len(document)))
		}
		if network.NumNodes() == 0 {
			empty = append(empty, info.Name)
		}
	}

	return []CheckResult{
		newResult("document_parse", "Documents that fail to parse or reference unknown nodes", unparseable),
		newResult("document_size", "Documents larger than the configured upload limit", oversize),
		newResult("empty_documents", "Documents with no nodes", empty),
	}, nil
}

// CheckSimulation runs every parseable document through a short
// single-threaded simulation, verifying the spatial index after each
// tick and the final positions for numerical blowup.
func (s *Service) CheckSimulation(ctx context.Context, ticks int) ([]CheckResult, error) {
	infos, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}

	var octreeBroken, diverged []string
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		document, err := s.store.Get(ctx, info.Name)
		if err != nil {
			return nil, fmt.Errorf("read network %q: %w", info.Name, err)
		}
		network, err := graph.Parse(document)
		if err != nil {
			// CheckAll reports these.
			continue
		}
		if name := s.simulate(network, info.Name, ticks, &octreeBroken); name != "" {
			diverged = append(diverged, name)
		}
	}

	return []CheckResult{
		newResult("octree_consistency", "Documents that corrupt the spatial index during simulation", octreeBroken),
		newResult("position_validity", "Documents whose layout diverges to non-finite positions", diverged),
	}, nil
}

// simulate steps one network and returns its name when the final
// positions are not finite. Octree failures are appended directly; a
// structural panic out of a tick is recorded the same way so one bad
// document cannot take the whole check run down.
func (s *Service) simulate(network *graph.Network, name string, ticks int, octreeBroken *[]string) (diverged string) {
	tick := 0
	defer func() {
		if r := recover(); r != nil {
			*octreeBroken = append(*octreeBroken, fmt.Sprintf("%s (tick %d: %v)", name, tick, r))
			diverged = ""
		}
	}()

	h := sim.NewHeadless(network, protocol.DefaultSimulationParameters())
	for tick = 1; tick <= ticks; tick++ {
		h.Step()
		if err := h.System().Octree().Check(); err != nil {
			*octreeBroken = append(*octreeBroken, fmt.Sprintf("%s (tick %d: %v)", name, tick, err))
			return ""
		}
	}
	for _, p := range h.Positions() {
		if !finite(p) {
			return name
		}
	}
	return ""
}

func finite(p mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if math.IsNaN(p[i]) || math.IsInf(p[i], 0) {
			return false
		}
	}
	return true
}

// Clean deletes documents that no longer parse and returns their
// names. With dryRun set it only reports what would be deleted.
func (s *Service) Clean(ctx context.Context, dryRun bool) ([]string, error) {
	infos, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}

	var removed []string
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		document, err := s.store.Get(ctx, info.Name)
		if err != nil {
			return nil, fmt.Errorf("read network %q: %w", info.Name, err)
		}
		if _, err := graph.Parse(document); err == nil {
			continue
		}
		if !dryRun {
			if err := s.store.Delete(ctx, info.Name); err != nil {
				return removed, fmt.Errorf("delete network %q: %w", info.Name, err)
			}
			s.log.Info("deleted unparseable network", "name", info.Name)
		}
		removed = append(removed, info.Name)
	}
	return removed, nil
}

// StoreStats summarizes the documents in the store.
type StoreStats struct {
	Documents    int
	TotalBytes   int64
	TotalNodes   int
	TotalLinks   int
	Unparseable  int
	Largest      string
	LargestBytes int64
}

// Stats reads every document and totals its contents. Unparseable
// documents count toward Documents and TotalBytes only.
func (s *Service) Stats(ctx context.Context) (*StoreStats, error) {
	infos, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}

	stats := &StoreStats{}
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		document, err := s.store.Get(ctx, info.Name)
		if err != nil {
			return nil, fmt.Errorf("read network %q: %w", info.Name, err)
		}
		stats.Documents++
		stats.TotalBytes += int64(len(document))
		if int64(len(document)) > stats.LargestBytes {
			stats.Largest = info.Name
			stats.LargestBytes = int64(len(document))
		}
		network, err := graph.Parse(document)
		if err != nil {
			stats.Unparseable++
			continue
		}
		stats.TotalNodes += network.NumNodes()
		stats.TotalLinks += len(network.Links())
	}
	return stats, nil
}
