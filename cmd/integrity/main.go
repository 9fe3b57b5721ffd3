// Command integrity validates stored network documents: every
// document must parse and resolve its link endpoints, optionally
// survive a short simulation, and documents that no longer load can
// be cleaned out.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/vrui-vr/networkviewer/internal/config"
	"github.com/vrui-vr/networkviewer/internal/integrity"
	"github.com/vrui-vr/networkviewer/internal/logger"
	"github.com/vrui-vr/networkviewer/internal/netstore"
)

func main() {
	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)
	checkSimulate := checkCmd.Bool("simulate", false, "Run a short simulation per document")
	checkTicks := checkCmd.Int("ticks", 60, "Simulation ticks per document")

	cleanCmd := flag.NewFlagSet("clean", flag.ExitOnError)
	cleanDryRun := cleanCmd.Bool("dry-run", false, "Report without deleting")

	statsCmd := flag.NewFlagSet("stats", flag.ExitOnError)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	log := logger.Get()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	svc := integrity.NewService(store, log, cfg.MaxNetworkBytes)
	ctx := context.Background()

	switch os.Args[1] {
	case "check":
		checkCmd.Parse(os.Args[2:])
		runCheck(ctx, svc, *checkSimulate, *checkTicks)
	case "clean":
		cleanCmd.Parse(os.Args[2:])
		runClean(ctx, svc, *cleanDryRun)
	case "stats":
		statsCmd.Parse(os.Args[2:])
		runStats(ctx, svc)
	default:
		printUsage()
		os.Exit(1)
	}
}

// openStore picks the same backend the server would: Postgres when
// DATABASE_URL is set, the network directory otherwise.
func openStore(cfg *config.Config) (netstore.Store, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := netstore.NewPGStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { pg.Close() }, nil
	}
	fs, err := netstore.NewFileStore(cfg.NetworkDir)
	if err != nil {
		return nil, nil, err
	}
	return fs, func() {}, nil
}

func printUsage() {
	fmt.Println("Network Viewer - Document Integrity Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  integrity check [options]   - Validate every stored network document")
	fmt.Println("  integrity clean [options]   - Remove documents that no longer parse")
	fmt.Println("  integrity stats             - Show store statistics")
	fmt.Println()
	fmt.Println("Check options:")
	fmt.Println("  -simulate        Run a short simulation per document")
	fmt.Println("  -ticks int       Simulation ticks per document (default: 60)")
	fmt.Println()
	fmt.Println("Clean options:")
	fmt.Println("  -dry-run         Report without deleting")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  integrity check")
	fmt.Println("  integrity check -simulate -ticks 120")
	fmt.Println("  integrity clean -dry-run")
	fmt.Println("  integrity stats")
}

func runCheck(ctx context.Context, svc *integrity.Service, simulate bool, ticks int) {
	results, err := svc.CheckAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "check failed: %v\n", err)
		os.Exit(1)
	}
	if simulate {
		simResults, err := svc.CheckSimulation(ctx, ticks)
		if err != nil {
			fmt.Fprintf(os.Stderr, "simulation check failed: %v\n", err)
			os.Exit(1)
		}
		results = append(results, simResults...)
	}

	fmt.Println()
	fmt.Println("=== Network Document Check Results ===")
	fmt.Println()

	hasAnyIssues := false
	for _, result := range results {
		status := "✓ OK"
		if result.HasIssues {
			status = fmt.Sprintf("⚠ ISSUES FOUND: %d", result.IssueCount)
			hasAnyIssues = true
		}

		fmt.Printf("%-24s %s\n", result.CheckName+":", status)
		fmt.Printf("  %s\n", result.Details)
		fmt.Println()
	}

	if hasAnyIssues {
		fmt.Println("Run 'integrity clean' to remove documents that no longer parse")
		os.Exit(1)
	}
	fmt.Println("All document checks passed!")
}

func runClean(ctx context.Context, svc *integrity.Service, dryRun bool) {
	removed, err := svc.Clean(ctx, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clean failed: %v\n", err)
		os.Exit(1)
	}
	if dryRun {
		fmt.Printf("Would delete %d documents\n", len(removed))
	} else {
		fmt.Printf("Deleted %d documents\n", len(removed))
	}
	for _, name := range removed {
		fmt.Printf("  %s\n", name)
	}
}

func runStats(ctx context.Context, svc *integrity.Service) {
	stats, err := svc.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Network Store Statistics ===")
	fmt.Printf("Documents:    %d\n", stats.Documents)
	fmt.Printf("Total size:   %d bytes\n", stats.TotalBytes)
	fmt.Printf("Total nodes:  %d\n", stats.TotalNodes)
	fmt.Printf("Total links:  %d\n", stats.TotalLinks)
	if stats.Unparseable > 0 {
		fmt.Printf("Unparseable:  %d\n", stats.Unparseable)
	}
	if stats.Largest != "" {
		fmt.Printf("Largest:      %s (%d bytes)\n", stats.Largest, stats.LargestBytes)
	}
}
