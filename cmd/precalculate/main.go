// Command precalculate runs the layout solver offline for a stored
// network and writes the settled node positions as JSON, optionally
// with quality metrics for the run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/vrui-vr/networkviewer/internal/config"
	"github.com/vrui-vr/networkviewer/internal/graph"
	"github.com/vrui-vr/networkviewer/internal/logger"
	"github.com/vrui-vr/networkviewer/internal/netstore"
	"github.com/vrui-vr/networkviewer/internal/protocol"
	"github.com/vrui-vr/networkviewer/internal/sim"
)

type nodePosition struct {
	ID       string     `json:"id"`
	Position [3]float64 `json:"position"`
}

type layout struct {
	Name    string         `json:"name"`
	Ticks   int            `json:"ticks"`
	Nodes   []nodePosition `json:"nodes"`
	Quality *sim.Quality   `json:"quality,omitempty"`
}

func main() {
	ticks := flag.Int("ticks", 600, "Number of solver ticks to run")
	output := flag.String("o", "", "Output file (default: stdout)")
	quality := flag.Bool("quality", false, "Measure layout quality after the run")
	workers := flag.Int("workers", 0, "Goroutines for the quality sweep (0 = all CPUs)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: precalculate [options] <network-name>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	name := flag.Arg(0)

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

	document, err := store.Get(context.Background(), name)
	if err != nil {
		log.Error("read network", "name", name, "error", err)
		os.Exit(1)
	}
	network, err := graph.Parse(document)
	if err != nil {
		log.Error("parse network", "name", name, "error", err)
		os.Exit(1)
	}

	log.Info("solving layout",
		"name", name,
		"nodes", network.NumNodes(),
		"links", len(network.Links()),
		"ticks", *ticks)

	h := sim.NewHeadless(network, protocol.DefaultSimulationParameters())
	for i := 0; i < *ticks; i++ {
		h.Step()
	}

	out := layout{Name: name, Ticks: *ticks, Nodes: make([]nodePosition, 0, network.NumNodes())}
	positions := h.Positions()
	for _, node := range network.Nodes() {
		p := positions[node.ParticleIndex]
		out.Nodes = append(out.Nodes, nodePosition{ID: node.ID, Position: [3]float64{p[0], p[1], p[2]}})
	}

	if *quality {
		q := h.MeasureQuality(*workers)
		out.Quality = &q
		log.Info("layout quality",
			"constraint_error_mean", q.ConstraintErrorMean,
			"constraint_error_max", q.ConstraintErrorMax,
			"force_residual_mean", q.ForceResidualMean,
			"force_residual_max", q.ForceResidualMax)
	}

	w := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Error("create output", "path", *output, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Error("write layout", "error", err)
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
