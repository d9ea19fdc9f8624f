// Package main provides the simulator binary: it loads content, replays a
// scenario through the ability and effect engine, and prints the outcome.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/gas/internal/app"
	"github.com/cory-johannsen/gas/internal/game/resource"
	"github.com/cory-johannsen/gas/internal/game/sim"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	scenario := flag.String("scenario", "", "scenario YAML to replay; empty = content.scenario")
	realtime := flag.Bool("realtime", false, "pace frames on the wall clock until interrupted")
	report := flag.Duration("report", 5*time.Second, "realtime progress log interval")
	flag.Parse()

	a, cleanup, err := initializeApp(app.ConfigPath(*configPath))
	if err != nil {
		log.Fatalf("initializing: %v", err)
	}
	defer cleanup()
	logger := a.Logger

	logger.Info("content loaded",
		zap.Int("abilities", len(a.Content.Abilities.All())),
		zap.Int("effects", len(a.Content.Effects.All())),
		zap.Bool("scripting", a.Content.Scripts != nil),
		zap.Duration("elapsed", time.Since(start)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	var result sim.Result
	g.Go(func() error {
		defer close(done)
		res, err := a.RunScenario(gctx, *scenario, *realtime)
		if err != nil {
			return fmt.Errorf("running scenario: %w", err)
		}
		result = res
		return nil
	})
	if *realtime && *report > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(*report)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return nil
				case <-ticker.C:
					logger.Info("simulation progress",
						zap.Int("frame", a.World.Frame()),
						zap.Float64("t", a.World.Now()),
					)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("simulation failed", zap.Error(err))
		cleanup()
		os.Exit(1)
	}

	printSummary(os.Stdout, result)
	logger.Info("simulation complete", zap.Duration("wall", time.Since(start)))
}

func printSummary(out *os.File, res sim.Result) {
	fmt.Fprintf(out, "frames=%d elapsed=%.2fs accepted=%d rejected=%d\n", res.Frames, res.Elapsed, res.Accepted, res.Rejected)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY\tTEAM\tHEALTH\tALIVE\tEFFECTS\tRESOURCES")
	for _, e := range res.Entities {
		fmt.Fprintf(w, "%s\t%s\t%.1f/%.1f\t%t\t%v\t%s\n", e.ID, e.Team, e.Health, e.MaxHealth, e.Alive, e.Effects, formatResources(e.Resources))
	}
	_ = w.Flush()
}

func formatResources(rs map[resource.Key]float64) string {
	keys := make([]string, 0, len(rs))
	for k := range rs {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	s := ""
	for i, k := range keys {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%.1f", k, rs[resource.Key(k)])
	}
	return s
}
