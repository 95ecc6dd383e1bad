// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tsdasari9/firewall/internal/capture"
	"github.com/tsdasari9/firewall/internal/clock"
	"github.com/tsdasari9/firewall/internal/config"
	"github.com/tsdasari9/firewall/internal/engine"
	"github.com/tsdasari9/firewall/internal/firewall"
)

// reasonCounter tallies verdicts by reason. The dispatch loop is single
// threaded so no locking is needed.
type reasonCounter map[engine.Reason]uint64

func (c reasonCounter) Record(ev engine.Event) {
	if ev.Stage == engine.StageVerdict {
		c[ev.Reason]++
	}
}

// runReplay plays a capture file through the pipeline on capture time and
// prints a summary of what happened.
func runReplay(ctx context.Context, configPath, file string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	cfg.Capture.Source = config.SourcePCAP
	cfg.Capture.File = file

	logger, closer, err := firewall.NewLogger(cfg.Logging, stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	mock := clock.NewMockClock(time.Time{})
	policies, err := firewall.NewPolicies(cfg, mock)
	if err != nil {
		return err
	}

	in, err := firewall.OpenSource(cfg, logger.WithComponent("capture"))
	if err != nil {
		return err
	}
	defer in.Close()

	counts := reasonCounter{}
	opts := []firewall.Option{
		firewall.WithLogger(logger.WithComponent("replay")),
		firewall.WithReplayClock(mock),
		firewall.WithSinks(engine.NewLogSink(logger.WithComponent("dispatcher")), counts),
	}
	if path := cfg.Capture.DropPCAP; path != "" {
		w, err := capture.CreatePCAP(path, in.LinkType(), uint32(cfg.Capture.Snaplen))
		if err != nil {
			return err
		}
		defer w.Close()
		opts = append(opts, firewall.WithDropWriter(w))
	}

	svc, err := firewall.New(in, policies, opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := svc.Run(ctx); err != nil {
		return err
	}
	writeSummary(stdout, file, svc.Stats(), counts, policies, time.Since(start))
	return nil
}

func writeSummary(w io.Writer, file string, st firewall.Stats, counts reasonCounter, p *engine.Policies, took time.Duration) {
	fmt.Fprintf(w, "Replayed %s packets (%s) from %s in %v\n",
		humanize.Comma(int64(st.Received)), humanize.IBytes(st.Bytes), file, took.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  forwarded\t%d\n", st.Forwarded)
	fmt.Fprintf(tw, "  dropped\t%d\n", st.Dropped)

	reasons := make([]engine.Reason, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	for _, r := range reasons {
		fmt.Fprintf(tw, "    %s\t%d\n", r, counts[r])
	}
	fmt.Fprintf(tw, "  nat mappings\t%d\n", p.NAT.Len())
	if st.DropsRecorded > 0 {
		fmt.Fprintf(tw, "  drops recorded\t%d\n", st.DropsRecorded)
	}
	tw.Flush()
}
