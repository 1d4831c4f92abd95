// Package report renders persisted run results for people and
// machines. Text output groups thousands so large volumes stay
// readable; the JSON projection keeps seeds as strings because they
// exceed the integer range some consumers tolerate.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/relaycheck/internal/results"
	"github.com/roach88/relaycheck/internal/verify"
)

// Summary is the machine-readable projection of a run and its checks.
type Summary struct {
	Run    RunSummary     `json:"run"`
	Checks []CheckSummary `json:"checks"`
}

// RunSummary mirrors one results row.
type RunSummary struct {
	ID             string            `json:"id"`
	Scenario       string            `json:"scenario"`
	Status         string            `json:"status"`
	StartedAt      string            `json:"started_at"`
	FinishedAt     string            `json:"finished_at,omitempty"`
	DurationMs     int64             `json:"duration_ms,omitempty"`
	Volume         int               `json:"volume"`
	Seed           string            `json:"seed"`
	SourceSHA256   string            `json:"source_sha256,omitempty"`
	Lines          verify.LineCounts `json:"lines"`
	Split          verify.Split      `json:"split"`
	OrderPreserved bool              `json:"order_preserved"`
	Failure        string            `json:"failure,omitempty"`
}

// CheckSummary mirrors one check row, without the owning run ID.
type CheckSummary struct {
	Seq    int    `json:"seq"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Summarize converts storage rows into the JSON projection.
func Summarize(run results.Run, checks []results.Check) Summary {
	s := Summary{
		Run: RunSummary{
			ID:             run.ID,
			Scenario:       run.Scenario,
			Status:         run.Status,
			StartedAt:      formatTime(run.StartedAt),
			FinishedAt:     formatTime(run.FinishedAt),
			Volume:         run.Volume,
			Seed:           strconv.FormatUint(run.Seed, 10),
			SourceSHA256:   run.SourceSHA256,
			Lines:          run.Counts,
			Split:          splitOf(run),
			OrderPreserved: run.OrderPreserved,
			Failure:        run.Failure,
		},
		Checks: make([]CheckSummary, 0, len(checks)),
	}
	if !run.FinishedAt.IsZero() {
		s.Run.DurationMs = run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	}
	for _, c := range checks {
		s.Checks = append(s.Checks, CheckSummary{
			Seq:    c.Seq,
			Name:   c.Name,
			Status: c.Status,
			Code:   c.Code,
			Detail: c.Detail,
		})
	}
	return s
}

// RenderRun writes the single-run text report.
func RenderRun(w io.Writer, run results.Run, checks []results.Check) error {
	var b bytes.Buffer
	p := message.NewPrinter(language.English)

	p.Fprintf(&b, "%-10s%s\n", "run:", run.ID)
	p.Fprintf(&b, "%-10s%s\n", "scenario:", run.Scenario)
	p.Fprintf(&b, "%-10s%s\n", "status:", strings.ToUpper(run.Status))
	p.Fprintf(&b, "%-10s%s\n", "started:", formatTime(run.StartedAt))
	if !run.FinishedAt.IsZero() {
		p.Fprintf(&b, "%-10s%s (%s)\n", "finished:",
			formatTime(run.FinishedAt), run.FinishedAt.Sub(run.StartedAt))
	}
	p.Fprintf(&b, "%-10s%d records (seed %s)\n", "volume:",
		run.Volume, strconv.FormatUint(run.Seed, 10))
	if run.SourceSHA256 != "" {
		p.Fprintf(&b, "%-10s%s\n", "sha256:", run.SourceSHA256)
	}
	if !run.FinishedAt.IsZero() {
		p.Fprintf(&b, "%-10ssource %d, target1 %d, target2 %d\n", "lines:",
			run.Counts.Source, run.Counts.Target1, run.Counts.Target2)
		split := splitOf(run)
		p.Fprintf(&b, "%-10s%.1f%% / %.1f%%\n", "split:",
			split.Target1Pct, split.Target2Pct)
		p.Fprintf(&b, "%-10s%s\n", "order:", orderWord(run.OrderPreserved))
	}
	if run.Failure != "" {
		p.Fprintf(&b, "%-10s%s\n", "failure:", run.Failure)
	}

	if len(checks) > 0 {
		b.WriteString("checks:\n")
		for _, c := range checks {
			line := fmt.Sprintf("  %d. %-14s%s", c.Seq, c.Name, c.Status)
			if c.Code != "" {
				line += fmt.Sprintf("  [%s]", c.Code)
			}
			if c.Detail != "" {
				line += "  " + c.Detail
			}
			b.WriteString(line + "\n")
		}
	}

	_, err := w.Write(b.Bytes())
	return err
}

// RenderList writes the run index table, newest first as listed.
func RenderList(w io.Writer, runs []results.Run) error {
	var b bytes.Buffer
	p := message.NewPrinter(language.English)

	const row = "%-36s  %-16s  %-7s  %-20s  %9s\n"
	fmt.Fprintf(&b, row, "RUN", "SCENARIO", "STATUS", "STARTED", "LINES")
	for _, run := range runs {
		lines := "-"
		if !run.FinishedAt.IsZero() {
			lines = p.Sprintf("%d", run.Counts.Total)
		}
		fmt.Fprintf(&b, row,
			run.ID, run.Scenario, run.Status, formatTime(run.StartedAt), lines)
	}

	_, err := w.Write(b.Bytes())
	return err
}

// splitOf recomputes display percentages from the stored permille
// values so render and storage never disagree.
func splitOf(run results.Run) verify.Split {
	return verify.Split{
		Target1Pct: float64(run.SplitT1Permille) / 10,
		Target2Pct: float64(run.SplitT2Permille) / 10,
	}
}

func orderWord(preserved bool) string {
	if preserved {
		return "preserved"
	}
	return "reordered"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
