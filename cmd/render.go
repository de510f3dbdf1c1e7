package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/linkmapper/internal/app"
	"github.com/JakeFAU/linkmapper/internal/router"
	"github.com/JakeFAU/linkmapper/internal/scraper"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

// renderRoutes prints the routing table, optionally filtered to one family.
func renderRoutes(w io.Writer, crawler string) {
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Key", "Crawler", "Download"})
	for i, r := range router.Routes() {
		if crawler != "" && r.Crawler != crawler {
			continue
		}
		t.AppendRow(table.Row{i + 1, r.Key, r.Crawler, r.Download})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d families", len(router.Families())), ""})
	t.Render()
}

// renderSummary prints the outcome counters, handler bindings and download totals.
func renderSummary(w io.Writer, s app.Summary) {
	fmt.Fprintf(w, "Run %s: %s, %d links loaded in %s\n", s.RunID, s.State, s.Loaded, s.Elapsed.Round(time.Millisecond))

	outcomes := newTable(w)
	outcomes.AppendHeader(table.Row{"Outcome", "Count"})
	outcomes.AppendRows([]table.Row{
		{"Routed", s.Stats.TotalRouted()},
		{"Direct files", s.Stats.DirectFiles},
		{"Delegated", s.Stats.Delegated},
		{"Unsupported", s.Stats.Unsupported},
		{"Skipped", s.Stats.Skipped},
		{"Dropped", s.Stats.Dropped},
		{"Rerouted", s.Stats.Rerouted},
	})
	outcomes.Render()

	if len(s.Stats.Routed) > 0 {
		keys := make([]scraper.DomainKey, 0, len(s.Stats.Routed))
		for k := range s.Stats.Routed {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		routed := newTable(w)
		routed.AppendHeader(table.Row{"Key", "Routed"})
		for _, k := range keys {
			routed.AppendRow(table.Row{k, s.Stats.Routed[k]})
		}
		routed.Render()
	}

	if len(s.Handlers) > 0 || len(s.Failed) > 0 {
		handlers := newTable(w)
		handlers.AppendHeader(table.Row{"Handler", "Key", "Complete", "Queued"})
		for _, b := range s.Handlers {
			handlers.AppendRow(table.Row{b.Crawler, b.Key, b.Complete, b.Queued})
		}
		for _, family := range s.Failed {
			handlers.AppendRow(table.Row{family, "-", "failed", "-"})
		}
		handlers.Render()
	}

	if len(s.Downloads) > 0 {
		names := make([]string, 0, len(s.Downloads))
		for name := range s.Downloads {
			names = append(names, name)
		}
		sort.Strings(names)
		downloads := newTable(w)
		downloads.AppendHeader(table.Row{"Download queue", "Items"})
		for _, name := range names {
			downloads.AppendRow(table.Row{name, s.Downloads[name]})
		}
		downloads.Render()
	}
}
