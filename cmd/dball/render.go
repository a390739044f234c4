package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"dball/internal/draw"
)

// palette colors terminal output; the zero value prints plain text.
type palette struct {
	enabled bool
}

func paletteFor(w io.Writer) palette {
	file, ok := w.(*os.File)
	if !ok {
		return palette{}
	}
	fd := file.Fd()
	return palette{enabled: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

func (p palette) paint(colors text.Colors, s string) string {
	if !p.enabled || s == "" {
		return s
	}
	return colors.Sprint(s)
}

var (
	redBall  = text.Colors{text.FgHiRed}
	blueBall = text.Colors{text.FgHiBlue}
)

// ballCells splits a draw into its red and blue columns, zero padded the way
// tickets print them.
func ballCells(n draw.Numbers, p palette) (string, string) {
	reds := make([]string, len(n.Red))
	for i, r := range n.Red {
		reds[i] = fmt.Sprintf("%02d", r)
	}
	return p.paint(redBall, strings.Join(reds, " ")), p.paint(blueBall, fmt.Sprintf("%02d", n.Blue))
}

func prizeCell(e draw.Entry, p palette) string {
	switch {
	case e.Deprecated:
		return "deprecated"
	case !e.Settled:
		return "pending"
	case e.PrizeLevel == draw.NoPrize:
		return draw.PrizeName(e.PrizeLevel)
	default:
		name := fmt.Sprintf("%s (%d)", draw.PrizeName(e.PrizeLevel), e.Return())
		return p.paint(text.Colors{text.FgGreen, text.Bold}, name)
	}
}

func newTableWriter() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	return tw
}

// renderEntries prints one row per entry with a footer totalling cost and
// winnings.
func renderEntries(entries []draw.Entry, p palette) string {
	tw := newTableWriter()
	tw.AppendHeader(table.Row{"ID", "Batch", "Period", "Red", "Blue", "x", "Cost", "Prize"})

	var cost, won int64
	for _, e := range entries {
		red, blue := ballCells(e.Numbers, p)
		tw.AppendRow(table.Row{e.ID, e.Batch, e.Period, red, blue, e.Multiplier, e.Cost(), prizeCell(e, p)})
		cost += e.Cost()
		won += e.Return()
	}
	tw.AppendFooter(table.Row{"", "", strconv.Itoa(len(entries)) + " entries", "", "", "", cost, fmt.Sprintf("won %d", won)})

	right := []int{1, 2, 6, 7}
	configs := make([]table.ColumnConfig, 0, len(right))
	for _, n := range right {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignFooter: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render() + "\n"
}

// renderSnapshot prints the daemon's state as a two column field list.
func renderSnapshot(v *stateView, p palette) string {
	tw := newTableWriter()
	tw.AppendHeader(table.Row{"Field", "Value"})
	for _, row := range v.rows(p) {
		tw.AppendRow(row)
	}
	return tw.Render() + "\n"
}

// health grades the upstream draw provider from its rolling call stats.
type health int

const (
	healthUnknown health = iota
	healthGood
	healthDegraded
	healthDown
)

func providerHealth(api apiView) health {
	switch {
	case api.LastSuccess == "" && api.SuccessRate == 0:
		return healthUnknown
	case api.SuccessRate >= 0.9:
		return healthGood
	case api.SuccessRate >= 0.5:
		return healthDegraded
	default:
		return healthDown
	}
}

func (h health) String() string {
	switch h {
	case healthGood:
		return "healthy"
	case healthDegraded:
		return "degraded"
	case healthDown:
		return "failing"
	default:
		return "no calls yet"
	}
}

func (h health) colors() text.Colors {
	switch h {
	case healthGood:
		return text.Colors{text.FgGreen}
	case healthDegraded:
		return text.Colors{text.FgYellow}
	case healthDown:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{text.FgHiBlack}
	}
}

func providerLine(api apiView, p palette) string {
	h := providerHealth(api)
	parts := []string{p.paint(h.colors(), h.String())}
	if h != healthUnknown {
		parts = append(parts,
			fmt.Sprintf("%.0f%% success", api.SuccessRate*100),
			fmt.Sprintf("avg %.3fs", api.AverageResponseTime))
	}
	if api.LastSuccess != "" {
		parts = append(parts, "last ok "+api.LastSuccess)
	}
	return strings.Join(parts, ", ")
}

func writeHeading(w io.Writer, title string, p palette) {
	fmt.Fprintln(w, p.paint(text.Colors{text.Bold}, title))
}

func writeField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-10s %s\n", label, value)
}
