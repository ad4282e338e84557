package ui

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/view"
)

var ansiRegexp = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string { return ansiRegexp.ReplaceAllString(s, "") }

func visibleWidth(s string) int { return utf8.RuneCountInString(stripANSI(s)) }

const maxTextWidth = 80

// ProgressBar renders a Unicode progress bar with percentage.
func ProgressBar(done, total, width int) string {
	if total <= 0 {
		total = 1
	}
	if width < 5 {
		width = 5
	}
	filled := int(float64(done) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	pct := int(float64(done) / float64(total) * 100)
	return fmt.Sprintf("%s %3d%%", bar, pct)
}

// Panel draws a framed box using the current theme.
func Panel(w io.Writer, lines []string) {
	t := Current()
	maxw := 0
	for _, ln := range lines {
		maxw = max(maxw, visibleWidth(ln))
	}
	pad := func(s string) string {
		if vis := visibleWidth(s); vis < maxw {
			s += strings.Repeat(" ", maxw-vis)
		}
		return s
	}
	fmt.Fprintln(w, t.CornerTL+strings.Repeat(t.H, maxw+2)+t.CornerTR)
	for _, ln := range lines {
		fmt.Fprintln(w, t.V+" "+pad(ln)+" "+t.V)
	}
	fmt.Fprintln(w, t.CornerBL+strings.Repeat(t.H, maxw+2)+t.CornerBR)
}

// Header is the title line with live counts.
func Header(title string, c view.Counts) string {
	t := Current()
	return fmt.Sprintf("%s  %s %d  %s %d  %s %d",
		C(t.Title, title),
		C(t.Success, t.SymDone), c.Done,
		C(t.Pending, t.SymUnchecked), c.Pending,
		C(t.Accent, "Total"), c.Total,
	)
}

// ViewLines renders v grouped into Active and Completed. Rows are numbered
// from 1 in the order of v.Rows so the numbers can be fed back to commands.
func ViewLines(title string, v view.View) []string {
	t := Current()
	lines := []string{
		Header(title, v.Counts),
		C(t.Muted, ProgressBar(v.Counts.Done, v.Counts.Total, 28)),
	}
	if v.Query != "" {
		lines = append(lines, C(t.Muted, fmt.Sprintf("search %q: %d of %d", v.Query, v.Matched(), v.Counts.Total)))
	}
	lines = append(lines, "")

	n := 0
	section := func(name string, items []model.Todo) {
		lines = append(lines, C(t.Accent, name))
		if len(items) == 0 {
			lines = append(lines, C(t.Muted, "(none)"))
			return
		}
		for _, it := range items {
			n++
			lines = append(lines, itemLine(n, it))
		}
	}
	section("Active", v.Active)
	lines = append(lines, "")
	section("Completed", v.Completed)
	return lines
}

func itemLine(n int, it model.Todo) string {
	t := Current()
	box, color := t.BoxUnchecked, t.Muted
	if it.Completed {
		box, color = t.BoxChecked, t.Success
	}
	return fmt.Sprintf("%s %s %s", C(dim, fmt.Sprintf("%2d.", n)), C(color, box), Truncate(it.Text, maxTextWidth))
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// RenderView draws v inside a panel.
func RenderView(w io.Writer, title string, v view.View) {
	lines := ViewLines(title, v)
	if v.Counts.Total == 0 {
		lines = append(lines, "", C(Current().Muted, "Tip: add with `tada add \"Buy milk\"`"))
	}
	Panel(w, lines)
}

// Lists renders list names with their ids, marking the active one.
func Lists(w io.Writer, lists []model.List, active string) {
	t := Current()
	if len(lists) == 0 {
		fmt.Fprintln(w, C(t.Muted, "no lists"))
		return
	}
	for _, l := range lists {
		mark := " "
		if l.ID == active {
			mark = C(t.Accent, ">")
		}
		fmt.Fprintf(w, "%s %s  %s\n", mark, l.Name, C(t.Muted, l.ID))
	}
}
