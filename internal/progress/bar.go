package progress

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// BarSize is the number of columns between the brackets.
const BarSize = 40

// Bar redraws a single-line "  [####    ]42%" bar in place using
// backspaces.
type Bar struct {
	w     io.Writer
	total int64
	drawn int
	last  int
}

// NewBar returns a Bar that draws on w.
func NewBar(w io.Writer) *Bar {
	return &Bar{w: w, last: -1}
}

// Render returns the bar text for pct (clamped to 0..100).
func Render(pct float64) string {
	pct = math.Max(0, math.Min(100, pct))
	full := int(BarSize * (pct / 100.0))
	return fmt.Sprintf("  [%s%s]%d%%",
		strings.Repeat("#", full),
		strings.Repeat(" ", BarSize-full),
		int(math.Round(pct)))
}

// Print erases the previous render and draws pct.
func (b *Bar) Print(pct float64) {
	b.Erase()
	s := Render(pct)
	_, _ = io.WriteString(b.w, s)
	b.drawn = len(s)
}

// Erase moves the cursor back over the last render.
func (b *Bar) Erase() {
	if b.drawn == 0 {
		return
	}
	_, _ = io.WriteString(b.w, strings.Repeat("\b", b.drawn))
	b.drawn = 0
}

func (b *Bar) Start(_ string, total int64) {
	b.total = total
	b.last = -1
	b.drawn = 0
	b.Print(0)
	b.last = 0
}

// Update redraws only when the whole-number percentage changes.
func (b *Bar) Update(transferred int64) {
	pct := Percent(transferred, b.total)
	if int(pct) == b.last {
		return
	}
	b.last = int(pct)
	b.Print(pct)
}

func (b *Bar) Done(transferred int64) {
	b.Print(Percent(transferred, b.total))
	_, _ = io.WriteString(b.w, "\n")
	b.drawn = 0
}
