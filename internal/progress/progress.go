// Package progress reports how far a file transfer has got, either as a
// redrawn terminal bar or as periodic log lines.
package progress

import (
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// Reporter receives transfer progress for one file at a time.
type Reporter interface {
	Start(name string, total int64)
	Update(transferred int64)
	Done(transferred int64)
}

// NewReporter returns a Bar drawing on out when out is a terminal and a
// log-based reporter otherwise.
func NewReporter(out *os.File, sugar *zap.SugaredLogger) Reporter {
	if out != nil && term.IsTerminal(int(out.Fd())) {
		return NewBar(out)
	}
	return NewLogReporter(sugar, DefaultLogInterval)
}

// Reader counts the bytes read through it and forwards the running total
// to a Reporter.
type Reader struct {
	r        io.Reader
	reporter Reporter

	mu          sync.Mutex
	transferred int64
}

// NewReader wraps r. A nil reporter discards progress.
func NewReader(r io.Reader, reporter Reporter) *Reader {
	if reporter == nil {
		reporter = Discard
	}
	return &Reader{r: r, reporter: reporter}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.mu.Lock()
		pr.transferred += int64(n)
		total := pr.transferred
		pr.mu.Unlock()
		pr.reporter.Update(total)
	}
	return n, err
}

// Transferred returns the number of bytes read so far.
func (pr *Reader) Transferred() int64 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.transferred
}

// Discard is a Reporter that ignores everything.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Start(string, int64) {}
func (discard) Update(int64)        {}
func (discard) Done(int64)          {}

// DefaultLogInterval is the minimum time between two progress log lines.
const DefaultLogInterval = 5 * time.Second

// LogReporter writes progress through zap, at most once per interval plus
// a final line on completion.
type LogReporter struct {
	sugar    *zap.SugaredLogger
	interval time.Duration
	now      func() time.Time

	name       string
	total      int64
	startTime  time.Time
	lastReport time.Time
}

// NewLogReporter returns a LogReporter; a nil logger discards output.
func NewLogReporter(sugar *zap.SugaredLogger, interval time.Duration) *LogReporter {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	return &LogReporter{sugar: sugar, interval: interval, now: time.Now}
}

func (lr *LogReporter) Start(name string, total int64) {
	lr.name = name
	lr.total = total
	lr.startTime = lr.now()
	lr.lastReport = lr.startTime
}

func (lr *LogReporter) Update(transferred int64) {
	now := lr.now()
	if now.Sub(lr.lastReport) < lr.interval || transferred >= lr.total {
		return
	}
	lr.lastReport = now

	elapsed := now.Sub(lr.startTime).Seconds()
	transferredMB := float64(transferred) / 1024 / 1024
	lr.sugar.Infof("Upload progress %s: %.1f%% (%.2f/%.2f MB, %.2f MB/s)",
		lr.name, Percent(transferred, lr.total), transferredMB,
		float64(lr.total)/1024/1024, transferredMB/elapsed)
}

func (lr *LogReporter) Done(transferred int64) {
	elapsed := lr.now().Sub(lr.startTime).Seconds()
	sizeMB := float64(transferred) / 1024 / 1024
	if elapsed > 0 {
		lr.sugar.Infof("Upload completed %s: %.2f MB (%.2f MB/s)", lr.name, sizeMB, sizeMB/elapsed)
		return
	}
	lr.sugar.Infof("Upload completed %s: %.2f MB", lr.name, sizeMB)
}

// Percent returns transferred as a percentage of total. An empty total
// counts as complete.
func Percent(transferred, total int64) float64 {
	if total <= 0 {
		return 100
	}
	pct := float64(transferred) * 100 / float64(total)
	if pct > 100 {
		return 100
	}
	return pct
}
