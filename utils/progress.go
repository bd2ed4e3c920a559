package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// ReportThreshold is how many bytes must accumulate before progress is reported again
const ReportThreshold = 1 << 20

// ProgressTracker reports coarse download progress: once every time more than
// ReportThreshold bytes have arrived since the previous report.
type ProgressTracker struct {
	bar         *pb.ProgressBar
	startTime   time.Time
	total       int64
	current     int64
	sinceReport int64
	reports     int
	onReport    func(current int64)
	mutex       sync.Mutex
}

// DownloadSummary contains final download statistics
type DownloadSummary struct {
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed float64 // bytes per second
	Reports      int
	Filename     string
}

// NewProgressTracker creates a tracker writing to stderr; total <= 0 means unknown size
func NewProgressTracker(total int64, quiet bool) *ProgressTracker {
	return NewProgressTrackerWithWriter(total, quiet, os.Stderr)
}

// NewProgressTrackerWithWriter creates a tracker that draws its bar on out
func NewProgressTrackerWithWriter(total int64, quiet bool, out io.Writer) *ProgressTracker {
	tracker := &ProgressTracker{
		startTime: time.Now(),
		total:     total,
	}

	if !quiet {
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }}`
		if total <= 0 {
			tmpl = `{{string . "prefix"}}{{counters . }} {{speed . }}`
		}
		bar := pb.New64(total).
			SetTemplateString(tmpl).
			SetWriter(out).
			Set(pb.Bytes, true).
			Set("prefix", "Downloading: ")
		tracker.bar = bar.Start()
	}

	return tracker
}

// OnReport registers a callback invoked with the cumulative byte count at every report
func (p *ProgressTracker) OnReport(fn func(current int64)) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.onReport = fn
}

// Add records n more bytes and reports when the threshold is crossed.
// It returns true if this call emitted a report.
func (p *ProgressTracker) Add(n int64) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current += n
	p.sinceReport += n
	if p.sinceReport <= ReportThreshold {
		return false
	}

	p.sinceReport = 0
	p.reports++
	if p.bar != nil {
		p.bar.SetCurrent(p.current)
	}
	if p.onReport != nil {
		p.onReport(p.current)
	}
	return true
}

// Finish completes the progress bar and returns download summary
func (p *ProgressTracker) Finish() *DownloadSummary {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	totalTime := time.Since(p.startTime)
	if p.bar != nil {
		p.bar.SetCurrent(p.current)
		p.bar.Finish()
	}

	var averageSpeed float64
	if totalTime > 0 {
		averageSpeed = float64(p.current) / totalTime.Seconds()
	}

	return &DownloadSummary{
		TotalBytes:   p.current,
		TotalTime:    totalTime,
		AverageSpeed: averageSpeed,
		Reports:      p.reports,
	}
}

// FormatMegabytes renders a byte count as MB with one decimal
func FormatMegabytes(bytes int64) string {
	return fmt.Sprintf("%.1f MB", float64(bytes)/(1<<20))
}

// formatBytes formats byte count as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// String summarizes the download for the operator
func (s *DownloadSummary) String() string {
	return fmt.Sprintf("%s in %v (%s/s)", formatBytes(s.TotalBytes), s.TotalTime.Round(time.Millisecond), formatBytes(int64(s.AverageSpeed)))
}
