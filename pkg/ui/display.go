package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"mfpget/internal/downloader"
)

const (
	redrawInterval  = 150 * time.Millisecond
	defaultBarWidth = 24
	maxLabelWidth   = 36
)

// Display renders one progress line per pool slot, redrawing in place on a
// fixed interval. It only reads slot snapshots; all mutation happens inside
// the pool.
type Display struct {
	pool     *downloader.SlotPool
	out      io.Writer
	stop     chan struct{}
	wg       sync.WaitGroup
	drawnYet bool
}

// NewDisplay creates a display over the pool, writing to out
func NewDisplay(pool *downloader.SlotPool, out io.Writer) *Display {
	if out == nil {
		out = os.Stdout
	}
	return &Display{
		pool: pool,
		out:  out,
		stop: make(chan struct{}),
	}
}

// Start begins the redraw loop
func (d *Display) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(redrawInterval)
		defer ticker.Stop()

		fmt.Fprint(d.out, "\033[?25l") // hide cursor
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				d.draw()
			}
		}
	}()
}

// Stop halts the loop, draws a final frame and restores the cursor
func (d *Display) Stop() {
	close(d.stop)
	d.wg.Wait()
	d.draw()
	fmt.Fprint(d.out, "\033[?25h\n")
}

// draw repaints one line per slot, moving the cursor back up between frames
func (d *Display) draw() {
	slots := d.pool.Snapshot()

	if d.drawnYet {
		fmt.Fprintf(d.out, "\033[%dA", len(slots))
	}
	d.drawnYet = true

	width := d.barWidth()
	for _, s := range slots {
		fmt.Fprintf(d.out, "\r\033[K%s\n", renderSlot(s, width))
	}
}

// barWidth fits the bar to the terminal when one is attached
func (d *Display) barWidth() int {
	f, ok := d.out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultBarWidth
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil || cols < maxLabelWidth+defaultBarWidth+24 {
		return defaultBarWidth
	}
	return cols - maxLabelWidth - 24
}

// renderSlot formats a single slot line
func renderSlot(s downloader.Slot, barWidth int) string {
	if !s.Busy || s.Label == "" {
		return fmt.Sprintf("  %s", Dim(fmt.Sprintf("[%d] idle", s.Index)))
	}

	label := s.Label
	if runes := []rune(label); len(runes) > maxLabelWidth {
		label = "…" + string(runes[len(runes)-maxLabelWidth+1:])
	}

	progress := 0.0
	if s.Total > 0 {
		progress = float64(s.Written) / float64(s.Total)
		if progress > 1 {
			progress = 1
		}
	}
	filled := int(progress * float64(barWidth))
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	return fmt.Sprintf("  [%d] %-*s [%s] %5.1f%% %s / %s",
		s.Index,
		maxLabelWidth, label,
		bar,
		progress*100,
		formatBytes(s.Written),
		formatBytes(s.Total),
	)
}

// formatBytes formats bytes in a human-readable way
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
