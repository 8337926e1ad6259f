// Package progress renders a live stderr status line for long phases.
package progress

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

const updateInterval = 50 * time.Millisecond

// Bar wraps a progressbar spinner with enabled/disabled handling.
// All methods are no-ops when disabled.
type Bar struct {
	bar  *progressbar.ProgressBar
	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a spinner.
// If enabled=false, returns a Bar where all methods are no-ops.
func New(enabled bool) *Bar {
	if !enabled {
		return &Bar{}
	}

	return &Bar{bar: progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(updateInterval),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(false),
	)}
}

// Watch re-renders s every update interval until Finish is called.
// Counters behind s are updated by workers; the spinner only polls them.
func (b *Bar) Watch(s fmt.Stringer) {
	if b.bar == nil || b.stop != nil {
		return
	}
	b.stop = make(chan struct{})
	b.bar.Describe(s.String()) // Render immediately

	b.wg.Go(func() {
		ticker := time.NewTicker(updateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-b.stop:
				return
			case <-ticker.C:
				b.bar.Describe(s.String())
				_ = b.bar.Add(1) // Advance the spinner frame
			}
		}
	})
}

// Finish stops watching, clears the spinner and prints a final message.
func (b *Bar) Finish(s fmt.Stringer) {
	if b.bar == nil {
		return
	}
	if b.stop != nil {
		close(b.stop)
		b.wg.Wait()
		b.stop = nil
	}
	_ = b.bar.Finish()
	fmt.Fprintln(os.Stderr, "✔ "+s.String())
}
