// Package dashboard renders a live terminal view of a replay.
package dashboard

import (
	"fmt"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"

	"github.com/torosent/tracefire/internal/metrics"
)

const refreshInterval = 500 * time.Millisecond

// Dashboard owns the terminal while a replay runs.
type Dashboard struct {
	collector *metrics.Collector
	cfg       ReplayConfig
	onQuit    func()
	started   time.Time

	mu   sync.Mutex // guards view and grid
	view *view
	grid *ui.Grid

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New takes over the terminal. onQuit runs when the user presses q or
// Ctrl-C; the dashboard itself keeps rendering until Stop.
func New(collector *metrics.Collector, cfg ReplayConfig, onQuit func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("initialize terminal: %w", err)
	}
	v := newView()
	return &Dashboard{
		collector: collector,
		cfg:       cfg,
		onQuit:    onQuit,
		started:   time.Now(),
		view:      v,
		grid:      v.layout(ui.TerminalDimensions()),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start begins the refresh loop.
func (d *Dashboard) Start() {
	go d.loop()
}

// Stop ends the refresh loop and restores the terminal.
func (d *Dashboard) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
		<-d.done
		ui.Close()
	})
}

func (d *Dashboard) loop() {
	defer close(d.done)

	tick := time.NewTicker(refreshInterval)
	defer tick.Stop()
	events := ui.PollEvents()
	d.render()

	for {
		select {
		case <-d.quit:
			return
		case <-tick.C:
			d.refresh()
			d.render()
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				if d.onQuit != nil {
					d.onQuit()
				}
			case "<Resize>":
				r := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid = d.view.layout(r.Width, r.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		}
	}
}

func (d *Dashboard) refresh() {
	elapsed := time.Since(d.started)
	stats := d.collector.Stats(elapsed)
	d.mu.Lock()
	d.view.apply(d.cfg, stats, elapsed)
	d.mu.Unlock()
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()
	ui.Render(d.grid)
}
