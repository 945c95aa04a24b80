package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mmackelprang/BTSimulator/scanner"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter renders a single-line countdown with the current scan
// phase, redrawn in place:
//
//	p := NewProgressPrinter("Scanning for devices", "Scanning", 10*time.Second)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use: Start at most once, then Stop. Stop is
// safe to call repeatedly; skipping it leaks the refresh goroutine.
type ProgressPrinter struct {
	prefix    string
	duration  time.Duration
	phase     atomic.Value // current phase label
	startTime time.Time
	ticker    atomic.Pointer[time.Ticker]
	stopChan  chan struct{}
	done      chan struct{}
	started   atomic.Bool
}

// NewProgressPrinter creates a printer counting down the discovery window of
// the given duration. After the window elapses the line keeps showing the
// live phase without a counter, covering the resolution tail.
func NewProgressPrinter(prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := &ProgressPrinter{prefix: prefix, duration: duration}
	p.phase.Store(phase)
	return p
}

// Start begins redrawing in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	p.redraw()
	go p.loop(ticker)
}

// Callback adapts the printer to the scanner's progress hook. Safe to call
// from any goroutine.
func (p *ProgressPrinter) Callback() scanner.ProgressCallback {
	return func(phase string) {
		p.phase.Store(phase)
	}
}

func (p *ProgressPrinter) loop(ticker *time.Ticker) {
	defer close(p.done)
	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.redraw()
		}
	}
}

func (p *ProgressPrinter) redraw() {
	phase := p.phase.Load().(string)
	remaining := p.duration - time.Since(p.startTime)
	if remaining > 0 {
		// Round to the nearest whole second for a steady countdown.
		fmt.Printf("\r%s (%s %ds)   ", p.prefix, phase, int(remaining.Seconds()+0.5))
		return
	}
	fmt.Printf("\r%s (%s...)   ", p.prefix, phase)
}

// Stop halts redrawing and clears the line. Only the first call stops the
// ticker and waits for the goroutine; later calls return immediately.
func (p *ProgressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	fmt.Print(clearLineSequence)
}
