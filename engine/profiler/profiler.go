package profiler

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-ldr/engine/orchestrator"
	"github.com/muesli/termenv"
)

// Profiler tracks frame rate, culling and memory statistics for performance monitoring.
// Outputs a styled summary line at a configurable interval.
type Profiler struct {
	out            *termenv.Output
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	// culling accumulators, reset with the frame count
	instances     int
	strategy      orchestrator.StrategyKind
	countedFrames int
	visibleSum    uint64
	newlySum      uint64
	skipped       int
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second and output goes to stderr.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		out:            termenv.NewOutput(os.Stderr),
		frameCount:     0,
		lastTime:       time.Now(),
		updateInterval: time.Second,
		memStats:       runtime.MemStats{},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Tick should be called once per frame with the frame's statistics.
// Prints a summary when the update interval has elapsed: FPS, instance count, average visible and
// newly visible draws (when the counts were read back), skipped frames, heap usage and GC pauses.
//
// Parameters:
//   - stats: the statistics published by the frame orchestrator
//
// Returns:
//   - bool: true if stats were printed this tick, false otherwise
func (p *Profiler) Tick(stats orchestrator.Stats) bool {
	p.record(stats)

	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / max(elapsed.Seconds(), 1e-9)

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / max(elapsed.Seconds(), 1e-9)

	gcCount := p.memStats.NumGC
	var maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	fmt.Fprintln(p.out, p.summary(fps, allocMB, allocRateMB, gcCount, maxPauseUs))

	p.frameCount = 0
	p.countedFrames = 0
	p.visibleSum = 0
	p.newlySum = 0
	p.skipped = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

func (p *Profiler) record(stats orchestrator.Stats) {
	p.frameCount++
	p.instances = stats.Instances
	p.strategy = stats.Strategy
	if stats.Skipped {
		p.skipped++
		return
	}
	if stats.CountsKnown {
		p.countedFrames++
		p.visibleSum += uint64(stats.Visible)
		p.newlySum += uint64(stats.NewlyVisible)
	}
}

// summary renders one styled line. Draw counts are averaged over the frames that read them back.
func (p *Profiler) summary(fps, allocMB, allocRateMB float64, gcCount uint32, maxPauseUs uint64) string {
	label := p.out.String("[Profiler]").Bold().Foreground(p.out.Color("6"))
	fpsStyle := p.out.String(fmt.Sprintf("%.2f", fps)).Bold()
	switch {
	case fps < 30:
		fpsStyle = fpsStyle.Foreground(p.out.Color("1"))
	case fps < 55:
		fpsStyle = fpsStyle.Foreground(p.out.Color("3"))
	default:
		fpsStyle = fpsStyle.Foreground(p.out.Color("2"))
	}

	draws := p.out.String("n/a").Faint().String()
	if p.countedFrames > 0 {
		draws = fmt.Sprintf("%d + %d",
			p.visibleSum/uint64(p.countedFrames), p.newlySum/uint64(p.countedFrames))
	}

	line := fmt.Sprintf("%s FPS: %s | Instances: %d | Drawn: %s (%s) | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (max: %d µs)",
		label, fpsStyle, p.instances, draws, p.strategy, allocMB, allocRateMB, gcCount, maxPauseUs)
	if p.skipped > 0 {
		line += " | " + p.out.String(fmt.Sprintf("Skipped: %d", p.skipped)).Foreground(p.out.Color("1")).String()
	}
	return line
}
