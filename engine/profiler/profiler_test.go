package profiler

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-ldr/engine/orchestrator"
	"github.com/stretchr/testify/assert"
)

func TestTickWaitsForInterval(t *testing.T) {
	var buf bytes.Buffer
	p := NewProfiler(WithOutput(&buf), WithUpdateInterval(time.Hour))

	assert.False(t, p.Tick(orchestrator.Stats{Instances: 10}))
	assert.False(t, p.Tick(orchestrator.Stats{Instances: 10}))
	assert.Empty(t, buf.String())
}

func TestTickAveragesReadBackCounts(t *testing.T) {
	var buf bytes.Buffer
	p := NewProfiler(WithOutput(&buf), WithUpdateInterval(time.Hour))

	p.Tick(orchestrator.Stats{Instances: 50, Visible: 10, NewlyVisible: 2, CountsKnown: true, Strategy: orchestrator.StrategyReadback})
	p.Tick(orchestrator.Stats{Instances: 50, Visible: 20, NewlyVisible: 4, CountsKnown: true, Strategy: orchestrator.StrategyReadback})
	p.Tick(orchestrator.Stats{Instances: 50, Skipped: true, Strategy: orchestrator.StrategyReadback})

	p.updateInterval = 0
	assert.True(t, p.Tick(orchestrator.Stats{Instances: 50, Visible: 30, NewlyVisible: 0, CountsKnown: true, Strategy: orchestrator.StrategyReadback}))

	out := buf.String()
	assert.Contains(t, out, "[Profiler]")
	assert.Contains(t, out, "Instances: 50")
	assert.Contains(t, out, "Drawn: 20 + 2")
	assert.Contains(t, out, orchestrator.StrategyReadback.String())
	assert.Contains(t, out, "Skipped: 1")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestTickResetsAfterSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewProfiler(WithOutput(&buf), WithUpdateInterval(0))

	assert.True(t, p.Tick(orchestrator.Stats{Instances: 3, Skipped: true}))
	assert.Contains(t, buf.String(), "Skipped: 1")
	assert.Zero(t, p.skipped)
	assert.Zero(t, p.frameCount)

	buf.Reset()
	assert.True(t, p.Tick(orchestrator.Stats{Instances: 3, Strategy: orchestrator.StrategyIndirectCount}))
	out := buf.String()
	assert.NotContains(t, out, "Skipped")
	assert.Contains(t, out, "n/a")
}
