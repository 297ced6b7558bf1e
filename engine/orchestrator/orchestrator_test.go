package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/Carmen-Shannon/oxy-ldr/engine/camera"
	"github.com/Carmen-Shannon/oxy-ldr/engine/culling"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-ldr/engine/renderer/rendertest"
	"github.com/Carmen-Shannon/oxy-ldr/engine/scene"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullCaps = renderer.Capabilities{MultiDrawIndirect: true, MultiDrawIndirectCount: true}

var stagingLabel = "test.ldr " + scene.BufferCompactedCountStaging.String()

var testColors = model.ColorTable{
	4:  {Code: 4, Name: "Red", RGBALinear: [4]float32{1, 0, 0, 1}, EdgeLinear: [4]float32{0.2, 0, 0, 1}},
	47: {Code: 47, Name: "Trans_Clear", RGBALinear: [4]float32{1, 1, 1, 0.5}, EdgeLinear: [4]float32{0.5, 0.5, 0.5, 1}},
}

func testSceneBuffers(t *testing.T, r renderer.Renderer, opaque, transparent int) scene.SceneBuffers {
	t.Helper()
	pos := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	s := model.NewInstancedScene(
		model.WithName("test.ldr"),
		model.WithColorTable(testColors),
		model.WithGeometry(&model.Geometry{
			Name:        "a.dat",
			Positions:   pos,
			Indices:     []uint32{0, 1, 2},
			EdgeIndices: []uint32{0, 1},
			Bounds:      model.BoundsFromPoints(pos),
		}),
	)
	for i := range opaque {
		s.AddInstance(model.GeometryColor{Name: "a.dat", Color: 4}, common.Translation(float32(i), 0, -10))
	}
	for i := range transparent {
		s.AddInstance(model.GeometryColor{Name: "a.dat", Color: 47}, common.Translation(float32(i), 1, -10))
	}
	sb, _, err := scene.Build(r, s, worker.NewDynamicWorkerPool(2, 16, time.Second))
	require.NoError(t, err)
	return sb
}

func newTestOrchestrator(t *testing.T, r *rendertest.Renderer, options ...FrameOrchestratorBuilderOption) (FrameOrchestrator, camera.Camera) {
	t.Helper()
	cam := camera.NewCamera()
	o, err := NewFrameOrchestrator(r, cam, options...)
	require.NoError(t, err)
	return o, cam
}

// trace names every recorded call, using the pipeline key for dispatches.
func trace(r *rendertest.Renderer) []string {
	var out []string
	for _, c := range r.Calls {
		switch c.Op {
		case "DispatchCompute":
			out = append(out, c.Key)
		case "BeginRenderPass":
			out = append(out, fmt.Sprintf("BeginRenderPass(%t)", c.Clear))
		default:
			out = append(out, c.Op)
		}
	}
	return out
}

func pyramidDispatches(width, height int) []string {
	out := []string{culling.PipelineBlitDepth}
	for range len(culling.PyramidLevelSizes(width, height)) - 1 {
		out = append(out, culling.PipelineReduce)
	}
	return out
}

func TestSelectDrawStrategy(t *testing.T) {
	assert.Equal(t, StrategyIndirectCount, SelectDrawStrategy(fullCaps, false).Kind())
	assert.Equal(t, StrategyReadback, SelectDrawStrategy(renderer.Capabilities{MultiDrawIndirect: true}, false).Kind())
	assert.Equal(t, StrategyReadback, SelectDrawStrategy(fullCaps, true).Kind())
	assert.Equal(t, "indirect_count", StrategyIndirectCount.String())
	assert.Equal(t, "readback", StrategyReadback.String())
}

func TestFrameRunsStagesInOrder(t *testing.T) {
	r := rendertest.New(64, 48, fullCaps)
	o, cam := newTestOrchestrator(t, r)
	require.NoError(t, o.SetScene(testSceneBuffers(t, r, 3, 1)))
	r.Reset()

	stats, err := o.Frame()
	require.NoError(t, err)

	want := []string{
		"BeginFrame",
		culling.PipelineScan, culling.PipelineCompact,
		"BeginRenderPass(true)", "DrawIndexedIndirectCount", "DrawIndexedIndirectCount", "DrawIndexedIndirectCount", "EndRenderPass",
	}
	want = append(want, pyramidDispatches(64, 48)...)
	want = append(want,
		culling.PipelineCull,
		culling.PipelineScan, culling.PipelineCompact,
		"BeginRenderPass(false)", "DrawIndexedIndirectCount", "DrawIndexedIndirectCount", "DrawIndexedIndirectCount", "EndRenderPass",
		"EndFrame", "Present",
	)
	assert.Equal(t, want, trace(r))

	draws := r.CallsOf("DrawIndexedIndirectCount")
	require.Len(t, draws, 6)
	for pass := range 2 {
		assert.Equal(t, PipelineSolid, draws[pass*3].Key)
		assert.Equal(t, PipelineEdge, draws[pass*3+1].Key)
		assert.Equal(t, PipelineTransparent, draws[pass*3+2].Key)
	}
	assert.Equal(t, uint32(4), draws[0].Count)
	assert.Equal(t, "test.ldr Compacted Count", draws[0].Label)

	assert.Equal(t, Stats{Instances: 4, Strategy: StrategyIndirectCount}, stats)
	assert.Equal(t, stats, o.Stats())
	assert.Equal(t, StagePresent, o.Stage())
	assert.Len(t, r.Writes[cam.BindGroupProvider().Buffer(0)], 80)
}

func TestFrameWithoutSceneOnlyClears(t *testing.T) {
	r := rendertest.New(32, 32, fullCaps)
	o, _ := newTestOrchestrator(t, r)
	r.Reset()

	stats, err := o.Frame()
	require.NoError(t, err)
	assert.Equal(t, []string{"BeginFrame", "BeginRenderPass(true)", "EndRenderPass", "EndFrame", "Present"}, trace(r))
	assert.Zero(t, stats.Instances)
}

func TestSetSceneNilReleasesCullingResources(t *testing.T) {
	r := rendertest.New(32, 32, fullCaps)
	o, _ := newTestOrchestrator(t, r)
	require.NoError(t, o.SetScene(testSceneBuffers(t, r, 2, 0)))
	r.Reset()

	require.NoError(t, o.SetScene(nil))
	assert.NotEmpty(t, r.CallsOf("Release"))

	r.Reset()
	_, err := o.Frame()
	require.NoError(t, err)
	assert.Empty(t, r.CallsOf("DispatchCompute"))
}

func TestReadbackDrawsWithCPUCount(t *testing.T) {
	r := rendertest.New(64, 48, renderer.Capabilities{})
	o, _ := newTestOrchestrator(t, r)
	require.Equal(t, StrategyReadback, o.Strategy().Kind())
	require.NoError(t, o.SetScene(testSceneBuffers(t, r, 3, 1)))
	r.ReadResult[stagingLabel] = common.Uint32sToBytes([]uint32{3})
	r.Reset()

	stats, err := o.Frame()
	require.NoError(t, err)

	copies := r.CallsOf("CopyBufferToBuffer")
	require.Len(t, copies, 2)
	assert.Equal(t, "test.ldr Compacted Count->"+stagingLabel, copies[0].Label)
	assert.Equal(t, uint32(4), copies[0].Count)
	assert.Len(t, r.CallsOf("Flush"), 2)
	assert.Len(t, r.CallsOf("ReadBuffer"), 2)
	assert.Empty(t, r.CallsOf("DrawIndexedIndirectCount"))

	draws := r.CallsOf("DrawIndexedIndirect")
	require.Len(t, draws, 6)
	for _, d := range draws {
		assert.Equal(t, uint32(3), d.Count)
	}
	assert.Equal(t, Stats{Instances: 4, Visible: 3, NewlyVisible: 3, CountsKnown: true, Strategy: StrategyReadback}, stats)

	// The count is read after the compaction it depends on and before the pass that uses it.
	ops := trace(r)
	assert.Equal(t, []string{culling.PipelineScan, culling.PipelineCompact, "CopyBufferToBuffer", "Flush", "ReadBuffer", "BeginRenderPass(true)"}, ops[1:7])
}

func TestReadbackFailureKeepsPreviousCount(t *testing.T) {
	r := rendertest.New(64, 48, renderer.Capabilities{})
	o, _ := newTestOrchestrator(t, r)
	require.NoError(t, o.SetScene(testSceneBuffers(t, r, 4, 0)))
	r.ReadResult[stagingLabel] = common.Uint32sToBytes([]uint32{2})
	_, err := o.Frame()
	require.NoError(t, err)

	r.ReadErr = errors.New("map read failed")
	r.Reset()
	stats, err := o.Frame()
	require.NoError(t, err)
	for _, d := range r.CallsOf("DrawIndexedIndirect") {
		assert.Equal(t, uint32(2), d.Count)
	}
	assert.Equal(t, uint32(2), stats.NewlyVisible)

	// A count above the instance count is clamped.
	r.ReadErr = nil
	r.ReadResult[stagingLabel] = common.Uint32sToBytes([]uint32{99})
	r.Reset()
	_, err = o.Frame()
	require.NoError(t, err)
	for _, d := range r.CallsOf("DrawIndexedIndirect") {
		assert.Equal(t, uint32(4), d.Count)
	}
}

func TestForceReadback(t *testing.T) {
	r := rendertest.New(64, 48, fullCaps)
	o, _ := newTestOrchestrator(t, r, WithForceReadback(true))
	assert.Equal(t, StrategyReadback, o.Strategy().Kind())

	require.NoError(t, o.SetScene(testSceneBuffers(t, r, 1, 0)))
	r.Reset()
	_, err := o.Frame()
	require.NoError(t, err)
	assert.Empty(t, r.CallsOf("DrawIndexedIndirectCount"))
	assert.Len(t, r.CallsOf("DrawIndexedIndirect"), 6)
}

func TestReadbackFailureKeepsCountOfSamePass(t *testing.T) {
	r := rendertest.New(64, 48, renderer.Capabilities{})
	o, _ := newTestOrchestrator(t, r)
	require.NoError(t, o.SetScene(testSceneBuffers(t, r, 6, 0)))
	counts := func(n uint32) rendertest.ReadStep {
		return rendertest.ReadStep{Data: common.Uint32sToBytes([]uint32{n})}
	}
	mapFailed := rendertest.ReadStep{Err: errors.New("map read failed")}

	r.ScriptReads(stagingLabel, counts(5), counts(1))
	stats, err := o.Frame()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), stats.Visible)
	assert.Equal(t, uint32(1), stats.NewlyVisible)

	// The first pass falls back to the first pass of the previous frame, not to its last read.
	r.ScriptReads(stagingLabel, mapFailed, counts(2))
	r.Reset()
	stats, err = o.Frame()
	require.NoError(t, err)
	draws := r.CallsOf("DrawIndexedIndirect")
	require.Len(t, draws, 6)
	for _, d := range draws[:3] {
		assert.Equal(t, uint32(5), d.Count)
	}
	for _, d := range draws[3:] {
		assert.Equal(t, uint32(2), d.Count)
	}
	assert.Equal(t, uint32(5), stats.Visible)
	assert.Equal(t, uint32(2), stats.NewlyVisible)

	r.ScriptReads(stagingLabel, counts(3), mapFailed)
	r.Reset()
	stats, err = o.Frame()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), stats.Visible)
	assert.Equal(t, uint32(2), stats.NewlyVisible)
}

func TestSetSceneBindsTransparencyFlags(t *testing.T) {
	r := rendertest.New(32, 32, fullCaps)
	o, _ := newTestOrchestrator(t, r)
	r.Reset()
	sb := testSceneBuffers(t, r, 1, 1)
	require.NoError(t, o.SetScene(sb))

	var labels []string
	for _, c := range r.CallsOf("InitBindGroup") {
		labels = append(labels, c.Label)
	}
	assert.Contains(t, labels, "test.ldr Draw Flags")
}

// gpuModel runs the culling and compaction dispatches on the CPU over the fake's recorded buffer
// contents. Culling takes its per-instance results from a script, one row per frame.
type gpuModel struct {
	*rendertest.Renderer
	sb     scene.SceneBuffers
	passed [][]bool
	frame  int
}

func (g *gpuModel) BeginFrame() error {
	if err := g.Renderer.BeginFrame(); err != nil {
		return err
	}
	g.frame++
	return nil
}

func (g *gpuModel) DispatchCompute(key string, p bind_group_provider.BindGroupProvider, groups [3]uint32) error {
	if err := g.Renderer.DispatchCompute(key, p, groups); err != nil {
		return err
	}
	n := g.sb.InstanceCount()
	switch key {
	case culling.PipelineCull:
		visible := g.Uint32s(g.sb.Buffer(scene.BufferVisible), n)
		newVisible := make([]uint32, n)
		for i := range visible {
			newVisible[i], visible[i] = culling.Transition(g.passed[g.frame-1][i], visible[i])
		}
		g.WriteBuffer(g.sb.Buffer(scene.BufferVisible), 0, common.Uint32sToBytes(visible))
		g.WriteBuffer(g.sb.Buffer(scene.BufferNewVisible), 0, common.Uint32sToBytes(newVisible))
	case culling.PipelineCompact:
		flags := scene.BufferVisible
		if strings.HasSuffix(p.Label(), " "+culling.NewVisible.String()+" Compact") {
			flags = scene.BufferNewVisible
		}
		_, total := culling.ExclusiveScan(g.Uint32s(g.sb.Buffer(flags), n))
		g.WriteBuffer(g.sb.Buffer(scene.BufferCompactedCount), 0, common.Uint32sToBytes([]uint32{total}))
	}
	return nil
}

type frameRecord struct {
	Drawn      [2]uint32
	Visible    []uint32
	NewVisible []uint32
}

// runScripted draws one frame per row of passed and records what each pass drew and the flags
// the frame left behind.
func runScripted(t *testing.T, caps renderer.Capabilities, forceReadback bool, passed [][]bool) []frameRecord {
	t.Helper()
	g := &gpuModel{Renderer: rendertest.New(64, 48, caps), passed: passed}
	o, err := NewFrameOrchestrator(g, camera.NewCamera(), WithForceReadback(forceReadback))
	require.NoError(t, err)
	g.sb = testSceneBuffers(t, g, 3, 1)
	require.NoError(t, o.SetScene(g.sb))

	n := g.sb.InstanceCount()
	var out []frameRecord
	for range passed {
		g.Reset()
		_, err := o.Frame()
		require.NoError(t, err)

		var rec frameRecord
		var solid int
		for _, c := range g.Calls {
			if (c.Op == "DrawIndexedIndirect" || c.Op == "DrawIndexedIndirectCount") && c.Key == PipelineSolid {
				require.Less(t, solid, 2)
				rec.Drawn[solid] = c.Drawn
				solid++
			}
		}
		require.Equal(t, 2, solid)
		rec.Visible = g.Uint32s(g.sb.Buffer(scene.BufferVisible), n)
		rec.NewVisible = g.Uint32s(g.sb.Buffer(scene.BufferNewVisible), n)
		out = append(out, rec)
	}
	return out
}

func TestDrawStrategiesAgree(t *testing.T) {
	passed := [][]bool{
		{true, false, true, true},
		{true, true, false, true},
		{false, true, false, true},
		{false, true, false, true},
	}
	indirect := runScripted(t, fullCaps, false, passed)
	readback := runScripted(t, fullCaps, true, passed)
	assert.Equal(t, indirect, readback)

	var drawn [][2]uint32
	for _, f := range indirect {
		drawn = append(drawn, f.Drawn)
	}
	assert.Equal(t, [][2]uint32{{4, 0}, {3, 1}, {3, 0}, {2, 0}}, drawn)
	assert.Equal(t, []uint32{0, 1, 0, 1}, indirect[3].Visible)
	assert.Equal(t, []uint32{0, 0, 0, 0}, indirect[3].NewVisible)
}

func TestFrameSurfaceErrors(t *testing.T) {
	r := rendertest.New(64, 48, fullCaps)
	o, _ := newTestOrchestrator(t, r)
	require.NoError(t, o.SetScene(testSceneBuffers(t, r, 2, 0)))

	t.Run("outdated reconfigures", func(t *testing.T) {
		r.Reset()
		r.BeginFrameErr = errors.New("Surface texture status: Outdated")
		stats, err := o.Frame()
		require.NoError(t, err)
		assert.True(t, stats.Skipped)
		assert.Contains(t, r.Ops(), "Resize")
		assert.NotContains(t, r.Ops(), "Present")
	})

	t.Run("timeout skips", func(t *testing.T) {
		r.Reset()
		r.BeginFrameErr = errors.New("Surface texture status: Timeout")
		stats, err := o.Frame()
		require.NoError(t, err)
		assert.True(t, stats.Skipped)
		assert.Empty(t, r.Calls)
	})

	t.Run("out of memory is fatal", func(t *testing.T) {
		r.Reset()
		r.BeginFrameErr = errors.New("Surface texture status: OutOfMemory")
		_, err := o.Frame()
		assert.ErrorIs(t, err, ErrSurfaceOutOfMemory)
		assert.Empty(t, r.Calls)
	})

	t.Run("next frame draws", func(t *testing.T) {
		r.Reset()
		stats, err := o.Frame()
		require.NoError(t, err)
		assert.False(t, stats.Skipped)
		assert.Contains(t, r.Ops(), "Present")
	})
}

func TestResizeRebuildsPyramidAndRebindsCulling(t *testing.T) {
	r := rendertest.New(64, 48, fullCaps)
	o, cam := newTestOrchestrator(t, r)
	require.NoError(t, o.SetScene(testSceneBuffers(t, r, 2, 0)))

	require.NoError(t, o.Resize(128, 64))
	assert.InDelta(t, 2.0, cam.Aspect(), 1e-6)

	tw, th, mips := culling.PyramidTextureSize(128, 64)
	assert.Contains(t, maps(r.Textures), [3]uint32{uint32(tw), uint32(th), uint32(mips)})

	r.Reset()
	_, err := o.Frame()
	require.NoError(t, err)
	binds := r.CallsOf("InitBindGroup")
	require.Len(t, binds, 1)
	assert.Equal(t, "test.ldr Cull", binds[0].Label)

	var reduces int
	for _, c := range r.CallsOf("DispatchCompute") {
		if c.Key == culling.PipelineReduce {
			reduces++
		}
	}
	assert.Equal(t, mips-1, reduces)
}

func maps(textures map[*wgpu.Texture][3]uint32) [][3]uint32 {
	out := make([][3]uint32, 0, len(textures))
	for _, dims := range textures {
		out = append(out, dims)
	}
	return out
}

func TestReleasedOrchestratorRejectsFrames(t *testing.T) {
	r := rendertest.New(32, 32, fullCaps)
	o, _ := newTestOrchestrator(t, r)
	o.Release()
	_, err := o.Frame()
	assert.Error(t, err)
	assert.Error(t, o.Resize(64, 64))
}

func TestClassifySurfaceError(t *testing.T) {
	cases := []struct {
		err  error
		want SurfaceAction
	}{
		{nil, SurfaceSkip},
		{errors.New("Surface texture status: Lost"), SurfaceReconfigure},
		{errors.New("surface OUTDATED"), SurfaceReconfigure},
		{errors.New("WGPUSurfaceGetCurrentTextureStatus_OutOfMemory"), SurfaceFatal},
		{fmt.Errorf("frame: %w", ErrSurfaceOutOfMemory), SurfaceFatal},
		{errors.New("Surface texture status: Timeout"), SurfaceSkip},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifySurfaceError(c.err), "%v", c.err)
	}
}

func TestStageOrder(t *testing.T) {
	var got []string
	for s := StageIdle.Next(); s != StageIdle; s = s.Next() {
		got = append(got, s.String())
	}
	assert.Equal(t, []string{
		"SetVisibility(visible)",
		"DrawPreviouslyVisible",
		"BuildDepthPyramid",
		"CullingEngine",
		"SetVisibility(new_visible)",
		"DrawNewlyVisible",
		"Present",
	}, got)
	assert.Equal(t, "Stage(42)", Stage(42).String())
}
