package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// instanceStructPrefix marks vertex input structs that advance once per instance.
const instanceStructPrefix = "Instance"

var (
	structRegex        = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)
	attributeRegex     = regexp.MustCompile(`@(\w+)\s*(?:\(([^)]*)\))?`)
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(([^)]*)\)`)

	// @group(0) @binding(1) var<storage, read> bounds: array<InstanceBounds>;
	// @group(0) @binding(2) var pyramid: texture_2d<f32>;
	bindingRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)

	entryRegexes = map[ShaderType]*regexp.Regexp{
		ShaderTypeVertex:   regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`),
		ShaderTypeFragment: regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`),
		ShaderTypeCompute:  regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`),
	}

	stageVisibility = map[ShaderType]wgpu.ShaderStage{
		ShaderTypeVertex:   wgpu.ShaderStageVertex,
		ShaderTypeFragment: wgpu.ShaderStageFragment,
		ShaderTypeCompute:  wgpu.ShaderStageCompute,
	}
)

// parsedMember is one member of a WGSL struct declaration.
type parsedMember struct {
	name     string
	typeName string
	location int // -1 without @location
	builtin  bool
}

// parsedStruct is a WGSL struct declaration.
type parsedStruct struct {
	name    string
	members []parsedMember
}

// reflection is everything the renderer reads from one entry point of a WGSL source.
type reflection struct {
	entryPoint string
	workgroup  [3]uint32
	vertex     []wgpu.VertexBufferLayout
	groups     map[int]wgpu.BindGroupLayoutDescriptor
	names      map[int]map[int]string
}

// reflectSource finds the entry point of the given stage and derives the pipeline-facing
// metadata from the declarations. Vertex layouts are only built for vertex shaders and the
// workgroup size only for compute shaders.
//
// Parameters:
//   - source: pre-processed WGSL
//   - stage: the stage whose entry point is reflected
//
// Returns:
//   - reflection: the reflected metadata
//   - error: when the source has no entry point for the stage
func reflectSource(source string, stage ShaderType) (reflection, error) {
	src := stripComments(source)

	re, ok := entryRegexes[stage]
	if !ok {
		return reflection{}, fmt.Errorf("unknown shader type %d", stage)
	}
	m := re.FindStringSubmatch(src)
	if m == nil {
		return reflection{}, fmt.Errorf("no entry point for shader type %d", stage)
	}

	structs := parseStructs(src)
	r := reflection{entryPoint: m[1]}
	switch stage {
	case ShaderTypeVertex:
		r.vertex = vertexLayouts(structs)
	case ShaderTypeCompute:
		r.workgroup = workgroupSize(src)
	}
	r.groups, r.names = bindGroupLayouts(src, newTypeTable(structs), stageVisibility[stage])
	return r, nil
}

func parseStructs(src string) []parsedStruct {
	matches := structRegex.FindAllStringSubmatch(src, -1)
	out := make([]parsedStruct, 0, len(matches))
	for _, m := range matches {
		s := parsedStruct{name: m[1]}
		for _, decl := range splitTopLevel(m[2]) {
			if member, ok := parseMember(decl); ok {
				s.members = append(s.members, member)
			}
		}
		out = append(out, s)
	}
	return out
}

// parseMember reads "@location(2) normal: vec3<f32>" style member declarations.
func parseMember(decl string) (parsedMember, bool) {
	member := parsedMember{location: -1}
	for _, attr := range attributeRegex.FindAllStringSubmatch(decl, -1) {
		switch attr[1] {
		case "builtin":
			member.builtin = true
		case "location":
			if loc, err := strconv.Atoi(strings.TrimSpace(attr[2])); err == nil {
				member.location = loc
			}
		}
	}
	name, typeName, ok := strings.Cut(attributeRegex.ReplaceAllString(decl, ""), ":")
	name, typeName = strings.TrimSpace(name), strings.TrimSpace(typeName)
	if !ok || name == "" || typeName == "" {
		return parsedMember{}, false
	}
	member.name, member.typeName = name, typeName
	return member, true
}

// workgroupSize reads @workgroup_size(x[, y[, z]]). Omitted dimensions are 1.
func workgroupSize(src string) [3]uint32 {
	size := [3]uint32{1, 1, 1}
	m := workgroupSizeRegex.FindStringSubmatch(src)
	if m == nil {
		return size
	}
	for i, dim := range strings.Split(m[1], ",") {
		if i >= len(size) {
			break
		}
		if v, err := strconv.ParseUint(strings.TrimSpace(dim), 10, 32); err == nil {
			size[i] = uint32(v)
		}
	}
	return size
}

// vertexLayouts turns every struct made only of @location members into one vertex buffer, in
// declaration order. Attributes are packed without padding. Structs whose name starts with
// Instance step per instance.
func vertexLayouts(structs []parsedStruct) []wgpu.VertexBufferLayout {
	var out []wgpu.VertexBufferLayout
next:
	for _, s := range structs {
		if len(s.members) == 0 {
			continue
		}
		attrs := make([]wgpu.VertexAttribute, 0, len(s.members))
		var offset uint64
		for _, m := range s.members {
			if m.builtin || m.location < 0 {
				continue next
			}
			format, size, ok := vertexFormat(m.typeName)
			if !ok {
				continue next
			}
			attrs = append(attrs, wgpu.VertexAttribute{
				Format:         format,
				Offset:         offset,
				ShaderLocation: uint32(m.location),
			})
			offset += size
		}

		step := wgpu.VertexStepModeVertex
		if strings.HasPrefix(s.name, instanceStructPrefix) {
			step = wgpu.VertexStepModeInstance
		}
		out = append(out, wgpu.VertexBufferLayout{
			ArrayStride: offset,
			StepMode:    step,
			Attributes:  attrs,
		})
	}
	return out
}

// bindGroupLayouts collects the resource declarations per group, sorted by binding. Buffer
// entries get a MinBindingSize from the bound type so bind groups can be sized from the layout.
//
// Parameters:
//   - src: WGSL without comments
//   - types: the struct layouts of the same source
//   - visibility: the stage flag put on every entry
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: layouts keyed by group index
//   - map[int]map[int]string: variable names keyed by group then binding
func bindGroupLayouts(src string, types *typeTable, visibility wgpu.ShaderStage) (map[int]wgpu.BindGroupLayoutDescriptor, map[int]map[int]string) {
	entries := make(map[int][]wgpu.BindGroupLayoutEntry)
	names := make(map[int]map[int]string)

	for _, m := range bindingRegex.FindAllStringSubmatch(src, -1) {
		group, _ := strconv.Atoi(m[1])
		binding, _ := strconv.Atoi(m[2])
		space, name, typeName := strings.TrimSpace(m[3]), m[4], strings.TrimSpace(m[5])

		entry := wgpu.BindGroupLayoutEntry{Binding: uint32(binding), Visibility: visibility}
		if space != "" {
			entry.Buffer = bufferLayout(space)
			if l, ok := types.layout(typeName); ok {
				entry.Buffer.MinBindingSize = l.size
			}
		} else {
			handleLayout(typeName, &entry)
		}
		entries[group] = append(entries[group], entry)

		if names[group] == nil {
			names[group] = make(map[int]string)
		}
		names[group][binding] = name
	}

	out := make(map[int]wgpu.BindGroupLayoutDescriptor, len(entries))
	for g, e := range entries {
		sort.Slice(e, func(i, j int) bool { return e[i].Binding < e[j].Binding })
		demoteUnfilterableTextures(e)
		out[g] = wgpu.BindGroupLayoutDescriptor{Entries: e}
	}
	return out, names
}

// bufferLayout maps "uniform", "storage" and "storage, read_write" address spaces.
func bufferLayout(space string) wgpu.BufferBindingLayout {
	switch {
	case space == "uniform":
		return wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}
	case strings.HasPrefix(space, "storage") && strings.HasSuffix(space, "read_write"):
		return wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}
	case strings.HasPrefix(space, "storage"):
		return wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}
	}
	return wgpu.BufferBindingLayout{}
}

var (
	viewDimensions = map[string]wgpu.TextureViewDimension{
		"1d":         wgpu.TextureViewDimension1D,
		"2d":         wgpu.TextureViewDimension2D,
		"2d_array":   wgpu.TextureViewDimension2DArray,
		"3d":         wgpu.TextureViewDimension3D,
		"cube":       wgpu.TextureViewDimensionCube,
		"cube_array": wgpu.TextureViewDimensionCubeArray,
	}

	sampleTypes = map[string]wgpu.TextureSampleType{
		"f32": wgpu.TextureSampleTypeFloat,
		"i32": wgpu.TextureSampleTypeSint,
		"u32": wgpu.TextureSampleTypeUint,
	}

	storageAccess = map[string]wgpu.StorageTextureAccess{
		"write":      wgpu.StorageTextureAccessWriteOnly,
		"read":       wgpu.StorageTextureAccessReadOnly,
		"read_write": wgpu.StorageTextureAccessReadWrite,
	}

	// The storage texel formats the pyramid and its debug views use.
	texelFormats = map[string]wgpu.TextureFormat{
		"r32float":    wgpu.TextureFormatR32Float,
		"r32uint":     wgpu.TextureFormatR32Uint,
		"rg32float":   wgpu.TextureFormatRG32Float,
		"rgba8unorm":  wgpu.TextureFormatRGBA8Unorm,
		"rgba16float": wgpu.TextureFormatRGBA16Float,
		"rgba32float": wgpu.TextureFormatRGBA32Float,
	}
)

// handleLayout fills the sampler or texture part of entry from a handle type such as
// "sampler", "texture_depth_multisampled_2d" or "texture_storage_2d<r32float, write>".
func handleLayout(typeName string, entry *wgpu.BindGroupLayoutEntry) {
	base, params := splitTypeParams(typeName)
	switch {
	case base == "sampler":
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	case base == "sampler_comparison":
		entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
	case strings.HasPrefix(base, "texture_storage_"):
		entry.StorageTexture.ViewDimension = viewDimensions[strings.TrimPrefix(base, "texture_storage_")]
		format, access, _ := strings.Cut(params, ",")
		entry.StorageTexture.Format = texelFormats[strings.TrimSpace(format)]
		entry.StorageTexture.Access = storageAccess[strings.TrimSpace(access)]
	case strings.HasPrefix(base, "texture_"):
		dim := strings.TrimPrefix(base, "texture_")
		if d, ok := strings.CutPrefix(dim, "depth_"); ok {
			dim = d
			entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
		} else {
			entry.Texture.SampleType = sampleTypes[params]
		}
		if d, ok := strings.CutPrefix(dim, "multisampled_"); ok {
			dim = d
			entry.Texture.Multisampled = true
		}
		entry.Texture.ViewDimension = viewDimensions[dim]
	}
}

// demoteUnfilterableTextures marks float textures unfilterable when their group has no
// sampler. They are only read with textureLoad, and R32Float views then bind on adapters without
// the float32-filterable feature.
func demoteUnfilterableTextures(entries []wgpu.BindGroupLayoutEntry) {
	for _, e := range entries {
		if e.Sampler.Type != wgpu.SamplerBindingTypeUndefined {
			return
		}
	}
	for i := range entries {
		if entries[i].Texture.SampleType == wgpu.TextureSampleTypeFloat {
			entries[i].Texture.SampleType = wgpu.TextureSampleTypeUnfilterableFloat
		}
	}
}

// stripComments removes line comments and nested block comments, keeping newlines.
func stripComments(src string) string {
	var sb strings.Builder
	sb.Grow(len(src))
	depth := 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		var next byte
		if i+1 < len(src) {
			next = src[i+1]
		}
		switch {
		case c == '/' && next == '*':
			depth++
			i++
		case c == '*' && next == '/' && depth > 0:
			depth--
			i++
		case depth > 0:
			if c == '\n' {
				sb.WriteByte(c)
			}
		case c == '/' && next == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				sb.WriteByte('\n')
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
