package shader

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Annotations are single-line WGSL comments prefixed with @oxy:. An include injects a
// registered struct, a group generates a binding declaration and a provider tags a
// hand-written binding with the owner that fills it.

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
// Every annotation must appear on a line beginning with "//" followed by this prefix.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
// Each type corresponds to a distinct pre-processor action and produces different
// fields on the resulting Annotation struct.
type AnnotationType string

const (
	// annotationTypeInclude injects the WGSL source of a registered struct definition
	// into the shader at the annotation site. The struct source is embedded from the
	// corresponding Go GPU type's .wgsl asset file. This annotation does not produce
	// a declaration and is consumed entirely during pre-processing.
	//
	// Syntax: //@oxy:include <struct_type>
	//
	// Example: //@oxy:include camera
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a WGSL @group/@binding variable declaration
	// and appends an Annotation to the PreProcessor's declarations list. The declaration
	// carries the group index, binding index, and the resolved struct type, enabling the
	// Scene to semantically match bindings to resource providers without string lookups.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: //@oxy:group 0 0 storage_uniform camera camera
	AnnotationTypeBindingGroup AnnotationType = "group"

	// AnnotationTypeProvider registers a resource provider identity for a group and binding
	// without generating any WGSL output. The WGSL binding declaration remains hand-written
	// in the shader source directly below the annotation. This is used for bindings that
	// contain raw WGSL types (textures, flat arrays of u32) which have no corresponding
	// registered struct in the pre-processor's struct registry.
	//
	// An optional binding role can be appended after the provider identity so the culling
	// passes resolve binding indices from declarations instead of variable names.
	//
	// Syntax:
	//   //@oxy:provider <group> <binding> <provider_identity>
	//   //@oxy:provider <group> <binding> <provider_identity> <binding_role>
	//
	// Examples:
	//   //@oxy:provider 0 1 pyramid pyramid_source
	//   //@oxy:provider 0 4 scene visible
	AnnotationTypeProvider AnnotationType = "provider"
)

// Annotation represents a single parsed @oxy: annotation from a WGSL shader source line.
// It carries the annotation type, its arguments, the source line number, and optional
// group/binding indices. Annotations of type AnnotationTypeBindingGroup and
// AnnotationTypeProvider are appended to the PreProcessor's declarations list for
// consumption by the culling passes during resource wiring.
type Annotation struct {
	// Type identifies which annotation was parsed (include, group, or provider).
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include:  [0] = struct type key (e.g. "camera")
	//   - group:    [0] = address space, [1] = var name, [2] = WGSL type key
	//   - provider: [0] = provider identity (e.g. "scene", "pyramid"), [1] = binding role (optional, e.g. "visible")
	Args []AnnotationArg

	// Line is the 1-based line number in the original WGSL source where this annotation
	// was found. Used for error reporting.
	Line int

	// Group is the @group index for group and provider annotations. Nil for include annotations.
	Group *int

	// Binding is the @binding index for group and provider annotations. Nil for include annotations.
	Binding *int
}

// AnnotationArg is a typed string constant used as an argument in annotations.
// Arguments fall into three categories: struct type keys (used with include and group),
// address space identifiers (used with group), and provider identity keys (used with provider).
type AnnotationArg string

// ── Struct type arguments ──────────────────────────────────────────────────────
// These identify registered WGSL struct types. They can appear in @oxy:include annotations
// (to inject the struct source) and in @oxy:group annotations (as the type field, optionally
// wrapped in array<>). Each maps to a Go GPU type with an embedded .wgsl asset file.

const (
	// AnnotationArgCamera identifies the CameraUniform struct read by the model and edge pipelines.
	// Source: engine/camera/assets/camera_uniform.wgsl
	AnnotationArgCamera AnnotationArg = "camera"

	// AnnotationArgCullingCamera identifies the CullingCamera struct read by the culling pass.
	// Source: engine/camera/assets/culling_camera.wgsl
	AnnotationArgCullingCamera AnnotationArg = "culling_camera"

	// annotationArgVertex identifies the VertexInput struct of welded part vertices.
	// Source: engine/model/assets/vertex.wgsl
	annotationArgVertex AnnotationArg = "vertex"

	// annotationArgInstanceTransform identifies the InstanceInput struct holding the per-instance
	// world transform columns. Structs whose name starts with "Instance" are stepped per instance.
	// Source: engine/model/assets/instance_transform.wgsl
	annotationArgInstanceTransform AnnotationArg = "instance_transform"

	// AnnotationArgInstanceBounds identifies the InstanceBounds struct (world sphere + AABB).
	// Source: engine/model/assets/instance_bounds.wgsl
	AnnotationArgInstanceBounds AnnotationArg = "instance_bounds"

	// AnnotationArgDrawIndexedIndirect identifies the DrawIndexedIndirect command struct.
	// Source: engine/model/assets/draw_indexed_indirect.wgsl
	AnnotationArgDrawIndexedIndirect AnnotationArg = "draw_indexed_indirect"
)

// ── Address space arguments ────────────────────────────────────────────────────
// These specify the WGSL variable address space in @oxy:group annotations.
// They map to WGSL var<> declarations.

const (
	// annotationArgStorageTypeUniform maps to var<uniform> in WGSL.
	annotationArgStorageTypeUniform AnnotationArg = "storage_uniform"

	// annotationArgStorageTypeRead maps to var<storage, read> in WGSL.
	annotationArgStorageTypeRead AnnotationArg = "storage_read"

	// annotationArgStorageTypeReadWrite maps to var<storage, read_write> in WGSL.
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

// ── Provider identity arguments ────────────────────────────────────────────────
// These identify which resource owner fills a binding. Used in @oxy:provider annotations
// for bindings with raw WGSL types (textures, flat u32 arrays) and checked by the culling
// passes before they build bind groups for a shader.

const (
	// AnnotationArgScene identifies bindings filled from SceneBuffers (bounds, flags, commands).
	AnnotationArgScene AnnotationArg = "scene"

	// AnnotationArgPyramid identifies depth pyramid textures and the depth attachment source.
	AnnotationArgPyramid AnnotationArg = "pyramid"

	// AnnotationArgScan identifies per-level scan buffers owned by a ScanEngine.
	AnnotationArgScan AnnotationArg = "scan"

	// AnnotationArgCompaction identifies the compacted draw and count outputs.
	AnnotationArgCompaction AnnotationArg = "compaction"

	// AnnotationArgCulling identifies per-dispatch parameters owned by the CullingEngine.
	AnnotationArgCulling AnnotationArg = "culling"
)

// ── Binding role arguments ─────────────────────────────────────────────────────
// These qualify individual bindings within a provider group. They appear as the optional
// fourth argument of an @oxy:provider annotation so Go code can resolve binding indices
// by role instead of by variable name.

const (
	// AnnotationArgDepthSource identifies the depth attachment read by the pyramid blit.
	AnnotationArgDepthSource AnnotationArg = "depth_source"

	// AnnotationArgPyramidSource identifies the pyramid level read by a reduction or by culling.
	AnnotationArgPyramidSource AnnotationArg = "pyramid_source"

	// AnnotationArgPyramidDest identifies the pyramid level written by the blit or a reduction.
	AnnotationArgPyramidDest AnnotationArg = "pyramid_dest"

	// AnnotationArgFlags identifies a visibility flag array (visible or new_visible).
	AnnotationArgFlags AnnotationArg = "flags"

	// AnnotationArgVisible identifies the visible flag array written by culling.
	AnnotationArgVisible AnnotationArg = "visible"

	// AnnotationArgNewVisible identifies the new_visible flag array written by culling.
	AnnotationArgNewVisible AnnotationArg = "new_visible"

	// AnnotationArgTransparent identifies the per-instance transparency flags.
	AnnotationArgTransparent AnnotationArg = "transparent"

	// AnnotationArgScanInput identifies the input of a scan level.
	AnnotationArgScanInput AnnotationArg = "scan_input"

	// AnnotationArgScanOutput identifies the chunk-local exclusive sums of a scan level.
	AnnotationArgScanOutput AnnotationArg = "scan_output"

	// AnnotationArgScanTotals identifies the per-chunk totals of a scan level.
	AnnotationArgScanTotals AnnotationArg = "scan_totals"

	// AnnotationArgScanUpper identifies the scanned totals added back into a lower level.
	AnnotationArgScanUpper AnnotationArg = "scan_upper"

	// AnnotationArgTotal identifies the single grand total slot.
	AnnotationArgTotal AnnotationArg = "total"

	// AnnotationArgCount identifies the compacted command count.
	AnnotationArgCount AnnotationArg = "count"

	// AnnotationArgParams identifies a small per-dispatch parameter uniform.
	AnnotationArgParams AnnotationArg = "params"

	// AnnotationArgBounds identifies the per-instance world bounds.
	AnnotationArgBounds AnnotationArg = "bounds"

	// AnnotationArgScanned identifies the exclusive prefix sum of a flag array.
	AnnotationArgScanned AnnotationArg = "scanned"

	// AnnotationArgSolidCommands and AnnotationArgEdgeCommands identify the static per-instance
	// command tables; AnnotationArgCompactedSolid and AnnotationArgCompactedEdge their packed copies.
	AnnotationArgSolidCommands  AnnotationArg = "solid_commands"
	AnnotationArgEdgeCommands   AnnotationArg = "edge_commands"
	AnnotationArgCompactedSolid AnnotationArg = "compacted_solid"
	AnnotationArgCompactedEdge  AnnotationArg = "compacted_edge"
)

// validStructTypes lists all AnnotationArg values that are accepted as struct type
// arguments in @oxy:include and @oxy:group annotations. Each entry must have a
// corresponding registryEntry in the PreProcessor's structRegistry.
var validStructTypes = []AnnotationArg{
	AnnotationArgCamera,
	AnnotationArgCullingCamera,
	annotationArgVertex,
	annotationArgInstanceTransform,
	AnnotationArgInstanceBounds,
	AnnotationArgDrawIndexedIndirect,
}

// validAddressSpaces lists all AnnotationArg values that are accepted as address
// space arguments in @oxy:group annotations. Each maps to a WGSL var<> declaration.
var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
	annotationArgStorageTypeReadWrite,
}

// validProviderIdentities lists all AnnotationArg values that are accepted as
// provider identity arguments in @oxy:provider annotations.
var validProviderIdentities = []AnnotationArg{
	AnnotationArgCamera,
	AnnotationArgScene,
	AnnotationArgPyramid,
	AnnotationArgScan,
	AnnotationArgCompaction,
	AnnotationArgCulling,
}

// validBindingRoles lists all AnnotationArg values that are accepted as binding
// role qualifiers in @oxy:provider annotations.
var validBindingRoles = []AnnotationArg{
	AnnotationArgDepthSource,
	AnnotationArgPyramidSource,
	AnnotationArgPyramidDest,
	AnnotationArgFlags,
	AnnotationArgVisible,
	AnnotationArgNewVisible,
	AnnotationArgTransparent,
	AnnotationArgScanInput,
	AnnotationArgScanOutput,
	AnnotationArgScanTotals,
	AnnotationArgScanUpper,
	AnnotationArgTotal,
	AnnotationArgCount,
	AnnotationArgParams,
	AnnotationArgBounds,
	AnnotationArgScanned,
	AnnotationArgSolidCommands,
	AnnotationArgEdgeCommands,
	AnnotationArgCompactedSolid,
	AnnotationArgCompactedEdge,
}

// parseAnnotation parses one WGSL source line. Lines without the @oxy: prefix return nil and no
// error; lines with it must be well formed.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	_, after, ok := strings.Cut(strings.TrimSpace(line), annotationPrefix)
	if !ok {
		return nil, nil
	}
	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	a := &Annotation{Type: AnnotationType(args[0]), Line: lineNum}
	var err error
	switch a.Type {
	case annotationTypeInclude:
		err = a.parseInclude(args[1:])
	case AnnotationTypeBindingGroup:
		err = a.parseGroup(args[1:])
	case AnnotationTypeProvider:
		err = a.parseProvider(args[1:])
	default:
		err = fmt.Errorf("unknown @oxy annotation type %q", args[0])
	}
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", lineNum, err)
	}
	return a, nil
}

// include <struct_type>
func (a *Annotation) parseInclude(args []string) error {
	if len(args) != 1 {
		return errors.New("@oxy include annotation requires exactly one argument")
	}
	if !slices.Contains(validStructTypes, AnnotationArg(args[0])) {
		return fmt.Errorf("unknown struct type %q in @oxy include annotation", args[0])
	}
	a.Args = []AnnotationArg{AnnotationArg(args[0])}
	return nil
}

// group <group> <binding> <address_space> <var_name> <type|array<type>>
func (a *Annotation) parseGroup(args []string) error {
	if len(args) != 5 {
		return errors.New("@oxy group annotation requires five arguments (group, binding, address space, name, struct type)")
	}
	if err := a.parseSlot(args[0], args[1]); err != nil {
		return err
	}
	if !slices.Contains(validAddressSpaces, AnnotationArg(args[2])) {
		return fmt.Errorf("unknown address space %q in @oxy group annotation", args[2])
	}
	elem := strings.TrimSuffix(strings.TrimPrefix(args[4], "array<"), ">")
	if !slices.Contains(validStructTypes, AnnotationArg(elem)) {
		return fmt.Errorf("unknown struct type %q in @oxy group annotation", elem)
	}
	a.Args = []AnnotationArg{AnnotationArg(args[2]), AnnotationArg(args[3]), AnnotationArg(args[4])}
	return nil
}

// provider <group> <binding> <identity> [role]
func (a *Annotation) parseProvider(args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return errors.New("@oxy provider annotation requires three or four arguments (group, binding, provider identity[, binding role])")
	}
	if err := a.parseSlot(args[0], args[1]); err != nil {
		return err
	}
	if !slices.Contains(validProviderIdentities, AnnotationArg(args[2])) {
		return fmt.Errorf("unknown provider identity %q in @oxy provider annotation", args[2])
	}
	a.Args = []AnnotationArg{AnnotationArg(args[2])}
	if len(args) == 4 {
		if !slices.Contains(validBindingRoles, AnnotationArg(args[3])) {
			return fmt.Errorf("unknown binding role %q in @oxy provider annotation", args[3])
		}
		a.Args = append(a.Args, AnnotationArg(args[3]))
	}
	return nil
}

func (a *Annotation) parseSlot(group, binding string) error {
	g, err := strconv.Atoi(group)
	if err != nil || g < 0 {
		return fmt.Errorf("invalid group number %q in @oxy %s annotation", group, a.Type)
	}
	b, err := strconv.Atoi(binding)
	if err != nil || b < 0 {
		return fmt.Errorf("invalid binding number %q in @oxy %s annotation", binding, a.Type)
	}
	a.Group, a.Binding = &g, &b
	return nil
}
