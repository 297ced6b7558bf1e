// Package shader loads WGSL sources, expands the @oxy: annotations in them and reflects the
// result into the bind group and vertex layouts the renderer needs to build pipelines.
//
// The pre-processor keeps two registries:
//   - structRegistry: maps AnnotationArg keys to embedded WGSL struct sources and their
//     WGSL type names. Used by @oxy:include and @oxy:group.
//   - addressSpaceRegistry: maps address space argument keys to WGSL var<> syntax strings.
package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-ldr/engine/camera"
	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
)

// registryEntry pairs a WGSL struct source string (embedded from a .wgsl asset file)
// with the resolved WGSL type name used in generated @group/@binding declarations.
type registryEntry struct {
	// Source is the raw WGSL struct definition text injected by @oxy:include.
	Source string

	// Type is the WGSL type name emitted in @oxy:group declarations (e.g. "CameraUniform").
	Type string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// structRegistry maps struct type argument keys to their embedded WGSL source and type name.
	structRegistry map[AnnotationArg]registryEntry

	// addressSpaceRegistry maps address space argument keys to WGSL var<> syntax strings.
	addressSpaceRegistry map[AnnotationArg]string

	// declarations accumulates annotations of type AnnotationTypeBindingGroup and
	// AnnotationTypeProvider during a Process call. Reset at the start of each Process invocation.
	declarations []Annotation
}

// PreProcessor processes raw WGSL shader source code containing @oxy: annotations,
// replacing them with generated declarations or injected struct sources while collecting
// a declarations list that the culling passes use to locate their bindings.
type PreProcessor interface {
	// Process takes raw WGSL shader source code and pre-processes it by replacing
	// @oxy: annotations with their corresponding WGSL output. @oxy:include annotations
	// are replaced with embedded struct source text. @oxy:group annotations are replaced
	// with generated @group/@binding variable declarations. @oxy:provider annotations
	// produce no WGSL output but are recorded in the declarations list.
	//
	// The declarations list is reset at the start of each call and can be retrieved
	// via Declarations() after Process returns.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code containing annotations to be processed
	//
	// Returns:
	//   - string: the processed WGSL shader source code with annotations replaced
	//   - error: an error if any annotation is malformed or references an unknown type
	Process(source string) (string, error)

	// Declarations returns the list of AnnotationTypeBindingGroup and AnnotationTypeProvider
	// annotations collected during the most recent call to Process, in source-order.
	// Returns nil if Process has not been called.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a new PreProcessor with all registered struct types and
// address space mappings pre-populated. The struct registry maps annotation argument
// keys to their embedded WGSL source and resolved WGSL type names from the engine's
// GPU type packages.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		structRegistry: map[AnnotationArg]registryEntry{
			AnnotationArgCamera:              {Source: camera.GPUModelCameraSource, Type: "CameraUniform"},
			AnnotationArgCullingCamera:       {Source: camera.GPUCullingCameraSource, Type: "CullingCamera"},
			annotationArgVertex:              {Source: model.GPUVertexSource, Type: "VertexInput"},
			annotationArgInstanceTransform:   {Source: model.GPUInstanceTransformSource, Type: "InstanceInput"},
			AnnotationArgInstanceBounds:      {Source: model.GPUInstanceBoundsSource, Type: "InstanceBounds"},
			AnnotationArgDrawIndexedIndirect: {Source: model.GPUDrawIndexedIndirectSource, Type: "DrawIndexedIndirect"},
		},
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	included := make(map[AnnotationArg]bool)
	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}
		expanded, err := p.expand(*a, included)
		if err != nil {
			return "", fmt.Errorf("line %d: %w", a.Line, err)
		}
		if expanded != "" {
			out = append(out, expanded)
		}
	}
	return strings.Join(out, "\n"), nil
}

// expand returns the WGSL that replaces one annotation line. Includes expand once per module.
func (p *preProcessor) expand(a Annotation, included map[AnnotationArg]bool) (string, error) {
	switch a.Type {
	case annotationTypeInclude:
		entry, ok := p.structRegistry[a.Args[0]]
		if !ok {
			return "", fmt.Errorf("unknown @oxy:include argument %q", a.Args[0])
		}
		if included[a.Args[0]] {
			return "", nil
		}
		included[a.Args[0]] = true
		return entry.Source, nil
	case AnnotationTypeBindingGroup:
		wgslType, err := p.wgslType(a.Args[2])
		if err != nil {
			return "", err
		}
		p.declarations = append(p.declarations, a)
		return fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;",
			*a.Group, *a.Binding, p.addressSpaceRegistry[a.Args[0]], a.Args[1], wgslType), nil
	case AnnotationTypeProvider:
		p.declarations = append(p.declarations, a)
		return "", nil
	}
	return "", fmt.Errorf("unknown annotation type %q", a.Type)
}

// wgslType resolves a registered struct key, optionally wrapped in array<>, to its WGSL name.
func (p *preProcessor) wgslType(arg AnnotationArg) (string, error) {
	key := string(arg)
	inner, isArray := strings.CutPrefix(key, "array<")
	if isArray {
		key = strings.TrimSuffix(inner, ">")
	}
	entry, ok := p.structRegistry[AnnotationArg(key)]
	if !ok {
		return "", fmt.Errorf("unknown struct type %q", arg)
	}
	if isArray {
		return "array<" + entry.Type + ">", nil
	}
	return entry.Type, nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}

// FindDeclaration returns the first provider or group declaration matching the provider
// identity and, when role is non-empty, the binding role.
//
// Parameters:
//   - declarations: the declarations collected by a PreProcessor
//   - identity: the provider identity to match (ignored for group declarations)
//   - role: the binding role to match, or "" for any
//
// Returns:
//   - Annotation: the matching declaration
//   - bool: false if nothing matched
func FindDeclaration(declarations []Annotation, identity, role AnnotationArg) (Annotation, bool) {
	for _, d := range declarations {
		if d.Type != AnnotationTypeProvider || len(d.Args) == 0 || d.Args[0] != identity {
			continue
		}
		if role != "" && (len(d.Args) < 2 || d.Args[1] != role) {
			continue
		}
		return d, true
	}
	return Annotation{}, false
}
