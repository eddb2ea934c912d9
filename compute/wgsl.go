package compute

import (
	"fmt"
	"slices"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// Layout is the argument binding of a WGSL kernel source.
//
// Kernel arguments are positional. Arguments 0..len(Params)-1 are the
// members of the group 0 uniform struct, in declaration order. The
// remaining arguments are the storage buffers, in binding order.
type Layout struct {
	// Elem is the scalar type named by "alias elem = ...;", or "" if the
	// source declares no such alias.
	Elem string

	// ParamsBinding is the binding index of the uniform struct, or -1.
	ParamsBinding int

	// ParamsSpan is the byte size of the uniform struct.
	ParamsSpan int

	// Params lists the scalar arguments.
	Params []Field

	// Storage lists the buffer arguments.
	Storage []Binding

	// Entries maps entry point names to their declarations.
	Entries map[string]EntryPoint
}

// Field is one member of the uniform struct.
type Field struct {
	Name   string
	Type   string
	Offset int
	Size   int
}

// Binding is one storage buffer binding of group 0.
type Binding struct {
	Name     string
	Binding  int
	ReadOnly bool
}

// EntryPoint is a @compute function.
type EntryPoint struct {
	Name          string
	WorkgroupSize Range
}

// ParseLayout extracts the argument binding of a WGSL source from its
// naga IR. Errors wrap ErrBuildFailure.
func ParseLayout(source string) (*Layout, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailure, err)
	}
	m, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailure, err)
	}

	l := &Layout{ParamsBinding: -1, Entries: make(map[string]EntryPoint)}
	for _, t := range m.Types {
		if s, ok := t.Inner.(ir.ScalarType); ok && t.Name == "elem" {
			l.Elem = scalarName(s)
		}
	}

	for _, g := range m.GlobalVariables {
		if g.Binding == nil || g.Binding.Group != 0 {
			continue
		}
		b := int(g.Binding.Binding)
		switch g.Space {
		case ir.SpaceUniform:
			if l.ParamsBinding >= 0 {
				return nil, fmt.Errorf("%w: uniforms %d and %d both bound in group 0", ErrBuildFailure, l.ParamsBinding, b)
			}
			if err := l.addParams(m, g); err != nil {
				return nil, err
			}
			l.ParamsBinding = b
		case ir.SpaceStorage:
			l.Storage = append(l.Storage, Binding{Name: g.Name, Binding: b, ReadOnly: g.Access == ir.StorageRead})
		}
	}
	slices.SortFunc(l.Storage, func(a, b Binding) int { return a.Binding - b.Binding })
	for i, s := range l.Storage {
		if s.Binding == l.ParamsBinding || i > 0 && s.Binding == l.Storage[i-1].Binding {
			return nil, fmt.Errorf("%w: binding %d used twice", ErrBuildFailure, s.Binding)
		}
	}

	for _, ep := range m.EntryPoints {
		if ep.Stage != ir.StageCompute {
			continue
		}
		ws := Range{int(ep.Workgroup[0]), int(ep.Workgroup[1]), int(ep.Workgroup[2])}
		if !ws.Valid() {
			return nil, fmt.Errorf("%w: entry point %s has workgroup size %v", ErrBuildFailure, ep.Name, ws)
		}
		l.Entries[ep.Name] = EntryPoint{Name: ep.Name, WorkgroupSize: ws}
	}
	if len(l.Entries) == 0 {
		return nil, fmt.Errorf("%w: no @compute entry point", ErrBuildFailure)
	}
	return l, nil
}

// addParams records the members of the uniform g. Only scalar members can
// be set as kernel arguments.
func (l *Layout) addParams(m *ir.Module, g ir.GlobalVariable) error {
	st, ok := m.Types[g.Type].Inner.(ir.StructType)
	if !ok {
		return fmt.Errorf("%w: uniform %s is not a struct", ErrBuildFailure, g.Name)
	}
	for _, mem := range st.Members {
		s, ok := m.Types[mem.Type].Inner.(ir.ScalarType)
		if !ok || scalarName(s) == "" {
			return fmt.Errorf("%w: uniform member %s is not a 32- or 64-bit scalar", ErrBuildFailure, mem.Name)
		}
		l.Params = append(l.Params, Field{
			Name:   mem.Name,
			Type:   scalarName(s),
			Offset: int(mem.Offset),
			Size:   int(s.Width),
		})
	}
	l.ParamsSpan = int(st.Span)
	return nil
}

func scalarName(s ir.ScalarType) string {
	switch {
	case s.Kind == ir.ScalarFloat && s.Width == 4:
		return "f32"
	case s.Kind == ir.ScalarFloat && s.Width == 8:
		return "f64"
	case s.Kind == ir.ScalarSint && s.Width == 4:
		return "i32"
	case s.Kind == ir.ScalarUint && s.Width == 4:
		return "u32"
	}
	return ""
}

// Arity returns the number of positional kernel arguments.
func (l *Layout) Arity() int { return len(l.Params) + len(l.Storage) }

// IsBuffer reports whether argument i is a storage buffer.
func (l *Layout) IsBuffer(i int) bool { return i >= len(l.Params) && i < l.Arity() }

// CheckArg validates a scalar value for argument i.
// Errors wrap ErrDispatchFailure.
func (l *Layout) CheckArg(i int, v []byte) error {
	if i < 0 || i >= len(l.Params) {
		return fmt.Errorf("%w: argument %d is not a scalar (have %d)", ErrDispatchFailure, i, len(l.Params))
	}
	if f := l.Params[i]; len(v) != f.Size {
		return fmt.Errorf("%w: argument %d (%s: %s) takes %d bytes, got %d",
			ErrDispatchFailure, i, f.Name, f.Type, f.Size, len(v))
	}
	return nil
}

// CheckBuffer validates that argument i is a buffer.
// Errors wrap ErrDispatchFailure.
func (l *Layout) CheckBuffer(i int) error {
	if !l.IsBuffer(i) {
		return fmt.Errorf("%w: argument %d is not a buffer", ErrDispatchFailure, i)
	}
	return nil
}

// PackParams lays scalar argument values out at their member offsets.
// args[i] is the encoding of argument i. The result is ParamsSpan bytes.
func (l *Layout) PackParams(args [][]byte) ([]byte, error) {
	if len(args) < len(l.Params) {
		return nil, fmt.Errorf("%w: %d scalar arguments, want %d", ErrDispatchFailure, len(args), len(l.Params))
	}
	out := make([]byte, l.ParamsSpan)
	for i, f := range l.Params {
		if err := l.CheckArg(i, args[i]); err != nil {
			return nil, err
		}
		copy(out[f.Offset:], args[i])
	}
	return out, nil
}
