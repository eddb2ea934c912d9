// Package shader holds the WGSL sources of the shear passes and their host
// implementations for the software compute backend.
//
// Every source starts with an "alias elem = f32;" or "alias elem = f64;"
// line selecting the pixel precision; the rest of the source is shared.
package shader

import (
	_ "embed"
	"fmt"
)

//go:embed footprint.wgsl
var footprintWGSL string

//go:embed shear2.wgsl
var shear2WGSL string

//go:embed shear3.wgsl
var shear3WGSL string

// Entry points.
const (
	ShearX  = "shear_x"
	ShearY  = "shear_y"
	Shear3X = "shear3_x"
	Shear3Y = "shear3_y"
	Shear3Z = "shear3_z"
)

// Argument positions shared by the 2D entry points.
const (
	Arg2Scale = iota
	Arg2Cross
	Arg2Band
	Arg2Tau0
	Arg2Tau1
	Arg2Tau2
	Arg2Tau3
	Arg2NX
	Arg2NY
	Arg2WX
	Arg2WY
	Arg2Src
	Arg2Dst
)

// Argument positions shared by the 3D entry points.
const (
	Arg3Scale = iota
	Arg3CrossA
	Arg3CrossB
	Arg3Band
	Arg3Tau0
	Arg3Tau1
	Arg3Tau2
	Arg3Tau3
	Arg3NX
	Arg3NY
	Arg3NZ
	Arg3WX
	Arg3WY
	Arg3WZ
	Arg3Src
	Arg3Dst
)

// WorkgroupSize is the local size every entry point declares.
var WorkgroupSize = [3]int{32, 8, 1}

// Elem is a supported pixel type.
type Elem interface {
	float32 | float64
}

// ElemName returns the WGSL type of T.
func ElemName[T Elem]() string {
	var zero T
	if _, ok := any(zero).(float64); ok {
		return "f64"
	}
	return "f32"
}

// Shear2 returns the 2D shear program for pixels of type elem ("f32" or
// "f64").
func Shear2(elem string) string {
	return header(elem) + shear2WGSL + footprintWGSL
}

// Shear3 returns the 3D shear program for voxels of type elem.
func Shear3(elem string) string {
	return header(elem) + shear3WGSL + footprintWGSL
}

func header(elem string) string {
	return fmt.Sprintf("alias elem = %s;\n\n", elem)
}
