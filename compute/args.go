package compute

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Scalar is a type that can be passed as a kernel argument or stored as a
// buffer element. Encodings are little-endian, matching WGSL host layout.
type Scalar interface {
	float32 | float64 | int32 | uint32
}

// SizeOf returns the encoded size of T in bytes.
func SizeOf[T Scalar]() int {
	var zero T
	switch any(zero).(type) {
	case float64:
		return 8
	default:
		return 4
	}
}

// SetScalar binds v to the scalar argument i of k.
func SetScalar[T Scalar](k Kernel, i int, v T) error {
	return k.SetArg(i, appendScalar(make([]byte, 0, 8), v))
}

// Encode returns the little-endian encoding of s.
func Encode[T Scalar](s []T) []byte {
	b := make([]byte, 0, len(s)*SizeOf[T]())
	for _, v := range s {
		b = appendScalar(b, v)
	}
	return b
}

// Decode fills dst from the little-endian encoding b.
// len(b) must equal len(dst)*SizeOf[T]().
func Decode[T Scalar](b []byte, dst []T) error {
	size := SizeOf[T]()
	if len(b) != len(dst)*size {
		return fmt.Errorf("compute: decode %d bytes into %d elements of %d bytes", len(b), len(dst), size)
	}
	for i := range dst {
		dst[i] = readScalar[T](b[i*size:])
	}
	return nil
}

func appendScalar[T Scalar](b []byte, v T) []byte {
	switch x := any(v).(type) {
	case float32:
		return binary.LittleEndian.AppendUint32(b, math.Float32bits(x))
	case float64:
		return binary.LittleEndian.AppendUint64(b, math.Float64bits(x))
	case int32:
		return binary.LittleEndian.AppendUint32(b, uint32(x))
	case uint32:
		return binary.LittleEndian.AppendUint32(b, x)
	}
	panic("unreachable")
}

func readScalar[T Scalar](b []byte) T {
	var v T
	switch p := any(&v).(type) {
	case *float32:
		*p = math.Float32frombits(binary.LittleEndian.Uint32(b))
	case *float64:
		*p = math.Float64frombits(binary.LittleEndian.Uint64(b))
	case *int32:
		*p = int32(binary.LittleEndian.Uint32(b))
	case *uint32:
		*p = binary.LittleEndian.Uint32(b)
	}
	return v
}
