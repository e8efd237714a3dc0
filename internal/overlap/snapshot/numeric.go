package snapshot

import (
	"fmt"
	"math"
)

// NumericKind identifies the element type carried by an Array.
type NumericKind uint8

const (
	KindInvalid NumericKind = iota
	KindFloat32
	KindFloat64
	KindInt32
	KindInt64
	KindUint8
)

func (k NumericKind) String() string {
	switch k {
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint8:
		return "uint8"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Array is a host data array of one of the supported numeric kinds.
// Only the slice matching Kind is read.
type Array struct {
	Kind NumericKind
	F32  []float32
	F64  []float64
	I32  []int32
	I64  []int64
	U8   []uint8
}

// Float32Array wraps v as a KindFloat32 Array.
func Float32Array(v []float32) Array { return Array{Kind: KindFloat32, F32: v} }

// Float64Array wraps v as a KindFloat64 Array.
func Float64Array(v []float64) Array { return Array{Kind: KindFloat64, F64: v} }

// Int32Array wraps v as a KindInt32 Array.
func Int32Array(v []int32) Array { return Array{Kind: KindInt32, I32: v} }

// Int64Array wraps v as a KindInt64 Array.
func Int64Array(v []int64) Array { return Array{Kind: KindInt64, I64: v} }

// Uint8Array wraps v as a KindUint8 Array.
func Uint8Array(v []uint8) Array { return Array{Kind: KindUint8, U8: v} }

// Len returns the element count of the active slice, or 0 for an invalid kind.
func (a Array) Len() int {
	switch a.Kind {
	case KindFloat32:
		return len(a.F32)
	case KindFloat64:
		return len(a.F64)
	case KindInt32:
		return len(a.I32)
	case KindInt64:
		return len(a.I64)
	case KindUint8:
		return len(a.U8)
	default:
		return 0
	}
}

// Float64s widens the array to float64. Every kind converts.
func (a Array) Float64s() ([]float64, error) {
	switch a.Kind {
	case KindFloat64:
		out := make([]float64, len(a.F64))
		copy(out, a.F64)
		return out, nil
	case KindFloat32:
		out := make([]float64, len(a.F32))
		for i, v := range a.F32 {
			out[i] = float64(v)
		}
		return out, nil
	case KindInt32:
		out := make([]float64, len(a.I32))
		for i, v := range a.I32 {
			out[i] = float64(v)
		}
		return out, nil
	case KindInt64:
		out := make([]float64, len(a.I64))
		for i, v := range a.I64 {
			out[i] = float64(v)
		}
		return out, nil
	case KindUint8:
		out := make([]float64, len(a.U8))
		for i, v := range a.U8 {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported array kind %s", ErrInvalidInput, a.Kind)
	}
}

// Int64s widens the array to int64 labels. Floating-point kinds are
// accepted only when every element is an integral, finite value.
func (a Array) Int64s() ([]int64, error) {
	switch a.Kind {
	case KindInt64:
		out := make([]int64, len(a.I64))
		copy(out, a.I64)
		return out, nil
	case KindInt32:
		out := make([]int64, len(a.I32))
		for i, v := range a.I32 {
			out[i] = int64(v)
		}
		return out, nil
	case KindUint8:
		out := make([]int64, len(a.U8))
		for i, v := range a.U8 {
			out[i] = int64(v)
		}
		return out, nil
	case KindFloat32, KindFloat64:
		vals, _ := a.Float64s()
		out := make([]int64, len(vals))
		for i, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
				return nil, fmt.Errorf("%w: label %d is not integral (%v)", ErrInvalidInput, i, v)
			}
			if v < math.MinInt64 || v >= math.MaxInt64 {
				return nil, fmt.Errorf("%w: label %d out of int64 range (%v)", ErrInvalidInput, i, v)
			}
			out[i] = int64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported array kind %s", ErrInvalidInput, a.Kind)
	}
}
