package paeth

import (
	"errors"
	"math"
	"testing"
)

func TestDecompose2Reconstructs(t *testing.T) {
	const tol = 1e-4

	for deg := -179.5; deg < 180; deg += 2.5 {
		rad := deg * math.Pi / 180
		if math.Abs(math.Cos(rad)) <= PivotEpsilon {
			continue
		}
		m := Rotation2[float64](rad)
		s, err := Decompose2(m)
		if err != nil {
			t.Fatalf("Decompose2(%v deg): %v", deg, err)
		}
		if err := s.Verify(m, tol); err != nil {
			t.Errorf("%v deg: %v", deg, err)
		}
	}
}

func TestDecompose2Float32(t *testing.T) {
	for deg := -80.0; deg <= 80; deg += 10 {
		m := Rotation2[float32](deg * math.Pi / 180)
		s, err := Decompose2(m)
		if err != nil {
			t.Fatalf("Decompose2(%v deg): %v", deg, err)
		}
		if err := s.Verify(m, 1e-4); err != nil {
			t.Errorf("%v deg: %v", deg, err)
		}
	}
}

func TestDecompose2Coefficients(t *testing.T) {
	m := Rotation2[float64](math.Pi / 6)
	s, err := Decompose2(m)
	if err != nil {
		t.Fatal(err)
	}
	sin, cos := math.Sincos(math.Pi / 6)
	want := Shear2[float64]{XX: cos, XY: -sin, YX: sin / cos, YY: 1 / cos}
	const eps = 1e-12
	if math.Abs(s.XX-want.XX) > eps || math.Abs(s.XY-want.XY) > eps ||
		math.Abs(s.YX-want.YX) > eps || math.Abs(s.YY-want.YY) > eps {
		t.Errorf("Decompose2(30 deg) = %+v, want %+v", s, want)
	}
	if got := s.ShearX(); got.M21 != 0 || got.M22 != 1 {
		t.Errorf("ShearX row 2 = (%v, %v), want (0, 1)", got.M21, got.M22)
	}
	if got := s.ShearY(); got.M11 != 1 || got.M12 != 0 {
		t.Errorf("ShearY row 1 = (%v, %v), want (1, 0)", got.M11, got.M12)
	}
}

func TestDecompose2Idempotent(t *testing.T) {
	for _, deg := range []float64{-135, -60, -1, 0, 17, 45, 89, 120} {
		s, err := Decompose2(Rotation2[float64](deg * math.Pi / 180))
		if err != nil {
			t.Fatal(err)
		}
		again, err := Decompose2(s.Compose())
		if err != nil {
			t.Fatal(err)
		}
		const eps = 1e-9
		if math.Abs(s.XX-again.XX) > eps || math.Abs(s.XY-again.XY) > eps ||
			math.Abs(s.YX-again.YX) > eps || math.Abs(s.YY-again.YY) > eps {
			t.Errorf("%v deg: %+v != %+v", deg, s, again)
		}
	}
}

func TestDecompose2DegeneratePivot(t *testing.T) {
	tests := []struct {
		name string
		m    Mat2[float64]
	}{
		{"quarter turn", Mat2[float64]{M11: 0, M12: -1, M21: 1, M22: 0}},
		{"minus quarter turn", Mat2[float64]{M11: 0, M12: 1, M21: -1, M22: 0}},
		{"below epsilon", Mat2[float64]{M11: 1e-9, M12: -1, M21: 1, M22: 1e-9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decompose2(tt.m)
			if !errors.Is(err, ErrDegenerateShearPivot) {
				t.Fatalf("err = %v, want ErrDegenerateShearPivot", err)
			}
			if s != (Shear2[float64]{}) {
				t.Errorf("descriptor = %+v, want zero value", s)
			}
		})
	}

	// Rotation2 of exactly pi/2 leaves cos at ~6e-17.
	if _, err := Decompose2(Rotation2[float64](math.Pi / 2)); !errors.Is(err, ErrDegenerateShearPivot) {
		t.Errorf("Rotation2(pi/2): err = %v", err)
	}
}

func TestShear2VerifyMismatch(t *testing.T) {
	s, err := Decompose2(Rotation2[float64](0.4))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Verify(Rotation2[float64](0.5), 1e-4); !errors.Is(err, ErrNotRotation) {
		t.Errorf("Verify against another rotation: err = %v, want ErrNotRotation", err)
	}
}

func TestShear2Passes(t *testing.T) {
	s, err := Decompose2(Rotation2[float64](math.Pi / 4))
	if err != nil {
		t.Fatal(err)
	}
	fx, err := s.XPass()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(fx.Scale-1/s.XX) > 1e-12 || math.Abs(fx.Cross+s.XY/s.XX) > 1e-12 {
		t.Errorf("XPass = %+v", fx)
	}
	fy, err := s.YPass()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(fy.Scale-1/s.YY) > 1e-12 || math.Abs(fy.Cross+s.YX/s.YY) > 1e-12 {
		t.Errorf("YPass = %+v", fy)
	}
}
