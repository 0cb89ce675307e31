package geometry

import (
	"errors"
	"math"
	"testing"
)

const eps = 1e-6

func near(a, b Point) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps
}

func TestAffine_InvertRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		a    Affine
	}{
		{name: "identity", a: Identity()},
		{name: "translation", a: Translation(-12.5, 40)},
		{name: "similarity", a: Similarity(2.75, 0.3, 100, -20)},
		{name: "rotated-half-turn", a: Similarity(0.01, math.Pi, 3, 3)},
		{name: "general", a: Affine{1.5, 0.2, 3, -0.4, 0.9, 7}},
	}

	probes := []Point{{0, 0}, {0, 255}, {255, 0}, {255, 255}, {12.3, -45.6}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			inv, err := tc.a.Invert()
			if err != nil {
				t.Fatalf("Invert failed: %v", err)
			}
			for _, p := range probes {
				if got := inv.Apply(tc.a.Apply(p)); !near(got, p) {
					t.Errorf("inv(a(%v)) = %v", p, got)
				}
				if got := tc.a.Then(inv).Apply(p); !near(got, p) {
					t.Errorf("a.Then(inv)(%v) = %v", p, got)
				}
			}
		})
	}
}

func TestAffine_Then(t *testing.T) {
	a := Translation(10, 0)
	b := Similarity(2, math.Pi/2, 0, 0)
	p := Point{1, 0}

	got := a.Then(b).Apply(p)
	want := b.Apply(a.Apply(p))
	if !near(got, want) {
		t.Errorf("Then: got %v want %v", got, want)
	}
	// (11,0) rotated a quarter turn and doubled lands on (0,22)
	if !near(got, Point{0, 22}) {
		t.Errorf("expected (0,22), got %v", got)
	}
}

func TestAffine_InvertSingular(t *testing.T) {
	_, err := Affine{1, 2, 0, 2, 4, 0}.Invert()
	if err == nil {
		t.Fatal("expected error for singular transform")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAffine_Scale(t *testing.T) {
	a := Similarity(3.5, 1.1, 4, 4)
	if math.Abs(a.Scale()-3.5) > eps {
		t.Errorf("Scale = %f, want 3.5", a.Scale())
	}
}

func TestFinite(t *testing.T) {
	if !Finite(1, 2, -3) {
		t.Error("expected finite values")
	}
	if Finite(1, math.NaN()) {
		t.Error("NaN reported finite")
	}
	if Finite(math.Inf(-1)) {
		t.Error("Inf reported finite")
	}
}
