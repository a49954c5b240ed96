package sim

import (
	"math"
	"testing"
)

func TestMotor_SetOrigin(t *testing.T) {
	m := NewMotor("m")
	m.Set(2)
	m.SetOrigin(2)
	if got := m.Position(); got != 0 {
		t.Errorf("position after SetOrigin(2) = %v, want 0", got)
	}
	m.Set(1)
	if got := m.Position(); got != 1 {
		t.Errorf("position after Set(1) = %v, want 1", got)
	}
	r, _ := m.Read()
	if r["m"].Value != 1.0 {
		t.Errorf("reading %v, want 1", r["m"].Value)
	}
}

func TestGauss(t *testing.T) {
	m := NewMotor("m")
	g := NewGauss("g", m, 1, 2, 3)
	for _, x := range []float64{-1, 1, 4} {
		m.Set(x)
		g.Trigger()
		r, _ := g.Read()
		want := 3 * math.Exp(-(x-1)*(x-1)/8)
		if got := r["g"].Value.(float64); math.Abs(got-want) > 1e-12 {
			t.Errorf("at %v read %v, want %v", x, got, want)
		}
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"motor1", "det4", "rand", "noisy_det"} {
		if _, err := reg.Device(name); err != nil {
			t.Errorf("device %s: %v", name, err)
		}
	}
}
