// Package sim provides simulated devices for running plans without
// hardware: motors that move instantly, and detectors whose readings depend
// on the position of a motor.
package sim

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"sophys.sh/cli/pkg/runengine"
)

func now() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// Motor is a motor that reaches its setpoint as soon as it is set. Its
// position is relative to an origin that can be redefined.
type Motor struct {
	name string

	mu       sync.Mutex
	position float64
	offset   float64
}

var (
	_ runengine.Movable  = (*Motor)(nil)
	_ runengine.Originer = (*Motor)(nil)
)

// NewMotor creates a motor at position 0.
func NewMotor(name string) *Motor { return &Motor{name: name} }

func (m *Motor) Name() string { return m.name }

func (m *Motor) Set(position float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = position + m.offset
	return nil
}

func (m *Motor) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position - m.offset
}

// SetOrigin makes the given position the new zero of the motor.
func (m *Motor) SetOrigin(position float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset += position
	return nil
}

func (m *Motor) Read() (map[string]runengine.Reading, error) {
	pos := m.Position()
	return map[string]runengine.Reading{
		m.name:              {Value: pos, Timestamp: now()},
		m.name + "_setpoint": {Value: pos, Timestamp: now()},
	}, nil
}

// Gauss is a detector that reads a Gaussian of the position of a motor.
type Gauss struct {
	name   string
	motor  runengine.Movable
	center float64
	sigma  float64
	peak   float64
	// Relative amplitude of uniform noise added to readings.
	noise float64

	mu    sync.Mutex
	value float64
}

var _ runengine.Triggerable = (*Gauss)(nil)

// NewGauss creates a detector peaking at center with the given width.
func NewGauss(name string, motor runengine.Movable, center, sigma, peak float64) *Gauss {
	return &Gauss{name: name, motor: motor, center: center, sigma: sigma, peak: peak}
}

// WithNoise returns the detector after setting the relative amplitude of
// the noise on its readings.
func (g *Gauss) WithNoise(noise float64) *Gauss {
	g.noise = noise
	return g
}

func (g *Gauss) Name() string { return g.name }

// Trigger computes the value that the next reads return.
func (g *Gauss) Trigger() error {
	x := g.motor.Position()
	v := g.peak * math.Exp(-math.Pow(x-g.center, 2)/(2*g.sigma*g.sigma))
	if g.noise != 0 {
		v += g.peak * g.noise * (2*rand.Float64() - 1)
	}
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
	return nil
}

func (g *Gauss) Read() (map[string]runengine.Reading, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return map[string]runengine.Reading{g.name: {Value: g.value, Timestamp: now()}}, nil
}

// Random is a signal that reads a new random number each time.
type Random struct{ name string }

// NewRandom creates a Random signal.
func NewRandom(name string) *Random { return &Random{name} }

func (r *Random) Name() string { return r.name }

func (r *Random) Read() (map[string]runengine.Reading, error) {
	return map[string]runengine.Reading{r.name: {Value: rand.Float64(), Timestamp: now()}}, nil
}

// NewRegistry returns a registry with the standard set of simulated
// devices: motors motor, motor1, motor2 and motor3; Gaussian detectors det
// (on motor), det1 and det4 (on motor1), det2 (on motor2) and noisy_det (on
// motor, with noise); and the random signal rand.
func NewRegistry() *runengine.Registry {
	motor := NewMotor("motor")
	motor1 := NewMotor("motor1")
	motor2 := NewMotor("motor2")
	motor3 := NewMotor("motor3")
	return runengine.NewRegistry(
		motor, motor1, motor2, motor3,
		NewGauss("det", motor, 0, 1, 1),
		NewGauss("det1", motor1, 0, 5, 5),
		NewGauss("det2", motor2, 1, 2, 2),
		NewGauss("det4", motor1, 0, 1, 1),
		NewGauss("noisy_det", motor, 0, 1, 1).WithNoise(0.1),
		NewRandom("rand"),
	)
}
