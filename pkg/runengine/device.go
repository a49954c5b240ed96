package runengine

import (
	"fmt"
	"slices"
	"sync"
)

// Reading is the value of one field of a device, with the time it was taken
// in seconds since the epoch.
type Reading struct {
	Value     any     `json:"value"`
	Timestamp float64 `json:"timestamp"`
}

// Device is anything that can be read.
type Device interface {
	Name() string
	// Read returns the readings of the device by field name. Field names
	// start with the device name.
	Read() (map[string]Reading, error)
}

// Movable is a device with a position, like a motor.
type Movable interface {
	Device
	Set(position float64) error
	Position() float64
}

// Triggerable is a device that must be triggered before it is read, like a
// detector.
type Triggerable interface {
	Device
	Trigger() error
}

// Originer is a movable device whose origin can be redefined.
type Originer interface {
	Movable
	// SetOrigin makes position the new zero.
	SetOrigin(position float64) error
}

// Registry holds devices by name. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Device
}

// NewRegistry creates a registry with the given devices.
func NewRegistry(devices ...Device) *Registry {
	r := &Registry{devices: make(map[string]Device)}
	for _, d := range devices {
		r.Add(d)
	}
	return r
}

// Add adds a device, replacing any device with the same name.
func (r *Registry) Add(d Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.devices == nil {
		r.devices = make(map[string]Device)
	}
	r.devices[d.Name()] = d
}

// Device looks up a device by name.
func (r *Registry) Device(name string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[name]
	if !ok {
		return nil, fmt.Errorf("no device named %q", name)
	}
	return d, nil
}

// Names returns the names of all devices, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) movable(name string) (Movable, error) {
	d, err := r.Device(name)
	if err != nil {
		return nil, err
	}
	m, ok := d.(Movable)
	if !ok {
		return nil, fmt.Errorf("device %q cannot be moved", name)
	}
	return m, nil
}
