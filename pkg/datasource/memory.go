package datasource

import (
	"context"
	"slices"
	"sync"
)

// Memory is a Source that lives in process memory. Names are kept in
// insertion order. The zero value is ready to use.
type Memory struct {
	mu    sync.Mutex
	names map[DataType][]string
}

var _ Source = (*Memory)(nil)

// NewMemory returns a Memory with initial selections.
func NewMemory(initial map[DataType][]string) *Memory {
	m := &Memory{}
	for t, names := range initial {
		for _, name := range names {
			m.add(t, name)
		}
	}
	return m
}

func (m *Memory) Get(_ context.Context, t DataType) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.names[t]), nil
}

func (m *Memory) Add(_ context.Context, t DataType, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(t, name)
	return nil
}

func (m *Memory) add(t DataType, name string) {
	if m.names == nil {
		m.names = make(map[DataType][]string)
	}
	if !slices.Contains(m.names[t], name) {
		m.names[t] = append(m.names[t], name)
	}
}

func (m *Memory) Remove(_ context.Context, t DataType, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.names[t]) == 0 {
		return nil
	}
	m.names[t] = slices.DeleteFunc(m.names[t], func(s string) bool { return s == name })
	return nil
}
