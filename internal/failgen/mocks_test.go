package failgen

import (
	"context"
	"errors"

	"github.com/curbz/failure-niner/internal/failures"
)

type MockStore struct {
	values map[string]string
	writes map[string]int
	fail   bool
}

func NewMockStore(initial map[string]string) *MockStore {
	s := &MockStore{values: make(map[string]string), writes: make(map[string]int)}
	for k, v := range initial {
		s.values[k] = v
	}
	return s
}

func (m *MockStore) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *MockStore) Set(key, value string) error {
	if m.fail {
		return errors.New("store unavailable")
	}
	m.values[key] = value
	m.writes[key]++
	return nil
}

type MockOrchestrator struct {
	catalogue []failures.Failure
	active    int
	changing  int
	activated []int
}

func (m *MockOrchestrator) Failures() []failures.Failure { return m.catalogue }
func (m *MockOrchestrator) ActiveCount() int              { return m.active }
func (m *MockOrchestrator) ChangingCount() int            { return m.changing }

func (m *MockOrchestrator) Activate(ctx context.Context, id int) error {
	m.activated = append(m.activated, id)
	return nil
}

type settingsEvent struct {
	prefix  string
	encoded string
}

type armingEvent struct {
	prefix string
	armed  []bool
}

type MockPublisher struct {
	settings []settingsEvent
	arming   []armingEvent
}

func (m *MockPublisher) PublishSettings(prefix, encoded string) error {
	m.settings = append(m.settings, settingsEvent{prefix, encoded})
	return nil
}

func (m *MockPublisher) PublishArming(prefix string, armed []bool) error {
	m.arming = append(m.arming, armingEvent{prefix, append([]bool{}, armed...)})
	return nil
}

func (m *MockPublisher) armingFor(prefix string) []armingEvent {
	var out []armingEvent
	for _, e := range m.arming {
		if e.prefix == prefix {
			out = append(out, e)
		}
	}
	return out
}

// MockRand replays scripted values, then returns fallback and zero.
type MockRand struct {
	floats   []float64
	ints     []int
	fallback float64
	calls    int
}

func (m *MockRand) Float64() float64 {
	m.calls++
	if len(m.floats) == 0 {
		return m.fallback
	}
	v := m.floats[0]
	m.floats = m.floats[1:]
	return v
}

func (m *MockRand) Intn(n int) int {
	if len(m.ints) == 0 {
		return 0
	}
	v := m.ints[0]
	m.ints = m.ints[1:]
	return v % n
}

var testCatalogue = []failures.Failure{
	{Identifier: 22000, Name: "AFS", ATA: 22},
	{Identifier: 24000, Name: "Generator 1", ATA: 24},
	{Identifier: 24001, Name: "Generator 2", ATA: 24},
}
