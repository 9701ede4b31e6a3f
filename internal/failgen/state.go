package failgen

import (
	"math"
	"time"

	"github.com/curbz/failure-niner/internal/flightphase"
)

// instance is the runtime state of one generator record.
type instance struct {
	armed             bool
	deadline          time.Time
	speedThreshold    float64
	altitudeThreshold float64
	drawn             bool // takeoff draw done for this roll
}

func newInstance() *instance {
	return &instance{speedThreshold: math.NaN(), altitudeThreshold: math.NaN()}
}

func (in *instance) reset() {
	*in = *newInstance()
}

// discardThresholds drops a drawn takeoff threshold without re-enabling the
// draw for the current roll.
func (in *instance) discardThresholds() {
	drawn := in.drawn
	in.reset()
	in.drawn = drawn
}

// State is the engine state owned by the scheduler loop. It is never
// persisted; a zero State is ready to use.
type State struct {
	Phase     flightphase.Phase
	instances map[string]*instance
	arming    map[string][]bool
}

func NewState() *State {
	return &State{}
}

func (s *State) instance(uid string) *instance {
	if s.instances == nil {
		s.instances = make(map[string]*instance)
	}
	in, ok := s.instances[uid]
	if !ok {
		in = newInstance()
		s.instances[uid] = in
	}
	return in
}

// Armed reports whether the generator is currently armed.
func (s *State) Armed(uid string) bool {
	in, ok := s.instances[uid]
	return ok && in.armed
}

// resetType puts every instance of the prefix back to idle.
func (s *State) resetType(typ GeneratorType, count int) {
	for i := 0; i < count; i++ {
		if in, ok := s.instances[UniqueID(typ.Prefix, i)]; ok {
			in.reset()
		}
	}
}

// armingChanged records the arming flags of a type and reports whether they changed.
func (s *State) armingChanged(prefix string, armed []bool) bool {
	if s.arming == nil {
		s.arming = make(map[string][]bool)
	}
	prev, ok := s.arming[prefix]
	s.arming[prefix] = armed
	if !ok || len(prev) != len(armed) {
		return true
	}
	for i := range armed {
		if prev[i] != armed[i] {
			return true
		}
	}
	return false
}
