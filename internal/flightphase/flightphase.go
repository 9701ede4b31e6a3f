package flightphase

type FlightPhase int

const (
	Dormant      FlightPhase = iota // On the ground, throttle below takeoff setting.
	TakeOff                         // On the ground with takeoff thrust set.
	InitialClimb                    // Airborne, takeoff thrust still set.
	Flight                          // Airborne, thrust reduced.
)

func (fp FlightPhase) String() string {
	if fp < Dormant || fp > Flight {
		return "Unknown"
	}
	return [...]string{
		"Dormant",
		"Take Off",
		"Initial Climb",
		"Flight",
	}[fp]
}

// Classify derives the failure flight phase from the current ground contact
// and throttle state. It keeps no memory of earlier phases.
func Classify(onGround, throttleTakeOff bool) FlightPhase {
	if onGround {
		if throttleTakeOff {
			return TakeOff
		}
		return Dormant
	}
	if throttleTakeOff {
		return InitialClimb
	}
	return Flight
}

// Phase holds the latest two classifications.
type Phase struct {
	Current  FlightPhase
	Previous FlightPhase // phase at the previous update, used for detecting entry
}

// Update shifts the current phase into Previous and stores next.
func (p *Phase) Update(next FlightPhase) {
	p.Previous = p.Current
	p.Current = next
}

// Entered reports whether the last update moved into fp.
func (p Phase) Entered(fp FlightPhase) bool {
	return p.Current == fp && p.Previous != fp
}
