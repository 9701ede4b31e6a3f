package failgen

import (
	"math"
	"time"

	"github.com/curbz/failure-niner/internal/flightphase"
	"github.com/curbz/failure-niner/internal/simdata"
)

// tick carries the inputs shared by every evaluation of one engine tick.
type tick struct {
	phase          flightphase.Phase
	now            time.Time
	telemetry      simdata.Telemetry
	rand           Rand
	coarseInterval time.Duration
}

// evaluator advances one record at each cadence and reports whether it fired.
type evaluator interface {
	fine(t tick, rec Record, in *instance) bool
	coarse(t tick, rec Record, in *instance) bool
}

// band arms on the approach side of [min, max] and fires inside it.
// Direction 0 approaches from below, 1 from above. Every comparison is false
// for NaN, so corrupt records stay idle.
func band(t tick, rec Record, in *instance, value, direction, min, max float64) bool {
	if !rec.Mode().Allows(t.phase.Current) || (direction != 0 && direction != 1) {
		in.armed = false
		return false
	}
	if in.armed && value >= min && value <= max {
		in.armed = false
		return true
	}
	if (direction == 0 && value < min) || (direction == 1 && value > max) {
		in.armed = true
	}
	return false
}

type altitudeEvaluator struct{}

func (altitudeEvaluator) fine(t tick, rec Record, in *instance) bool {
	return band(t, rec, in, t.telemetry.AltitudeMSL,
		rec[AltitudeDirectionIndex],
		rec[AltitudeMinIndex]*100, rec[AltitudeMaxIndex]*100)
}

func (altitudeEvaluator) coarse(tick, Record, *instance) bool { return false }

type speedEvaluator struct{}

func (speedEvaluator) fine(t tick, rec Record, in *instance) bool {
	return band(t, rec, in, t.telemetry.IndicatedAirspeed,
		rec[SpeedDirectionIndex],
		rec[SpeedMinIndex], rec[SpeedMaxIndex])
}

func (speedEvaluator) coarse(tick, Record, *instance) bool { return false }

// speedDecelEvaluator arms once ground speed falls well below the threshold
// and fires when it climbs back above it.
type speedDecelEvaluator struct{}

const speedDecelMargin = 10

func (speedDecelEvaluator) coarse(t tick, rec Record, in *instance) bool {
	if !rec.Mode().Allows(t.phase.Current) {
		in.armed = false
		return false
	}
	if t.telemetry.GroundSpeed < rec[SpeedDecelThresholdIndex]-speedDecelMargin {
		in.armed = true
	}
	return false
}

func (speedDecelEvaluator) fine(t tick, rec Record, in *instance) bool {
	if !in.armed || !rec.Mode().Allows(t.phase.Current) {
		return false
	}
	if t.telemetry.GroundSpeed > rec[SpeedDecelThresholdIndex] {
		in.armed = false
		return true
	}
	return false
}

// timerEvaluator schedules a deadline once per arm and fires after it.
type timerEvaluator struct{}

func (timerEvaluator) fine(tick, Record, *instance) bool { return false }

func (timerEvaluator) coarse(t tick, rec Record, in *instance) bool {
	if !rec.Mode().Allows(t.phase.Current) {
		in.armed = false
		return false
	}
	if !in.armed {
		delay := rec[TimerDelayIndex]
		if !(delay >= 0) {
			return false
		}
		in.deadline = t.now.Add(time.Duration(delay * float64(time.Second)))
		in.armed = true
		return false
	}
	if t.now.After(in.deadline) {
		in.armed = false
		return true
	}
	return false
}

// perHourEvaluator fires with a constant per-tick probability derived from
// the mean time to failure, only while in Flight.
type perHourEvaluator struct{}

func (perHourEvaluator) fine(tick, Record, *instance) bool { return false }

func (perHourEvaluator) coarse(t tick, rec Record, in *instance) bool {
	mttf := rec[PerHourMTTFIndex]
	in.armed = t.phase.Current == flightphase.Flight && rec.Mode().Allows(t.phase.Current) && mttf > 0
	if !in.armed {
		return false
	}
	return t.rand.Float64() < t.coarseInterval.Seconds()/(mttf*3600)
}

// takeOffEvaluator draws a speed or altitude threshold at the start of each
// takeoff roll and fires once it is crossed.
type takeOffEvaluator struct{}

const (
	takeOffStandstill     = 1  // kt
	takeOffAltitudeOffset = 10 // ft
)

func (takeOffEvaluator) fine(t tick, rec Record, in *instance) bool {
	if rec.Mode() <= Inactive {
		in.reset()
		return false
	}
	if in.drawn || t.phase.Current != flightphase.TakeOff || !(t.telemetry.GroundSpeed < takeOffStandstill) {
		return false
	}
	in.drawn = true
	if !(t.rand.Float64() < rec[TakeOffChanceIndex]) {
		return false
	}
	low, medium := rec[TakeOffChanceLowIndex], rec[TakeOffChanceMediumIndex]
	minSpeed, mediumSpeed, maxSpeed := rec[TakeOffMinSpeedIndex], rec[TakeOffMediumSpeedIndex], rec[TakeOffMaxSpeedIndex]
	dice := t.rand.Float64()
	switch {
	case dice < low:
		in.speedThreshold = minSpeed + t.rand.Float64()*(mediumSpeed-minSpeed)
	case dice < low+medium:
		in.speedThreshold = mediumSpeed + t.rand.Float64()*(maxSpeed-mediumSpeed)
	default:
		in.altitudeThreshold = t.telemetry.AltitudeAGL + takeOffAltitudeOffset + t.rand.Float64()*rec[TakeOffAltitudeDeltaIndex]
	}
	in.armed = !math.IsNaN(in.speedThreshold) || !math.IsNaN(in.altitudeThreshold)
	return false
}

func (takeOffEvaluator) coarse(t tick, rec Record, in *instance) bool {
	if !in.armed || rec.Mode() <= Inactive {
		return false
	}
	if t.telemetry.GroundSpeed >= in.speedThreshold || t.telemetry.AltitudeAGL >= in.altitudeThreshold {
		in.discardThresholds()
		return true
	}
	return false
}
