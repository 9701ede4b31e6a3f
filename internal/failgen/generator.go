package failgen

import (
	"math"
	"strconv"
	"unicode"

	"github.com/curbz/failure-niner/internal/flightphase"
)

type Mode int

const (
	Disabled      Mode = iota - 1 // free slot, reusable by Add
	Inactive                      // configured but never arms
	ArmedOnce                     // fires once, then drops back to Inactive
	ArmedInFlight                 // arms only in the Flight phase
	AlwaysArmed                   // re-arms after every fire
)

func (m Mode) String() string {
	switch m {
	case Disabled:
		return "Disabled"
	case Inactive:
		return "Inactive"
	case ArmedOnce:
		return "Armed Once"
	case ArmedInFlight:
		return "Armed In Flight"
	case AlwaysArmed:
		return "Always Armed"
	}
	return "Unknown"
}

// ModeOf maps a stored mode value to a Mode. Anything unrecognised,
// NaN included, is Inactive.
func ModeOf(v float64) Mode {
	switch v {
	case -1:
		return Disabled
	case 1:
		return ArmedOnce
	case 2:
		return ArmedInFlight
	case 3:
		return AlwaysArmed
	}
	return Inactive
}

// Allows reports whether a generator in this mode may arm during phase.
func (m Mode) Allows(phase flightphase.FlightPhase) bool {
	switch m {
	case ArmedOnce, AlwaysArmed:
		return true
	case ArmedInFlight:
		return phase == flightphase.Flight
	}
	return false
}

// Common record header.
const (
	ModeIndex           = 0
	FailuresAtOnceIndex = 1
	MaxFailuresIndex    = 2
	ReadyDisplayIndex   = 3
	headerWidth         = 4
)

// Record is one generator's settings, a width-long view into its type's array.
type Record []float64

func (r Record) Mode() Mode {
	return ModeOf(r[ModeIndex])
}

// FailuresAtOnce is never less than one.
func (r Record) FailuresAtOnce() int {
	v := r[FailuresAtOnceIndex]
	if !(v >= 1) {
		return 1
	}
	return int(v)
}

func (r Record) MaxFailures() float64 {
	return r[MaxFailuresIndex]
}

func (r Record) Field(i int) float64 {
	if i < 0 || i >= len(r) {
		return math.NaN()
	}
	return r[i]
}

// GeneratorType describes one class of generator and its record layout.
type GeneratorType struct {
	Name                 string
	Prefix               string
	Width                int
	DefaultRecord        []float64
	TakeoffRearmDisabled bool
	SettingKey           string
	FieldNames           []string
	evaluator            evaluator
}

func settingKey(name string) string {
	return "EFB_FAILURE_GENERATOR_SETTING_" + name
}

var header = []string{"mode", "failures at once", "max failures", "ready display"}

func fields(names ...string) []string {
	return append(append([]string{}, header...), names...)
}

// Type-specific field indices.
const (
	AltitudeDirectionIndex = headerWidth + iota
	AltitudeMinIndex
	AltitudeMaxIndex
)

const (
	SpeedDirectionIndex = headerWidth + iota
	SpeedMinIndex
	SpeedMaxIndex
)

const SpeedDecelThresholdIndex = headerWidth

const TimerDelayIndex = headerWidth

const PerHourMTTFIndex = headerWidth

const (
	TakeOffChanceIndex = headerWidth + iota
	TakeOffChanceLowIndex
	TakeOffChanceMediumIndex
	TakeOffMinSpeedIndex
	TakeOffMediumSpeedIndex
	TakeOffMaxSpeedIndex
	TakeOffAltitudeDeltaIndex
)

// Direction values for the band generators.
const (
	Climb      = 0
	Descent    = 1
	Accelerate = 0
	Decelerate = 1
)

var (
	Altitude = GeneratorType{
		Name: "Altitude", Prefix: "A", Width: 7,
		DefaultRecord: []float64{2, 1, 2, 0, Climb, 80, 250},
		SettingKey:    settingKey("ALTITUDE"),
		FieldNames:    fields("direction", "min altitude (100 ft)", "max altitude (100 ft)"),
		evaluator:     altitudeEvaluator{},
	}
	Speed = GeneratorType{
		Name: "Speed", Prefix: "S", Width: 7,
		DefaultRecord: []float64{2, 1, 2, 0, Accelerate, 200, 300},
		SettingKey:    settingKey("SPEED"),
		FieldNames:    fields("direction", "min speed (kt)", "max speed (kt)"),
		evaluator:     speedEvaluator{},
	}
	SpeedDecel = GeneratorType{
		Name: "SpeedDecel", Prefix: "D", Width: 5,
		DefaultRecord: []float64{2, 1, 2, 0, 200},
		SettingKey:    settingKey("SPEEDDECEL"),
		FieldNames:    fields("ground speed (kt)"),
		evaluator:     speedDecelEvaluator{},
	}
	Timer = GeneratorType{
		Name: "Timer", Prefix: "T", Width: 5,
		DefaultRecord: []float64{1, 1, 2, 0, 300},
		SettingKey:    settingKey("TIMER"),
		FieldNames:    fields("delay (s)"),
		evaluator:     timerEvaluator{},
	}
	PerHour = GeneratorType{
		Name: "PerHour", Prefix: "H", Width: 5,
		DefaultRecord: []float64{2, 1, 2, 0, 2},
		SettingKey:    settingKey("PERHOUR"),
		FieldNames:    fields("mean time to failure (h)"),
		evaluator:     perHourEvaluator{},
	}
	TakeOff = GeneratorType{
		Name: "TakeOff", Prefix: "G", Width: 11,
		DefaultRecord:        []float64{1, 1, 2, 0, 1, 0.33, 0.40, 30, 95, 140, 5000},
		TakeoffRearmDisabled: true,
		SettingKey:           settingKey("TAKEOFF"),
		FieldNames: fields("chance per takeoff", "chance low speed", "chance medium speed",
			"min speed (kt)", "medium speed (kt)", "max speed (kt)", "altitude delta (ft)"),
		evaluator: takeOffEvaluator{},
	}
)

// AllTypes lists every generator type in presentation order.
func AllTypes() []GeneratorType {
	return []GeneratorType{Altitude, Speed, SpeedDecel, Timer, PerHour, TakeOff}
}

// UniqueID joins a type prefix and a slot index, e.g. "A0".
func UniqueID(prefix string, index int) string {
	return prefix + strconv.Itoa(index)
}

// ParseUniqueID splits "G12" into "G" and 12.
func ParseUniqueID(uid string) (string, int, bool) {
	i := 0
	for i < len(uid) && !unicode.IsDigit(rune(uid[i])) {
		i++
	}
	if i == 0 || i == len(uid) {
		return "", 0, false
	}
	n, err := strconv.Atoi(uid[i:])
	if err != nil || n < 0 || strconv.Itoa(n) != uid[i:] {
		// "A01" is not the id of record 1
		return "", 0, false
	}
	return uid[:i], n, true
}
