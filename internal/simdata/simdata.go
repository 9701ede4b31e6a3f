package simdata

import (
	"time"

	"github.com/curbz/failure-niner/internal/xplaneapi/xpapimodel"
)

type SimDataProvider interface {
	GetTelemetry() (Telemetry, error)
}

// Telemetry is the own-ship state polled by the failure generators on every tick.
type Telemetry struct {
	OnGround          bool
	ThrottleTakeOff   bool    // throttle at or above the takeoff setting
	GroundSpeed       float64 // knots
	IndicatedAirspeed float64 // knots
	AltitudeMSL       float64 // feet
	AltitudeAGL       float64 // feet
	Received          time.Time
}

const (
	MetresToFeet = 3.28084
	MpsToKnots   = 1.943844
)

const (
	DrefOnGround      = "sim/flightmodel/failures/onground_any"
	DrefGroundSpeed   = "sim/flightmodel/position/groundspeed"
	DrefIndicatedAS   = "sim/flightmodel/position/indicated_airspeed"
	DrefElevation     = "sim/flightmodel/position/elevation"
	DrefAGL           = "sim/flightmodel/position/y_agl"
	DrefThrottleRatio = "sim/cockpit2/engine/actuators/throttle_ratio"
)

var SubscribeDatarefs = []xpapimodel.Dataref{
	{Name: DrefOnGround, // int <-- 1 when any gear touches the ground
		APIInfo: xpapimodel.DatarefInfo{}},
	{Name: DrefGroundSpeed, // float, metres per second
		APIInfo: xpapimodel.DatarefInfo{}},
	{Name: DrefIndicatedAS, // float, knots
		APIInfo: xpapimodel.DatarefInfo{}},
	{Name: DrefElevation, // double, metres MSL
		APIInfo: xpapimodel.DatarefInfo{}},
	{Name: DrefAGL, // float, metres above ground
		APIInfo: xpapimodel.DatarefInfo{}},
	{Name: DrefThrottleRatio, // float array 0..1, one per engine
		APIInfo: xpapimodel.DatarefInfo{}, DecodedDataType: "float_array"},
}
