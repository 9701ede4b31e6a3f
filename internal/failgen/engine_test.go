package failgen

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/curbz/failure-niner/internal/failures"
	"github.com/curbz/failure-niner/internal/simdata"
)

type testRig struct {
	engine *Engine
	regs   *Registries
	store  *MockStore
	orch   *MockOrchestrator
	pub    *MockPublisher
	state  *State
}

func newTestRig(settings map[string]string, catalogue []failures.Failure, cap int, rnd Rand) *testRig {
	st := NewMockStore(settings)
	pub := &MockPublisher{}
	assoc := NewAssociations(st, catalogue)
	assoc.Load()
	regs := NewRegistries(st, pub, assoc)
	regs.Load()
	orch := &MockOrchestrator{catalogue: catalogue}
	act := NewActivator(orch, assoc, rnd, cap)
	return &testRig{
		engine: NewEngine(regs, act, rnd, pub, 5*time.Second),
		regs:   regs,
		store:  st,
		orch:   orch,
		pub:    pub,
		state:  NewState(),
	}
}

func (r *testRig) fine(tel simdata.Telemetry) {
	r.engine.TickFine(context.Background(), r.state, t0, tel)
}

func (r *testRig) coarse(tel simdata.Telemetry) {
	r.engine.TickCoarse(context.Background(), r.state, t0, tel)
}

var (
	inFlight = simdata.Telemetry{}
	rolling  = simdata.Telemetry{OnGround: true, ThrottleTakeOff: true}
	climbing = simdata.Telemetry{ThrottleTakeOff: true}
	parked   = simdata.Telemetry{OnGround: true}
)

func at(tel simdata.Telemetry, mutate func(*simdata.Telemetry)) simdata.Telemetry {
	mutate(&tel)
	return tel
}

func TestAltitudeClimbActivatesOnce(t *testing.T) {
	catalogue := []failures.Failure{{Identifier: 42, Name: "Hydraulic pump", ATA: 29}}
	rig := newTestRig(map[string]string{
		Altitude.SettingKey: "1,1,2,0,0,10,20",
		AssociationKey(42):  "A0",
	}, catalogue, 2, &MockRand{})

	for range 2 {
		for _, alt := range []float64{900, 1500} {
			rig.fine(at(inFlight, func(t *simdata.Telemetry) { t.AltitudeMSL = alt }))
		}
	}

	if !reflect.DeepEqual(rig.orch.activated, []int{42}) {
		t.Errorf("activated %v, want [42]", rig.orch.activated)
	}
	if got := rig.store.values[Altitude.SettingKey]; got != "0,1,2,0,0,10,20" {
		t.Errorf("armed once generator should be persisted inactive, got %q", got)
	}
}

func TestAlwaysArmedRefires(t *testing.T) {
	catalogue := []failures.Failure{{Identifier: 42}}
	rig := newTestRig(map[string]string{
		Speed.SettingKey:   "3,1,5,0,0,200,300",
		AssociationKey(42): "S0",
	}, catalogue, 5, &MockRand{})

	for _, ias := range []float64{150, 250, 260, 150, 250} {
		rig.fine(at(inFlight, func(t *simdata.Telemetry) { t.IndicatedAirspeed = ias }))
	}
	if len(rig.orch.activated) != 2 {
		t.Errorf("activated %v, want two fires", rig.orch.activated)
	}
	if got := rig.store.values[Speed.SettingKey]; got != "3,1,5,0,0,200,300" {
		t.Errorf("always armed record changed to %q", got)
	}
}

func TestCadences(t *testing.T) {
	catalogue := []failures.Failure{{Identifier: 1}}
	rig := newTestRig(map[string]string{
		SpeedDecel.SettingKey: "3,1,5,0,100",
		AssociationKey(1):     "D0",
	}, catalogue, 5, &MockRand{})

	slow := at(parked, func(t *simdata.Telemetry) { t.GroundSpeed = 50 })
	fast := at(parked, func(t *simdata.Telemetry) { t.GroundSpeed = 120 })

	rig.fine(slow)
	rig.fine(fast)
	if len(rig.orch.activated) != 0 {
		t.Fatalf("speed decel must only arm on the coarse tick")
	}
	rig.coarse(slow)
	rig.coarse(fast)
	if len(rig.orch.activated) != 0 {
		t.Fatalf("speed decel must only fire on the fine tick")
	}
	rig.fine(fast)
	if len(rig.orch.activated) != 1 {
		t.Errorf("activated %v, want one fire", rig.orch.activated)
	}
}

func TestTakeOffThresholdLifecycle(t *testing.T) {
	catalogue := []failures.Failure{{Identifier: 7}}
	rnd := &MockRand{floats: []float64{0.1, 0.2, 0.5}, fallback: 0.99}
	rig := newTestRig(map[string]string{
		TakeOff.SettingKey: "3,1,5,0,1,0.33,0.40,30,95,140,5000",
		AssociationKey(7):  "G0",
	}, catalogue, 5, rnd)

	rig.fine(parked)
	rig.fine(rolling)
	if !rig.state.Armed("G0") {
		t.Fatalf("takeoff threshold should be drawn at the start of the roll")
	}
	rig.coarse(at(climbing, func(t *simdata.Telemetry) { t.GroundSpeed = 50 }))
	if !rig.state.Armed("G0") {
		t.Fatalf("threshold must survive into the initial climb")
	}
	rig.fine(at(inFlight, func(t *simdata.Telemetry) { t.GroundSpeed = 150 }))
	rig.coarse(at(inFlight, func(t *simdata.Telemetry) { t.GroundSpeed = 150 }))
	if rig.state.Armed("G0") || len(rig.orch.activated) != 0 {
		t.Fatalf("threshold must be discarded on reaching flight")
	}

	// parking ends the roll, the next one draws again
	rnd.floats = []float64{0.1, 0.2, 0.5}
	rig.fine(parked)
	rig.fine(rolling)
	rig.coarse(at(rolling, func(t *simdata.Telemetry) { t.GroundSpeed = 70 }))
	if !reflect.DeepEqual(rig.orch.activated, []int{7}) {
		t.Errorf("activated %v, want [7]", rig.orch.activated)
	}
}

func TestTakeOffResetsOtherGenerators(t *testing.T) {
	rig := newTestRig(map[string]string{
		Timer.SettingKey: "3,1,5,0,60",
	}, testCatalogue, 5, &MockRand{})

	rig.engine.TickCoarse(context.Background(), rig.state, t0, parked)
	if !rig.state.Armed("T0") {
		t.Fatalf("timer should be scheduled")
	}
	later := t0.Add(30 * time.Second)
	rig.engine.TickCoarse(context.Background(), rig.state, later, rolling)
	if got := rig.state.instances["T0"].deadline; !got.Equal(later.Add(60 * time.Second)) {
		t.Errorf("timer should be rescheduled from the takeoff, deadline %v", got)
	}
}

func TestArmingPublishedOnChange(t *testing.T) {
	rig := newTestRig(map[string]string{
		Altitude.SettingKey: "3,1,2,0,0,10,20,0,1,2,0,0,10,20",
	}, testCatalogue, 5, &MockRand{})

	low := at(inFlight, func(t *simdata.Telemetry) { t.AltitudeMSL = 500 })
	rig.fine(low)
	rig.fine(low)
	rig.fine(at(inFlight, func(t *simdata.Telemetry) { t.AltitudeMSL = 1500 }))

	got := rig.pub.armingFor("A")
	want := []armingEvent{
		{"A", []bool{true, false}},
		{"A", []bool{false, false}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("arming events = %v, want %v", got, want)
	}
}

func TestInactiveAndDisabledNeverFire(t *testing.T) {
	catalogue := []failures.Failure{{Identifier: 1}}
	rig := newTestRig(map[string]string{
		Altitude.SettingKey: "0,1,2,0,0,10,20,-1,1,2,0,0,10,20",
		AssociationKey(1):   "A0,A1",
	}, catalogue, 5, &MockRand{})
	for _, alt := range []float64{500, 1500, 500, 1500} {
		rig.fine(at(inFlight, func(t *simdata.Telemetry) { t.AltitudeMSL = alt }))
	}
	if len(rig.orch.activated) != 0 {
		t.Errorf("activated %v", rig.orch.activated)
	}
}

func TestGeneratorAddedWhileRunningActivates(t *testing.T) {
	catalogue := []failures.Failure{{Identifier: 42, Name: "Hydraulic pump", ATA: 29}}
	rig := newTestRig(nil, catalogue, 2, &MockRand{})

	editor := NewRegistries(rig.store, nil, NewAssociations(rig.store, catalogue))
	editor.Load()
	alt, _ := editor.ByPrefix("A")
	uid, err := alt.Add()
	if err != nil || uid != "A0" {
		t.Fatalf("Add = %q, %v", uid, err)
	}
	for field, v := range map[int]float64{ModeIndex: float64(AlwaysArmed), AltitudeMinIndex: 10, AltitudeMaxIndex: 20} {
		if err := alt.SetField(0, field, v); err != nil {
			t.Fatal(err)
		}
	}

	if got := rig.regs.Refresh(); !reflect.DeepEqual(got, []string{"Altitude"}) {
		t.Fatalf("Refresh = %v, want [Altitude]", got)
	}
	for _, a := range []float64{900, 1500} {
		rig.fine(at(inFlight, func(t *simdata.Telemetry) { t.AltitudeMSL = a }))
	}
	if !reflect.DeepEqual(rig.orch.activated, []int{42}) {
		t.Errorf("activated %v, want [42]", rig.orch.activated)
	}
}
