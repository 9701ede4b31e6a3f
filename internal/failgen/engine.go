package failgen

import (
	"context"
	"log"
	"time"

	"github.com/curbz/failure-niner/internal/flightphase"
	"github.com/curbz/failure-niner/internal/simdata"
)

type cadence int

const (
	fine cadence = iota
	coarse
)

// Engine evaluates every generator record on the fine and coarse ticks.
// All methods must be called from a single goroutine.
type Engine struct {
	registries     *Registries
	activator      *Activator
	rand           Rand
	publisher      Publisher
	coarseInterval time.Duration
}

func NewEngine(registries *Registries, activator *Activator, rand Rand, publisher Publisher, coarseInterval time.Duration) *Engine {
	if publisher == nil {
		publisher = NopPublisher
	}
	return &Engine{
		registries:     registries,
		activator:      activator,
		rand:           rand,
		publisher:      publisher,
		coarseInterval: coarseInterval,
	}
}

func (e *Engine) TickFine(ctx context.Context, st *State, now time.Time, t simdata.Telemetry) {
	e.tick(ctx, st, now, t, fine)
}

func (e *Engine) TickCoarse(ctx context.Context, st *State, now time.Time, t simdata.Telemetry) {
	e.tick(ctx, st, now, t, coarse)
}

func (e *Engine) tick(ctx context.Context, st *State, now time.Time, t simdata.Telemetry, c cadence) {
	st.Phase.Update(flightphase.Classify(t.OnGround, t.ThrottleTakeOff))
	if st.Phase.Previous != st.Phase.Current {
		log.Printf("flight phase %s -> %s", st.Phase.Previous, st.Phase.Current)
	}
	e.applyPhaseEntry(st)

	tk := tick{
		phase:          st.Phase,
		now:            now,
		telemetry:      t,
		rand:           e.rand,
		coarseInterval: e.coarseInterval,
	}
	for _, r := range e.registries.All() {
		e.evaluate(ctx, st, tk, r, c)
	}
}

func (e *Engine) applyPhaseEntry(st *State) {
	for _, r := range e.registries.All() {
		typ := r.Type()
		switch {
		case typ.TakeoffRearmDisabled && st.Phase.Entered(flightphase.Dormant):
			st.resetType(typ, r.Count())
		case typ.TakeoffRearmDisabled && st.Phase.Entered(flightphase.Flight):
			for i := 0; i < r.Count(); i++ {
				st.instance(UniqueID(typ.Prefix, i)).discardThresholds()
			}
		case !typ.TakeoffRearmDisabled && st.Phase.Entered(flightphase.TakeOff):
			st.resetType(typ, r.Count())
		}
	}
}

func (e *Engine) evaluate(ctx context.Context, st *State, tk tick, r *Registry, c cadence) {
	typ := r.Type()
	dirty := false
	armed := make([]bool, r.Count())
	for i := 0; i < r.Count(); i++ {
		uid := UniqueID(typ.Prefix, i)
		rec := r.Record(i)
		in := st.instance(uid)
		if rec.Mode() <= Inactive {
			in.reset()
			continue
		}

		var fired bool
		if c == fine {
			fired = typ.evaluator.fine(tk, rec, in)
		} else {
			fired = typ.evaluator.coarse(tk, rec, in)
		}
		if fired {
			log.Printf("generator %s fired in phase %s", uid, tk.phase.Current)
			e.activator.TryActivate(ctx, uid, rec)
			if rec.Mode() == ArmedOnce {
				rec[ModeIndex] = float64(Inactive)
				in.reset()
				dirty = true
			}
		}
		armed[i] = in.armed
	}

	if dirty {
		if err := r.Persist(); err != nil {
			log.Printf("error saving %s generators after fire: %v", typ.Name, err)
		}
	}
	if st.armingChanged(typ.Prefix, armed) {
		if err := e.publisher.PublishArming(typ.Prefix, armed); err != nil {
			log.Printf("error publishing %s arming status: %v", typ.Name, err)
		}
	}
}
