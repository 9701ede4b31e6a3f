package failgen

import (
	"context"
	"log"
)

// Activator turns a generator fire into failure activations, honouring the
// global cap on simultaneous failures.
type Activator struct {
	orchestrator      Orchestrator
	assoc             *Associations
	rand              Rand
	maxFailuresAtOnce int
}

func NewActivator(orchestrator Orchestrator, assoc *Associations, rand Rand, maxFailuresAtOnce int) *Activator {
	return &Activator{
		orchestrator:      orchestrator,
		assoc:             assoc,
		rand:              rand,
		maxFailuresAtOnce: maxFailuresAtOnce,
	}
}

// TryActivate picks failures associated with uid at random and activates
// them. Fires over either limit are dropped, never queued. It returns the
// identifiers passed to the orchestrator.
func (a *Activator) TryActivate(ctx context.Context, uid string, rec Record) []int {
	known := make(map[int]bool)
	for _, f := range a.orchestrator.Failures() {
		known[f.Identifier] = true
	}
	var candidates []int
	for _, id := range a.assoc.FindAssociated(uid) {
		if known[id] {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	total := a.orchestrator.ActiveCount() + a.orchestrator.ChangingCount()
	if total >= a.maxFailuresAtOnce {
		log.Printf("generator %s fired with %d failures already active, dropped", uid, total)
		return nil
	}
	if !(float64(total) < rec.MaxFailures()) {
		log.Printf("generator %s reached its own limit of %v failures, dropped", uid, rec.MaxFailures())
		return nil
	}

	n := min(rec.FailuresAtOnce(), a.maxFailuresAtOnce-total, len(candidates))
	var activated []int
	for range n {
		i := a.rand.Intn(len(candidates))
		id := candidates[i]
		candidates = append(candidates[:i], candidates[i+1:]...)
		if err := a.orchestrator.Activate(ctx, id); err != nil {
			log.Printf("generator %s could not activate failure %d: %v", uid, id, err)
			continue
		}
		activated = append(activated, id)
	}
	return activated
}
