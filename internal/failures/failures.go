// Package failures holds the failure catalogue and tracks which failures are
// active or in the middle of being activated.
package failures

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/curbz/failure-niner/pkg/util"
)

// Failure is one entry of the failure catalogue.
type Failure struct {
	Identifier int    `yaml:"identifier"`
	Name       string `yaml:"name"`
	ATA        int    `yaml:"ata"`
	Dataref    string `yaml:"dataref"`
}

// X-Plane failure enum value for an inoperative system.
const FailedInoperative = 6

type catalogueFile struct {
	Failures []Failure `yaml:"failures"`
}

// LoadCatalogue reads the failure catalogue YAML file.
func LoadCatalogue(path string) ([]Failure, error) {
	f, err := util.LoadConfig[catalogueFile](path)
	if err != nil {
		return nil, fmt.Errorf("error loading failure catalogue %s: %w", path, err)
	}
	seen := make(map[int]bool, len(f.Failures))
	for _, fl := range f.Failures {
		if seen[fl.Identifier] {
			return nil, fmt.Errorf("duplicate failure identifier %d in %s", fl.Identifier, path)
		}
		seen[fl.Identifier] = true
	}
	return f.Failures, nil
}

// Chapters returns the distinct ATA chapters of the catalogue in ascending order.
func Chapters(all []Failure) []int {
	set := make(map[int]bool)
	for _, f := range all {
		set[f.ATA] = true
	}
	chapters := make([]int, 0, len(set))
	for c := range set {
		chapters = append(chapters, c)
	}
	sort.Ints(chapters)
	return chapters
}

// DatarefWriter writes a value to a simulator dataref.
type DatarefWriter interface {
	WriteDataref(ctx context.Context, name string, value any) error
}

// Orchestrator activates catalogue failures through a DatarefWriter.
// Activation completes asynchronously: a failure sits in the changing set
// until the write returns.
type Orchestrator struct {
	all      []Failure
	byID     map[int]Failure
	writer   DatarefWriter
	mu       sync.RWMutex
	active   map[int]bool
	changing map[int]bool
	wg       sync.WaitGroup
}

func NewOrchestrator(all []Failure, writer DatarefWriter) *Orchestrator {
	byID := make(map[int]Failure, len(all))
	for _, f := range all {
		byID[f.Identifier] = f
	}
	return &Orchestrator{
		all:      all,
		byID:     byID,
		writer:   writer,
		active:   make(map[int]bool),
		changing: make(map[int]bool),
	}
}

func (o *Orchestrator) Failures() []Failure {
	return o.all
}

func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

func (o *Orchestrator) ChangingCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.changing)
}

// IsActive reports whether the failure has been activated.
func (o *Orchestrator) IsActive(id int) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active[id]
}

// Activate marks the failure as changing and writes its dataref in the
// background. An already active or changing failure is left alone.
func (o *Orchestrator) Activate(ctx context.Context, id int) error {
	f, ok := o.byID[id]
	if !ok {
		return fmt.Errorf("unknown failure identifier %d", id)
	}

	o.mu.Lock()
	if o.active[id] || o.changing[id] {
		o.mu.Unlock()
		return nil
	}
	o.changing[id] = true
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := o.writer.WriteDataref(ctx, f.Dataref, FailedInoperative)

		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.changing, id)
		if err != nil {
			log.Printf("activation of failure %d (%s) failed: %v", id, f.Name, err)
			return
		}
		o.active[id] = true
		log.Printf("failure %d activated: %s (ATA %d)", id, f.Name, f.ATA)
	}()
	return nil
}

// DatarefReader reads the current value of a simulator dataref.
type DatarefReader interface {
	ReadDataref(ctx context.Context, name string) (float64, error)
}

// Reconcile reads the dataref of every active failure and forgets those the
// simulator no longer reports as failed, e.g. after a repair. It returns the
// repaired identifiers. Read errors leave the failure active.
func (o *Orchestrator) Reconcile(ctx context.Context, reader DatarefReader) ([]int, error) {
	o.mu.RLock()
	ids := make([]int, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	o.mu.RUnlock()
	sort.Ints(ids)

	var repaired []int
	var errs []error
	for _, id := range ids {
		f := o.byID[id]
		v, err := reader.ReadDataref(ctx, f.Dataref)
		if err != nil {
			errs = append(errs, fmt.Errorf("error reading failure %d: %w", id, err))
			continue
		}
		if v == FailedInoperative {
			continue
		}
		o.mu.Lock()
		delete(o.active, id)
		o.mu.Unlock()
		repaired = append(repaired, id)
		log.Printf("failure %d no longer active in the simulator: %s", id, f.Name)
	}
	return repaired, errors.Join(errs...)
}

// Wait blocks until all pending activations have completed.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
