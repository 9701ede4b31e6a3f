package failgen

import (
	"fmt"
	"log"

	"github.com/mohae/deepcopy"
)

// Registry owns the flat record array of one generator type and its
// persisted settings string.
type Registry struct {
	typ       GeneratorType
	records   []float64
	loaded    string // settings string last read from or written to the store
	store     Store
	publisher Publisher
	assoc     *Associations
}

func NewRegistry(typ GeneratorType, store Store, publisher Publisher, assoc *Associations) *Registry {
	if publisher == nil {
		publisher = NopPublisher
	}
	return &Registry{
		typ:       typ,
		records:   []float64{},
		store:     store,
		publisher: publisher,
		assoc:     assoc,
	}
}

func (r *Registry) Type() GeneratorType {
	return r.typ
}

// Load decodes the persisted settings of the type.
func (r *Registry) Load() {
	raw, _ := r.store.Get(r.typ.SettingKey)
	r.records = Decode(raw, r.typ.Width)
	r.loaded = raw
}

// Count is the number of records, tombstones included.
func (r *Registry) Count() int {
	return len(r.records) / r.typ.Width
}

// Record returns a view of record i. Writes through it are not persisted.
func (r *Registry) Record(i int) Record {
	w := r.typ.Width
	return Record(r.records[i*w : (i+1)*w : (i+1)*w])
}

// Snapshot returns an independent copy of every record for presentation.
func (r *Registry) Snapshot() [][]float64 {
	out := make([][]float64, r.Count())
	for i := range out {
		out[i] = deepcopy.Copy([]float64(r.Record(i))).([]float64)
	}
	return out
}

// Encoded is the current settings string.
func (r *Registry) Encoded() string {
	return Encode(r.records)
}

// Add instantiates a default record, reusing the lowest disabled slot when
// there is one. Every catalogue failure is associated with the new generator.
func (r *Registry) Add() (string, error) {
	w := r.typ.Width
	if len(r.records) == 0 || len(r.records)%w != 0 {
		r.records = append([]float64{}, r.typ.DefaultRecord...)
		return r.added(0)
	}
	for i := 0; i < r.Count(); i++ {
		if r.Record(i).Mode() == Disabled {
			copy(r.records[i*w:(i+1)*w], r.typ.DefaultRecord)
			return r.added(i)
		}
	}
	r.records = append(r.records, r.typ.DefaultRecord...)
	return r.added(r.Count() - 1)
}

func (r *Registry) added(index int) (string, error) {
	uid := UniqueID(r.typ.Prefix, index)
	if err := r.Persist(); err != nil {
		return uid, err
	}
	if r.assoc != nil {
		if err := r.assoc.SelectCatalogue(uid, true); err != nil {
			return uid, err
		}
	}
	log.Printf("generator %s added", uid)
	return uid, nil
}

// Erase removes the last record physically and tombstones any other one,
// keeping higher indices stable. The slot's associations are cleared.
func (r *Registry) Erase(index int) error {
	if index < 0 || index >= r.Count() {
		return fmt.Errorf("%w: %s%d", ErrIndexOutOfRange, r.typ.Prefix, index)
	}
	if index == r.Count()-1 {
		r.records = r.records[:index*r.typ.Width]
	} else {
		r.records[index*r.typ.Width+ModeIndex] = float64(Disabled)
	}
	if err := r.Persist(); err != nil {
		return err
	}
	uid := UniqueID(r.typ.Prefix, index)
	if r.assoc != nil {
		if err := r.assoc.SelectCatalogue(uid, false); err != nil {
			return err
		}
	}
	log.Printf("generator %s erased", uid)
	return nil
}

// SetField edits one field of a record and persists the type. Raising the
// failures at once count raises the max failures field with it.
func (r *Registry) SetField(index, field int, value float64) error {
	if index < 0 || index >= r.Count() {
		return fmt.Errorf("%w: %s%d", ErrIndexOutOfRange, r.typ.Prefix, index)
	}
	if field < 0 || field >= r.typ.Width {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrFieldOutOfRange, field, r.typ.Width)
	}
	rec := r.Record(index)
	rec[field] = value
	if field == FailuresAtOnceIndex && !(rec[MaxFailuresIndex] >= value) {
		rec[MaxFailuresIndex] = value
	}
	return r.Persist()
}

// Persist writes the settings string to the store and mirrors it.
func (r *Registry) Persist() error {
	encoded := Encode(r.records)
	if err := r.store.Set(r.typ.SettingKey, encoded); err != nil {
		return fmt.Errorf("error persisting %s generators: %w", r.typ.Name, err)
	}
	r.loaded = encoded
	if err := r.publisher.PublishSettings(r.typ.Prefix, encoded); err != nil {
		log.Printf("error publishing %s settings: %v", r.typ.Name, err)
	}
	return nil
}

// ApplyRemote replaces the records with settings mirrored from another
// process. Nothing is republished.
func (r *Registry) ApplyRemote(encoded string) {
	records := Decode(encoded, r.typ.Width)
	if len(records)%r.typ.Width != 0 {
		log.Printf("ignoring misaligned remote %s settings %q", r.typ.Name, encoded)
		return
	}
	r.records = records
	if err := r.store.Set(r.typ.SettingKey, encoded); err != nil {
		log.Printf("error storing remote %s settings: %v", r.typ.Name, err)
		return
	}
	r.loaded = encoded
}

// Refresh reloads the settings when another process has changed them in the
// shared store. It reports whether the records changed.
func (r *Registry) Refresh() bool {
	raw, ok := r.store.Get(r.typ.SettingKey)
	if !ok || raw == r.loaded {
		return false
	}
	r.loaded = raw
	records := Decode(raw, r.typ.Width)
	if len(records)%r.typ.Width != 0 {
		return false
	}
	r.records = records
	return true
}

// Compact physically removes every disabled record and renumbers the
// associations of the records after it. Unique ids of later records change,
// so it must not run while an engine is ticking.
func (r *Registry) Compact() (int, error) {
	w := r.typ.Width
	removed := 0
	for i := r.Count() - 1; i >= 0; i-- {
		if r.Record(i).Mode() != Disabled {
			continue
		}
		r.records = append(r.records[:i*w], r.records[(i+1)*w:]...)
		removed++
		if r.assoc != nil {
			if err := r.assoc.RenumberAfterDelete(r.typ.Prefix, i); err != nil {
				return removed, err
			}
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, r.Persist()
}
