package failgen

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/curbz/failure-niner/internal/failures"
)

// AssociationKey is the store key holding the generators of one failure.
func AssociationKey(failureID int) string {
	return fmt.Sprintf("EFB_FAILURE_%d_GENERATORS", failureID)
}

// Associations maps failure identifiers to the generator unique ids that may
// activate them. The store is the source of truth: every read goes back to it,
// so edits made by another process through the same store are seen at once.
// The decoded entries are kept for keys the store does not hold.
type Associations struct {
	store     Store
	catalogue []failures.Failure
	byFailure map[int][]string
}

func NewAssociations(store Store, catalogue []failures.Failure) *Associations {
	return &Associations{
		store:     store,
		catalogue: catalogue,
		byFailure: make(map[int][]string),
	}
}

// Load reads the association entry of every catalogue failure.
func (a *Associations) Load() {
	for _, f := range a.catalogue {
		raw, _ := a.store.Get(AssociationKey(f.Identifier))
		a.byFailure[f.Identifier] = DecodeIDs(raw)
	}
}

// IDs returns a copy of the generator ids associated with the failure.
func (a *Associations) IDs(failureID int) []string {
	return slices.Clone(a.current(failureID))
}

// current re-reads the failure's entry from the store.
func (a *Associations) current(failureID int) []string {
	if raw, ok := a.store.Get(AssociationKey(failureID)); ok {
		a.byFailure[failureID] = DecodeIDs(raw)
	}
	return a.byFailure[failureID]
}

// Select adds or removes uid from the failure's generators. Selecting an
// existing state again writes nothing.
func (a *Associations) Select(failureID int, uid string, value bool) error {
	ids := a.current(failureID)
	has := slices.Contains(ids, uid)
	if has == value {
		return nil
	}
	var next []string
	if value {
		next = append(slices.Clone(ids), uid)
	} else {
		next = make([]string, 0, len(ids))
		for _, id := range ids {
			if id != uid {
				next = append(next, id)
			}
		}
	}
	return a.write(failureID, next)
}

func (a *Associations) SelectAll(failureIDs []int, uid string, value bool) error {
	var errs []error
	for _, id := range failureIDs {
		if err := a.Select(id, uid, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SelectAllInChapter applies Select to every catalogue failure of an ATA chapter.
func (a *Associations) SelectAllInChapter(chapter int, uid string, value bool) error {
	var ids []int
	for _, f := range a.catalogue {
		if f.ATA == chapter {
			ids = append(ids, f.Identifier)
		}
	}
	return a.SelectAll(ids, uid, value)
}

// SelectCatalogue applies Select to the whole catalogue.
func (a *Associations) SelectCatalogue(uid string, value bool) error {
	ids := make([]int, len(a.catalogue))
	for i, f := range a.catalogue {
		ids[i] = f.Identifier
	}
	return a.SelectAll(ids, uid, value)
}

// FindAssociated returns, in catalogue order, the failures listing uid.
func (a *Associations) FindAssociated(uid string) []int {
	var found []int
	for _, f := range a.catalogue {
		if slices.Contains(a.current(f.Identifier), uid) {
			found = append(found, f.Identifier)
		}
	}
	return found
}

// RenumberAfterDelete rewrites every association after record removedIndex
// of prefix has been physically removed: the removed id is dropped and higher
// ids of the same prefix shift down by one.
func (a *Associations) RenumberAfterDelete(prefix string, removedIndex int) error {
	var errs []error
	for _, f := range a.catalogue {
		ids := a.current(f.Identifier)
		next := make([]string, 0, len(ids))
		changed := false
		for _, id := range ids {
			p, n, ok := ParseUniqueID(id)
			switch {
			case !ok || p != prefix || n < removedIndex:
				next = append(next, id)
			case n == removedIndex:
				changed = true
			default:
				next = append(next, p+strconv.Itoa(n-1))
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := a.write(f.Identifier, next); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Associations) write(failureID int, ids []string) error {
	if err := a.store.Set(AssociationKey(failureID), EncodeIDs(ids)); err != nil {
		return fmt.Errorf("error writing generators of failure %d: %w", failureID, err)
	}
	a.byFailure[failureID] = ids
	return nil
}
