package snapshot

import "flatwatch/internal/model"

// Result holds the listings that appeared and disappeared between two snapshots.
// Listings are compared by ID only; a changed price on a known ID is neither.
type Result struct {
	Added   model.Snapshot
	Removed model.Snapshot
}

// HasChanges reports whether anything was added or removed.
func (r Result) HasChanges() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// Diff compares the previous snapshot with the fresh one.
func Diff(old, new model.Snapshot) Result {
	res := Result{
		Added:   make(model.Snapshot),
		Removed: make(model.Snapshot),
	}
	for id, l := range new {
		if _, ok := old[id]; !ok {
			res.Added[id] = l
		}
	}
	for id, l := range old {
		if _, ok := new[id]; !ok {
			res.Removed[id] = l
		}
	}
	return res
}
