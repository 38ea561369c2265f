package registry

import (
	"slices"

	"github.com/RoaringBitmap/roaring"
)

// DepartmentGroup is one department with its members in storage order.
type DepartmentGroup struct {
	Department string
	Members    []Handle
}

// FindByName returns the record stored under name. When several records
// share a name, the last loaded one wins.
func (r *Registry) FindByName(name string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.idx.name(name)
	if !ok {
		return Handle{}, false
	}
	return r.handle(id), true
}

// FindByNamePrefix returns the records whose name starts with prefix, in
// lexical name order.
func (r *Registry) FindByNamePrefix(prefix string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Handle
	r.idx.byName.WalkPrefix(prefix, func(_ string, v interface{}) bool {
		out = append(out, r.handle(v.(uint32)))
		return false
	})
	return out
}

// GroupByDepartment returns every department in key order. The groups
// partition storage: each record appears in exactly one of them.
func (r *Registry) GroupByDepartment() []DepartmentGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.idx.byDepartment))
	for k := range r.idx.byDepartment {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]DepartmentGroup, 0, len(keys))
	for _, k := range keys {
		out = append(out, DepartmentGroup{
			Department: k,
			Members:    r.handles(r.idx.byDepartment[k]),
		})
	}
	return out
}

// Department returns the members of one department in storage order.
func (r *Registry) Department(name string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles(r.idx.byDepartment[name])
}

// DirectReports returns the records whose manager is manager.
func (r *Registry) DirectReports(manager string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles(r.idx.byManager[manager])
}

// TransitiveReports returns every direct and indirect report of manager in
// pre-order: a report comes before its own reports.
//
// The manager graph comes straight from input and may contain cycles. Each
// name is expanded at most once and each record is returned at most once, so
// a cycle cuts the walk short instead of looping.
func (r *Registry) TransitiveReports(manager string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	expanded := map[string]struct{}{manager: {}}
	seen := make(map[uint32]struct{})

	var out []Handle
	stack := pushReversed(nil, r.idx.byManager[manager])
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, r.handle(id))

		name := r.storage[id].Name()
		if _, done := expanded[name]; done {
			continue
		}
		expanded[name] = struct{}{}
		stack = pushReversed(stack, r.idx.byManager[name])
	}
	return out
}

// pushReversed pushes ids so that the first one is popped first.
func pushReversed(stack, ids []uint32) []uint32 {
	for i := len(ids) - 1; i >= 0; i-- {
		stack = append(stack, ids[i])
	}
	return stack
}

// WorkingOn returns the records working on at least one of days, each once,
// in storage order. No days means no records.
func (r *Registry) WorkingOn(days ...string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bms := make([]*roaring.Bitmap, 0, len(days))
	for _, d := range days {
		if bm, ok := r.idx.byWorkday[d]; ok {
			bms = append(bms, bm)
		}
	}
	if len(bms) == 0 {
		return nil
	}
	return r.handles(roaring.FastOr(bms...).ToArray())
}

// Workdays returns the distinct day tokens present in the index, sorted.
func (r *Registry) Workdays() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.idx.byWorkday))
	for d := range r.idx.byWorkday {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// All returns every record in storage order.
func (r *Registry) All() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, len(r.storage))
	for i := range r.storage {
		out[i] = r.handle(uint32(i))
	}
	return out
}

// InAgeRange returns the records aged between min and max inclusive, in
// storage order.
func (r *Registry) InAgeRange(min, max int) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Handle
	for i := range r.storage {
		if age := r.storage[i].Age(); age >= min && age <= max {
			out = append(out, r.handle(uint32(i)))
		}
	}
	return out
}
