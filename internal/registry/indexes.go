package registry

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/armon/go-radix"

	"github.com/starford/staffreg/internal/record"
)

// indexes is the derived lookup state over storage. Entries are arena ids.
// It is only ever replaced as a whole.
type indexes struct {
	byName       *radix.Tree // name -> uint32, last write wins
	byDepartment map[string][]uint32
	byManager    map[string][]uint32 // manager name -> direct reports
	byWorkday    map[string]*roaring.Bitmap
}

func newIndexes() *indexes {
	return &indexes{
		byName:       radix.New(),
		byDepartment: make(map[string][]uint32),
		byManager:    make(map[string][]uint32),
		byWorkday:    make(map[string]*roaring.Bitmap),
	}
}

// buildIndexes makes one pass over storage. Cost is O(n*d) for d workdays
// per record.
func buildIndexes(storage []record.Record) *indexes {
	idx := newIndexes()
	for i := range storage {
		rec := &storage[i]
		id := uint32(i)

		idx.byName.Insert(rec.Name(), id)
		idx.byDepartment[rec.Department()] = append(idx.byDepartment[rec.Department()], id)
		idx.byManager[rec.Manager()] = append(idx.byManager[rec.Manager()], id)
		rec.EachWorkday(func(day string) {
			bm, ok := idx.byWorkday[day]
			if !ok {
				bm = roaring.New()
				idx.byWorkday[day] = bm
			}
			bm.Add(id)
		})
	}
	for _, bm := range idx.byWorkday {
		bm.RunOptimize()
	}
	return idx
}

func (idx *indexes) name(name string) (uint32, bool) {
	v, ok := idx.byName.Get(name)
	if !ok {
		return 0, false
	}
	return v.(uint32), true
}

// IndexStats summarises the registry and its indexes.
type IndexStats struct {
	Records     int    `json:"records"`
	Names       int    `json:"names"`
	Departments int    `json:"departments"`
	Managers    int    `json:"managers"`
	Workdays    int    `json:"workdays"`
	Generation  uint64 `json:"generation"`
}

// Stats returns the current index sizes.
func (r *Registry) Stats() IndexStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return IndexStats{
		Records:     len(r.storage),
		Names:       r.idx.byName.Len(),
		Departments: len(r.idx.byDepartment),
		Managers:    len(r.idx.byManager),
		Workdays:    len(r.idx.byWorkday),
		Generation:  r.gen,
	}
}
