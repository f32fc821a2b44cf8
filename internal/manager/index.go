package manager

import (
	"github.com/ethereum/go-ethereum/common"

	"clamm/internal/journal"
)

// ownerIndex is a dense set of token ids with O(1) add and remove. Removal moves the
// last id into the freed slot, so iteration order is not insertion order.
type ownerIndex struct {
	ids  []uint64
	slot map[uint64]int
}

func newOwnerIndex() *ownerIndex {
	return &ownerIndex{slot: make(map[uint64]int)}
}

func (x *ownerIndex) add(id uint64) {
	if _, ok := x.slot[id]; ok {
		return
	}
	x.slot[id] = len(x.ids)
	x.ids = append(x.ids, id)
}

func (x *ownerIndex) remove(id uint64) bool {
	i, ok := x.slot[id]
	if !ok {
		return false
	}
	last := len(x.ids) - 1
	moved := x.ids[last]
	x.ids[i] = moved
	x.slot[moved] = i
	x.ids = x.ids[:last]
	delete(x.slot, id)
	return true
}

func (x *ownerIndex) list() []uint64 {
	out := make([]uint64, len(x.ids))
	copy(out, x.ids)
	return out
}

// owners maps each owner to its ownerIndex. Each change journals its inverse.
type owners struct {
	sets    map[common.Address]*ownerIndex
	journal *journal.Journal
}

func newOwners(j *journal.Journal) *owners {
	return &owners{sets: make(map[common.Address]*ownerIndex), journal: j}
}

func (o *owners) add(owner common.Address, id uint64) {
	set, ok := o.sets[owner]
	if !ok {
		set = newOwnerIndex()
		o.sets[owner] = set
	}
	if _, held := set.slot[id]; held {
		return
	}
	set.add(id)
	o.journal.Append(func() {
		set.ids = set.ids[:len(set.ids)-1]
		delete(set.slot, id)
		if len(set.ids) == 0 {
			delete(o.sets, owner)
		}
	})
}

func (o *owners) remove(owner common.Address, id uint64) {
	set, ok := o.sets[owner]
	if !ok {
		return
	}
	i, held := set.slot[id]
	if !held {
		return
	}
	last := len(set.ids) - 1
	moved := set.ids[last]
	set.remove(id)
	if len(set.ids) == 0 {
		delete(o.sets, owner)
	}
	o.journal.Append(func() {
		o.sets[owner] = set
		set.ids = append(set.ids, moved)
		set.slot[moved] = last
		set.ids[i] = id
		set.slot[id] = i
	})
}

func (o *owners) list(owner common.Address) []uint64 {
	set, ok := o.sets[owner]
	if !ok {
		return []uint64{}
	}
	return set.list()
}
