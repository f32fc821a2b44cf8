// Package journal records undo actions so a group of mutations can be reverted as a
// unit. Every component that takes part in an operation appends to the same journal;
// the caller marks a snapshot before the operation and reverts to it on failure.
package journal

import "fmt"

// Journal is an append-only list of undo closures. The zero value is ready to use.
// A nil *Journal accepts and discards entries, which is how standalone pools and
// quoting copies run.
type Journal struct {
	entries []func()
	marks   []int
}

func New() *Journal {
	return &Journal{}
}

// Append records how to undo a mutation that has just been applied.
func (j *Journal) Append(undo func()) {
	if j == nil {
		return
	}
	j.entries = append(j.entries, undo)
}

// Snapshot returns an id identifying the current revision.
func (j *Journal) Snapshot() int {
	if j == nil {
		return 0
	}
	j.marks = append(j.marks, len(j.entries))
	return len(j.marks) - 1
}

// RevertToSnapshot undoes every entry recorded after the snapshot, newest first, and
// invalidates that snapshot and any taken after it.
func (j *Journal) RevertToSnapshot(id int) {
	if j == nil {
		return
	}
	if id < 0 || id >= len(j.marks) {
		panic(fmt.Sprintf("journal: revision id %d cannot be reverted", id))
	}
	mark := j.marks[id]
	for i := len(j.entries) - 1; i >= mark; i-- {
		j.entries[i]()
		j.entries[i] = nil
	}
	j.entries = j.entries[:mark]
	j.marks = j.marks[:id]
}

// Commit discards all undo information. Call it once the outermost operation succeeded.
func (j *Journal) Commit() {
	if j == nil {
		return
	}
	for i := range j.entries {
		j.entries[i] = nil
	}
	j.entries = j.entries[:0]
	j.marks = j.marks[:0]
}

// Length returns the number of pending undo entries.
func (j *Journal) Length() int {
	if j == nil {
		return 0
	}
	return len(j.entries)
}
