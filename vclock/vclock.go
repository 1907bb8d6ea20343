// Package vclock implements the vector-clock versioning that underpins
// ordering across the metadata store, the slop-detecting store, and the
// bulk-transfer wire format: every value a local store holds is paired
// with a Clock that derives a partial happens-before order between
// concurrent writers.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package vclock

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clusterkv/clusterkv/cmn/cos"
	"github.com/clusterkv/clusterkv/cmn/debug"
)

// Order is the result of comparing two clocks.
type Order int

const (
	Equal Order = iota
	Before
	After
	Concurrent
)

func (o Order) String() string {
	switch o {
	case Equal:
		return "EQUAL"
	case Before:
		return "BEFORE"
	case After:
		return "AFTER"
	default:
		return "CONCURRENTLY"
	}
}

type entry struct {
	nodeID  uint16
	counter uint64
}

// Clock is immutable once constructed: every mutating method returns a new
// value instead of mutating the receiver, the way the spec requires
// (increment(nodeId) -> clock').
type Clock struct {
	entries   []entry // sorted by nodeID, each nodeID appears at most once
	timestamp uint64  // wall-clock nanos of last mutation
}

// New returns an empty clock.
func New() Clock { return Clock{} }

// Increment creates-or-bumps the counter for nodeID and refreshes the
// timestamp to the current wall-clock time.
func (c Clock) Increment(nodeID uint16) Clock {
	out := c.clone()
	idx := out.indexOf(nodeID)
	if idx >= 0 {
		out.entries[idx].counter++
	} else {
		out.entries = append(out.entries, entry{nodeID, 1})
		sort.Slice(out.entries, func(i, j int) bool { return out.entries[i].nodeID < out.entries[j].nodeID })
	}
	out.timestamp = uint64(time.Now().UnixNano())
	debug.Assert(sortedByNodeID(out.entries), "Clock.Increment: entries not sorted by nodeID")
	return out
}

func sortedByNodeID(entries []entry) bool {
	return sort.SliceIsSorted(entries, func(i, j int) bool { return entries[i].nodeID < entries[j].nodeID })
}

func (c Clock) clone() Clock {
	out := Clock{timestamp: c.timestamp}
	if len(c.entries) > 0 {
		out.entries = make([]entry, len(c.entries))
		copy(out.entries, c.entries)
	}
	return out
}

func (c Clock) indexOf(nodeID uint16) int {
	for i := range c.entries {
		if c.entries[i].nodeID == nodeID {
			return i
		}
	}
	return -1
}

// Counter returns the counter value aistore-style: nodeID not present reads
// as zero, so Compare can treat absent entries as the identity element.
func (c Clock) Counter(nodeID uint16) uint64 {
	if idx := c.indexOf(nodeID); idx >= 0 {
		return c.entries[idx].counter
	}
	return 0
}

// Timestamp returns the wall-clock nanos of the last Increment.
func (c Clock) Timestamp() uint64 { return c.timestamp }

// IsEmpty reports whether the clock has no entries yet.
func (c Clock) IsEmpty() bool { return len(c.entries) == 0 }

// Compare implements the spec's partial order: A Before B iff every counter
// in A is <= the corresponding counter in B and at least one is strictly
// less; After is the mirror image; anything else (including disjoint node
// sets with mixed direction) is Concurrent.
func Compare(a, b Clock) Order {
	var (
		aLessOrEqB, bLessOrEqA     = true, true
		existsALessB, existsBLessA bool
	)

	seen := make(map[uint16]struct{}, len(a.entries)+len(b.entries))
	for _, e := range a.entries {
		seen[e.nodeID] = struct{}{}
	}
	for _, e := range b.entries {
		seen[e.nodeID] = struct{}{}
	}
	for nodeID := range seen {
		av, bv := a.Counter(nodeID), b.Counter(nodeID)
		switch {
		case av < bv:
			existsALessB = true
			bLessOrEqA = false
		case av > bv:
			existsBLessA = true
			aLessOrEqB = false
		}
	}

	switch {
	case aLessOrEqB && bLessOrEqA:
		return Equal
	case aLessOrEqB && existsALessB:
		return Before
	case bLessOrEqA && existsBLessA:
		return After
	default:
		return Concurrent
	}
}

// Merge returns the per-nodeID max of both clocks (the LUB of the partial
// order), with the timestamp set to the max of the two.
func Merge(a, b Clock) Clock {
	ids := make(map[uint16]uint64, len(a.entries)+len(b.entries))
	for _, e := range a.entries {
		ids[e.nodeID] = e.counter
	}
	for _, e := range b.entries {
		if cur, ok := ids[e.nodeID]; !ok || e.counter > cur {
			ids[e.nodeID] = e.counter
		}
	}
	out := Clock{entries: make([]entry, 0, len(ids))}
	for id, ctr := range ids {
		out.entries = append(out.entries, entry{id, ctr})
	}
	sort.Slice(out.entries, func(i, j int) bool { return out.entries[i].nodeID < out.entries[j].nodeID })
	if a.timestamp > b.timestamp {
		out.timestamp = a.timestamp
	} else {
		out.timestamp = b.timestamp
	}
	debug.Assert(sortedByNodeID(out.entries), "Merge: entries not sorted by nodeID")
	return out
}

// String renders a clock as "[nodeID:counter, ...]@timestamp", the form an
// operator tool prints for a value's version.
func (c Clock) String() string {
	parts := make([]string, len(c.entries))
	for i, e := range c.entries {
		parts[i] = fmt.Sprintf("%d:%d", e.nodeID, e.counter)
	}
	return fmt.Sprintf("[%s]@%d", strings.Join(parts, ", "), c.timestamp)
}

// Size returns the serialized size in bytes: 2 + entryCount*10 + 8.
func (c Clock) Size() int { return 2 + len(c.entries)*10 + 8 }

// ToBytes serializes the clock: u16 entryCount, entryCount*(u16 nodeID, u64
// counter), u64 timestamp, all big-endian.
func (c Clock) ToBytes() []byte {
	buf := make([]byte, c.Size())
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(c.entries)))
	off := 2
	for _, e := range c.entries {
		binary.BigEndian.PutUint16(buf[off:off+2], e.nodeID)
		binary.BigEndian.PutUint64(buf[off+2:off+10], e.counter)
		off += 10
	}
	binary.BigEndian.PutUint64(buf[off:off+8], c.timestamp)
	return buf
}

// FromBytes parses the wire format produced by ToBytes, failing with
// ErrInvalidClockFormat on truncation or an unsorted/duplicate nodeID run.
func FromBytes(b []byte) (Clock, error) {
	if len(b) < 2 {
		return Clock{}, &cos.ErrInvalidClockFormat{Reason: "truncated entry count"}
	}
	n := int(binary.BigEndian.Uint16(b[0:2]))
	want := 2 + n*10 + 8
	if len(b) != want {
		return Clock{}, &cos.ErrInvalidClockFormat{Reason: "length mismatch"}
	}
	out := Clock{entries: make([]entry, n)}
	off := 2
	var prev uint16
	for i := 0; i < n; i++ {
		nodeID := binary.BigEndian.Uint16(b[off : off+2])
		counter := binary.BigEndian.Uint64(b[off+2 : off+10])
		if i > 0 && nodeID <= prev {
			return Clock{}, &cos.ErrInvalidClockFormat{Reason: "entries not strictly sorted by nodeID"}
		}
		out.entries[i] = entry{nodeID, counter}
		prev = nodeID
		off += 10
	}
	out.timestamp = binary.BigEndian.Uint64(b[off : off+8])
	return out, nil
}
