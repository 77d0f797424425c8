// Package history holds the append-only audit logs. Each log is a circular
// buffer of Capacity records; record ids keep increasing across wraparound.
package history

import (
	errorsmod "cosmossdk.io/errors"

	chmath "PerpClearing/internal/math"
)

// Capacity is the number of slots in every log.
const Capacity = 1024

var (
	ErrRecordOutOfOrder = errorsmod.Register(chmath.Codespace, 58, "history record id out of order")
	ErrUnknownLog       = errorsmod.Register(chmath.Codespace, 59, "unknown history log")
)

// Record is implemented by every history record type.
type Record interface {
	ID() uint64
	Timestamp() int64
	Kind() Kind
}

// Log is a fixed-capacity circular log. Head is the slot the next record is
// written to.
type Log[R Record] struct {
	Head    uint64      `json:"head"`
	Records [Capacity]R `json:"records"`
}

func (l *Log[R]) prev() uint64 {
	if l.Head == 0 {
		return Capacity - 1
	}
	return l.Head - 1
}

// NextRecordID is one past the id of the most recently written record.
func (l *Log[R]) NextRecordID() uint64 {
	return l.Records[l.prev()].ID() + 1
}

// Append writes r at the head, overwriting the oldest record once full.
// r must carry NextRecordID.
func (l *Log[R]) Append(r R) error {
	if want := l.NextRecordID(); r.ID() != want {
		return errorsmod.Wrapf(ErrRecordOutOfOrder, "%s record %d, want %d", r.Kind(), r.ID(), want)
	}
	l.Records[l.Head] = r
	l.Head = (l.Head + 1) % Capacity
	return nil
}

// Len is the number of records currently held.
func (l *Log[R]) Len() int {
	n := l.NextRecordID() - 1
	if n > Capacity {
		return Capacity
	}
	return int(n)
}

// Latest returns the most recent record.
func (l *Log[R]) Latest() (R, bool) {
	r := l.Records[l.prev()]
	return r, r.ID() != 0
}

// Range returns up to limit records with id >= fromID, oldest first.
func (l *Log[R]) Range(fromID uint64, limit int) []R {
	n := l.Len()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]R, 0, limit)

	// the oldest held record sits at head once the buffer has wrapped
	start := uint64(0)
	if n == Capacity {
		start = l.Head
	}
	for i := 0; i < n && len(out) < limit; i++ {
		r := l.Records[(start+uint64(i))%Capacity]
		if r.ID() < fromID {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Stage starts collecting records for one operation.
func (l *Log[R]) Stage() *Staged[R] {
	return &Staged[R]{log: l, next: l.NextRecordID()}
}

// Staged holds records numbered against a log but not yet written to it.
type Staged[R Record] struct {
	log     *Log[R]
	next    uint64
	pending []R
}

// NextRecordID is the id the next staged record must carry.
func (s *Staged[R]) NextRecordID() uint64 { return s.next }

// Add stages r, which must carry NextRecordID.
func (s *Staged[R]) Add(r R) error {
	if r.ID() != s.next {
		return errorsmod.Wrapf(ErrRecordOutOfOrder, "%s record %d, want %d", r.Kind(), r.ID(), s.next)
	}
	s.pending = append(s.pending, r)
	s.next++
	return nil
}

// Pending returns the staged records.
func (s *Staged[R]) Pending() []R { return s.pending }

// Commit appends the staged records and returns them as entries.
func (s *Staged[R]) Commit() ([]Entry, error) {
	entries := make([]Entry, 0, len(s.pending))
	for _, r := range s.pending {
		if err := s.log.Append(r); err != nil {
			return entries, err
		}
		entries = append(entries, NewEntry(r))
	}
	s.pending = nil
	return entries, nil
}

// OrderLog is the order history. It also issues order ids.
type OrderLog struct {
	Log[OrderRecord]
	LastOrderID uint64 `json:"last_order_id"`
}

// NextOrderID is the id the next placed order receives. LastOrderID is
// advanced when the placing operation commits.
func (l *OrderLog) NextOrderID() uint64 { return l.LastOrderID + 1 }
