// Package domain provides the owner-facing projection of lead status.
package domain

import (
	"sort"
	"time"
)

// LeadOwner links a lead to its owner. It is recorded from LeadCreated so
// later status changes, which do not carry the owner, can be attributed.
type LeadOwner struct {
	LeadID    int64
	OwnerID   string
	CreatedAt time.Time
}

// Entry is one append-only history row. EventID is the LeadStatusChanged
// event that produced it.
type Entry struct {
	Seq       int64
	OwnerID   string
	LeadID    int64
	Status    string
	Reason    *string
	UpdatedAt time.Time
	EventID   string
}

// SortNewestFirst orders entries by recency. Entries with the same
// timestamp keep append order reversed.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].UpdatedAt.Equal(entries[j].UpdatedAt) {
			return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
		}
		return entries[i].Seq > entries[j].Seq
	})
}
