package dedup

import (
	"slices"

	"github.com/s0up4200/qbit-dedup/qbittorrent"
)

// Group holds entries sharing a GroupKey, oldest first.
type Group struct {
	Key     GroupKey
	Entries []qbittorrent.Entry
}

// Survivor returns the most recently added entry of the group.
func (g Group) Survivor() qbittorrent.Entry {
	return g.Entries[len(g.Entries)-1]
}

// Victims returns every entry except the survivor.
func (g Group) Victims() []qbittorrent.Entry {
	if len(g.Entries) < 2 {
		return nil
	}
	return g.Entries[:len(g.Entries)-1]
}

// IsDuplicate reports whether the group has more than one entry.
func (g Group) IsDuplicate() bool {
	return len(g.Entries) > 1
}

// Plan is the result of grouping a listing.
type Plan struct {
	Policy string
	Groups []Group
}

// Duplicates returns only the groups that have victims.
func (p Plan) Duplicates() []Group {
	var out []Group
	for _, g := range p.Groups {
		if g.IsDuplicate() {
			out = append(out, g)
		}
	}
	return out
}

// Victims returns the entries to delete in group-then-time order.
func (p Plan) Victims() []qbittorrent.Entry {
	var out []qbittorrent.Entry
	for _, g := range p.Groups {
		out = append(out, g.Victims()...)
	}
	return out
}

// NewPlan groups entries with policy. Groups keep the order in which their
// key first appears in entries; each group is stable-sorted by AddedOn, so
// of two entries added at the same second the later one in the input is
// treated as newer.
func NewPlan(entries []qbittorrent.Entry, policy KeyPolicy) Plan {
	if policy == nil {
		policy = FolderPolicy
	}

	index := make(map[GroupKey]int)
	var groups []Group

	for _, e := range entries {
		key := policy.Key(e)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}

	for i := range groups {
		slices.SortStableFunc(groups[i].Entries, func(a, b qbittorrent.Entry) int {
			return a.AddedOn.Compare(b.AddedOn)
		})
	}

	return Plan{Policy: policy.Name(), Groups: groups}
}

// Victims is shorthand for NewPlan(entries, policy).Victims().
func Victims(entries []qbittorrent.Entry, policy KeyPolicy) []qbittorrent.Entry {
	return NewPlan(entries, policy).Victims()
}
