package activity

import "sort"

// Indices are the flat relations of a snapshot, built once per run so the
// aggregator and evaluator never walk object graphs.
type Indices struct {
	Roles         map[string]Role
	Quotas        map[string]Quota
	QuotasByRole  map[string][]string
	RolesByMember map[int64][]string

	quotaOrder map[string]int
}

// BuildIndices derives roleID -> quotaIDs and memberID -> roleIDs. A quota is
// scoped to a role when either side names the other.
func BuildIndices(snap Snapshot) Indices {
	ix := Indices{
		Roles:         make(map[string]Role, len(snap.Roles)),
		Quotas:        make(map[string]Quota, len(snap.Quotas)),
		QuotasByRole:  make(map[string][]string),
		RolesByMember: make(map[int64][]string, len(snap.Members)),
		quotaOrder:    make(map[string]int, len(snap.Quotas)),
	}
	for i, q := range snap.Quotas {
		if _, dup := ix.Quotas[q.ID]; dup {
			continue
		}
		ix.Quotas[q.ID] = q
		ix.quotaOrder[q.ID] = i
		for _, roleID := range q.RoleIDs {
			ix.QuotasByRole[roleID] = append(ix.QuotasByRole[roleID], q.ID)
		}
	}
	for _, r := range snap.Roles {
		ix.Roles[r.ID] = r
		for _, quotaID := range r.QuotaIDs {
			if _, ok := ix.Quotas[quotaID]; ok {
				ix.QuotasByRole[r.ID] = append(ix.QuotasByRole[r.ID], quotaID)
			}
		}
	}
	for roleID, ids := range ix.QuotasByRole {
		ix.QuotasByRole[roleID] = dedupeStrings(ids)
	}
	for _, m := range snap.Members {
		ix.RolesByMember[m.UserID] = dedupeStrings(append(ix.RolesByMember[m.UserID], m.RoleIDs...))
	}
	return ix
}

// QuotasFor returns the distinct quotas scoped to any of roleIDs, in snapshot order.
func (ix Indices) QuotasFor(roleIDs []string) []Quota {
	seen := make(map[string]struct{})
	var ids []string
	for _, roleID := range roleIDs {
		for _, quotaID := range ix.QuotasByRole[roleID] {
			if _, ok := seen[quotaID]; ok {
				continue
			}
			seen[quotaID] = struct{}{}
			ids = append(ids, quotaID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ix.quotaOrder[ids[i]] < ix.quotaOrder[ids[j]] })
	out := make([]Quota, 0, len(ids))
	for _, id := range ids {
		out = append(out, ix.Quotas[id])
	}
	return out
}

// IsOwner reports whether any of roleIDs is an owner role.
func (ix Indices) IsOwner(roleIDs []string) bool {
	for _, id := range roleIDs {
		if ix.Roles[id].IsOwnerRole {
			return true
		}
	}
	return false
}
