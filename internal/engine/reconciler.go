package engine

import "sd-address-tools/internal/model"

// DefaultMemberLimit is the group size above which some branch SRX models
// fail to load the group.
const DefaultMemberLimit = 1024

// Reconcile merges newIDs into existing. Existing members are kept exactly as
// read, in order. New ids not yet in the group are appended in input order,
// each at most once. Nothing is ever removed. OverThreshold is set when the
// merged size reaches limit; it is advisory only.
func Reconcile(existing, newIDs []model.ObjectID, limit int) model.ReconciliationResult {
	seen := make(map[model.ObjectID]struct{}, len(existing)+len(newIDs))
	merged := make([]model.ObjectID, 0, len(existing)+len(newIDs))

	for _, id := range existing {
		seen[id] = struct{}{}
	}
	merged = append(merged, existing...)

	var added []model.ObjectID
	for _, id := range newIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
		added = append(added, id)
	}

	if limit <= 0 {
		limit = DefaultMemberLimit
	}
	return model.ReconciliationResult{
		Merged:        merged,
		Added:         added,
		OverThreshold: len(merged) >= limit,
	}
}
