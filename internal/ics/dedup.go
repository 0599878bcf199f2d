package ics

import "dmailcal/internal/model"

type titleStart struct {
	title, from string
}

// FilterDuplicates returns the candidates that match no existing event by
// UID or, failing that, by (title, fromTime). existing is read once; the
// result is never nil.
func FilterDuplicates(candidates, existing []model.EventRecord) []model.EventRecord {
	uids := make(map[string]struct{}, len(existing))
	keys := make(map[titleStart]struct{}, len(existing))
	for i := range existing {
		if existing[i].UID != "" {
			uids[existing[i].UID] = struct{}{}
		}
		keys[titleStart{existing[i].Title, existing[i].FromTime}] = struct{}{}
	}

	kept := make([]model.EventRecord, 0, len(candidates))
	for _, c := range candidates {
		if c.UID != "" {
			if _, dup := uids[c.UID]; dup {
				continue
			}
		}
		if _, dup := keys[titleStart{c.Title, c.FromTime}]; dup {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
