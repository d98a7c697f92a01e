package scheduler

import "sort"

// Pending returns a point-in-time view of the armed obligations, soonest
// due first. Remaining may be negative for an obligation that is mid-fire.
func (s *Service) Pending() []PendingObligation {
	now := s.now()

	s.mu.Lock()
	out := make([]PendingObligation, 0, len(s.pending))
	for _, h := range s.pending {
		out = append(out, PendingObligation{
			Obligation: h.ob,
			Due:        h.due,
			Remaining:  h.due.Sub(now),
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Due.Before(out[j].Due) })
	return out
}
