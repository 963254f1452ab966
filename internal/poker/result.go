package poker

// EstimateResult collects the cards of one round, keyed by the members
// present when the round started.
type EstimateResult struct {
	entries  []resultEntry
	readOnly bool
}

type resultEntry struct {
	member   *Participant
	estimate *Estimate
}

func newEstimateResult(members []*Participant) *EstimateResult {
	r := &EstimateResult{entries: make([]resultEntry, 0, len(members))}
	for _, m := range members {
		r.entries = append(r.entries, resultEntry{member: m})
	}
	return r
}

// ReadOnly reports whether the round finished and the result is frozen.
func (r *EstimateResult) ReadOnly() bool { return r.readOnly }

// Len returns the number of members in the round.
func (r *EstimateResult) Len() int { return len(r.entries) }

// Items returns the rows of the result in the order members joined.
func (r *EstimateResult) Items() []EstimateResultItem {
	items := make([]EstimateResultItem, len(r.entries))
	for i, e := range r.entries {
		items[i] = EstimateResultItem{Member: e.member.Info(), Estimate: cloneEstimate(e.estimate)}
	}
	return items
}

// Lookup returns the estimate recorded for the named member.
func (r *EstimateResult) Lookup(name string) (*Estimate, bool) {
	for _, e := range r.entries {
		if sameName(e.member.name, name) {
			return cloneEstimate(e.estimate), true
		}
	}
	return nil, false
}

func (r *EstimateResult) set(member *Participant, estimate *Estimate) bool {
	if r.readOnly {
		return false
	}
	for i := range r.entries {
		if r.entries[i].member == member {
			r.entries[i].estimate = cloneEstimate(estimate)
			return true
		}
	}
	return false
}

// complete reports whether every member still in the team has a card.
func (r *EstimateResult) complete(t *Team) bool {
	for _, e := range r.entries {
		if e.estimate == nil && t.containsMember(e.member) {
			return false
		}
	}
	return true
}
