package engine

// NextTurn computes who moves after movedUserID: the first participant in
// insertion order, starting immediately after movedUserID and wrapping,
// whose Active flag is true and whose id differs from movedUserID. If no
// such participant exists the turn stays with movedUserID. Purely
// positional, so turn order is reproducible from the roster alone.
func NextTurn(ps []Participant, movedUserID string) string {
	if len(ps) == 0 {
		return movedUserID
	}
	start, _ := findParticipant(ps, movedUserID) // -1 scans from the top
	for i := 1; i <= len(ps); i++ {
		p := ps[(start+i)%len(ps)]
		if p.Active && p.ID != movedUserID {
			return p.ID
		}
	}
	return movedUserID
}
