package events

import "stablecore/core/types"

const (
	TypeLeadRateProposed = "leadrate.proposed"
	TypeLeadRateChanged  = "leadrate.changed"
)

type LeadRateProposed struct {
	Proposer    [20]byte
	NextPPM     uint64
	EffectiveAt uint64
}

func (LeadRateProposed) EventType() string { return TypeLeadRateProposed }

func (e LeadRateProposed) Event() *types.Event {
	return &types.Event{
		Type: TypeLeadRateProposed,
		Attributes: map[string]string{
			"proposer":    account(e.Proposer),
			"nextRatePPM": uint64String(e.NextPPM),
			"effectiveAt": uint64String(e.EffectiveAt),
		},
	}
}

type LeadRateChanged struct {
	PreviousPPM uint64
	RatePPM     uint64
}

func (LeadRateChanged) EventType() string { return TypeLeadRateChanged }

func (e LeadRateChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeLeadRateChanged,
		Attributes: map[string]string{
			"previousRatePPM": uint64String(e.PreviousPPM),
			"ratePPM":         uint64String(e.RatePPM),
		},
	}
}
