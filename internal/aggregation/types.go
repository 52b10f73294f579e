package aggregation

import (
	"VDAF/internal/prio3"
)

// Report is one Client report as received by one aggregator.
type Report struct {
	Nonce       prio3.Nonce // Nonce identifies the report
	PublicShare []byte      // PublicShare is the encoded public share, identical at every aggregator
	InputShare  []byte      // InputShare is this aggregator's encoded input share
}

// FinishSummary counts the outcome of one Finish call.
type FinishSummary struct {
	Accepted int // Accepted is the number of output shares aggregated
	Rejected int // Rejected is the number of reports dropped
}
