package domain

// Candidate is one (connector, network) choice the retry engine may try.
// Network is empty when routing was not network-aware.
type Candidate struct {
	Connector string      `json:"connector"`
	Network   CardNetwork `json:"network,omitempty"`
}

// CandidateListKind distinguishes how a candidate list may be consumed.
type CandidateListKind string

const (
	// ListPreDetermined carries exactly one candidate; no fallback exists.
	ListPreDetermined CandidateListKind = "pre_determined"
	// ListRetryable carries ordered fallback candidates for the retry loop.
	ListRetryable CandidateListKind = "retryable"
	// ListSessionMultiple is session-token routing; the retry engine and the
	// debit-routing optimizer pass it through untouched.
	ListSessionMultiple CandidateListKind = "session_multiple"
)

// CandidateList is the ordered sequence of connector choices produced by
// static routing or by the debit-routing optimizer, consumed strictly in
// order by the retry engine.
type CandidateList struct {
	Kind       CandidateListKind `json:"kind"`
	Candidates []Candidate       `json:"candidates"`
}

// PreDetermined builds a single-candidate list.
func PreDetermined(c Candidate) CandidateList {
	return CandidateList{Kind: ListPreDetermined, Candidates: []Candidate{c}}
}

// Retryable builds an ordered fallback list.
func Retryable(cs ...Candidate) CandidateList {
	return CandidateList{Kind: ListRetryable, Candidates: cs}
}

// First returns the initial candidate, or false for an empty list.
func (l CandidateList) First() (Candidate, bool) {
	if len(l.Candidates) == 0 {
		return Candidate{}, false
	}
	return l.Candidates[0], true
}

// Rest returns the fallback candidates after the initial one. Only a
// Retryable list offers fallbacks; the other variants never do.
func (l CandidateList) Rest() []Candidate {
	if l.Kind != ListRetryable || len(l.Candidates) < 2 {
		return nil
	}
	return l.Candidates[1:]
}
