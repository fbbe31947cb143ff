package model

// Finding is one structured record extracted from evaluation text.
//
// Number is always the 1-based position within the source text. Label holds
// whatever numeral or word followed the original heading ("5", "One") and is
// informational only.
type Finding struct {
	Number             int    `json:"number"`
	Label              string `json:"label,omitempty"`
	Criteria           string `json:"criteria"`
	Value              string `json:"value"`
	EvidenceLevel      string `json:"evidence_level"`
	MethodologyQuality string `json:"methodology_quality"`
	Importance         string `json:"importance"`
	Source             string `json:"source"`
}
