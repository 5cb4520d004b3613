package screen

import "fmt"

// Label is a screening verdict, either from a single rater or from the
// adjudication rule.
type Label string

const (
	LabelInclude   Label = "include"
	LabelExclude   Label = "exclude"
	LabelUncertain Label = "uncertain"
)

// ParseLabel validates a raw label string against the fixed alphabet.
func ParseLabel(s string) (Label, error) {
	switch Label(s) {
	case LabelInclude, LabelExclude, LabelUncertain:
		return Label(s), nil
	}
	return "", fmt.Errorf("unknown screening label %q", s)
}

// Stage tags which screening pass produced a decision. It is carried as data
// by the wider workflow and never changes the adjudication rule.
type Stage string

const (
	StageTitleAbstract Stage = "ti_ab"
	StageFulltext      Stage = "fulltext"
)

// Opinion is one rater's verdict on one record.
type Opinion struct {
	Label     Label  `json:"label"`
	Reasoning string `json:"reasoning"`
}

// RaterOutcome is the tagged result of a single rater call: either a valid
// opinion or the error that prevented one. Keeping the failure explicit here
// means both screening stages substitute the same synthetic opinion.
type RaterOutcome struct {
	Opinion Opinion
	Err     error
}

// Opinion returns a valid opinion for an outcome, substituting the synthetic
// uncertain opinion when the rater call failed. The adjudicator itself never
// sees a raw failure.
func (r RaterOutcome) opinionOrUncertain() Opinion {
	if r.Err != nil {
		return Opinion{
			Label:     LabelUncertain,
			Reasoning: fmt.Sprintf("agent error: %v", r.Err),
		}
	}
	return r.Opinion
}

// ResolveFinalLabel adjudicates two independent rater labels into one final
// label. Agreement passes through. Any disagreement involving include
// resolves to uncertain, so a record is never silently included. A
// disagreement between exclude and uncertain resolves to exclude.
func ResolveFinalLabel(label1, label2 Label) Label {
	if label1 == label2 {
		return label1
	}
	if label1 == LabelInclude || label2 == LabelInclude {
		return LabelUncertain
	}
	return LabelExclude
}

// Decision is the adjudicated screening outcome for one record.
type Decision struct {
	RecordID    string `json:"record_id"`
	Stage       Stage  `json:"stage"`
	IsDuplicate bool   `json:"is_duplicate"`
	DuplicateOf string `json:"duplicate_of,omitempty"`
	Label1      Label  `json:"label1,omitempty"`
	Label2      Label  `json:"label2,omitempty"`
	FinalLabel  Label  `json:"final_label"`
	Reasoning1  string `json:"reasoning1,omitempty"`
	Reasoning2  string `json:"reasoning2,omitempty"`
}

// DuplicateDecision force-labels a duplicate-flagged record exclude. The
// raters are bypassed entirely, so the decision carries no rater labels.
func DuplicateDecision(recordID string, stage Stage, duplicateOf string) Decision {
	return Decision{
		RecordID:    recordID,
		Stage:       stage,
		IsDuplicate: true,
		DuplicateOf: duplicateOf,
		FinalLabel:  LabelExclude,
	}
}

// Adjudicate builds the decision for a non-duplicate record from two rater
// outcomes, substituting uncertain for any failed call first.
func Adjudicate(recordID string, stage Stage, rater1, rater2 RaterOutcome) Decision {
	o1 := rater1.opinionOrUncertain()
	o2 := rater2.opinionOrUncertain()

	return Decision{
		RecordID:   recordID,
		Stage:      stage,
		Label1:     o1.Label,
		Label2:     o2.Label,
		FinalLabel: ResolveFinalLabel(o1.Label, o2.Label),
		Reasoning1: o1.Reasoning,
		Reasoning2: o2.Reasoning,
	}
}
