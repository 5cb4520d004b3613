// Package grade implements a pure rule-based GRADE certainty-of-evidence
// engine. No external calls, fully deterministic: one OutcomeEvidence in,
// one Result out.
package grade

import "fmt"

// StudyDesign of the evidence base for an outcome.
type StudyDesign string

const (
	DesignRCT           StudyDesign = "rct"
	DesignObservational StudyDesign = "observational"
)

// RiskOfBias is the summary rating across included studies.
type RiskOfBias string

const (
	RoBLow          RiskOfBias = "low"
	RoBSomeConcerns RiskOfBias = "some_concerns"
	RoBHigh         RiskOfBias = "high"
)

// Directness categorizes how well the evidence maps onto the review question.
type Directness string

const (
	DirectnessDirect Directness = "direct"
	DirectnessMinor  Directness = "minor_concerns"
	DirectnessMajor  Directness = "major_concerns"
)

// Measure is the pooled effect measure. Ratio measures have a null value of
// 1.0, difference measures a null value of 0.0.
type Measure string

const (
	MeasureOR  Measure = "OR"
	MeasureRR  Measure = "RR"
	MeasureMD  Measure = "MD"
	MeasureSMD Measure = "SMD"
)

// ConfoundingDirection says which way plausible residual confounding would
// bias the observed estimate.
type ConfoundingDirection string

const (
	ConfoundingUnknown      ConfoundingDirection = ""
	ConfoundingTowardsNull  ConfoundingDirection = "towards_null"
	ConfoundingAwayFromNull ConfoundingDirection = "away_from_null"
)

// Importance of the outcome to decision-making.
type Importance string

const (
	ImportanceCritical     Importance = "critical"
	ImportanceImportant    Importance = "important"
	ImportanceNotImportant Importance = "not_important"
)

// OutcomeEvidence is the full set of covariates for one outcome. All fields
// are explicit and named; there is no catch-all for unknown inputs.
type OutcomeEvidence struct {
	OutcomeName                   string               `json:"outcome_name"`
	StudyDesign                   StudyDesign          `json:"study_design"`
	NStudies                      int                  `json:"n_studies"`
	TotalN                        int                  `json:"total_n"`
	RiskOfBias                    RiskOfBias           `json:"rob_summary"`
	I2                            float64              `json:"i2"`
	PredictionIntervalCrossesNull bool                 `json:"prediction_interval_crosses_null"`
	Directness                    Directness           `json:"directness"`
	CILower                       float64              `json:"ci_lower"`
	CIUpper                       float64              `json:"ci_upper"`
	EffectSize                    float64              `json:"effect_size"`
	Measure                       Measure              `json:"measure"`
	NStudiesForFunnel             int                  `json:"n_studies_for_funnel"`
	EggerPValue                   *float64             `json:"egger_pval,omitempty"`
	LargeEffect                   bool                 `json:"large_effect"`
	DoseResponse                  bool                 `json:"dose_response"`
	ResidualConfounding           ConfoundingDirection `json:"residual_confounding_direction,omitempty"`
	Importance                    Importance           `json:"importance"`
}

// Validate rejects input-contract violations. Study design is deliberately
// not validated here: an unrecognized design starts at level 4, matching the
// documented engine rule; the HTTP boundary still enforces the enum.
func (ev OutcomeEvidence) Validate() error {
	switch ev.RiskOfBias {
	case RoBLow, RoBSomeConcerns, RoBHigh:
	default:
		return fmt.Errorf("unknown rob_summary %q", ev.RiskOfBias)
	}
	switch ev.Directness {
	case DirectnessDirect, DirectnessMinor, DirectnessMajor:
	default:
		return fmt.Errorf("unknown directness %q", ev.Directness)
	}
	switch ev.Measure {
	case MeasureOR, MeasureRR, MeasureMD, MeasureSMD:
	default:
		return fmt.Errorf("unknown effect measure %q", ev.Measure)
	}
	switch ev.ResidualConfounding {
	case ConfoundingUnknown, ConfoundingTowardsNull, ConfoundingAwayFromNull:
	default:
		return fmt.Errorf("unknown residual_confounding_direction %q", ev.ResidualConfounding)
	}
	if ev.I2 < 0 || ev.I2 > 100 {
		return fmt.Errorf("i2 must be within [0,100], got %v", ev.I2)
	}
	return nil
}

// DomainResult is one downgrade domain's verdict: 0, 1 or 2 points plus the
// rationale text that becomes a footnote when points > 0.
type DomainResult struct {
	Points    int    `json:"points"`
	Rationale string `json:"rationale"`
}

// Result is the full audit trail of one certainty assessment.
type Result struct {
	StartingCertainty string `json:"starting_certainty"`
	Certainty         string `json:"certainty"`
	DowngradeCount    int    `json:"downgrade_count"`
	UpgradeCount      int    `json:"upgrade_count"`

	RiskOfBias      DomainResult `json:"risk_of_bias"`
	Inconsistency   DomainResult `json:"inconsistency"`
	Indirectness    DomainResult `json:"indirectness"`
	Imprecision     DomainResult `json:"imprecision"`
	PublicationBias DomainResult `json:"publication_bias"`

	UpgradeReasons []string `json:"upgrade_reasons"`
	Footnotes      []string `json:"footnotes"`
	Symbol         string   `json:"grade_symbol"`
}

// Fixed certainty tables. Never mutated after process start.
var (
	certaintyLabels  = map[int]string{4: "high", 3: "moderate", 2: "low", 1: "very_low"}
	certaintySymbols = map[int]string{4: "⊕⊕⊕⊕", 3: "⊕⊕⊕⊝", 2: "⊕⊕⊝⊝", 1: "⊕⊝⊝⊝"}
	startingLevels   = map[StudyDesign]int{DesignRCT: 4, DesignObservational: 2}
)

// AssessOutcome evaluates the five downgrade domains and the observational
// upgrade factors for one outcome. The net downgrade is capped at 3 and the
// net upgrade at 1; the final level is clamped to [1,4].
func AssessOutcome(ev OutcomeEvidence) (*Result, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	start, known := startingLevels[ev.StudyDesign]
	if !known {
		start = 4
	}

	rob := assessRiskOfBias(ev.RiskOfBias)
	inconsistency := assessInconsistency(ev.I2, ev.PredictionIntervalCrossesNull)
	indirectness := assessIndirectness(ev.Directness)
	imprecision := assessImprecision(ev.CILower, ev.CIUpper, ev.Measure, ev.TotalN)
	pubBias := assessPublicationBias(ev.NStudiesForFunnel, ev.EggerPValue)

	down := rob.Points + inconsistency.Points + indirectness.Points + imprecision.Points + pubBias.Points
	if down > 3 {
		down = 3
	}

	up, upgradeReasons := assessUpgrades(ev)

	level := start - down + up
	if level < 1 {
		level = 1
	}
	if level > 4 {
		level = 4
	}

	// Footnote order is fixed: rob, inconsistency, indirectness,
	// imprecision, publication bias.
	var footnotes []string
	for _, d := range []struct {
		name   string
		result DomainResult
	}{
		{"Risk of bias", rob},
		{"Inconsistency", inconsistency},
		{"Indirectness", indirectness},
		{"Imprecision", imprecision},
		{"Publication bias", pubBias},
	} {
		if d.result.Points > 0 {
			footnotes = append(footnotes, fmt.Sprintf("%s: %s", d.name, d.result.Rationale))
		}
	}

	return &Result{
		StartingCertainty: certaintyLabels[start],
		Certainty:         certaintyLabels[level],
		DowngradeCount:    down,
		UpgradeCount:      up,
		RiskOfBias:        rob,
		Inconsistency:     inconsistency,
		Indirectness:      indirectness,
		Imprecision:       imprecision,
		PublicationBias:   pubBias,
		UpgradeReasons:    upgradeReasons,
		Footnotes:         footnotes,
		Symbol:            certaintySymbols[level],
	}, nil
}

func assessRiskOfBias(rob RiskOfBias) DomainResult {
	switch rob {
	case RoBLow:
		return DomainResult{0, "Risk of bias is low across included studies."}
	case RoBSomeConcerns:
		return DomainResult{1, "Some concerns about risk of bias detected; downgraded 1 level (at least one domain rated as 'some concerns' in most studies)."}
	default: // high
		return DomainResult{2, "High risk of bias detected; downgraded 2 levels (at least one domain rated as 'high risk' in most studies)."}
	}
}

func assessInconsistency(i2 float64, piCrossesNull bool) DomainResult {
	if i2 > 75 || (piCrossesNull && i2 >= 50) {
		rationale := fmt.Sprintf("Substantial unexplained heterogeneity (I² = %.0f%%", i2)
		if piCrossesNull {
			rationale += ", prediction interval crosses null"
		}
		rationale += "); downgraded 2 levels."
		return DomainResult{2, rationale}
	}
	if i2 >= 40 {
		return DomainResult{1, fmt.Sprintf("Moderate heterogeneity (I² = %.0f%%); downgraded 1 level (I² threshold ≥ 40%%).", i2)}
	}
	return DomainResult{0, fmt.Sprintf("Heterogeneity is low (I² = %.0f%%); no downgrade for inconsistency.", i2)}
}

func assessIndirectness(d Directness) DomainResult {
	switch d {
	case DirectnessDirect:
		return DomainResult{0, "Evidence is direct; population, intervention, and outcomes align with the review question."}
	case DirectnessMinor:
		return DomainResult{1, "Minor concerns about indirectness (e.g., surrogate outcomes or slightly different population); downgraded 1 level."}
	default: // major_concerns
		return DomainResult{2, "Major concerns about indirectness (e.g., different population, intervention, or outcomes); downgraded 2 levels."}
	}
}

func assessImprecision(ciLower, ciUpper float64, measure Measure, totalN int) DomainResult {
	nullValue := 0.0
	if measure == MeasureOR || measure == MeasureRR {
		nullValue = 1.0
	}
	crossesNull := ciLower < nullValue && nullValue < ciUpper

	if totalN < 200 && crossesNull {
		return DomainResult{2, fmt.Sprintf(
			"Serious imprecision: 95%% CI crosses the null (%v to %v) and total N=%d is below the optimal information size threshold of 200; downgraded 2 levels.",
			ciLower, ciUpper, totalN)}
	}

	// Both sub-conditions collapse to a single downgrade point even when
	// they apply simultaneously; the rationale cites each that held.
	if crossesNull || totalN < 400 {
		var reasons []string
		if crossesNull {
			reasons = append(reasons, fmt.Sprintf("95%% CI crosses the null (%v to %v)", ciLower, ciUpper))
		}
		if totalN < 400 {
			reasons = append(reasons, fmt.Sprintf("total N=%d is below OIS threshold of 400", totalN))
		}
		rationale := reasons[0]
		if len(reasons) == 2 {
			rationale += "; " + reasons[1]
		}
		return DomainResult{1, rationale + "; downgraded 1 level."}
	}

	return DomainResult{0, fmt.Sprintf(
		"Adequate precision: 95%% CI (%v to %v) does not cross the null and total N=%d exceeds the OIS threshold.",
		ciLower, ciUpper, totalN)}
}

func assessPublicationBias(nStudiesForFunnel int, eggerPValue *float64) DomainResult {
	if nStudiesForFunnel < 10 {
		return DomainResult{0, fmt.Sprintf(
			"Publication bias not assessable: fewer than 10 studies (n=%d) available for funnel plot asymmetry testing.",
			nStudiesForFunnel)}
	}
	if eggerPValue != nil && *eggerPValue < 0.10 {
		return DomainResult{1, fmt.Sprintf("Possible publication bias: Egger's test p=%.3f < 0.10; downgraded 1 level.", *eggerPValue)}
	}
	if eggerPValue != nil {
		return DomainResult{0, fmt.Sprintf("No evidence of publication bias: Egger's test p=%.3f ≥ 0.10.", *eggerPValue)}
	}
	return DomainResult{0, "No evidence of publication bias: test not performed."}
}

// assessUpgrades applies only to observational evidence. Each qualifying
// factor contributes a reason, but the net upgrade is capped at one level.
func assessUpgrades(ev OutcomeEvidence) (int, []string) {
	if ev.StudyDesign != DesignObservational {
		return 0, nil
	}

	var reasons []string
	if ev.LargeEffect {
		reasons = append(reasons, "Large effect size (OR/RR ≥ 2 or ≤ 0.5): +1 upgrade")
	}
	if ev.DoseResponse {
		reasons = append(reasons, "Dose-response gradient present: +1 upgrade")
	}
	if ev.ResidualConfounding == ConfoundingTowardsNull {
		reasons = append(reasons, "Residual confounding would attenuate the observed effect (towards null): +1 upgrade")
	}

	if len(reasons) == 0 {
		return 0, nil
	}
	return 1, reasons
}
