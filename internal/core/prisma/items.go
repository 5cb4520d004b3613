package prisma

// Status of a checklist item.
type Status string

const (
	StatusSatisfied     Status = "satisfied"
	StatusPartial       Status = "partial"
	StatusMissing       Status = "missing"
	StatusNotApplicable Status = "not_applicable"
)

// ItemDefinition is one row of the PRISMA 2020 checklist.
type ItemDefinition struct {
	Number      int
	Domain      string
	Description string
}

// Items is the fixed PRISMA 2020 checklist, 27 items in reporting order.
// Never mutated after process start.
var Items = [27]ItemDefinition{
	{1, "Title", "Identify the report as a systematic review."},
	{2, "Abstract", "See the PRISMA 2020 for Abstracts checklist."},
	{3, "Introduction: Rationale", "Describe the rationale for the review in the context of existing knowledge."},
	{4, "Introduction: Objectives", "Provide an explicit statement of the objective(s) or question(s) the review addresses."},
	{5, "Methods: Eligibility criteria", "Specify the inclusion and exclusion criteria for the review."},
	{6, "Methods: Information sources", "Specify all databases, registers, websites, organisations, reference lists and other sources searched or consulted to identify studies."},
	{7, "Methods: Search strategy", "Present the full search strategies for all databases, registers and websites, including any filters and limits used."},
	{8, "Methods: Selection process", "Specify the methods used to decide whether a study met the inclusion criteria of the review."},
	{9, "Methods: Data collection process", "Specify the methods used to collect data from reports."},
	{10, "Methods: Data items", "List and define all outcomes for which data were sought."},
	{11, "Methods: Study risk of bias assessment", "Specify the methods used to assess risk of bias in the included studies."},
	{12, "Methods: Effect measures", "Specify for each outcome the effect measure(s) used in the synthesis or presentation of results."},
	{13, "Methods: Synthesis methods", "Describe the methods used to present and synthesise results."},
	{14, "Methods: Reporting bias assessment", "Describe any methods used to assess risk of bias due to missing results in a synthesis."},
	{15, "Methods: Certainty assessment", "Describe any methods used to assess certainty (or confidence) in the body of evidence."},
	{16, "Results: Study selection", "Describe the results of the search and selection process, including reasons for exclusions."},
	{17, "Results: Study characteristics", "Cite each included study and present its characteristics."},
	{18, "Results: Risk of bias in studies", "Present assessments of risk of bias for each included study."},
	{19, "Results: Results of individual studies", "For all outcomes, present, for each study, all the data from which a synthesis was produced."},
	{20, "Results: Results of syntheses", "For each synthesis, briefly summarise the characteristics and risk of bias among contributing studies."},
	{21, "Results: Reporting biases", "Present assessments of risk of bias due to missing results for each synthesis assessed."},
	{22, "Results: Certainty of evidence", "Present assessments of certainty of evidence for each outcome assessed."},
	{23, "Discussion: Discussion of results", "Provide a general interpretation of the results in the context of other evidence."},
	{24, "Discussion: Limitations of evidence", "Discuss any limitations of the evidence included in the review."},
	{25, "Discussion: Limitations of review process", "Discuss any limitations of the review process or methods."},
	{26, "Discussion: Conclusions", "Provide a general interpretation of the results and any implications for research, practice and policy."},
	{27, "Other: Registration and protocol", "Provide registration information for the review, including register name and registration number."},
}
