package resume

import "strings"

const unknown = "Unknown"

// Field labels in the order they are rendered. The order is part of the index
// format: changing it changes every document ID.
const (
	LabelName                 = "Candidate Name"
	LabelTitle                = "Current Title"
	LabelCompany              = "Current Company"
	LabelDomainSpace          = "Domain Space"
	LabelFunctionalBackground = "Functional Background"
	LabelPEExperience         = "PE Experience"
	LabelPECompanies          = "PE Companies"
	LabelExitExperience       = "Exit Experience"
	LabelCompanyFinancials    = "Company Financials"
	LabelOperatingMetrics     = "Operating Metrics"
	LabelTenureStability      = "Tenure Stability"
	LabelNarrativeSummary     = "Narrative Summary"
)

type field struct {
	label string
	value string
}

// Flatten renders a record as one "Label: value" line per field. Missing
// scalars become "Unknown", only the first work_experience entry is used and
// the PE companies list is comma-joined (empty when absent).
func Flatten(r Record) string {
	name := r.object("name")
	job := r.firstJob()
	enrichment := r.object("enrichment")

	fullName := strings.TrimSpace(stringOr(name, "first", "") + " " + stringOr(name, "last", ""))
	if fullName == "" {
		fullName = unknown
	}

	narrative := unknown
	if s, ok := scalar(r["narrative_summary"]); ok {
		narrative = s
	}

	fields := []field{
		{LabelName, fullName},
		{LabelTitle, stringOr(job, "job_title", unknown)},
		{LabelCompany, stringOr(job, "organization", unknown)},
		{LabelDomainSpace, stringOr(enrichment, "domain_space", unknown)},
		{LabelFunctionalBackground, stringOr(enrichment, "functional_background", unknown)},
		{LabelPEExperience, stringOr(enrichment, "pe_backed_experience", unknown)},
		{LabelPECompanies, joinList(enrichment["pe_backed_companies"])},
		{LabelExitExperience, stringOr(enrichment, "exit_experience", unknown)},
		{LabelCompanyFinancials, stringOr(enrichment, "company_financials", unknown)},
		{LabelOperatingMetrics, stringOr(enrichment, "operating_metrics", unknown)},
		{LabelTenureStability, stringOr(enrichment, "tenure_stability", unknown)},
		{LabelNarrativeSummary, narrative},
	}

	var builder strings.Builder
	for i, f := range fields {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(f.label)
		builder.WriteString(": ")
		builder.WriteString(f.value)
	}
	return builder.String()
}
