package enrichment

import "math"

// seniority ranks, lowest first.
var seniorityRank = map[string]int{
	"intern":    0,
	"junior":    1,
	"mid":       2,
	"senior":    3,
	"lead":      4,
	"executive": 5,
}

// DeriveMarketStandards combines jurisdiction norms with a job-title
// benchmark. It is a pure function of its inputs.
func DeriveMarketStandards(j *JurisdictionIntelligence, jt *JobTitleAnalysis) *MarketStandards {
	if j == nil || jt == nil {
		return nil
	}
	rank := seniorityRank[jt.Seniority]

	ms := &MarketStandards{
		Currency:              j.Currency,
		PayFrequency:          j.PayFrequency,
		WorkWeekHours:         j.WorkWeekHours,
		SickDays:              j.SickDays,
		ProbationMonths:       j.ProbationMonths,
		AtWillEmployment:      j.AtWillEmployment,
		NonCompeteEnforceable: j.NonCompeteEnforceable,
		EquityTypical:         jt.EquityTypical,
		GoverningLaw:          j.GoverningLaw,
		Benefits:              jt.Benefits,
	}

	factor := j.SalaryIndex * j.USDRate
	if factor == 0 {
		factor = 1
	}
	ms.SalaryMin = roundTo(jt.SalaryMin*factor, 1000)
	ms.SalaryMax = roundTo(jt.SalaryMax*factor, 1000)
	ms.SalaryMedian = roundTo(jt.SalaryMedian*factor, 1000)

	// Senior staff get extra leave above the local standard, never below
	// the statutory minimum.
	pto := j.StandardPTODays
	switch {
	case rank >= seniorityRank["executive"]:
		pto += 5
	case rank >= seniorityRank["lead"]:
		pto += 3
	case rank >= seniorityRank["senior"]:
		pto += 2
	}
	ms.PTODays = max(pto, j.MinPTODays)

	notice := 14
	switch {
	case rank >= seniorityRank["executive"]:
		notice = 90
	case rank >= seniorityRank["lead"]:
		notice = 60
	case rank >= seniorityRank["senior"]:
		notice = 30
	}
	if !j.AtWillEmployment {
		notice = max(notice, j.NoticePeriodDays)
	}
	ms.NoticePeriodDays = notice

	if j.NonCompeteEnforceable {
		switch {
		case rank >= seniorityRank["executive"]:
			ms.NonCompeteMonths = 12
		case rank >= seniorityRank["senior"]:
			ms.NonCompeteMonths = 6
		}
	}

	if j.CountryCode == "US" {
		ms.ExemptStatus = "non-exempt"
		if jt.IsExempt {
			ms.ExemptStatus = "exempt"
		}
	}
	return ms
}

func roundTo(v, step float64) float64 {
	return math.Round(v/step) * step
}
