package enrichment

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// HeuristicOracle answers lookups from static tables. It never calls out
// and is the fallback for the LLM oracle.
type HeuristicOracle struct{}

func NewHeuristicOracle() *HeuristicOracle { return &HeuristicOracle{} }

// --- Jurisdiction ---

var countries = map[string]JurisdictionIntelligence{
	"US": {
		Country: "United States", CountryCode: "US", Currency: "USD", CurrencySymbol: "$",
		WorkWeekHours: 40, MinPTODays: 0, StandardPTODays: 15, SickDays: 5, NoticePeriodDays: 14,
		ProbationMonths: 3, PayFrequency: "biweekly", AtWillEmployment: true, NonCompeteEnforceable: true,
		NonCompeteNotes: "Enforceable if reasonable in scope, duration and geography",
		DateFormat:      "MM/DD/YYYY", SalaryIndex: 1, USDRate: 1,
	},
	"GB": {
		Country: "United Kingdom", CountryCode: "GB", Currency: "GBP", CurrencySymbol: "£",
		WorkWeekHours: 37.5, MinPTODays: 28, StandardPTODays: 28, SickDays: 0, NoticePeriodDays: 30,
		ProbationMonths: 6, PayFrequency: "monthly", NonCompeteEnforceable: true,
		NonCompeteNotes: "Restraints must protect a legitimate business interest",
		GoverningLaw:    "the laws of England and Wales", DateFormat: "DD/MM/YYYY",
		SalaryIndex: 0.75, USDRate: 0.79,
	},
	"DE": {
		Country: "Germany", CountryCode: "DE", Currency: "EUR", CurrencySymbol: "€",
		WorkWeekHours: 40, MinPTODays: 20, StandardPTODays: 28, SickDays: 0, NoticePeriodDays: 28,
		ProbationMonths: 6, PayFrequency: "monthly", NonCompeteEnforceable: true, NonCompeteCompensated: true,
		NonCompeteNotes: "Requires compensation of at least 50% of last remuneration; max 2 years",
		GoverningLaw:    "the laws of the Federal Republic of Germany", DateFormat: "DD.MM.YYYY",
		SalaryIndex: 0.75, USDRate: 0.92,
	},
	"FR": {
		Country: "France", CountryCode: "FR", Currency: "EUR", CurrencySymbol: "€",
		WorkWeekHours: 35, MinPTODays: 25, StandardPTODays: 25, SickDays: 0, NoticePeriodDays: 30,
		ProbationMonths: 4, PayFrequency: "monthly", NonCompeteEnforceable: true, NonCompeteCompensated: true,
		NonCompeteNotes: "Requires financial consideration and must be limited in time and space",
		GoverningLaw:    "the laws of France", DateFormat: "DD/MM/YYYY",
		SalaryIndex: 0.65, USDRate: 0.92,
	},
	"CA": {
		Country: "Canada", CountryCode: "CA", Currency: "CAD", CurrencySymbol: "$",
		WorkWeekHours: 40, MinPTODays: 10, StandardPTODays: 15, SickDays: 3, NoticePeriodDays: 14,
		ProbationMonths: 3, PayFrequency: "biweekly", NonCompeteEnforceable: false,
		NonCompeteNotes: "Rarely enforced; Ontario prohibits most employee non-competes",
		DateFormat:      "YYYY-MM-DD", SalaryIndex: 0.8, USDRate: 1.36,
	},
	"AU": {
		Country: "Australia", CountryCode: "AU", Currency: "AUD", CurrencySymbol: "$",
		WorkWeekHours: 38, MinPTODays: 20, StandardPTODays: 20, SickDays: 10, NoticePeriodDays: 28,
		ProbationMonths: 6, PayFrequency: "fortnightly", NonCompeteEnforceable: true,
		NonCompeteNotes: "Restraint of trade clauses must be reasonable",
		DateFormat:      "DD/MM/YYYY", SalaryIndex: 0.8, USDRate: 1.52,
	},
	"IN": {
		Country: "India", CountryCode: "IN", Currency: "INR", CurrencySymbol: "₹",
		WorkWeekHours: 48, MinPTODays: 12, StandardPTODays: 18, SickDays: 7, NoticePeriodDays: 30,
		ProbationMonths: 6, PayFrequency: "monthly", NonCompeteEnforceable: false,
		NonCompeteNotes: "Post-employment restraints are void under Section 27 of the Contract Act",
		GoverningLaw:    "the laws of India", DateFormat: "DD/MM/YYYY",
		SalaryIndex: 0.25, USDRate: 83,
	},
	"IE": {
		Country: "Ireland", CountryCode: "IE", Currency: "EUR", CurrencySymbol: "€",
		WorkWeekHours: 39, MinPTODays: 20, StandardPTODays: 21, SickDays: 5, NoticePeriodDays: 28,
		ProbationMonths: 6, PayFrequency: "monthly", NonCompeteEnforceable: true,
		GoverningLaw: "the laws of Ireland", DateFormat: "DD/MM/YYYY",
		SalaryIndex: 0.75, USDRate: 0.92,
	},
	"SG": {
		Country: "Singapore", CountryCode: "SG", Currency: "SGD", CurrencySymbol: "$",
		WorkWeekHours: 44, MinPTODays: 7, StandardPTODays: 14, SickDays: 14, NoticePeriodDays: 30,
		ProbationMonths: 3, PayFrequency: "monthly", NonCompeteEnforceable: true,
		GoverningLaw: "the laws of Singapore", DateFormat: "DD/MM/YYYY",
		SalaryIndex: 0.8, USDRate: 1.35,
	},
}

// US states where employee non-competes are void or banned.
var nonCompeteBanned = map[string]string{
	"CA": "Void under Business and Professions Code 16600",
	"ND": "Void under N.D. Cent. Code 9-08-06",
	"OK": "Void except for non-solicitation of established customers",
	"MN": "Banned for agreements signed after July 1, 2023",
}

var usStates = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas", "CA": "California",
	"CO": "Colorado", "CT": "Connecticut", "DE": "Delaware", "FL": "Florida", "GA": "Georgia",
	"HI": "Hawaii", "ID": "Idaho", "IL": "Illinois", "IN": "Indiana", "IA": "Iowa",
	"KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi", "MO": "Missouri",
	"MT": "Montana", "NE": "Nebraska", "NV": "Nevada", "NH": "New Hampshire", "NJ": "New Jersey",
	"NM": "New Mexico", "NY": "New York", "NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio",
	"OK": "Oklahoma", "OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah", "VT": "Vermont",
	"VA": "Virginia", "WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
	"DC": "District of Columbia",
}

// US states with paid sick leave mandates above the national default.
var usSickDays = map[string]int{"CA": 5, "NY": 7, "WA": 7, "MA": 5, "NJ": 5, "CO": 6, "OR": 5, "DC": 7}

// stateNames is usStates sorted by name length, longest first, so
// "West Virginia" wins over "Virginia" and "Arkansas" over "Kansas".
var stateNames = func() []string {
	codes := make([]string, 0, len(usStates))
	for code := range usStates {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		a, b := usStates[codes[i]], usStates[codes[j]]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	return codes
}()

var countryKeywords = []struct {
	code     string
	keywords []string
}{
	{"US", []string{"united states", "usa", "u.s.", "america"}},
	{"GB", []string{"united kingdom", "england", "scotland", "wales", "great britain", "london", "manchester", "edinburgh"}},
	{"DE", []string{"germany", "deutschland", "berlin", "munich", "münchen", "hamburg", "frankfurt"}},
	{"FR", []string{"france", "paris", "lyon", "marseille"}},
	{"CA", []string{"canada", "toronto", "vancouver", "montreal", "ontario", "quebec", "british columbia"}},
	{"AU", []string{"australia", "sydney", "melbourne", "brisbane", "perth"}},
	{"IN", []string{"india", "bangalore", "bengaluru", "mumbai", "delhi", "hyderabad", "pune", "chennai"}},
	{"IE", []string{"ireland", "dublin", "cork"}},
	{"SG", []string{"singapore"}},
}

var countryCodes = map[string]string{
	"US": "US", "UK": "GB", "GB": "GB", "DE": "DE", "FR": "FR", "AU": "AU", "IE": "IE", "SG": "SG",
}

// Jurisdiction infers a jurisdiction from a free-form location such as
// "Austin, TX", "California" or "Berlin, Germany".
func (o *HeuristicOracle) Jurisdiction(ctx context.Context, location string) (*JurisdictionIntelligence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc := strings.TrimSpace(location)
	if loc == "" {
		return nil, ErrUnknown
	}
	lower := strings.ToLower(loc)

	for _, code := range stateNames {
		if containsWord(lower, strings.ToLower(usStates[code])) {
			return usJurisdiction(code), nil
		}
	}

	parts := strings.FieldsFunc(loc, func(r rune) bool { return r == ',' || r == ' ' })
	if len(parts) > 0 {
		last := strings.ToUpper(strings.Trim(parts[len(parts)-1], "."))
		if len(last) == 2 {
			if _, ok := usStates[last]; ok && parts[len(parts)-1] == last {
				return usJurisdiction(last), nil
			}
			if cc, ok := countryCodes[last]; ok {
				return countryJurisdiction(cc), nil
			}
		}
	}

	for _, ck := range countryKeywords {
		for _, kw := range ck.keywords {
			if containsWord(lower, kw) {
				return countryJurisdiction(ck.code), nil
			}
		}
	}
	return nil, fmt.Errorf("jurisdiction %q: %w", location, ErrUnknown)
}

func countryJurisdiction(code string) *JurisdictionIntelligence {
	j := countries[code]
	return &j
}

func usJurisdiction(stateCode string) *JurisdictionIntelligence {
	j := countries["US"]
	j.State = usStates[stateCode]
	j.StateCode = stateCode
	j.GoverningLaw = "the laws of the State of " + j.State
	if stateCode == "DC" {
		j.GoverningLaw = "the laws of the District of Columbia"
	}
	if note, banned := nonCompeteBanned[stateCode]; banned {
		j.NonCompeteEnforceable = false
		j.NonCompeteNotes = note
	}
	if days, ok := usSickDays[stateCode]; ok {
		j.SickDays = days
	}
	return &j
}

// containsWord reports whether word appears in s on word boundaries.
func containsWord(s, word string) bool {
	for i := 0; ; {
		idx := strings.Index(s[i:], word)
		if idx < 0 {
			return false
		}
		start := i + idx
		end := start + len(word)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// --- Company ---

var entitySuffixes = []struct {
	suffix       string
	entityType   string
	jurisdiction string
}{
	{"pty ltd", "Proprietary Limited Company", "AU"},
	{"pvt ltd", "Private Limited Company", "IN"},
	{"private limited", "Private Limited Company", "IN"},
	{"incorporated", "Corporation", "US"},
	{"corporation", "Corporation", "US"},
	{"inc", "Corporation", "US"},
	{"corp", "Corporation", "US"},
	{"llc", "Limited Liability Company", "US"},
	{"llp", "Limited Liability Partnership", ""},
	{"plc", "Public Limited Company", "GB"},
	{"limited", "Private Limited Company", "GB"},
	{"ltd", "Private Limited Company", "GB"},
	{"gmbh", "Gesellschaft mit beschränkter Haftung", "DE"},
	{"ag", "Aktiengesellschaft", "DE"},
	{"sarl", "Société à responsabilité limitée", "FR"},
	{"sas", "Société par actions simplifiée", "FR"},
}

var industryKeywords = []struct {
	industry string
	keywords []string
}{
	{"Technology", []string{"tech", "technology", "technologies", "software", "labs", "ai", "data", "systems", "cloud", "digital", "apps"}},
	{"Financial Services", []string{"bank", "capital", "financial", "finance", "invest", "insurance"}},
	{"Healthcare", []string{"health", "medical", "pharma", "bio", "clinic", "care"}},
	{"Legal", []string{"law", "legal", "attorneys", "solicitors"}},
	{"Professional Services", []string{"consulting", "advisory", "partners", "associates"}},
	{"Retail", []string{"retail", "store", "shop", "market"}},
	{"Manufacturing", []string{"manufacturing", "industries", "industrial", "motors"}},
}

// Company infers the legal entity type and industry from a company name.
func (o *HeuristicOracle) Company(ctx context.Context, name string) (*CompanyIntelligence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrUnknown
	}
	lower := strings.ToLower(strings.NewReplacer(".", "", ",", "").Replace(name))

	ci := &CompanyIntelligence{Name: name, LegalName: name, Industry: "General"}
	for _, es := range entitySuffixes {
		if strings.HasSuffix(lower, " "+es.suffix) {
			ci.EntityType = es.entityType
			ci.Jurisdiction = es.jurisdiction
			break
		}
	}
	for _, ik := range industryKeywords {
		for _, kw := range ik.keywords {
			if containsWord(lower, kw) {
				ci.Industry = ik.industry
				return ci, nil
			}
		}
	}
	return ci, nil
}

// --- Job title ---

var seniorityKeywords = []struct {
	level    string
	keywords []string
}{
	{"executive", []string{"chief", "ceo", "cto", "cfo", "coo", "cmo", "president", "vp", "vice president", "director", "head"}},
	{"lead", []string{"lead", "manager", "principal"}},
	{"senior", []string{"senior", "sr", "staff"}},
	{"intern", []string{"intern", "internship", "trainee", "apprentice"}},
	{"junior", []string{"junior", "jr", "entry", "graduate", "associate"}},
}

var departmentKeywords = []struct {
	department string
	keywords   []string
}{
	{"Engineering", []string{"engineer", "engineering", "developer", "software", "devops", "sre", "cto", "programmer", "architect"}},
	{"Product", []string{"product"}},
	{"Design", []string{"designer", "design", "ux", "ui"}},
	{"Data", []string{"data", "analyst", "scientist", "analytics"}},
	{"Sales", []string{"sales", "account executive", "business development"}},
	{"Marketing", []string{"marketing", "growth", "brand", "content", "cmo"}},
	{"Legal", []string{"legal", "counsel", "attorney", "paralegal", "lawyer"}},
	{"Finance", []string{"finance", "accountant", "accounting", "controller", "cfo", "bookkeeper"}},
	{"People", []string{"hr", "people", "recruiter", "talent", "human resources"}},
	{"Customer Success", []string{"support", "customer success", "customer service"}},
	{"Operations", []string{"operations", "ops", "logistics", "coo"}},
}

// Annual base salary bands in USD by seniority.
var salaryBands = map[string][2]float64{
	"intern":    {35000, 55000},
	"junior":    {55000, 80000},
	"mid":       {80000, 120000},
	"senior":    {120000, 170000},
	"lead":      {140000, 200000},
	"executive": {180000, 300000},
}

var departmentMultiplier = map[string]float64{
	"Engineering": 1.15, "Product": 1.1, "Data": 1.1, "Legal": 1.15, "Sales": 1.0, "Finance": 1.0,
	"Design": 0.95, "Marketing": 0.95, "People": 0.9, "Operations": 0.9, "Customer Success": 0.85,
}

var hourlyKeywords = []string{"assistant", "clerk", "technician", "cashier", "driver", "receptionist", "hourly"}

// JobTitle classifies seniority and department and attaches a salary band.
func (o *HeuristicOracle) JobTitle(ctx context.Context, title string) (*JobTitleAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrUnknown
	}
	lower := strings.ToLower(strings.ReplaceAll(title, ".", ""))

	jt := &JobTitleAnalysis{Title: title, Seniority: "mid", Department: "General"}
	for _, sk := range seniorityKeywords {
		if anyWord(lower, sk.keywords) {
			jt.Seniority = sk.level
			break
		}
	}
	for _, dk := range departmentKeywords {
		if anyWord(lower, dk.keywords) {
			jt.Department = dk.department
			break
		}
	}

	band := salaryBands[jt.Seniority]
	mult, ok := departmentMultiplier[jt.Department]
	if !ok {
		mult = 0.9
	}
	jt.SalaryMin = roundTo(band[0]*mult, 1000)
	jt.SalaryMax = roundTo(band[1]*mult, 1000)
	jt.SalaryMedian = roundTo((jt.SalaryMin+jt.SalaryMax)/2, 1000)

	jt.IsExempt = jt.Seniority != "intern" && !anyWord(lower, hourlyKeywords)
	rank := seniorityRank[jt.Seniority]
	jt.EquityTypical = rank >= seniorityRank["executive"] ||
		(rank >= seniorityRank["mid"] && (jt.Department == "Engineering" || jt.Department == "Product"))

	jt.Benefits = []string{"health insurance", "paid time off"}
	if rank >= seniorityRank["mid"] {
		jt.Benefits = append(jt.Benefits, "retirement plan")
	}
	if jt.EquityTypical {
		jt.Benefits = append(jt.Benefits, "equity")
	}
	return jt, nil
}

func anyWord(s string, words []string) bool {
	for _, w := range words {
		if containsWord(s, w) {
			return true
		}
	}
	return false
}
