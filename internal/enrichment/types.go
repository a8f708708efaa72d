// Package enrichment gathers jurisdiction, company and job-title
// intelligence in the background and derives market-standard defaults
// that form fields can offer as suggestions.
package enrichment

// Topic names an enrichment source. Topic values are also the top-level
// keys of the enrichment context handed to form sessions.
type Topic string

const (
	TopicJurisdiction    Topic = "jurisdiction"
	TopicCompany         Topic = "company"
	TopicJobTitle        Topic = "jobTitle"
	TopicMarketStandards Topic = "marketStandards"
)

// Topics lists every topic in dependency order.
var Topics = []Topic{TopicJurisdiction, TopicCompany, TopicJobTitle, TopicMarketStandards}

// Source is the observable state of one enrichment topic. Data is nil
// until a lookup succeeds; a failed lookup sets Error and leaves Data nil.
type Source[T any] struct {
	Loading bool   `json:"loading"`
	Data    *T     `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JurisdictionIntelligence holds employment-law norms for a location.
type JurisdictionIntelligence struct {
	Country               string  `json:"country"`
	CountryCode           string  `json:"countryCode"`
	State                 string  `json:"state,omitempty"`
	StateCode             string  `json:"stateCode,omitempty"`
	Currency              string  `json:"currency"`
	CurrencySymbol        string  `json:"currencySymbol"`
	WorkWeekHours         float64 `json:"workWeekHours"`
	MinPTODays            int     `json:"minPtoDays"`
	StandardPTODays       int     `json:"standardPtoDays"`
	SickDays              int     `json:"sickDays"`
	NoticePeriodDays      int     `json:"noticePeriodDays"`
	ProbationMonths       int     `json:"probationMonths"`
	PayFrequency          string  `json:"payFrequency"`
	AtWillEmployment      bool    `json:"atWillEmployment"`
	NonCompeteEnforceable bool    `json:"nonCompeteEnforceable"`
	// NonCompeteCompensated is set where a post-employment restraint is
	// only valid if the employer pays for it.
	NonCompeteCompensated bool   `json:"nonCompeteCompensated"`
	NonCompeteNotes       string `json:"nonCompeteNotes,omitempty"`
	GoverningLaw          string `json:"governingLaw"`
	DateFormat            string `json:"dateFormat"`
	// SalaryIndex scales US salary benchmarks to local purchasing power and
	// USDRate converts them into the local currency.
	SalaryIndex float64 `json:"salaryIndex"`
	USDRate     float64 `json:"usdRate"`
}

// CompanyIntelligence is what can be inferred from a company name.
type CompanyIntelligence struct {
	Name         string `json:"name"`
	LegalName    string `json:"legalName"`
	EntityType   string `json:"entityType,omitempty"`
	Industry     string `json:"industry,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
}

// JobTitleAnalysis benchmarks a job title. Salaries are annual USD.
type JobTitleAnalysis struct {
	Title         string   `json:"title"`
	Seniority     string   `json:"seniority"`
	Department    string   `json:"department"`
	IsExempt      bool     `json:"isExempt"`
	SalaryMin     float64  `json:"salaryMin"`
	SalaryMax     float64  `json:"salaryMax"`
	SalaryMedian  float64  `json:"salaryMedian"`
	EquityTypical bool     `json:"equityTypical"`
	Benefits      []string `json:"benefits,omitempty"`
}

// MarketStandards are concrete field defaults derived from a jurisdiction
// and a job title together.
type MarketStandards struct {
	Currency              string   `json:"currency"`
	SalaryMin             float64  `json:"salaryMin"`
	SalaryMax             float64  `json:"salaryMax"`
	SalaryMedian          float64  `json:"salaryMedian"`
	PayFrequency          string   `json:"payFrequency"`
	WorkWeekHours         float64  `json:"workWeekHours"`
	PTODays               int      `json:"ptoDays"`
	SickDays              int      `json:"sickDays"`
	NoticePeriodDays      int      `json:"noticePeriodDays"`
	ProbationMonths       int      `json:"probationMonths"`
	AtWillEmployment      bool     `json:"atWillEmployment"`
	NonCompeteEnforceable bool     `json:"nonCompeteEnforceable"`
	NonCompeteMonths      int      `json:"nonCompeteMonths"`
	ExemptStatus          string   `json:"exemptStatus,omitempty"`
	EquityTypical         bool     `json:"equityTypical"`
	GoverningLaw          string   `json:"governingLaw"`
	Benefits              []string `json:"benefits,omitempty"`
}
