package enrichment

import (
	"context"
	"fmt"
	"log"

	"lexform-backend/internal/ai"
)

// Generator is the part of ai.Provider the LLM oracle uses.
type Generator interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error
}

var _ Generator = (*ai.Provider)(nil)

// LLMOracle asks a chat model for enrichment data and falls back to
// another oracle when the model is unavailable, fails, or returns an
// unusable answer.
type LLMOracle struct {
	gen      Generator
	fallback Oracle
}

// NewLLMOracle returns an oracle backed by provider. A nil provider makes
// every lookup go straight to fallback.
func NewLLMOracle(provider *ai.Provider, fallback Oracle) *LLMOracle {
	o := &LLMOracle{fallback: fallback}
	if provider != nil {
		o.gen = provider
	}
	return o
}

// NewLLMOracleWithGenerator is NewLLMOracle for any Generator.
func NewLLMOracleWithGenerator(gen Generator, fallback Oracle) *LLMOracle {
	return &LLMOracle{gen: gen, fallback: fallback}
}

const systemPrompt = `You are an employment-law research assistant. Reply with a single JSON object only, using exactly the keys requested. Use numbers for numeric values and booleans for flags.`

func (o *LLMOracle) Jurisdiction(ctx context.Context, location string) (*JurisdictionIntelligence, error) {
	if o.gen != nil {
		var j JurisdictionIntelligence
		prompt := fmt.Sprintf(`Describe the employment-law norms for the location %q. Keys: country, countryCode (ISO 3166-1 alpha-2), state, stateCode, currency (ISO 4217), currencySymbol, workWeekHours, minPtoDays, standardPtoDays, sickDays, noticePeriodDays, probationMonths, payFrequency, atWillEmployment, nonCompeteEnforceable, nonCompeteCompensated, nonCompeteNotes, governingLaw, dateFormat, salaryIndex (local pay relative to the United States), usdRate (local currency units per USD).`, location)
		err := o.gen.GenerateJSON(ctx, systemPrompt, prompt, &j)
		if err == nil && j.CountryCode != "" && j.Currency != "" {
			return &j, nil
		}
		o.warn("jurisdiction", err)
	}
	return o.fallback.Jurisdiction(ctx, location)
}

func (o *LLMOracle) Company(ctx context.Context, name string) (*CompanyIntelligence, error) {
	if o.gen != nil {
		var c CompanyIntelligence
		prompt := fmt.Sprintf(`Identify the company %q. Keys: name, legalName, entityType, industry, jurisdiction (ISO country code of incorporation).`, name)
		err := o.gen.GenerateJSON(ctx, systemPrompt, prompt, &c)
		if err == nil && c.LegalName != "" {
			if c.Name == "" {
				c.Name = name
			}
			return &c, nil
		}
		o.warn("company", err)
	}
	return o.fallback.Company(ctx, name)
}

func (o *LLMOracle) JobTitle(ctx context.Context, title string) (*JobTitleAnalysis, error) {
	if o.gen != nil {
		var jt JobTitleAnalysis
		prompt := fmt.Sprintf(`Benchmark the job title %q for the United States. Keys: title, seniority (one of intern, junior, mid, senior, lead, executive), department, isExempt, salaryMin, salaryMax, salaryMedian (annual USD), equityTypical, benefits (array of strings).`, title)
		err := o.gen.GenerateJSON(ctx, systemPrompt, prompt, &jt)
		if _, known := seniorityRank[jt.Seniority]; err == nil && known && jt.SalaryMax > 0 {
			if jt.Title == "" {
				jt.Title = title
			}
			return &jt, nil
		}
		o.warn("job title", err)
	}
	return o.fallback.JobTitle(ctx, title)
}

func (o *LLMOracle) warn(topic string, err error) {
	if err == nil {
		log.Printf("WARN: llm %s lookup returned incomplete data, using fallback", topic)
		return
	}
	log.Printf("WARN: llm %s lookup failed, using fallback: %v", topic, err)
}
