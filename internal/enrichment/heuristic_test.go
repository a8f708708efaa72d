package enrichment

import (
	"context"
	"errors"
	"testing"
)

func TestHeuristicJurisdiction(t *testing.T) {
	o := NewHeuristicOracle()
	tests := []struct {
		location   string
		country    string
		state      string
		nonCompete bool
	}{
		{"San Francisco, California", "US", "CA", false},
		{"Austin, TX", "US", "TX", true},
		{"Charleston, West Virginia", "US", "WV", true},
		{"Little Rock, Arkansas", "US", "AR", true},
		{"Fargo, ND", "US", "ND", false},
		{"London, UK", "GB", "", true},
		{"Berlin, Germany", "DE", "", true},
		{"Bengaluru", "IN", "", false},
		{"Toronto, Canada", "CA", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			j, err := o.Jurisdiction(context.Background(), tt.location)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if j.CountryCode != tt.country || j.StateCode != tt.state {
				t.Fatalf("got %s/%s, want %s/%s", j.CountryCode, j.StateCode, tt.country, tt.state)
			}
			if j.NonCompeteEnforceable != tt.nonCompete {
				t.Fatalf("nonCompeteEnforceable = %v, want %v", j.NonCompeteEnforceable, tt.nonCompete)
			}
		})
	}

	if _, err := o.Jurisdiction(context.Background(), "Atlantis"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
}

func TestHeuristicJobTitle(t *testing.T) {
	o := NewHeuristicOracle()
	tests := []struct {
		title      string
		seniority  string
		department string
		equity     bool
	}{
		{"Senior Software Engineer", "senior", "Engineering", true},
		{"Junior Accountant", "junior", "Finance", false},
		{"VP of Sales", "executive", "Sales", true},
		{"Marketing Intern", "intern", "Marketing", false},
		{"Office Assistant", "mid", "General", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			jt, err := o.JobTitle(context.Background(), tt.title)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if jt.Seniority != tt.seniority || jt.Department != tt.department {
				t.Fatalf("got %s/%s, want %s/%s", jt.Seniority, jt.Department, tt.seniority, tt.department)
			}
			if jt.EquityTypical != tt.equity {
				t.Fatalf("equityTypical = %v, want %v", jt.EquityTypical, tt.equity)
			}
			if jt.SalaryMin <= 0 || jt.SalaryMin > jt.SalaryMedian || jt.SalaryMedian > jt.SalaryMax {
				t.Fatalf("salary band out of order: %+v", jt)
			}
		})
	}
}

func TestHeuristicCompany(t *testing.T) {
	o := NewHeuristicOracle()
	c, err := o.Company(context.Background(), "Initech Software, Inc.")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if c.EntityType != "Corporation" || c.Jurisdiction != "US" || c.Industry != "Technology" {
		t.Fatalf("unexpected company intelligence: %+v", c)
	}
	if _, err := o.Company(context.Background(), "  "); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown for blank name, got %v", err)
	}
}

func TestDeriveMarketStandards(t *testing.T) {
	o := NewHeuristicOracle()
	ctx := context.Background()
	ca, _ := o.Jurisdiction(ctx, "Los Angeles, CA")
	exec, _ := o.JobTitle(ctx, "Chief Technology Officer")

	ms := DeriveMarketStandards(ca, exec)
	if ms.NonCompeteEnforceable || ms.NonCompeteMonths != 0 {
		t.Fatalf("California must not suggest a non-compete: %+v", ms)
	}
	if ms.NoticePeriodDays != 90 || ms.PTODays != 20 || ms.ExemptStatus != "exempt" {
		t.Fatalf("unexpected executive standards: %+v", ms)
	}

	tx, _ := o.Jurisdiction(ctx, "Dallas, TX")
	if got := DeriveMarketStandards(tx, exec); got.NonCompeteMonths != 12 {
		t.Fatalf("expected 12 month non-compete in Texas, got %d", got.NonCompeteMonths)
	}

	uk, _ := o.Jurisdiction(ctx, "Manchester, England")
	junior, _ := o.JobTitle(ctx, "Junior Designer")
	ms = DeriveMarketStandards(uk, junior)
	if ms.PTODays != 28 || ms.NoticePeriodDays != 30 || ms.Currency != "GBP" || ms.ExemptStatus != "" {
		t.Fatalf("unexpected UK standards: %+v", ms)
	}

	if DeriveMarketStandards(nil, junior) != nil {
		t.Fatal("expected nil without a jurisdiction")
	}
}
