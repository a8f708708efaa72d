package enrichment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// gatedOracle returns per-input results when the test releases them.
type gatedOracle struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	heur  *HeuristicOracle
	fail  map[string]bool
}

func newGatedOracle() *gatedOracle {
	return &gatedOracle{gates: map[string]chan struct{}{}, heur: NewHeuristicOracle(), fail: map[string]bool{}}
}

func (g *gatedOracle) gate(input string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[input]
	if !ok {
		ch = make(chan struct{})
		g.gates[input] = ch
	}
	return ch
}

func (g *gatedOracle) wait(ctx context.Context, input string) error {
	select {
	case <-g.gate(input):
	case <-ctx.Done():
		return ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail[input] {
		return errors.New("lookup failed for " + input)
	}
	return nil
}

func (g *gatedOracle) release(input string) { close(g.gate(input)) }

func (g *gatedOracle) Jurisdiction(ctx context.Context, location string) (*JurisdictionIntelligence, error) {
	if err := g.wait(ctx, location); err != nil {
		return nil, err
	}
	return g.heur.Jurisdiction(context.Background(), location)
}

func (g *gatedOracle) Company(ctx context.Context, name string) (*CompanyIntelligence, error) {
	if err := g.wait(ctx, name); err != nil {
		return nil, err
	}
	return g.heur.Company(context.Background(), name)
}

func (g *gatedOracle) JobTitle(ctx context.Context, title string) (*JobTitleAnalysis, error) {
	if err := g.wait(ctx, title); err != nil {
		return nil, err
	}
	return g.heur.JobTitle(context.Background(), title)
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAggregator_NonBlockingAndLoading(t *testing.T) {
	o := newGatedOracle()
	a := NewAggregator(o, 0, nil)
	defer a.Close()

	a.LookupJurisdiction(context.Background(), "Austin, TX")
	snap := a.Snapshot()
	if !snap.Jurisdiction.Loading || snap.Jurisdiction.Data != nil {
		t.Fatalf("expected loading jurisdiction with no data, got %+v", snap.Jurisdiction)
	}
	if len(a.Suggestions()) != 0 {
		t.Fatal("expected no suggestions while loading")
	}

	o.release("Austin, TX")
	a.Wait()
	snap = a.Snapshot()
	if snap.Jurisdiction.Loading || snap.Jurisdiction.Data == nil || snap.Jurisdiction.Data.StateCode != "TX" {
		t.Fatalf("expected Texas jurisdiction, got %+v", snap.Jurisdiction)
	}
	if a.Suggestions()["jurisdiction.currency"] != "USD" {
		t.Fatalf("expected dotted currency suggestion, got %v", a.Suggestions())
	}
}

func TestAggregator_MarketStandardsEitherOrder(t *testing.T) {
	for _, order := range [][2]string{{"Berlin, Germany", "Senior Software Engineer"}, {"Senior Software Engineer", "Berlin, Germany"}} {
		o := newGatedOracle()
		a := NewAggregator(o, 0, nil)

		a.LookupJurisdiction(context.Background(), "Berlin, Germany")
		a.LookupJobTitle(context.Background(), "Senior Software Engineer")

		o.release(order[0])
		waitFor(t, func() bool {
			s := a.Snapshot()
			return s.Jurisdiction.Data != nil || s.JobTitle.Data != nil
		})
		if a.Snapshot().MarketStandards.Data != nil {
			t.Fatal("market standards must wait for both inputs")
		}

		o.release(order[1])
		a.Wait()
		ms := a.Snapshot().MarketStandards
		if ms.Data == nil {
			t.Fatalf("expected market standards after both inputs (order %v)", order)
		}
		if ms.Data.Currency != "EUR" || ms.Data.PTODays != 30 || ms.Data.NoticePeriodDays != 30 {
			t.Fatalf("unexpected market standards: %+v", ms.Data)
		}
		a.Close()
	}
}

func TestAggregator_SupersededLookupDiscarded(t *testing.T) {
	o := newGatedOracle()
	var changes int
	var mu sync.Mutex
	a := NewAggregator(o, 0, func(Snapshot) {
		mu.Lock()
		changes++
		mu.Unlock()
	})
	defer a.Close()

	a.LookupCompany(context.Background(), "Acme Inc")
	a.LookupCompany(context.Background(), "Globex GmbH")

	// The first lookup was cancelled; releasing it must not apply anything.
	o.release("Acme Inc")
	o.release("Globex GmbH")
	a.Wait()

	c := a.Snapshot().Company
	if c.Data == nil || c.Data.Name != "Globex GmbH" || c.Data.Jurisdiction != "DE" {
		t.Fatalf("expected latest company lookup to win, got %+v", c.Data)
	}
	mu.Lock()
	defer mu.Unlock()
	if changes != 1 {
		t.Fatalf("expected exactly one applied result, got %d", changes)
	}
}

func TestAggregator_FailureIsolated(t *testing.T) {
	o := newGatedOracle()
	o.fail["Nowhere"] = true
	a := NewAggregator(o, 0, nil)
	defer a.Close()

	a.LookupJurisdiction(context.Background(), "Nowhere")
	a.LookupJobTitle(context.Background(), "Product Manager")
	o.release("Nowhere")
	o.release("Product Manager")
	a.Wait()

	s := a.Snapshot()
	if s.Jurisdiction.Error == "" || s.Jurisdiction.Data != nil {
		t.Fatalf("expected failed jurisdiction source, got %+v", s.Jurisdiction)
	}
	if s.JobTitle.Data == nil {
		t.Fatal("job title should still succeed")
	}
	if s.MarketStandards.Data != nil || s.MarketStandards.Error == "" {
		t.Fatalf("market standards should not be produced, got %+v", s.MarketStandards)
	}
	ctx := a.Context()
	if _, ok := ctx["jobTitle"]; !ok {
		t.Fatal("job title data should be in the context")
	}
	if _, ok := ctx["jurisdiction"]; ok {
		t.Fatal("failed source should not be in the context")
	}
	failed := FailedTopics(s)
	if len(failed) != 2 || failed[0] != "jurisdiction" || failed[1] != "marketStandards" {
		t.Fatalf("expected jurisdiction and marketStandards to be reported failed, got %v", failed)
	}
}

func TestAggregator_Timeout(t *testing.T) {
	o := newGatedOracle()
	a := NewAggregator(o, 20*time.Millisecond, nil)
	defer a.Close()

	a.LookupJobTitle(context.Background(), "Never Returns")
	a.Wait()
	if s := a.Snapshot().JobTitle; s.Error == "" || s.Loading {
		t.Fatalf("expected timed out lookup to report an error, got %+v", s)
	}
}
