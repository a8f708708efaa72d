package enrichment

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Snapshot is a consistent copy of every source's state.
type Snapshot struct {
	Jurisdiction    Source[JurisdictionIntelligence] `json:"jurisdiction"`
	Company         Source[CompanyIntelligence]      `json:"company"`
	JobTitle        Source[JobTitleAnalysis]         `json:"jobTitle"`
	MarketStandards Source[MarketStandards]          `json:"marketStandards"`
}

// Aggregator runs enrichment lookups in the background and merges their
// results. Lookups never block the caller. A new lookup for a topic
// supersedes any in-flight one: the older lookup is cancelled and its
// result discarded even if it completes later.
type Aggregator struct {
	oracle   Oracle
	timeout  time.Duration
	onChange func(Snapshot)

	mu       sync.Mutex
	state    Snapshot
	gen      map[Topic]uint64
	cancel   map[Topic]context.CancelFunc
	inflight sync.WaitGroup
}

// NewAggregator creates an aggregator. timeout bounds each lookup; zero
// means no bound. onChange, if set, is called after every applied result
// with the new snapshot, outside the aggregator's lock.
func NewAggregator(oracle Oracle, timeout time.Duration, onChange func(Snapshot)) *Aggregator {
	return &Aggregator{
		oracle:   oracle,
		timeout:  timeout,
		onChange: onChange,
		gen:      make(map[Topic]uint64),
		cancel:   make(map[Topic]context.CancelFunc),
	}
}

// LookupJurisdiction starts a jurisdiction lookup for location.
func (a *Aggregator) LookupJurisdiction(ctx context.Context, location string) {
	start(a, ctx, TopicJurisdiction, func(ctx context.Context) (*JurisdictionIntelligence, error) {
		return a.oracle.Jurisdiction(ctx, location)
	}, func(s *Snapshot) *Source[JurisdictionIntelligence] { return &s.Jurisdiction })
}

// LookupCompany starts a company lookup for name.
func (a *Aggregator) LookupCompany(ctx context.Context, name string) {
	start(a, ctx, TopicCompany, func(ctx context.Context) (*CompanyIntelligence, error) {
		return a.oracle.Company(ctx, name)
	}, func(s *Snapshot) *Source[CompanyIntelligence] { return &s.Company })
}

// LookupJobTitle starts a job-title lookup for title.
func (a *Aggregator) LookupJobTitle(ctx context.Context, title string) {
	start(a, ctx, TopicJobTitle, func(ctx context.Context) (*JobTitleAnalysis, error) {
		return a.oracle.JobTitle(ctx, title)
	}, func(s *Snapshot) *Source[JobTitleAnalysis] { return &s.JobTitle })
}

// start is generic over the topic's data type, which methods cannot be.
func start[T any](a *Aggregator, parent context.Context, topic Topic,
	run func(context.Context) (*T, error), slot func(*Snapshot) *Source[T]) {

	// Lookups outlive the request that triggered them.
	ctx := context.WithoutCancel(parent)
	var cancel context.CancelFunc
	if a.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	a.mu.Lock()
	if prev := a.cancel[topic]; prev != nil {
		prev()
	}
	a.gen[topic]++
	gen := a.gen[topic]
	a.cancel[topic] = cancel
	src := slot(&a.state)
	src.Loading = true
	src.Error = ""
	a.refreshMarketLocked()
	a.mu.Unlock()

	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		defer cancel()
		data, err := run(ctx)

		a.mu.Lock()
		if a.gen[topic] != gen {
			a.mu.Unlock()
			return
		}
		delete(a.cancel, topic)
		src := slot(&a.state)
		src.Loading = false
		if err != nil {
			src.Data = nil
			src.Error = err.Error()
		} else {
			src.Data = data
			src.Error = ""
		}
		a.refreshMarketLocked()
		snap := a.state
		a.mu.Unlock()

		if a.onChange != nil {
			a.onChange(snap)
		}
	}()
}

// refreshMarketLocked recomputes market standards from the current
// jurisdiction and job-title data. Without both inputs there is no value.
func (a *Aggregator) refreshMarketLocked() {
	j, jt := a.state.Jurisdiction, a.state.JobTitle
	ms := Source[MarketStandards]{Loading: j.Loading || jt.Loading}
	if j.Data != nil && jt.Data != nil {
		ms.Data = DeriveMarketStandards(j.Data, jt.Data)
	}
	switch {
	case j.Error != "" && !j.Loading:
		ms.Error = "jurisdiction unavailable: " + j.Error
	case jt.Error != "" && !jt.Loading:
		ms.Error = "job title unavailable: " + jt.Error
	}
	a.state.MarketStandards = ms
}

// Snapshot returns the current state of every source.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Context returns the available data keyed by topic, as generic maps, for
// merging into a form session's enrichment context. Topics without data
// are omitted.
func (a *Aggregator) Context() map[string]any {
	return ContextOf(a.Snapshot())
}

// ContextOf converts a snapshot into an enrichment context.
func ContextOf(s Snapshot) map[string]any {
	out := map[string]any{}
	put := func(t Topic, v any) {
		if m := toMap(v); m != nil {
			out[string(t)] = m
		}
	}
	if s.Jurisdiction.Data != nil {
		put(TopicJurisdiction, s.Jurisdiction.Data)
	}
	if s.Company.Data != nil {
		put(TopicCompany, s.Company.Data)
	}
	if s.JobTitle.Data != nil {
		put(TopicJobTitle, s.JobTitle.Data)
	}
	if s.MarketStandards.Data != nil {
		put(TopicMarketStandards, s.MarketStandards.Data)
	}
	return out
}

// FailedTopics lists the topics whose latest lookup failed, so earlier
// data merged into a session for them can be dropped.
func FailedTopics(s Snapshot) []string {
	var out []string
	failed := func(t Topic, hasData bool, errMsg string) {
		if !hasData && errMsg != "" {
			out = append(out, string(t))
		}
	}
	failed(TopicJurisdiction, s.Jurisdiction.Data != nil, s.Jurisdiction.Error)
	failed(TopicCompany, s.Company.Data != nil, s.Company.Error)
	failed(TopicJobTitle, s.JobTitle.Data != nil, s.JobTitle.Error)
	failed(TopicMarketStandards, s.MarketStandards.Data != nil, s.MarketStandards.Error)
	return out
}

// Suggestions flattens the available data into dotted keys such as
// "jurisdiction.currency" or "marketStandards.ptoDays".
func (a *Aggregator) Suggestions() map[string]any {
	out := map[string]any{}
	flatten("", a.Context(), out)
	return out
}

// Wait blocks until every started lookup has finished.
func (a *Aggregator) Wait() {
	a.inflight.Wait()
}

// Close cancels in-flight lookups. Their results are discarded.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for topic, cancel := range a.cancel {
		cancel()
		a.gen[topic]++
		delete(a.cancel, topic)
	}
}

func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}
