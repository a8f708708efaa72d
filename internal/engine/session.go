package engine

import (
	"fmt"
	"strings"

	"lexform-backend/internal/metadata"
)

// Field error codes recorded by the engine.
const (
	RequiredFieldMissing = "REQUIRED_FIELD_MISSING"
	InvalidFormat        = "INVALID_FORMAT"
	InvalidSignatories   = "INVALID_SIGNATORIES"
)

// FieldError is a runtime validation failure for one field. It is recorded
// in the session, never returned as a Go error.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Session drives one form-filling session over a loaded template. It is not
// safe for concurrent use; SessionManager serializes access.
type Session struct {
	ID         string
	TemplateID string

	tmpl        *metadata.Template
	visibility  VisibilityEvaluator
	formData    map[string]any
	errors      map[string]FieldError
	signatories map[string]SignatoryResult
	currentStep int
	completed   map[string]bool
	submitting  bool
	enrichment  map[string]any
}

// NewSession starts a session at step 0. The template must already have its
// screens and fields sorted. A nil evaluator shows every screen and field.
func NewSession(id string, tmpl *metadata.Template, visibility VisibilityEvaluator) *Session {
	if visibility == nil {
		visibility = alwaysVisible{}
	}
	return &Session{
		ID:          id,
		TemplateID:  tmpl.ID,
		tmpl:        tmpl,
		visibility:  visibility,
		formData:    map[string]any{},
		errors:      map[string]FieldError{},
		signatories: map[string]SignatoryResult{},
		completed:   map[string]bool{},
		enrichment:  map[string]any{},
	}
}

// Restore loads persisted progress into a fresh session. Completed screen
// ids that no longer exist are dropped and an out-of-range step resets to 0.
func (s *Session) Restore(formData map[string]any, currentStep int, completed []string, enrichment map[string]any) {
	for k, v := range formData {
		s.formData[k] = v
	}
	for k, v := range enrichment {
		s.enrichment[k] = v
	}
	known := make(map[string]bool, len(s.tmpl.Screens))
	for _, sc := range s.tmpl.Screens {
		known[sc.ID] = true
	}
	for _, id := range completed {
		if known[id] {
			s.completed[id] = true
		}
	}
	if currentStep >= 0 && currentStep < s.TotalSteps() {
		s.currentStep = currentStep
	}
}

func (s *Session) Template() *metadata.Template { return s.tmpl }

func (s *Session) TotalSteps() int { return len(s.tmpl.Screens) }

func (s *Session) CurrentStep() int { return s.currentStep }

func (s *Session) IsSubmitting() bool { return s.submitting }

// FormData returns a shallow copy of the collected values.
func (s *Session) FormData() map[string]any { return copyMap(s.formData) }

// EnrichmentContext returns a shallow copy of the merged enrichment data.
func (s *Session) EnrichmentContext() map[string]any { return copyMap(s.enrichment) }

// Errors returns the current error message per field name.
func (s *Session) Errors() map[string]string {
	out := make(map[string]string, len(s.errors))
	for k, v := range s.errors {
		out[k] = v.Message
	}
	return out
}

// FieldErrors returns the current errors with their codes.
func (s *Session) FieldErrors() map[string]FieldError {
	out := make(map[string]FieldError, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// SignatoryResults returns the detailed results of the last failed
// signatory validations, keyed by field name.
func (s *Session) SignatoryResults() map[string]SignatoryResult {
	out := make(map[string]SignatoryResult, len(s.signatories))
	for k, v := range s.signatories {
		out[k] = v
	}
	return out
}

// CompletedSteps returns the ids of screens passed with NextStep, in
// template order.
func (s *Session) CompletedSteps() []string {
	out := []string{}
	for _, sc := range s.tmpl.Screens {
		if s.completed[sc.ID] {
			out = append(out, sc.ID)
		}
	}
	return out
}

// ScreenVisible reports whether the screen at index is shown for the
// current values.
func (s *Session) ScreenVisible(index int) bool {
	if index < 0 || index >= s.TotalSteps() {
		return false
	}
	return s.screenVisible(s.tmpl.Screens[index])
}

// VisibleFields returns the names of the fields shown on the screen at index.
func (s *Session) VisibleFields(index int) []string {
	out := []string{}
	if !s.ScreenVisible(index) {
		return out
	}
	sc := s.tmpl.Screens[index]
	for _, f := range sc.Fields {
		if s.fieldVisible(sc, f) {
			out = append(out, f.Name)
		}
	}
	return out
}

// SetFieldValue stores value and clears any error recorded for name.
func (s *Session) SetFieldValue(name string, value any) {
	s.formData[name] = value
	delete(s.errors, name)
	delete(s.signatories, name)
}

// ValidateField validates the first field named name across all screens.
// Unknown and hidden fields pass.
func (s *Session) ValidateField(name string) bool {
	f, screen := s.tmpl.FindField(name)
	if f == nil || !s.fieldVisible(screen, f) {
		s.clearError(name)
		return true
	}
	return s.applyRules(screen, f)
}

// ValidateScreen validates every visible field of the screen at index,
// recording all failures. Out-of-range indexes and hidden screens pass.
func (s *Session) ValidateScreen(index int) bool {
	if index < 0 || index >= s.TotalSteps() {
		return true
	}
	screen := s.tmpl.Screens[index]
	if !s.screenVisible(screen) {
		return true
	}
	ok := true
	for _, f := range screen.Fields {
		if !s.fieldVisible(screen, f) {
			s.clearError(f.Name)
			continue
		}
		if !s.applyRules(screen, f) {
			ok = false
		}
	}
	return ok
}

// CanProceed validates the current step.
func (s *Session) CanProceed() bool {
	return s.ValidateScreen(s.currentStep)
}

// NextStep advances to the next visible screen when the current one
// validates. It is a no-op on the last visible screen.
func (s *Session) NextStep() bool {
	if !s.CanProceed() {
		return false
	}
	next := s.nextVisible(s.currentStep + 1)
	if next < 0 {
		return false
	}
	if s.currentStep < s.TotalSteps() {
		s.completed[s.tmpl.Screens[s.currentStep].ID] = true
	}
	s.currentStep = next
	return true
}

// PreviousStep moves back to the previous visible screen without validation.
func (s *Session) PreviousStep() bool {
	for i := s.currentStep - 1; i >= 0; i-- {
		if s.screenVisible(s.tmpl.Screens[i]) {
			s.currentStep = i
			return true
		}
	}
	return false
}

// GoToStep jumps to step n without validation. Out-of-range n is ignored.
func (s *Session) GoToStep(n int) bool {
	if n < 0 || n >= s.TotalSteps() {
		return false
	}
	s.currentStep = n
	return true
}

// SetEnrichmentContext shallow-merges partial into the enrichment context.
// Form values are not touched.
func (s *Session) SetEnrichmentContext(partial map[string]any) {
	for k, v := range partial {
		s.enrichment[k] = v
	}
}

// DropEnrichment removes keys from the enrichment context.
func (s *Session) DropEnrichment(keys ...string) {
	for _, k := range keys {
		delete(s.enrichment, k)
	}
}

func (s *Session) SetSubmitting(v bool) { s.submitting = v }

// Suggestions returns a suggested value for every AI-enabled field that
// has no value yet and whose suggestion key resolves in the enrichment
// context. Keys are looked up flat first, then as a dotted path.
func (s *Session) Suggestions() map[string]any {
	out := map[string]any{}
	for _, sc := range s.tmpl.Screens {
		for _, f := range sc.Fields {
			if !f.AISuggestionEnabled || f.AISuggestionKey == "" {
				continue
			}
			if _, taken := out[f.Name]; taken || !isEmptyValue(s.formData[f.Name]) {
				continue
			}
			if v, ok := lookupPath(s.enrichment, f.AISuggestionKey); ok {
				out[f.Name] = v
			}
		}
	}
	return out
}

// Submission validates every visible screen and, if all pass, returns the
// flat form payload for document generation.
func (s *Session) Submission() (map[string]any, bool) {
	ok := true
	for i := range s.tmpl.Screens {
		if !s.ValidateScreen(i) {
			ok = false
		}
	}
	if !ok {
		return nil, false
	}
	return copyMap(s.formData), true
}

// FirstInvalidStep returns the index of the first screen with an error, or -1.
func (s *Session) FirstInvalidStep() int {
	for i, sc := range s.tmpl.Screens {
		for _, f := range sc.Fields {
			if _, bad := s.errors[f.Name]; bad {
				return i
			}
		}
	}
	return -1
}

// applyRules runs the field rules in order, stopping at the first failure.
func (s *Session) applyRules(screen *metadata.Screen, f *metadata.Field) bool {
	value := s.formData[f.Name]

	if f.IsSignatoryList() {
		res := ValidateSignatories(CoerceSignatories(value), screen.EffectiveSignatoryConfig())
		if res.IsValid {
			s.clearError(f.Name)
			return true
		}
		msg := "Please fix the errors in the signatory list"
		if len(res.GlobalErrors) > 0 {
			msg = res.GlobalErrors[0]
		}
		s.errors[f.Name] = FieldError{Code: InvalidSignatories, Message: msg}
		s.signatories[f.Name] = res
		return false
	}

	if f.Required && isMissing(value) {
		s.errors[f.Name] = FieldError{Code: RequiredFieldMissing, Message: fmt.Sprintf("%s is required", displayName(f))}
		return false
	}

	// Email values must be strings; any other present value is malformed.
	if f.Type == metadata.FieldEmail && !isMissing(value) {
		if str, ok := value.(string); !ok || !emailPattern.MatchString(str) {
			s.errors[f.Name] = FieldError{Code: InvalidFormat, Message: "Please enter a valid email address"}
			return false
		}
	}

	s.clearError(f.Name)
	return true
}

func (s *Session) clearError(name string) {
	delete(s.errors, name)
	delete(s.signatories, name)
}

func (s *Session) screenVisible(sc *metadata.Screen) bool {
	return sc.Condition == nil || s.visibility.Visible(*sc.Condition, s.formData)
}

func (s *Session) fieldVisible(sc *metadata.Screen, f *metadata.Field) bool {
	if sc != nil && !s.screenVisible(sc) {
		return false
	}
	return f.Condition == nil || s.visibility.Visible(*f.Condition, s.formData)
}

func (s *Session) nextVisible(from int) int {
	for i := from; i < s.TotalSteps(); i++ {
		if s.screenVisible(s.tmpl.Screens[i]) {
			return i
		}
	}
	return -1
}

func displayName(f *metadata.Field) string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// isMissing matches the required rule: nil or the empty string.
func isMissing(v any) bool {
	if v == nil {
		return true
	}
	str, ok := v.(string)
	return ok && str == ""
}

func isEmptyValue(v any) bool {
	if isMissing(v) {
		return true
	}
	str, ok := v.(string)
	return ok && strings.TrimSpace(str) == ""
}

// lookupPath resolves key in m, first as a flat key and then as a dotted
// path through nested maps.
func lookupPath(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok && v != nil {
		return v, true
	}
	var cur any = m
	for _, part := range strings.Split(key, ".") {
		next, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = next[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
