package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"

	"lexform-backend/internal/metadata"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?\d{7,15}$`)
	phoneStrip   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

// customPatterns caches compiled custom-field validation patterns.
var customPatterns sync.Map

// EntryResult is the validation outcome for one signatory entry. Errors is
// keyed by entry attribute ("name", "email", "partyType", "phone", or a
// custom field key).
type EntryResult struct {
	IsValid bool              `json:"isValid"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// SignatoryResult separates page-level messages from per-entry results.
// SignatoryResult is keyed by entry id. Entries without an id, or whose id
// was already used by an earlier entry, get a key derived from their index.
type SignatoryResult struct {
	IsValid      bool                   `json:"isValid"`
	GlobalErrors []string               `json:"globalErrors"`
	EntryErrors  map[string]EntryResult `json:"entryErrors"`
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

// IsActiveEntry reports whether an entry has any identifying data. Fully
// blank entries are skipped by validation.
func IsActiveEntry(e metadata.SignatoryEntry) bool {
	return !isBlank(e.Name) || !isBlank(e.Email) || !isBlank(e.Title) || !isBlank(e.Phone)
}

// ValidateSignatoryEntry checks one entry against cfg. Inactive entries are
// always valid.
func ValidateSignatoryEntry(e metadata.SignatoryEntry, cfg *metadata.SignatoryConfig) EntryResult {
	errs := map[string]string{}
	if !IsActiveEntry(e) {
		return EntryResult{IsValid: true}
	}
	if cfg == nil {
		cfg = metadata.DefaultSignatoryConfig()
	}

	if isBlank(e.Name) {
		errs["name"] = "Name is required"
	}
	switch {
	case isBlank(e.Email):
		errs["email"] = "Email is required"
	case !emailPattern.MatchString(strings.TrimSpace(e.Email)):
		errs["email"] = "Please enter a valid email address"
	}

	if len(cfg.PartyTypes) > 0 && !cfg.AllowCustomPartyType && !cfg.HasPartyType(e.PartyType) {
		values := make([]string, len(cfg.PartyTypes))
		for i, p := range cfg.PartyTypes {
			values[i] = p.Value
		}
		errs["partyType"] = fmt.Sprintf("Party type must be one of: %s", strings.Join(values, ", "))
	}

	if cfg.Collect.Phone && !isBlank(e.Phone) {
		if !phonePattern.MatchString(phoneStrip.Replace(strings.TrimSpace(e.Phone))) {
			errs["phone"] = "Please enter a valid phone number"
		}
	}

	for _, cf := range cfg.CustomFields {
		val := strings.TrimSpace(e.CustomFields[cf.Key])
		label := cf.Label
		if label == "" {
			label = cf.Key
		}
		if val == "" {
			if cf.Required {
				errs[cf.Key] = label + " is required"
			}
			continue
		}
		if cf.Validation == nil || cf.Validation.Pattern == "" {
			continue
		}
		re, err := customPattern(cf.Validation.Pattern)
		if err != nil {
			log.Printf("WARN: signatory field %s: invalid pattern %q: %v", cf.Key, cf.Validation.Pattern, err)
			continue
		}
		if !re.MatchString(val) {
			msg := cf.Validation.Message
			if msg == "" {
				msg = label + " is invalid"
			}
			errs[cf.Key] = msg
		}
	}

	if len(errs) == 0 {
		return EntryResult{IsValid: true}
	}
	return EntryResult{IsValid: false, Errors: errs}
}

// ValidateSignatories validates every entry and the aggregate count and
// required party rules.
func ValidateSignatories(entries []metadata.SignatoryEntry, cfg *metadata.SignatoryConfig) SignatoryResult {
	if cfg == nil {
		cfg = metadata.DefaultSignatoryConfig()
	}
	res := SignatoryResult{
		IsValid:      true,
		GlobalErrors: []string{},
		EntryErrors:  map[string]EntryResult{},
	}

	active := 0
	present := map[string]bool{}
	used := make(map[string]bool, len(entries))
	for i, e := range entries {
		id := entryKey(e.ID, i, used)
		er := ValidateSignatoryEntry(e, cfg)
		if !er.IsValid {
			res.IsValid = false
			res.EntryErrors[id] = er
		}
		if IsActiveEntry(e) {
			active++
			present[e.PartyType] = true
		}
	}

	if active < cfg.MinSignatories {
		res.GlobalErrors = append(res.GlobalErrors,
			fmt.Sprintf("At least %d signatories are required (minimum not met: %d provided)", cfg.MinSignatories, active))
	}
	if cfg.MaxSignatories > 0 && active > cfg.MaxSignatories {
		res.GlobalErrors = append(res.GlobalErrors,
			fmt.Sprintf("No more than %d signatories are allowed", cfg.MaxSignatories))
	}
	for _, pt := range cfg.RequiredPartyTypes {
		if !present[pt] {
			res.GlobalErrors = append(res.GlobalErrors,
				fmt.Sprintf("At least one %s signatory is required", cfg.PartyLabel(pt)))
		}
	}
	if len(res.GlobalErrors) > 0 {
		res.IsValid = false
	}
	return res
}

// CoerceSignatories converts a form value into signatory entries. Anything
// that is not a list of entry objects becomes an empty list.
func CoerceSignatories(v any) []metadata.SignatoryEntry {
	switch val := v.(type) {
	case []metadata.SignatoryEntry:
		return val
	case []any:
		out := make([]metadata.SignatoryEntry, 0, len(val))
		for _, item := range val {
			m, ok := item.(map[string]any)
			if !ok {
				return []metadata.SignatoryEntry{}
			}
			b, err := json.Marshal(m)
			if err != nil {
				return []metadata.SignatoryEntry{}
			}
			var e metadata.SignatoryEntry
			if err := json.Unmarshal(b, &e); err != nil {
				return []metadata.SignatoryEntry{}
			}
			out = append(out, e)
		}
		return out
	case []map[string]any:
		items := make([]any, len(val))
		for i := range val {
			items[i] = val[i]
		}
		return CoerceSignatories(items)
	}
	return []metadata.SignatoryEntry{}
}

func customPattern(p string) (*regexp.Regexp, error) {
	if re, ok := customPatterns.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	customPatterns.Store(p, re)
	return re, nil
}

func entryKey(id string, i int, used map[string]bool) string {
	if id == "" {
		id = fmt.Sprintf("entry-%d", i)
	}
	for used[id] {
		id = fmt.Sprintf("%s-%d", id, i)
	}
	used[id] = true
	return id
}
