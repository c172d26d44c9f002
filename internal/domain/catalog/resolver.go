package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
)

// ApplicableItem is a fee item revision chosen for a student and period
type ApplicableItem struct {
	Definition  *FeeItemDefinition
	Occurrences int
	Gross       valueobject.Money
}

// Resolver answers the catalog's resolve queries. It never picks between
// equally ranked rules; that ambiguity is reported as a ConfigurationError.
type Resolver struct {
	calendar valueobject.Calendar
}

// NewResolver creates a resolver over the institution calendar
func NewResolver(calendar valueobject.Calendar) *Resolver {
	return &Resolver{calendar: calendar}
}

// Calendar returns the calendar the resolver works with
func (r *Resolver) Calendar() valueobject.Calendar {
	return r.calendar
}

// ApplicableItems filters candidates down to the revisions billable to the
// student in the period, keeping only the narrowest scope per item key.
// Revisions of the same key and scope are all kept when their effective
// windows are disjoint, since each bills its own part of the period.
func (r *Resolver) ApplicableItems(profile StudentProfile, period valueobject.BillingPeriod, candidates []FeeItemDefinition) ([]ApplicableItem, error) {
	byKey := make(map[string][]*FeeItemDefinition)
	for i := range candidates {
		d := &candidates[i]
		if !d.IsActive() || !d.Applicability.Matches(profile) {
			continue
		}
		if d.Occurrences(r.calendar, period) == 0 {
			continue
		}
		byKey[d.ItemKey] = append(byKey[d.ItemKey], d)
	}

	var out []ApplicableItem
	for key, defs := range byKey {
		top := highestScope(defs)
		sort.Slice(top, func(i, j int) bool {
			return top[i].EffectiveFrom.Before(top[j].EffectiveFrom)
		})
		for i := 1; i < len(top); i++ {
			prevEnd := top[i-1].WindowEnd()
			if prevEnd.IsZero() || top[i].EffectiveFrom.Before(prevEnd) {
				return nil, shared.NewConfigurationError("AMBIGUOUS_FEE_ITEM",
					fmt.Sprintf("fee item %s has %d overlapping %s definitions for period %s",
						key, len(top), strings.ToLower(string(top[i].Applicability.Scope)), period)).
					WithDetail("item_key", key)
			}
		}
		for _, d := range top {
			occ := d.Occurrences(r.calendar, period)
			gross, err := d.Amount.MultiplyByInt(int64(occ))
			if err != nil {
				return nil, shared.NewConfigurationError("INVALID_FEE_AMOUNT", err.Error())
			}
			out = append(out, ApplicableItem{Definition: d, Occurrences: occ, Gross: gross})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Definition, out[j].Definition
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		if a.ItemKey != b.ItemKey {
			return a.ItemKey < b.ItemKey
		}
		return a.EffectiveFrom.Before(b.EffectiveFrom)
	})
	return out, nil
}

func highestScope(defs []*FeeItemDefinition) []*FeeItemDefinition {
	best := 0
	for _, d := range defs {
		if p := d.Applicability.Scope.Priority(); p > best {
			best = p
		}
	}
	var top []*FeeItemDefinition
	for _, d := range defs {
		if d.Applicability.Scope.Priority() == best {
			top = append(top, d)
		}
	}
	return top
}

// Discount returns the single discount rule for a line, or nil when none applies
func (r *Resolver) Discount(profile StudentProfile, itemKey string, period valueobject.BillingPeriod, rules []DiscountRule) (*DiscountRule, error) {
	var best []*DiscountRule
	bestPriority := 0
	for i := range rules {
		rule := &rules[i]
		if !rule.Matches(profile, itemKey, period) {
			continue
		}
		switch p := rule.Priority(); {
		case p > bestPriority:
			bestPriority = p
			best = []*DiscountRule{rule}
		case p == bestPriority:
			best = append(best, rule)
		}
	}
	switch len(best) {
	case 0:
		return nil, nil
	case 1:
		return best[0], nil
	}
	ids := make([]string, len(best))
	for i, rule := range best {
		ids[i] = rule.ID.String()
	}
	return nil, shared.NewConfigurationError("AMBIGUOUS_DISCOUNT",
		fmt.Sprintf("%d discount rules of equal priority apply to item %s", len(best), itemKey)).
		WithDetail("rule_ids", ids)
}

// FineRule returns the fine rule in force for the period, or nil when none is
func (r *Resolver) FineRule(period valueobject.BillingPeriod, rules []FineRule) (*FineRule, error) {
	var found *FineRule
	for i := range rules {
		rule := &rules[i]
		if !rule.Covers(period) {
			continue
		}
		if found != nil {
			return nil, shared.NewConfigurationError("AMBIGUOUS_FINE_RULE",
				fmt.Sprintf("more than one fine rule is active for period %s", period)).
				WithDetail("rule_ids", []string{found.ID.String(), rule.ID.String()})
		}
		found = rule
	}
	return found, nil
}
