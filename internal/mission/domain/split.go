package domain

import (
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SplitValue divides serviceValue between company and providers. The
// company share is rounded half up to a whole minor unit and the provider
// share takes the rest, so the two always add up to serviceValue.
func SplitValue(serviceValue int64, companyPercentage decimal.Decimal) (companyValue, providerValue int64, err error) {
	if serviceValue < 0 {
		return 0, 0, ErrInvalidServiceValue
	}
	if companyPercentage.IsNegative() || companyPercentage.GreaterThan(hundred) {
		return 0, 0, ErrInvalidPercentage
	}
	companyValue = decimal.NewFromInt(serviceValue).
		Mul(companyPercentage).
		Div(hundred).
		Round(0).
		IntPart()
	return companyValue, serviceValue - companyValue, nil
}

// SplitAmount divides amount across n recipients. Each gets amount/n and the
// first one also gets the remainder, so the parts sum to amount exactly.
func SplitAmount(amount int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	parts := make([]int64, n)
	base := amount / int64(n)
	for i := range parts {
		parts[i] = base
	}
	parts[0] += amount - base*int64(n)
	return parts
}

// ShareOf returns providerID's part of amount among assigned, or zero when
// the provider is not assigned.
func ShareOf(amount int64, assigned []snowflake.ID, providerID snowflake.ID) int64 {
	for i, id := range assigned {
		if id == providerID {
			return SplitAmount(amount, len(assigned))[i]
		}
	}
	return 0
}

// Assigned returns the mission's providers in split order: the explicit set
// ordered by position, or the sole provider when no set exists.
func Assigned(m *Mission, set []MissionProvider) []snowflake.ID {
	if len(set) > 0 {
		ordered := make([]MissionProvider, len(set))
		copy(ordered, set)
		sort.SliceStable(ordered, func(i, j int) bool {
			if ordered[i].Position != ordered[j].Position {
				return ordered[i].Position < ordered[j].Position
			}
			return ordered[i].ProviderID < ordered[j].ProviderID
		})
		ids := make([]snowflake.ID, 0, len(ordered))
		for _, mp := range ordered {
			ids = append(ids, mp.ProviderID)
		}
		return ids
	}
	if m.ProviderID != nil && *m.ProviderID != 0 {
		return []snowflake.ID{*m.ProviderID}
	}
	return nil
}
