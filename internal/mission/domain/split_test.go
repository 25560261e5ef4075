package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitValue(t *testing.T) {
	cases := []struct {
		value    int64
		pct      string
		company  int64
		provider int64
	}{
		{1000, "30", 300, 700},
		{1000, "0", 0, 1000},
		{1000, "100", 1000, 0},
		{999, "33.33", 333, 666},
		{101, "50", 51, 50},
		{0, "40", 0, 0},
	}
	for _, tc := range cases {
		company, provider, err := SplitValue(tc.value, decimal.RequireFromString(tc.pct))
		require.NoError(t, err)
		assert.Equal(t, tc.company, company, "company share of %d at %s%%", tc.value, tc.pct)
		assert.Equal(t, tc.provider, provider, "provider share of %d at %s%%", tc.value, tc.pct)
		assert.Equal(t, tc.value, company+provider)
	}

	_, _, err := SplitValue(-1, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInvalidServiceValue)
	_, _, err = SplitValue(100, decimal.NewFromInt(101))
	assert.ErrorIs(t, err, ErrInvalidPercentage)
	_, _, err = SplitValue(100, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrInvalidPercentage)
}

func TestSplitAmountConserves(t *testing.T) {
	for amount := int64(0); amount <= 50; amount++ {
		for n := 1; n <= 7; n++ {
			parts := SplitAmount(amount, n)
			require.Len(t, parts, n)
			var sum int64
			for i, p := range parts {
				sum += p
				if i > 0 {
					assert.LessOrEqual(t, p, parts[0])
				}
			}
			assert.Equal(t, amount, sum)
		}
	}
	assert.Equal(t, []int64{350, 350}, SplitAmount(700, 2))
	assert.Equal(t, []int64{234, 233, 233}, SplitAmount(700, 3))
	assert.Nil(t, SplitAmount(100, 0))
}

func TestShareOfAndAssigned(t *testing.T) {
	a, b, c := snowflake.ID(11), snowflake.ID(22), snowflake.ID(33)

	assert.Equal(t, int64(234), ShareOf(700, []snowflake.ID{a, b, c}, a))
	assert.Equal(t, int64(233), ShareOf(700, []snowflake.ID{a, b, c}, c))
	assert.Zero(t, ShareOf(700, []snowflake.ID{a, b}, c))

	sole := b
	m := &Mission{ProviderID: &sole}
	assert.Equal(t, []snowflake.ID{b}, Assigned(m, nil))

	set := []MissionProvider{
		{ProviderID: c, Position: 1},
		{ProviderID: a, Position: 0},
	}
	assert.Equal(t, []snowflake.ID{a, c}, Assigned(m, set))
	assert.Nil(t, Assigned(&Mission{}, nil))
}
