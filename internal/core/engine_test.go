package core

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name     string
		score    float64
		category Category
		spam     bool
		want     Decision
	}{
		{"spam overrides high score", 0.9, CategoryPrimary, true, SpamFolder},
		{"spam category is spam", 0.95, CategorySpam, false, SpamFolder},
		{"priority at threshold", 0.7, CategoryPrimary, false, PriorityInbox},
		{"priority above threshold promotions", 0.8, CategoryPromotions, false, PriorityInbox},
		{"archive at threshold", 0.3, CategoryPromotions, false, AutoArchive},
		{"archive social", 0.1, CategorySocial, false, AutoArchive},
		{"archive updates", 0.0, CategoryUpdates, false, AutoArchive},
		{"primary never archived", 0.05, CategoryPrimary, false, RegularInbox},
		{"forums never archived", 0.05, CategoryForums, false, RegularInbox},
		{"between thresholds", 0.5, CategoryPromotions, false, RegularInbox},
		{"just below priority", 0.6999, CategoryPrimary, false, RegularInbox},
		{"negative clamped", -3, CategoryPromotions, false, AutoArchive},
		{"above one clamped", 7, CategoryPrimary, false, PriorityInbox},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.score, tt.category, tt.spam, th))
		})
	}
}

func TestDecideMonotonic(t *testing.T) {
	thresholds := []Thresholds{
		DefaultThresholds(),
		{Priority: 0.5, Archive: 0.5},
		{Priority: 0.2, Archive: 0.8},
		{Priority: 1, Archive: 0},
	}

	for _, th := range thresholds {
		for _, c := range Categories {
			if c == CategorySpam {
				continue
			}
			prev := Decide(0, c, false, th).Visibility()
			for i := 1; i <= 1000; i++ {
				vis := Decide(float64(i)/1000, c, false, th).Visibility()
				assert.GreaterOrEqual(t, vis, prev, "category %s thresholds %+v score %v", c, th, float64(i)/1000)
				prev = vis
			}
		}
	}
}

func TestThresholdsValidate(t *testing.T) {
	_, err := NewThresholds(0.8, 0.2)
	require.NoError(t, err)

	for _, th := range []Thresholds{
		{Priority: 1.5, Archive: 0.3},
		{Priority: 0.7, Archive: -0.1},
		{Priority: math.NaN(), Archive: 0.3},
	} {
		_, err := NewThresholds(th.Priority, th.Archive)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfiguration))

		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce)
	}
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("PRIORITY_INBOX")
	require.NoError(t, err)
	assert.Equal(t, PriorityInbox, d)

	_, err = ParseDecision("trash")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidFeedback)
}
