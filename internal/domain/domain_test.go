package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowOfUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Vilnius")
	require.NoError(t, err)

	// 22:30 UTC is already the next day in Vilnius.
	instant := time.Date(2025, time.June, 1, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, Window("2025-06-02"), WindowOf(instant, loc))
	assert.Equal(t, Window("2025-06-01"), WindowOf(instant, time.UTC))
	assert.Equal(t, Window("2025-06-01"), WindowOf(instant, nil))
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02", w.String())

	_, err = ParseWindow("02.06.2025")
	assert.Error(t, err)

	start, err := w.Start(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC), start)
}

func TestEligibility(t *testing.T) {
	w := Window("2025-06-02")
	prev := Window("2025-06-01")

	p := &UserProfile{Active: true}
	assert.True(t, p.EligibleFor(w))

	p.LastDeliveryDate = &prev
	assert.True(t, p.EligibleFor(w))

	p.LastDeliveryDate = &w
	assert.True(t, p.DeliveredIn(w))
	assert.False(t, p.EligibleFor(w))

	inactive := &UserProfile{Active: false}
	assert.False(t, inactive.EligibleFor(w))
}

func TestLanguageCode(t *testing.T) {
	assert.Equal(t, "lt", LanguageLT.Code())
	assert.Equal(t, "lv", LanguageLV.Code())
	assert.Equal(t, "", Language("DE").Code())
}
