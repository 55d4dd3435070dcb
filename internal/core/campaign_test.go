package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseCampaign(t *testing.T) {
	today := day("2026-03-10")

	c, err := ParseCampaign("2026-03-10", "2026-04-10", today)
	require.NoError(t, err)
	require.True(t, c.ActiveOn(day("2026-03-10")))
	require.True(t, c.ActiveOn(day("2026-04-10").Add(23*time.Hour)))
	require.False(t, c.ActiveOn(day("2026-04-11")))
	require.False(t, c.ActiveOn(day("2026-03-09")))

	_, err = ParseCampaign("2026-03-09", "2026-04-10", today)
	require.ErrorIs(t, err, ErrCampaignStartInPast)

	_, err = ParseCampaign("2026-03-12", "2026-03-11", today)
	require.ErrorIs(t, err, ErrCampaignEndBefore)

	_, err = ParseCampaign("2026-03-12", "2027-03-13", today)
	require.ErrorIs(t, err, ErrCampaignTooLong)

	_, err = ParseCampaign("03/12/2026", "2026-04-01", today)
	require.Error(t, err)
}

func TestValidatePhone(t *testing.T) {
	require.NoError(t, ValidatePhone("+15551234567"))
	require.NoError(t, ValidatePhone("+4915112345678"))
	require.ErrorIs(t, ValidatePhone("5551234567"), ErrInvalidPhone)
	require.ErrorIs(t, ValidatePhone("+1555"), ErrInvalidPhone)
	require.ErrorIs(t, ValidatePhone("+1 555 123 4567"), ErrInvalidPhone)
}
