package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)

	// 01:30 local on the 3rd is still the 2nd in UTC.
	early := time.Date(2026, 8, 3, 1, 30, 0, 0, loc)
	assert.Equal(t, "2026-08-02", DayKey(early))

	noon := time.Date(2026, 8, 3, 12, 0, 0, 0, loc)
	assert.Equal(t, "2026-08-03", DayKey(noon))
}
