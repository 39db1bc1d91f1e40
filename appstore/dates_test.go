package appstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	t.Run("AppleGMTLayout", func(t *testing.T) {
		got := parseDate("2018-02-11 20:55:08 Etc/GMT")
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2018, 2, 11, 20, 55, 8, 0, time.UTC), *got)
	})

	t.Run("RFC3339", func(t *testing.T) {
		got := parseDate("2018-02-11T20:55:08Z")
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2018, 2, 11, 20, 55, 8, 0, time.UTC), *got)
	})

	t.Run("EpochMillisecondsFallback", func(t *testing.T) {
		// A field documented as a date string sometimes carries epoch
		// milliseconds instead.
		got := parseDate("1518255510000")
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2018, 2, 10, 3, 11, 50, 0, time.UTC), *got)
	})

	t.Run("Absent", func(t *testing.T) {
		assert.Nil(t, parseDate(nil))
		assert.Nil(t, parseDate(""))
	})

	t.Run("Garbage", func(t *testing.T) {
		// Date fields must never abort the parse; garbage reads as absent.
		assert.Nil(t, parseDate("not a date at all"))
		assert.Nil(t, parseDate([]any{"nested"}))
	})
}

func TestParseDateMilliseconds(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		got := parseDateMilliseconds("1518255510000")
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2018, 2, 10, 3, 11, 50, 0, time.UTC), *got)
	})

	t.Run("Number", func(t *testing.T) {
		got := parseDateMilliseconds(float64(1518255510000))
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2018, 2, 10, 3, 11, 50, 0, time.UTC), *got)
	})

	t.Run("TruncatesSubSecond", func(t *testing.T) {
		got := parseDateMilliseconds("1518255510999")
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2018, 2, 10, 3, 11, 50, 0, time.UTC), *got)
	})

	t.Run("NoDateStringAttempt", func(t *testing.T) {
		// _ms fields are millisecond counts only.
		assert.Nil(t, parseDateMilliseconds("2018-02-11 20:55:08 Etc/GMT"))
	})

	t.Run("Absent", func(t *testing.T) {
		assert.Nil(t, parseDateMilliseconds(nil))
	})
}
