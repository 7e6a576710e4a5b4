package mutex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStampFormat(t *testing.T) {
	now := time.Unix(1700000000, 123456789)
	s := newStamp(now)

	raw := s.String()
	// seconds scaled by 10^10
	assert.Len(t, raw, 20)
	assert.Equal(t, "1700000000123456789", raw[:19])

	parsed, ok := parseStamp(raw)
	require.True(t, ok)
	assert.Equal(t, s, parsed)
	assert.True(t, parsed.Time().Equal(now))
}

func TestParseStampRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "7", "abc", "12.5", "-123456", "99999999999999999999999999"} {
		_, ok := parseStamp(raw)
		assert.False(t, ok, "expected %q to be rejected", raw)
	}
}

func TestParseStampTrimsWhitespace(t *testing.T) {
	s, ok := parseStamp("17000000001234567890\n")
	require.True(t, ok)
	assert.Equal(t, int64(1700000000123456789), s.nanos)
	assert.Equal(t, uint8(0), s.tie)
}
