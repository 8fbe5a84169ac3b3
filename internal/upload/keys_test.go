package upload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyRoundTrip(t *testing.T) {
	ts := time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC)
	for _, state := range []State{StateNew, StateFailed, StateDurable} {
		for _, kind := range []Kind{KindLog, KindDescriptor} {
			key := GenerateKey(state, ts, shortID, kind)
			loc, err := ParseKey(key)
			require.NoError(t, err, key)
			assert.Equal(t, state, loc.State)
			assert.Equal(t, shortID, loc.ShortID)
			assert.Equal(t, ts, loc.Timestamp)
			assert.Equal(t, key, loc.Key())
		}
	}
}

func TestGenerateKeyFormats(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 59, 0, time.UTC)
	assert.Equal(t, "raw/2024/01/02/03/04/"+shortID+".power.log", GenerateKey(StateNew, ts, shortID, KindLog))
	assert.Equal(t, "failed/"+shortID+"/2024-01-02-03-04.error.json", GenerateKey(StateFailed, ts, shortID, KindErrorHistory))
	assert.Equal(t, "uploads/2024/01/02/03/04/"+shortID+".descriptor.json", GenerateKey(StateDurable, ts, shortID, KindDescriptor))
}

func TestParseKeyMalformed(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"unknown prefix", "other/2024/01/02/03/04/" + shortID + ".power.log"},
		{"short id too short", "raw/2024/01/02/03/04/abc.power.log"},
		{"bad month", "raw/2024/13/02/03/04/" + shortID + ".power.log"},
		{"missing minute", "raw/2024/01/02/03/" + shortID + ".power.log"},
		{"error blob in new zone", "raw/2024/01/02/03/04/" + shortID + ".error.json"},
		{"failed bad date", "failed/" + shortID + "/2024-01-02-03.power.log"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseKey(tc.key)
			assert.ErrorIs(t, err, ErrMalformedKey)
		})
	}
}

func TestAuthToken(t *testing.T) {
	token, ok := GatewayHeaders{Authorization: "Token abc"}.AuthToken()
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = GatewayHeaders{Authorization: "Bearer abc"}.AuthToken()
	assert.False(t, ok)
	_, ok = GatewayHeaders{}.AuthToken()
	assert.False(t, ok)
}

func TestPrefixes(t *testing.T) {
	assert.Equal(t, "raw/2024/03/07/", NewDayPrefix(uploadTime))
	assert.Equal(t, "failed/"+shortID+"/", FailedPrefixFor(shortID))
	assert.True(t, ValidShortID(shortID))
	assert.False(t, ValidShortID("short"))
}
