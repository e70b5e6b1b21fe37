package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsCanonicalAndUnique(t *testing.T) {
	require.NoError(t, CheckEntropy())

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New()
		require.True(t, Valid(id), "malformed identifier %q", id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate identifier %q", id)
		seen[id] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"3f1c7a0e-9a55-4c1b-8a39-2f7d5b8c1e10":          true,
		"3F1C7A0E-9A55-4C1B-8A39-2F7D5B8C1E10":          false,
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8":          false,
		"3f1c7a0e-9a55-4c1b-ca39-2f7d5b8c1e10":          false,
		"00000000-0000-0000-0000-000000000000":          false,
		"3f1c7a0e9a554c1b8a392f7d5b8c1e10":              false,
		"{3f1c7a0e-9a55-4c1b-8a39-2f7d5b8c1e10}":        false,
		"urn:uuid:3f1c7a0e-9a55-4c1b-8a39-2f7d5b8c1e10": false,
		"3f1c7a0e-9a55-4c1b-8a39-2f7d5b8c1e1z":          false,
		"":                                              false,
		"patient-42":                                    false,
	}
	for input, want := range cases {
		assert.Equal(t, want, Valid(input), input)
	}
}
