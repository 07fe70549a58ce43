package keyrelay_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kr "github.com/ineyio/keyrelay"
)

func TestKeyPool_EmptyIsConfigurationError(t *testing.T) {
	_, err := kr.NewKeyPool(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, kr.ErrConfiguration)
}

func TestKeyPool_RoundRobin(t *testing.T) {
	p := newPool(t, "A", "B", "C")

	var got []string
	for i := 0; i < 7; i++ {
		got = append(got, p.Next())
	}
	assert.Equal(t, []string{"A", "B", "C", "A", "B", "C", "A"}, got)
}

// Every credential is returned exactly k times over k*N calls.
func TestKeyPool_Fairness(t *testing.T) {
	p := newPool(t, "A", "B", "C", "D")

	seen := make(map[string]int)
	for i := 0; i < 4*25; i++ {
		seen[p.Next()]++
	}
	for _, c := range []string{"A", "B", "C", "D"} {
		assert.Equal(t, 25, seen[c], c)
	}
}

func TestKeyPool_CopiesInput(t *testing.T) {
	creds := []string{"A", "B"}
	p := newPool(t, creds...)
	creds[0] = "Z"

	assert.Equal(t, []string{"A", "B"}, p.Credentials())
	assert.True(t, p.Contains("A"))
	assert.False(t, p.Contains("Z"))
	assert.Equal(t, 2, p.Size())
}

func TestMaskCredential(t *testing.T) {
	assert.Equal(t, "...wxyz", kr.MaskCredential("AIzaSyabcdwxyz"))
	assert.Equal(t, "...ab", kr.MaskCredential("ab"))
}
