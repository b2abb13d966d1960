package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_IsDeterministicAndKeyed(t *testing.T) {
	payload := []byte(`{"type":"invoice.paid"}`)

	a := Sign("whsec_one", 1709294400, payload)
	assert.Equal(t, a, Sign("whsec_one", 1709294400, payload))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, Sign("whsec_two", 1709294400, payload))
	assert.NotEqual(t, a, Sign("whsec_one", 1709294401, payload))
}

func TestSign_CoversPayload(t *testing.T) {
	sig := Sign("whsec_one", 1709294400, []byte(`{"id":"evt_1"}`))
	assert.NotEqual(t, sig, Sign("whsec_one", 1709294400, []byte(`{"id":"evt_2"}`)))
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "whsec_"))
	assert.NotEqual(t, a, b)
}
