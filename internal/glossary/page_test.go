package glossary

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageRoundTripKeepsOtherKeys(t *testing.T) {
	in := `{"element_ids":{"3":"intro","5":"footer"},"theme":"dark"}`
	p, err := ParsePage([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "5"}, p.ElementIDKeys())

	p.SetElementID("7", "intro_1")
	assert.True(t, p.RemoveElementID("3"))
	assert.False(t, p.RemoveElementID("3"))

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"element_ids":{"5":"footer","7":"intro_1"},"theme":"dark"}`, string(out))
}

func TestPageWithoutElementIDs(t *testing.T) {
	p, err := ParsePage(nil)
	require.NoError(t, err)
	assert.Empty(t, p.ElementIDKeys())
	p.SetElementID("1", "a")
	assert.Equal(t, map[string]string{"1": "a"}, p.ElementIDs)

	_, err = ParsePage([]byte(`{"element_ids":["a"]}`))
	assert.Error(t, err)
}
