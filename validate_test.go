package rowtemplar

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_CleanDocumentPasses(t *testing.T) {
	doc := mustDecode(t, `{"a": "50%", "b": "100 % pure", "c": ["%", "%%"]}`)
	for _, p := range []ResidualPolicy{ResidualStrict, ResidualLenient} {
		out, tokens, err := Validate(doc, p)
		require.NoError(t, err)
		assert.Empty(t, tokens)
		assert.Equal(t, mustMarshal(t, doc), mustMarshal(t, out))
	}
}

func TestValidate_StrictReportsTokens(t *testing.T) {
	doc := mustDecode(t, `{"a": "%Z%", "b": {"c": "x %A% y"}, "%K%": 1, "d": "%Z%"}`)
	out, tokens, err := Validate(doc, ResidualStrict)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, []string{"%A%", "%K%", "%Z%"}, tokens)

	var rerr *ResidualTokenError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, []string{"%A%", "%K%", "%Z%"}, rerr.Tokens)
	assert.ErrorIs(t, err, ErrResidualToken)
	assert.Contains(t, err.Error(), "%A%, %K%, %Z%")
}

func TestValidate_LenientStrips(t *testing.T) {
	doc := mustDecode(t, `{"a": "%Z%", "b": {"c": "x %A% y"}, "%K%": 1, "list": ["%Z%", 2]}`)
	out, tokens, err := Validate(doc, ResidualLenient)
	require.NoError(t, err)
	assert.Equal(t, []string{"%A%", "%K%", "%Z%"}, tokens)
	assert.Equal(t, `{"a":"","b":{"c":"x  y"},"":1,"list":["",2]}`, mustMarshal(t, out))

	// исходный документ не изменён
	assert.Contains(t, mustMarshal(t, doc), "%Z%")
}

func TestParseResidualPolicy(t *testing.T) {
	p, err := ParseResidualPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ResidualStrict, p)
	p, err = ParseResidualPolicy("Lenient")
	require.NoError(t, err)
	assert.Equal(t, ResidualLenient, p)
	assert.Equal(t, "lenient", p.String())
	_, err = ParseResidualPolicy("loose")
	assert.Error(t, err)
}
