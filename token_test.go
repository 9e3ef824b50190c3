package rowtemplar

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHeader() Header {
	return Header{
		Categories:    []string{"物性", "物性", "メモ"},
		FormalNames:   []string{"Melting point", "Unit", "Memo"},
		Placeholders:  []string{"%MP%", " %MP_UNIT% ", "%MEMO%"},
		Abbreviations: []string{"mp", "mpu", "memo"},
	}
}

func TestIsToken(t *testing.T) {
	assert.True(t, IsToken("%A%"))
	assert.True(t, IsToken("%mp_unit_2%"))
	assert.False(t, IsToken("%%"))
	assert.False(t, IsToken("A%"))
	assert.False(t, IsToken("x %A%"))
	assert.False(t, IsToken("%A-B%"))
	assert.Equal(t, []string{"%A%", "%B%"}, FindTokens("50% of %A% and %B%"))
}

func TestCanonicalToken_FullWidth(t *testing.T) {
	tok, ok := CanonicalToken("　％ＭＰ％ ")
	require.True(t, ok)
	assert.Equal(t, "%MP%", tok)

	_, ok = CanonicalToken("MP")
	assert.False(t, ok)
}

func TestBuildMapping_KeySources(t *testing.T) {
	h := sampleHeader()

	m, err := BuildMapping(h, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, Mapping{"%MP%": "%MP%", "%MP_UNIT%": "%MP_UNIT%", "%MEMO%": "%MEMO%"}, m)

	m, err = BuildMapping(h, KeyFormalName)
	require.NoError(t, err)
	assert.Equal(t, Mapping{"%MP%": "Melting point", "%MP_UNIT%": "Unit", "%MEMO%": "Memo"}, m)

	m, err = BuildMapping(h, KeyAbbreviation)
	require.NoError(t, err)
	assert.Equal(t, Mapping{"%MP%": "mp", "%MP_UNIT%": "mpu", "%MEMO%": "memo"}, m)
}

func TestBuildMapping_Idempotent(t *testing.T) {
	h := sampleHeader()
	m1, err := BuildMapping(h, KeyFormalName)
	require.NoError(t, err)
	m2, err := BuildMapping(h, KeyFormalName)
	require.NoError(t, err)
	assert.Equal(t, m1, m2)
}

func TestBuildColumns_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Header)
		src    KeySource
		row    int
		column int
	}{
		{"bare name", func(h *Header) { h.Placeholders[1] = "MP_UNIT" }, KeyToken, 3, 2},
		{"blank placeholder", func(h *Header) { h.Placeholders[2] = " " }, KeyToken, 3, 3},
		{"row count mismatch", func(h *Header) { h.FormalNames = h.FormalNames[:2] }, KeyToken, 3, 0},
		{"duplicate token", func(h *Header) { h.Placeholders[2] = "%MP%" }, KeyToken, 3, 3},
		{"duplicate formal name", func(h *Header) { h.FormalNames[2] = "Unit" }, KeyFormalName, 2, 3},
		{"blank abbreviation", func(h *Header) { h.Abbreviations[0] = "" }, KeyAbbreviation, 4, 1},
		{"no abbreviation row", func(h *Header) { h.Abbreviations = nil }, KeyAbbreviation, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := sampleHeader()
			tc.mutate(&h)
			_, err := BuildColumns(h, tc.src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrStructuralInput))
			var se *StructuralInputError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tc.row, se.Row)
			assert.Equal(t, tc.column, se.Column)
		})
	}
}

func TestStructuralInputError_Message(t *testing.T) {
	err := &StructuralInputError{Row: 3, Column: 28, Reason: "плохо"}
	assert.Contains(t, err.Error(), "столбец AB")
	assert.Contains(t, err.Error(), "строка 3")
}

func TestSuggestMapping(t *testing.T) {
	tmpl, err := ParseTemplate("t.json", []byte(`{"mp": "%MP%", "unit": "%unit%", "memo": "%MEMO%"}`))
	require.NoError(t, err)

	cols, err := SuggestMapping([]string{"MP", "unit", "comment", ""}, tmpl, map[string]string{"comment": "%MEMO%"})
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, Mapping{"%MP%": "MP", "%unit%": "unit", "%MEMO%": "comment"}, mappingOf(cols))

	_, err = SuggestMapping([]string{"MP", "MP"}, tmpl, nil)
	assert.ErrorIs(t, err, ErrStructuralInput)

	_, err = SuggestMapping([]string{"MP", "other"}, tmpl, map[string]string{"other": "%MP%"})
	assert.ErrorIs(t, err, ErrStructuralInput)

	_, err = SuggestMapping([]string{"MP"}, tmpl, map[string]string{"MP": "MP"})
	assert.ErrorIs(t, err, ErrStructuralInput)
}

func TestParseKeySource(t *testing.T) {
	for in, want := range map[string]KeySource{"": KeyToken, "token": KeyToken, "Formal": KeyFormalName, "abbr": KeyAbbreviation} {
		got, err := ParseKeySource(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseKeySource("column")
	assert.Error(t, err)
}
