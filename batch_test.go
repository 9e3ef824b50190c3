package rowtemplar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func mustTemplate(t *testing.T, name, src string) *Template {
	t.Helper()
	tmpl, err := ParseTemplate(name, []byte(src))
	require.NoError(t, err)
	return tmpl
}

// tenRows — 10 строк; в строках из bad значение X содержит текст токена
func tenRows(bad ...int) []*Row {
	isBad := map[int]bool{}
	for _, b := range bad {
		isBad[b] = true
	}
	rows := make([]*Row, 10)
	for i := range rows {
		x := fmt.Sprintf("x%d", i)
		if isBad[i] {
			x = "%LEAK%"
		}
		rows[i] = NewRow(i, map[string]interface{}{"x": x, "y": float64(i)})
	}
	return rows
}

func TestGenerator_RoundTrip(t *testing.T) {
	tmpl := mustTemplate(t, "sample.json", `{"a": "%X%", "list": ["%Y%", "%Y%"]}`)
	gen := NewGenerator(tmpl, Mapping{"%X%": "colX", "%Y%": "colY"}, DefaultOptions())

	sink := &MemorySink{}
	rep, err := gen.Run(context.Background(), []*Row{
		NewRow(0, map[string]interface{}{"colX": "foo", "colY": "bar"}),
	}, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Written)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", rep.RunID.String())
	require.Equal(t, []string{"sample_0.json"}, sink.Names)
	assert.Equal(t, "{\n  \"a\": \"foo\",\n  \"list\": [\n    \"bar\",\n    \"bar\"\n  ]\n}\n", string(sink.Files["sample_0.json"]))
}

func TestGenerator_AbortOnResidualToken(t *testing.T) {
	tmpl := mustTemplate(t, "t.json", `{"x": "%X%", "y": "%Y%"}`)
	gen := NewGenerator(tmpl, Mapping{"%X%": "x", "%Y%": "y"}, DefaultOptions())

	sink := &MemorySink{}
	rep, err := gen.Run(context.Background(), tenRows(3), sink)
	require.Error(t, err)

	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 3, rowErr.Row)
	var residual *ResidualTokenError
	require.True(t, errors.As(err, &residual))
	assert.Equal(t, 3, residual.Row)
	assert.Equal(t, []string{"%LEAK%"}, residual.Tokens)

	assert.Empty(t, sink.Names, "no output on abort")
	assert.Equal(t, 0, rep.Written)
	require.Len(t, rep.Failed, 1)
}

func TestGenerator_SkipRowPolicy(t *testing.T) {
	tmpl := mustTemplate(t, "t.json", `{"x": "%X%", "y": "%Y%"}`)
	opts := DefaultOptions()
	opts.OnRowError = SkipRow
	gen := NewGenerator(tmpl, Mapping{"%X%": "x", "%Y%": "y"}, opts)

	sink := &MemorySink{}
	rep, err := gen.Run(context.Background(), tenRows(3, 7), sink)
	require.NoError(t, err)
	assert.Equal(t, 8, rep.Written)
	require.Len(t, rep.Failed, 2)
	assert.Equal(t, 3, rep.Failed[0].Row)
	assert.Equal(t, 7, rep.Failed[1].Row)
	assert.ErrorIs(t, rep.Err(), ErrResidualToken)
	assert.NotContains(t, sink.Names, "t_3.json")
	assert.NotContains(t, sink.Names, "t_7.json")
	assert.Equal(t, "t_8.json", sink.Names[6])
}

func TestGenerator_ParallelKeepsOrder(t *testing.T) {
	tmpl := mustTemplate(t, "t.json", `{"x": "%X%", "y": "%Y%"}`)
	opts := DefaultOptions()
	opts.Workers = 4
	opts.OnRowError = SkipRow
	gen := NewGenerator(tmpl, Mapping{"%X%": "x", "%Y%": "y"}, opts)

	sink := &MemorySink{}
	rep, err := gen.Run(context.Background(), tenRows(5), sink)
	require.NoError(t, err)
	assert.Equal(t, 9, rep.Written)
	assert.Equal(t, []string{"t_0.json", "t_1.json", "t_2.json", "t_3.json", "t_4.json", "t_6.json", "t_7.json", "t_8.json", "t_9.json"}, sink.Names)

	var doc map[string]string
	require.NoError(t, json.Unmarshal(sink.Files["t_9.json"], &doc))
	assert.Equal(t, map[string]string{"x": "x9", "y": "9"}, doc)
}

func TestGenerator_ParallelAbort(t *testing.T) {
	tmpl := mustTemplate(t, "t.json", `{"x": "%X%"}`)
	opts := DefaultOptions()
	opts.Workers = 3
	gen := NewGenerator(tmpl, Mapping{"%X%": "x"}, opts)

	sink := &MemorySink{}
	_, err := gen.Run(context.Background(), tenRows(3), sink)
	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 3, rowErr.Row)
	assert.Empty(t, sink.Names)
}

func TestGenerator_DeletionCascade(t *testing.T) {
	tmpl := mustTemplate(t, "t.json", `{"name": "%N%", "value": "%V%"}`)
	gen := NewGenerator(tmpl, Mapping{"%N%": "n", "%V%": "v"}, DefaultOptions())

	_, err := gen.RenderRow(NewRow(4, map[string]interface{}{"n": "x", "v": "none"}))
	var cascade *DeletionCascadeError
	require.True(t, errors.As(err, &cascade))
	assert.Equal(t, 4, cascade.Row)
	assert.Equal(t, "value", cascade.Field)
	assert.ErrorIs(t, err, ErrDeletionCascade)
}

func TestGenerator_UnmatchedTokens(t *testing.T) {
	tmpl := mustTemplate(t, "t.json", `{"a": "%X%", "b": "%Z%"}`)
	rows := []*Row{NewRow(0, map[string]interface{}{"x": "1"}), NewRow(1, map[string]interface{}{"x": "2"})}

	// строгая проверка: %Z% остаётся в документе → ошибка
	gen := NewGenerator(tmpl, Mapping{"%X%": "x"}, DefaultOptions())
	_, err := gen.Run(context.Background(), rows, &MemorySink{})
	var residual *ResidualTokenError
	require.True(t, errors.As(err, &residual))
	assert.Equal(t, []string{"%Z%"}, residual.Tokens)

	// мягкая: токен вырезан, предупреждения записаны
	core, logs := observer.New(zap.WarnLevel)
	opts := DefaultOptions()
	opts.Residual = ResidualLenient
	gen = NewGenerator(tmpl, Mapping{"%X%": "x"}, opts, WithLogger(zap.New(core)))
	sink := &MemorySink{}
	rep, err := gen.Run(context.Background(), rows, sink)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Written)
	assert.Equal(t, []UnmatchedTokenWarning{{Row: 0, Tokens: []string{"%Z%"}}, {Row: 1, Tokens: []string{"%Z%"}}}, rep.Unmatched)
	assert.Equal(t, []string{"%Z%"}, rep.UnmatchedTokens())
	require.Len(t, rep.Stripped, 2)
	assert.JSONEq(t, `{"a": "2", "b": ""}`, string(sink.Files["t_1.json"]))

	assert.Equal(t, 2, logs.FilterMessage("⚠️ Плейсхолдеры без столбца").Len())
	assert.Equal(t, 1, logs.FilterMessage("⚠️ Сводка: плейсхолдеры без столбца").Len())
}

func TestGenerator_Computed(t *testing.T) {
	tmpl := mustTemplate(t, "t.json", `{"total": {"value": "%TOTAL%", "unit": "g"}}`)
	c, err := CompileComputed(map[string]string{"%TOTAL%": `missing("%A%") ? "" : value("%A%")`})
	require.NoError(t, err)
	gen := NewGenerator(tmpl, Mapping{"%A%": "a"}, DefaultOptions(), WithComputed(c))
	assert.Equal(t, "%TOTAL%", gen.Mapping()["%TOTAL%"])

	out, err := gen.RenderRow(NewRow(0, map[string]interface{}{"a": "12"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"total": {"value": "12", "unit": "g"}}`, string(out.Data))

	out, err = gen.RenderRow(NewRow(1, map[string]interface{}{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(out.Data))
}

func TestGenerator_ContextCanceled(t *testing.T) {
	tmpl := mustTemplate(t, "t.json", `{"x": "%X%"}`)
	gen := NewGenerator(tmpl, Mapping{"%X%": "x"}, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &MemorySink{}
	_, err := gen.Run(ctx, tenRows(), sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.Names)
}

func TestParseRowErrorPolicy(t *testing.T) {
	p, err := ParseRowErrorPolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, SkipRow, p)
	p, err = ParseRowErrorPolicy("")
	require.NoError(t, err)
	assert.Equal(t, AbortBatch, p)
	_, err = ParseRowErrorPolicy("retry")
	assert.Error(t, err)
}
