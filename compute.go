package rowtemplar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	expro "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Вычисляемые плейсхолдеры: значение токена задаётся выражением expr-lang
// над значениями строки, например
//
//	%TOTAL%: num("%A%") + num("%B%")
//	%LABEL%: missing("%NAME%") ? "n/a" : value("%NAME%")
//
// Функции окружения:
//   - value(tok)   — текст значения ("" для Missing)
//   - num(tok)     — значение как число (0, если не число)
//   - missing(tok) — значение отсутствует
//
// Выражения применяются в алфавитном порядке токенов, так что вычисляемый
// токен может ссылаться на другой, если тот идёт раньше.

type computedExpr struct {
	token   string
	source  string
	program *vm.Program
}

// Computed — набор скомпилированных выражений
type Computed struct {
	exprs []computedExpr
}

// CompileComputed компилирует выражения один раз на пакет строк.
func CompileComputed(defs map[string]string) (*Computed, error) {
	c := &Computed{}
	if len(defs) == 0 {
		return c, nil
	}
	tokens := make([]string, 0, len(defs))
	for tok := range defs {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	env := computeEnv(NewRow(0, nil), Mapping{})
	for _, raw := range tokens {
		tok, ok := CanonicalToken(raw)
		if !ok {
			return nil, fmt.Errorf("вычисляемый плейсхолдер %q не соответствует формату %%NAME%%", raw)
		}
		src := strings.TrimSpace(defs[raw])
		program, err := expro.Compile(src, expro.Env(env))
		if err != nil {
			return nil, fmt.Errorf("выражение для %s: %w", tok, err)
		}
		c.exprs = append(c.exprs, computedExpr{token: tok, source: src, program: program})
	}
	return c, nil
}

// Len — количество выражений
func (c *Computed) Len() int {
	if c == nil {
		return 0
	}
	return len(c.exprs)
}

// Mapping — вычисляемые токены ссылаются сами на себя как на ключ строки.
func (c *Computed) Mapping() Mapping {
	m := Mapping{}
	if c == nil {
		return m
	}
	for _, e := range c.exprs {
		m[e.token] = e.token
	}
	return m
}

// Apply вычисляет выражения для строки и возвращает её дополненную копию.
func (c *Computed) Apply(row *Row, m Mapping) (*Row, error) {
	if c.Len() == 0 {
		return row, nil
	}
	m = m.Merge(c.Mapping())
	for _, e := range c.exprs {
		out, err := expro.Run(e.program, computeEnv(row, m))
		if err != nil {
			return nil, fmt.Errorf("вычисление %s = %s: %w", e.token, e.source, err)
		}
		row = row.With(e.token, cellValue(out))
	}
	return row, nil
}

func computeEnv(row *Row, m Mapping) map[string]interface{} {
	lookup := func(tok string) Value {
		key, ok := m[tok]
		if !ok {
			return MissingValue()
		}
		return row.Lookup(key)
	}
	return map[string]interface{}{
		"value": func(tok string) string {
			return lookup(tok).String()
		},
		"num": func(tok string) float64 {
			f, err := strconv.ParseFloat(strings.TrimSpace(foldWidth(lookup(tok).String())), 64)
			if err != nil {
				return 0
			}
			return f
		},
		"missing": func(tok string) bool {
			return lookup(tok).Missing()
		},
	}
}
