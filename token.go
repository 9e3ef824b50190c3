package rowtemplar

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	rxToken    = regexp.MustCompile(`^%[A-Za-z0-9_]+%$`)
	rxTokenAny = regexp.MustCompile(`%[A-Za-z0-9_]+%`)
)

// IsToken — строка целиком является плейсхолдером %NAME%.
func IsToken(s string) bool { return rxToken.MatchString(s) }

// FindTokens возвращает все вхождения плейсхолдеров в строке (с повторами).
func FindTokens(s string) []string { return rxTokenAny.FindAllString(s, -1) }

// CanonicalToken приводит ячейку строки плейсхолдеров к виду %NAME%:
// обрезает пробелы и сворачивает полноширинные символы.
// Ячейка, которая и после этого не является токеном, — ошибка.
func CanonicalToken(cell string) (string, bool) {
	t := strings.TrimSpace(foldWidth(cell))
	return t, IsToken(t)
}

// KeySource — чем идентифицируется значение в строке данных.
type KeySource int

const (
	KeyToken KeySource = iota
	KeyFormalName
	KeyAbbreviation
)

func (k KeySource) String() string {
	switch k {
	case KeyFormalName:
		return "formal"
	case KeyAbbreviation:
		return "abbreviation"
	default:
		return "token"
	}
}

func ParseKeySource(s string) (KeySource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "token", "placeholder":
		return KeyToken, nil
	case "formal", "name", "formal_name":
		return KeyFormalName, nil
	case "abbreviation", "abbr":
		return KeyAbbreviation, nil
	}
	return KeyToken, fmt.Errorf("неизвестный источник ключа %q", s)
}

// Header — строки шапки таблицы фиксированной структуры.
// Abbreviations == nil, если строки сокращений нет.
type Header struct {
	Categories    []string
	FormalNames   []string
	Placeholders  []string
	Abbreviations []string
}

// Строки шапки (с 1) для сообщений об ошибках
const (
	rowCategory     = 1
	rowFormalName   = 2
	rowPlaceholder  = 3
	rowAbbreviation = 4
)

// Column описывает один столбец данных.
type Column struct {
	Index        int // с нуля
	Category     string
	FormalName   string
	Token        string
	Abbreviation string
	Key          string
}

// Mapping — токен → ключ значения в строке данных.
type Mapping map[string]string

// Tokens — токены отображения по алфавиту
func (m Mapping) Tokens() []string {
	out := make([]string, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Merge возвращает новое отображение, дополненное extra.
func (m Mapping) Merge(extra Mapping) Mapping {
	out := make(Mapping, len(m)+len(extra))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// BuildColumns проверяет шапку и описывает столбцы.
func BuildColumns(h Header, src KeySource) ([]Column, error) {
	if len(h.FormalNames) != len(h.Placeholders) {
		return nil, &StructuralInputError{
			Row:    rowPlaceholder,
			Reason: fmt.Sprintf("в строке названий %d ячеек, в строке плейсхолдеров %d", len(h.FormalNames), len(h.Placeholders)),
		}
	}
	if src == KeyAbbreviation && h.Abbreviations == nil {
		return nil, &StructuralInputError{Reason: "ключ по сокращениям, но строки сокращений нет"}
	}
	cols := make([]Column, 0, len(h.Placeholders))
	seenTok := map[string]int{}
	seenKey := map[string]int{}
	for i, cell := range h.Placeholders {
		tok, ok := CanonicalToken(cell)
		if !ok {
			return nil, &StructuralInputError{
				Row:    rowPlaceholder,
				Column: i + 1,
				Reason: fmt.Sprintf("ячейка %q не соответствует формату %%NAME%%", cell),
			}
		}
		if prev, dup := seenTok[tok]; dup {
			return nil, &StructuralInputError{
				Row:    rowPlaceholder,
				Column: i + 1,
				Reason: fmt.Sprintf("плейсхолдер %s уже задан в столбце %d", tok, prev+1),
			}
		}
		seenTok[tok] = i
		col := Column{
			Index:        i,
			Category:     cellAt(h.Categories, i),
			FormalName:   cellAt(h.FormalNames, i),
			Token:        tok,
			Abbreviation: cellAt(h.Abbreviations, i),
		}
		keyRow := rowPlaceholder
		switch src {
		case KeyFormalName:
			col.Key, keyRow = col.FormalName, rowFormalName
		case KeyAbbreviation:
			col.Key, keyRow = col.Abbreviation, rowAbbreviation
		default:
			col.Key = tok
		}
		if col.Key == "" {
			return nil, &StructuralInputError{Row: keyRow, Column: i + 1, Reason: "пустой ключ столбца"}
		}
		if prev, dup := seenKey[col.Key]; dup {
			return nil, &StructuralInputError{
				Row:    keyRow,
				Column: i + 1,
				Reason: fmt.Sprintf("ключ %q уже задан в столбце %d", col.Key, prev+1),
			}
		}
		seenKey[col.Key] = i
		cols = append(cols, col)
	}
	return cols, nil
}

// BuildMapping строит отображение токен → ключ строки по шапке.
func BuildMapping(h Header, src KeySource) (Mapping, error) {
	cols, err := BuildColumns(h, src)
	if err != nil {
		return nil, err
	}
	return mappingOf(cols), nil
}

func mappingOf(cols []Column) Mapping {
	m := make(Mapping, len(cols))
	for _, c := range cols {
		if c.Token != "" {
			m[c.Token] = c.Key
		}
	}
	return m
}

// SuggestMapping строит отображение для простой таблицы (одна строка заголовков).
// Явное соответствие столбец → токен берётся из explicit; для остальных столбцов
// предлагается %<имя столбца>%, если такой токен есть в шаблоне.
// Ключ значения — имя столбца.
func SuggestMapping(columns []string, tmpl *Template, explicit map[string]string) ([]Column, error) {
	cols := make([]Column, 0, len(columns))
	seenTok := map[string]string{}
	seenName := map[string]struct{}{}
	for i, raw := range columns {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, dup := seenName[name]; dup {
			return nil, &StructuralInputError{Row: 1, Column: i + 1, Reason: fmt.Sprintf("повторяющееся имя столбца %q", name)}
		}
		seenName[name] = struct{}{}
		col := Column{Index: i, FormalName: name, Key: name}
		if want, ok := explicit[name]; ok && strings.TrimSpace(want) != "" {
			tok, ok := CanonicalToken(want)
			if !ok {
				return nil, &StructuralInputError{Row: 1, Column: i + 1, Reason: fmt.Sprintf("для столбца %q задан некорректный плейсхолдер %q", name, want)}
			}
			col.Token = tok
		} else if tmpl != nil {
			if cand := "%" + name + "%"; IsToken(cand) && tmpl.Has(cand) {
				col.Token = cand
			}
		}
		if col.Token != "" {
			if prev, dup := seenTok[col.Token]; dup {
				return nil, &StructuralInputError{Row: 1, Column: i + 1, Reason: fmt.Sprintf("плейсхолдер %s уже назначен столбцу %q", col.Token, prev)}
			}
			seenTok[col.Token] = name
		}
		cols = append(cols, col)
	}
	return cols, nil
}
