package rowtemplar

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Template — разобранный JSON-шаблон. После загрузки не изменяется и
// разделяется между строками; для каждой строки берётся своя копия дерева.
type Template struct {
	name   string
	root   Node
	tokens map[string]struct{}
}

// LoadTemplate читает шаблон из файла
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTemplate(filepath.Base(path), data)
}

// ParseTemplate разбирает шаблон. Шаблон в блоке ```json ... ``` тоже допускается.
func ParseTemplate(name string, data []byte) (*Template, error) {
	src := sanitizeJSONBlock(string(data))
	root, err := Decode([]byte(src))
	if err != nil {
		return nil, fmt.Errorf("шаблон %s: %w", name, err)
	}
	t := &Template{name: name, root: root, tokens: map[string]struct{}{}}
	collectTokens(root, t.tokens)
	return t, nil
}

func collectTokens(n Node, into map[string]struct{}) {
	switch nn := n.(type) {
	case *Object:
		for _, k := range nn.Keys {
			for _, tok := range FindTokens(k) {
				into[tok] = struct{}{}
			}
			collectTokens(nn.Fields[k], into)
		}
	case Array:
		for _, it := range nn {
			collectTokens(it, into)
		}
	case String:
		for _, tok := range FindTokens(string(nn)) {
			into[tok] = struct{}{}
		}
	}
}

func (t *Template) Name() string { return t.name }

// BaseName — имя файла без расширения; из него строятся имена выходных документов.
func (t *Template) BaseName() string {
	base := strings.TrimSuffix(t.name, filepath.Ext(t.name))
	if base == "" {
		return "output"
	}
	return base
}

// Root возвращает исходное дерево. Изменять его нельзя.
func (t *Template) Root() Node { return t.root }

// Tokens возвращает плейсхолдеры шаблона по алфавиту
func (t *Template) Tokens() []string {
	out := make([]string, 0, len(t.tokens))
	for tok := range t.tokens {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

func (t *Template) Has(token string) bool {
	_, ok := t.tokens[token]
	return ok
}

// Unmapped — токены шаблона, для которых в отображении нет ключа.
func (t *Template) Unmapped(m Mapping) []string {
	var out []string
	for _, tok := range t.Tokens() {
		if _, ok := m[tok]; !ok {
			out = append(out, tok)
		}
	}
	return out
}
