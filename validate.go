package rowtemplar

import (
	"fmt"
	"strings"
)

// ResidualPolicy — что делать с плейсхолдерами, оставшимися после подстановки.
type ResidualPolicy int

const (
	// ResidualStrict — ошибка с перечнем токенов
	ResidualStrict ResidualPolicy = iota
	// ResidualLenient — токены вырезаются, пишется предупреждение
	ResidualLenient
)

func (p ResidualPolicy) String() string {
	if p == ResidualLenient {
		return "lenient"
	}
	return "strict"
}

func ParseResidualPolicy(s string) (ResidualPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return ResidualStrict, nil
	case "lenient", "strip":
		return ResidualLenient, nil
	}
	return ResidualStrict, fmt.Errorf("неизвестная политика проверки %q", s)
}

// Validate сериализует документ и ищет в нём оставшиеся токены.
// Строгая политика возвращает *ResidualTokenError; мягкая — очищенную копию
// документа и список вырезанных токенов.
func Validate(doc Node, p ResidualPolicy) (Node, []string, error) {
	data, err := Marshal(doc)
	if err != nil {
		return nil, nil, err
	}
	found := TokenSet{}
	for _, tok := range rxTokenAny.FindAllString(string(data), -1) {
		found.Add(tok)
	}
	if len(found) == 0 {
		return doc, nil, nil
	}
	tokens := found.Sorted()
	if p == ResidualStrict {
		return nil, tokens, &ResidualTokenError{Tokens: tokens}
	}
	return stripTokens(doc), tokens, nil
}

// stripTokens вырезает токены из строк и ключей, не трогая структуру.
func stripTokens(n Node) Node {
	switch nn := n.(type) {
	case *Object:
		out := NewObject()
		for _, k := range nn.Keys {
			out.Set(rxTokenAny.ReplaceAllString(k, ""), stripTokens(nn.Fields[k]))
		}
		return out
	case Array:
		out := make(Array, len(nn))
		for i, it := range nn {
			out[i] = stripTokens(it)
		}
		return out
	case String:
		return String(rxTokenAny.ReplaceAllString(string(nn), ""))
	}
	return n
}
