package rowtemplar

import (
	"slices"
	"sort"
)

// Policy задаёт правила удаления объектов.
//
// Если поле из TriggerFields после подстановки оказалось Missing (пусто,
// пробелы, "none"), то из родительского контейнера удаляется весь объект,
// которому это поле принадлежит. С ZeroAsMissing числовой ноль в таких полях
// тоже считается Missing; во всех остальных полях ноль остаётся данными.
type Policy struct {
	TriggerFields []string
	ZeroAsMissing bool
}

// DefaultPolicy — триггеры "value" и "amount", ноль не удаляет.
func DefaultPolicy() Policy {
	return Policy{TriggerFields: []string{"value", "amount"}}
}

func (p Policy) isTrigger(key string) bool {
	return slices.Contains(p.TriggerFields, key)
}

// triggers — значение поля-триггера означает «не измерено».
func (p Policy) triggers(v Node) bool {
	switch vv := v.(type) {
	case String:
		if isMissingText(string(vv)) {
			return true
		}
		return p.ZeroAsMissing && isZeroText(string(vv))
	case Number:
		return p.ZeroAsMissing && isZeroText(string(vv))
	case Null:
		return true
	}
	return false
}

// TokenSet — множество токенов
type TokenSet map[string]struct{}

func (s TokenSet) Add(tok string) { s[tok] = struct{}{} }

func (s TokenSet) Sorted() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Substitute рекурсивно подставляет значения строки в дерево.
// Возвращает (nil, true), если узел удалён целиком. Токены, которых нет в
// отображении, остаются в тексте как есть и добавляются в unmatched.
func Substitute(n Node, row *Row, m Mapping, p Policy, unmatched TokenSet) (Node, bool) {
	s := &substituter{row: row, mapping: m, policy: p, unmatched: unmatched}
	return s.walk(n)
}

type substituter struct {
	row       *Row
	mapping   Mapping
	policy    Policy
	unmatched TokenSet
	// последнее поле-триггер, удалившее объект
	trigger string
}

func (s *substituter) walk(n Node) (Node, bool) {
	switch nn := n.(type) {
	case *Object:
		return s.object(nn)
	case Array:
		out := make(Array, 0, len(nn))
		for _, it := range nn {
			v, deleted := s.walk(it)
			if deleted {
				continue
			}
			out = append(out, v)
		}
		return out, false
	case String:
		return s.scalar(string(nn)), false
	case Null:
		// null в документ не попадает
		return String(""), false
	case Number, Bool:
		return nn, false
	}
	return n, false
}

// object сначала разрешает все поля, затем решает судьбу самого объекта.
func (s *substituter) object(o *Object) (Node, bool) {
	out := NewObject()
	for _, k := range o.Keys {
		v, deleted := s.walk(o.Fields[k])
		if deleted {
			continue
		}
		if s.policy.isTrigger(k) && s.policy.triggers(v) {
			s.trigger = k
			return nil, true
		}
		out.Set(k, v)
	}
	return out, false
}

func (s *substituter) scalar(text string) Node {
	if !IsToken(text) {
		return String(text)
	}
	key, ok := s.mapping[text]
	if !ok {
		if s.unmatched != nil {
			s.unmatched.Add(text)
		}
		return String(text)
	}
	return String(s.row.Lookup(key).String())
}
