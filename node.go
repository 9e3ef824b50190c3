package rowtemplar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tiendc/go-deepcopy"
)

// Дерево шаблона/документа. Вместо map[string]interface{} используется
// закрытый набор типов узлов, чтобы обход был исчерпывающим type switch:
//   *Object — объект с сохранённым порядком ключей
//   Array   — массив
//   String, Number, Bool, Null — скаляры

type Node interface {
	isNode()
}

type Object struct {
	Keys   []string
	Fields map[string]Node
}

type Array []Node

type String string

// Number хранит исходную запись числа из JSON (без потери точности).
type Number string

type Bool bool

type Null struct{}

func (*Object) isNode() {}
func (Array) isNode()   {}
func (String) isNode()  {}
func (Number) isNode()  {}
func (Bool) isNode()    {}
func (Null) isNode()    {}

// NewObject создаёт пустой объект
func NewObject() *Object {
	return &Object{Fields: map[string]Node{}}
}

// Set добавляет поле в конец либо заменяет значение существующего
func (o *Object) Set(key string, v Node) {
	if _, ok := o.Fields[key]; !ok {
		o.Keys = append(o.Keys, key)
	}
	o.Fields[key] = v
}

func (o *Object) Get(key string) (Node, bool) {
	v, ok := o.Fields[key]
	return v, ok
}

func (o *Object) Len() int { return len(o.Keys) }

// Clone возвращает глубокую копию дерева.
func Clone(n Node) (Node, error) {
	var out Node
	if err := deepcopy.Copy(&out, n); err != nil {
		return nil, fmt.Errorf("копирование шаблона: %w", err)
	}
	return out, nil
}

// -----------------------------
// Декодирование
// -----------------------------

// Decode читает ровно одно JSON-значение, сохраняя порядок ключей объектов.
func Decode(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	n, err := decodeNode(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("лишние данные после корневого значения")
	}
	return n, nil
}

func decodeNode(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			obj := NewObject()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("ожидался ключ объекта, получено %v", kt)
				}
				if _, dup := obj.Fields[key]; dup {
					return nil, fmt.Errorf("повторяющийся ключ %q", key)
				}
				val, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := Array{}
			for dec.More() {
				val, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("неожиданный разделитель %v", v)
	case string:
		return String(v), nil
	case json.Number:
		return Number(v), nil
	case bool:
		return Bool(v), nil
	case nil:
		return Null{}, nil
	}
	return nil, fmt.Errorf("неизвестный токен %v", tok)
}

// -----------------------------
// Кодирование
// -----------------------------

// Marshal сериализует дерево компактно. HTML-символы и не-ASCII не экранируются.
func Marshal(n Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeNode(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalIndent — то же, но с отступами; документ завершается переводом строки.
func MarshalIndent(n Node, indent string) ([]byte, error) {
	raw, err := Marshal(n)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", indent); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n Node) error {
	switch nn := n.(type) {
	case *Object:
		buf.WriteByte('{')
		for i, k := range nn.Keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeNode(buf, nn.Fields[k]); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case Array:
		buf.WriteByte('[')
		for i, it := range nn {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNode(buf, it); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case String:
		return writeString(buf, string(nn))
	case Number:
		if !json.Valid([]byte(nn)) {
			return fmt.Errorf("некорректное число %q", string(nn))
		}
		buf.WriteString(string(nn))
	case Bool:
		if nn {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Null:
		buf.WriteString("null")
	case nil:
		return errors.New("пустой узел")
	default:
		return fmt.Errorf("неизвестный тип узла %T", n)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode добавляет перевод строки
	buf.Truncate(buf.Len() - 1)
	return nil
}

func (o *Object) MarshalJSON() ([]byte, error) { return Marshal(o) }
func (a Array) MarshalJSON() ([]byte, error)   { return Marshal(a) }
func (n Number) MarshalJSON() ([]byte, error)  { return Marshal(n) }
func (Null) MarshalJSON() ([]byte, error)      { return []byte("null"), nil }
