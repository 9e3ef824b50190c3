package rowtemplar

// Value — нормализованное значение ячейки: либо текст, либо Missing.
// Пустая строка, строка из пробелов и "none" (без учёта регистра) — это Missing.
// Числовой ноль Missing не является.
type Value struct {
	text    string
	missing bool
	numeric bool
}

// TextValue нормализует текстовую ячейку.
func TextValue(s string) Value {
	if isMissingText(s) {
		return Value{missing: true}
	}
	return Value{text: s}
}

// MissingValue создаёт отсутствующее значение.
func MissingValue() Value { return Value{missing: true} }

// String возвращает текст значения; для Missing — пустую строку.
func (v Value) String() string {
	if v.missing {
		return ""
	}
	return v.text
}

func (v Value) Missing() bool { return v.missing }

// Numeric сообщает, что значение пришло из числовой ячейки.
func (v Value) Numeric() bool { return v.numeric }

// IsZero сообщает, читается ли значение как числовой ноль.
func (v Value) IsZero() bool {
	return !v.missing && isZeroText(v.text)
}

// Row — одна строка данных. После создания не изменяется.
type Row struct {
	index int
	cells map[string]Value
}

// NewRow нормализует сырые ячейки (строки, числа, nil) по ключам строки.
func NewRow(index int, raw map[string]interface{}) *Row {
	cells := make(map[string]Value, len(raw))
	for k, v := range raw {
		cells[k] = cellValue(v)
	}
	return &Row{index: index, cells: cells}
}

// Index возвращает номер строки данных (с нуля).
func (r *Row) Index() int { return r.index }

// Lookup возвращает значение по ключу; отсутствующий ключ — это Missing.
func (r *Row) Lookup(key string) Value {
	v, ok := r.cells[key]
	if !ok {
		return Value{missing: true}
	}
	return v
}

// With возвращает копию строки с добавленным/заменённым значением.
func (r *Row) With(key string, v Value) *Row {
	cells := make(map[string]Value, len(r.cells)+1)
	for k, cv := range r.cells {
		cells[k] = cv
	}
	cells[key] = v
	return &Row{index: r.index, cells: cells}
}

func (r *Row) Len() int { return len(r.cells) }
