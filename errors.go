package rowtemplar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrStructuralInput = errors.New("некорректная структура таблицы")
	ErrResidualToken   = errors.New("в документе остались плейсхолдеры")
	ErrDeletionCascade = errors.New("корневой объект удалён целиком")
)

// StructuralInputError — таблица не проходит предварительную проверку
// (мало строк, плохой плейсхолдер, разное число ячеек в шапке).
// Row и Column считаются с 1; 0 означает «не относится».
type StructuralInputError struct {
	Row    int
	Column int
	Reason string
}

func (e *StructuralInputError) Error() string {
	var loc []string
	if e.Column > 0 {
		name, err := excelize.ColumnNumberToName(e.Column)
		if err != nil {
			name = fmt.Sprintf("#%d", e.Column)
		}
		loc = append(loc, "столбец "+name)
	}
	if e.Row > 0 {
		loc = append(loc, fmt.Sprintf("строка %d", e.Row))
	}
	if len(loc) == 0 {
		return fmt.Sprintf("%v: %s", ErrStructuralInput, e.Reason)
	}
	return fmt.Sprintf("%v (%s): %s", ErrStructuralInput, strings.Join(loc, ", "), e.Reason)
}

func (e *StructuralInputError) Unwrap() error { return ErrStructuralInput }

// ResidualTokenError — после подстановки в документе остались токены.
type ResidualTokenError struct {
	Row    int
	Tokens []string
}

func (e *ResidualTokenError) Error() string {
	return fmt.Sprintf("%v: %s", ErrResidualToken, strings.Join(e.Tokens, ", "))
}

func (e *ResidualTokenError) Unwrap() error { return ErrResidualToken }

// DeletionCascadeError — поле-триггер на корневом уровне удалило весь документ.
type DeletionCascadeError struct {
	Row   int
	Field string
}

func (e *DeletionCascadeError) Error() string {
	return fmt.Sprintf("%v: поле %q пустое", ErrDeletionCascade, e.Field)
}

func (e *DeletionCascadeError) Unwrap() error { return ErrDeletionCascade }

// RowError привязывает ошибку обработки к номеру строки данных.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string { return fmt.Sprintf("строка %d: %v", e.Row, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// UnmatchedTokenWarning — токены шаблона без соответствующего столбца.
// Это предупреждение, обработка не прерывается.
type UnmatchedTokenWarning struct {
	Row    int
	Tokens []string
}

func (w UnmatchedTokenWarning) String() string {
	return fmt.Sprintf("строка %d: нет столбца для %s", w.Row, strings.Join(w.Tokens, ", "))
}

// StrippedTokenWarning — токены, вырезанные мягкой проверкой.
type StrippedTokenWarning struct {
	Row    int
	Tokens []string
}

func (w StrippedTokenWarning) String() string {
	return fmt.Sprintf("строка %d: удалены плейсхолдеры %s", w.Row, strings.Join(w.Tokens, ", "))
}
