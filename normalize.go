package rowtemplar

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// foldWidth приводит полноширинные символы (％ＡＢＣ％, ０, ＮＯＮＥ) к обычным.
func foldWidth(s string) string {
	return norm.NFKC.String(s)
}

// isMissingText — пустая строка, одни пробелы или "none" в любом регистре.
func isMissingText(s string) bool {
	t := strings.TrimSpace(foldWidth(s))
	return t == "" || strings.EqualFold(t, "none")
}

// isZeroText — текст, который читается как число, равное нулю ("0", "0.0", "-0").
func isZeroText(s string) bool {
	t := strings.TrimSpace(foldWidth(s))
	if t == "" {
		return false
	}
	f, err := strconv.ParseFloat(t, 64)
	return err == nil && f == 0
}

// cellValue нормализует сырое значение ячейки в Value.
func cellValue(v interface{}) Value {
	switch vv := v.(type) {
	case nil:
		return Value{missing: true}
	case Value:
		return vv
	case string:
		return TextValue(vv)
	case float64:
		if math.IsNaN(vv) {
			return Value{missing: true}
		}
		return Value{text: formatFloat(vv), numeric: true}
	case float32:
		return cellValue(float64(vv))
	case int:
		return Value{text: strconv.Itoa(vv), numeric: true}
	case int64:
		return Value{text: strconv.FormatInt(vv, 10), numeric: true}
	case json.Number:
		return Value{text: vv.String(), numeric: true}
	case bool:
		return Value{text: strconv.FormatBool(vv)}
	default:
		return TextValue(fmt.Sprintf("%v", vv))
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// sanitizeJSONBlock извлекает JSON, обёрнутый в тройные кавычки ``` ... ```.
// Если таких кавычек нет, либо структура неверная, возвращает исходную строку.
var fenceRx = regexp.MustCompile("(?s)```[a-zA-Z]*\\n(.*?)```")

func sanitizeJSONBlock(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	m := fenceRx.FindStringSubmatch(s)
	if len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return s
}
