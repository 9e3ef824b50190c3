package rowtemplar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// LayoutMode — раскладка листа с данными.
type LayoutMode int

const (
	// LayoutHeader — фиксированная шапка: 1 категория, 2 название,
	// 3 плейсхолдер, 4 сокращение (необязательно), далее данные.
	LayoutHeader LayoutMode = iota
	// LayoutSimple — строка 1 с именами столбцов, далее данные.
	LayoutSimple
)

func (m LayoutMode) String() string {
	if m == LayoutSimple {
		return "simple"
	}
	return "header"
}

func ParseLayoutMode(s string) (LayoutMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "header":
		return LayoutHeader, nil
	case "simple":
		return LayoutSimple, nil
	}
	return LayoutHeader, fmt.Errorf("неизвестная раскладка %q", s)
}

// Layout описывает, как читать лист.
type Layout struct {
	Mode LayoutMode
	// пусто: первый лист
	Sheet string
	// в шапке есть строка сокращений (LayoutHeader)
	Abbreviations bool
	Key           KeySource
	// явное соответствие столбец → токен (LayoutSimple)
	Columns map[string]string
}

// Dataset — прочитанный лист: описание столбцов, отображение и строки данных.
type Dataset struct {
	Sheet   string
	Columns []Column
	Mapping Mapping
	Rows    []*Row
}

// LoadWorkbook открывает книгу по пути. Шаблон нужен только LayoutSimple
// для подсказки соответствий, в остальных случаях может быть nil.
func LoadWorkbook(path string, layout Layout, tmpl *Template) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readDataset(f, layout, tmpl)
}

// ReadWorkbook читает книгу из потока (загрузка по HTTP).
func ReadWorkbook(r io.Reader, layout Layout, tmpl *Template) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readDataset(f, layout, tmpl)
}

func readDataset(f *excelize.File, layout Layout, tmpl *Template) (*Dataset, error) {
	sheet := layout.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("лист %q не найден", sheet)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("лист %s: %w", sheet, err)
	}

	var (
		cols       []Column
		headerRows int
	)
	switch layout.Mode {
	case LayoutSimple:
		headerRows = 1
		if len(rows) < headerRows+1 {
			return nil, &StructuralInputError{Reason: fmt.Sprintf("нужна строка заголовков и хотя бы одна строка данных, строк: %d", len(rows))}
		}
		cols, err = SuggestMapping(rows[0], tmpl, layout.Columns)
	default:
		headerRows = 3
		if layout.Abbreviations {
			headerRows = 4
		}
		if len(rows) < headerRows+1 {
			return nil, &StructuralInputError{Reason: fmt.Sprintf("нужно минимум %d строк (шапка %d + данные), строк: %d", headerRows+1, headerRows, len(rows))}
		}
		h := Header{Categories: rows[0], FormalNames: rows[1], Placeholders: rows[2]}
		if layout.Abbreviations {
			h.Abbreviations = rows[3]
			if h.Abbreviations == nil {
				h.Abbreviations = []string{}
			}
		}
		cols, err = BuildColumns(h, layout.Key)
	}
	if err != nil {
		return nil, err
	}

	width := 0
	for _, c := range cols {
		if c.Index+1 > width {
			width = c.Index + 1
		}
	}
	ds := &Dataset{Sheet: sheet, Columns: cols, Mapping: mappingOf(cols)}
	for r, cells := range rows[headerRows:] {
		sheetRow := headerRows + r + 1
		if blankRow(cells) {
			continue
		}
		for i := width; i < len(cells); i++ {
			if strings.TrimSpace(cells[i]) != "" {
				return nil, &StructuralInputError{Row: sheetRow, Column: i + 1, Reason: "значение за пределами шапки"}
			}
		}
		raw := make(map[string]interface{}, len(cols))
		for _, c := range cols {
			if c.Index < len(cells) {
				raw[c.Key] = cells[c.Index]
			}
		}
		ds.Rows = append(ds.Rows, NewRow(len(ds.Rows), raw))
	}
	if len(ds.Rows) == 0 {
		return nil, &StructuralInputError{Reason: "нет ни одной строки данных"}
	}
	return ds, nil
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ConvertFiles — полный цикл: шаблон + книга → zip-архив по пути destPath.
// Файл архива создаётся только при успешном завершении пакета.
func ConvertFiles(templatePath, workbookPath, destPath string, layout Layout, opts Options, options ...GeneratorOption) (*Report, error) {
	probe := &Generator{log: zap.NewNop()}
	for _, o := range options {
		o(probe)
	}
	log := probe.log.Sugar()

	log.Infof("📊 Начинаем преобразование Excel → JSON...")
	log.Infof("📁 Шаблон: %s", templatePath)
	log.Infof("📁 Данные: %s", workbookPath)
	log.Infof("📄 Выходной файл: %s", destPath)

	startTime := time.Now()

	tmpl, err := LoadTemplate(templatePath)
	if err != nil {
		log.Errorf("❌ Ошибка загрузки шаблона: %v", err)
		return nil, err
	}
	log.Infof("✅ Шаблон загружен, плейсхолдеров: %d", len(tmpl.Tokens()))

	ds, err := LoadWorkbook(workbookPath, layout, tmpl)
	if err != nil {
		log.Errorf("❌ Ошибка чтения таблицы: %v", err)
		return nil, err
	}
	log.Infof("✅ Лист %s: столбцов %d, строк данных %d", ds.Sheet, len(ds.Columns), len(ds.Rows))

	var buf bytes.Buffer
	zs := NewZipSink(&buf)
	gen := NewGenerator(tmpl, ds.Mapping, opts, options...)
	rep, err := gen.Run(context.Background(), ds.Rows, zs)
	if err != nil {
		log.Errorf("❌ Ошибка обработки: %v", err)
		return rep, err
	}
	if err := zs.Close(); err != nil {
		return rep, err
	}
	if err := os.WriteFile(destPath, buf.Bytes(), 0o644); err != nil {
		log.Errorf("❌ Ошибка сохранения: %v", err)
		return rep, err
	}

	log.Infof("✅ Архив создан за %v, документов: %d", time.Since(startTime), rep.Written)
	return rep, nil
}
