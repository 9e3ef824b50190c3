package rowtemplar

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
	"time"
)

// DefaultArchiveName — имя архива по умолчанию
const DefaultArchiveName = "output_json.zip"

// Sink принимает готовые документы. Вызывается только для успешно
// обработанных строк, по порядку номеров.
type Sink interface {
	Put(name string, data []byte) error
}

// ZipSink складывает документы в zip-архив (deflate, без подкаталогов).
type ZipSink struct {
	zw    *zip.Writer
	names map[string]struct{}
	now   func() time.Time
}

func NewZipSink(w io.Writer) *ZipSink {
	return &ZipSink{zw: zip.NewWriter(w), names: map[string]struct{}{}, now: time.Now}
}

func (z *ZipSink) Put(name string, data []byte) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("недопустимое имя файла в архиве %q", name)
	}
	if _, dup := z.names[name]; dup {
		return fmt.Errorf("файл %s уже есть в архиве", name)
	}
	w, err := z.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: z.now()})
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("запись %s: %w", name, err)
	}
	z.names[name] = struct{}{}
	return nil
}

// Close дописывает оглавление архива
func (z *ZipSink) Close() error { return z.zw.Close() }

// MemorySink хранит документы в памяти (для тестов и предпросмотра).
type MemorySink struct {
	Names []string
	Files map[string][]byte
}

func (m *MemorySink) Put(name string, data []byte) error {
	if m.Files == nil {
		m.Files = map[string][]byte{}
	}
	if _, dup := m.Files[name]; dup {
		return fmt.Errorf("файл %s уже записан", name)
	}
	m.Names = append(m.Names, name)
	m.Files[name] = data
	return nil
}
