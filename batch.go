package rowtemplar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RowErrorPolicy — реакция на ошибку в одной строке.
type RowErrorPolicy int

const (
	// AbortBatch — первая ошибка прерывает весь пакет, ничего не выводится
	AbortBatch RowErrorPolicy = iota
	// SkipRow — строка пропускается, ошибки собираются в отчёт
	SkipRow
)

func (p RowErrorPolicy) String() string {
	if p == SkipRow {
		return "skip"
	}
	return "abort"
}

func ParseRowErrorPolicy(s string) (RowErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return AbortBatch, nil
	case "skip", "continue":
		return SkipRow, nil
	}
	return AbortBatch, fmt.Errorf("неизвестная политика ошибок строк %q", s)
}

type Options struct {
	Policy     Policy
	Residual   ResidualPolicy
	OnRowError RowErrorPolicy
	// Workers > 1 включает параллельную обработку строк
	Workers int
	Indent  string
}

func DefaultOptions() Options {
	return Options{
		Policy:     DefaultPolicy(),
		Residual:   ResidualStrict,
		OnRowError: AbortBatch,
		Workers:    1,
		Indent:     "  ",
	}
}

// Output: готовый документ одной строки
type Output struct {
	Row       int
	Name      string
	Data      []byte
	Unmatched []string
	Stripped  []string
}

// Report — итог одного запуска
type Report struct {
	RunID     uuid.UUID
	Rows      int
	Written   int
	Unmatched []UnmatchedTokenWarning
	Stripped  []StrippedTokenWarning
	Failed    []*RowError
	Duration  time.Duration
}

// UnmatchedTokens возвращает сводный список токенов без столбца по всем строкам.
func (r *Report) UnmatchedTokens() []string {
	set := TokenSet{}
	for _, w := range r.Unmatched {
		for _, t := range w.Tokens {
			set.Add(t)
		}
	}
	return set.Sorted()
}

// Err объединяет ошибки пропущенных строк (политика SkipRow).
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, e := range r.Failed {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Generator строит документы по шаблону и отображению. Шаблон и отображение
// только читаются, поэтому один Generator можно использовать из нескольких
// запусков одновременно.
type Generator struct {
	tmpl     *Template
	mapping  Mapping
	opts     Options
	computed *Computed
	log      *zap.Logger
}

type GeneratorOption func(*Generator)

func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

func WithComputed(c *Computed) GeneratorOption {
	return func(g *Generator) { g.computed = c }
}

func NewGenerator(tmpl *Template, mapping Mapping, opts Options, options ...GeneratorOption) *Generator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	g := &Generator{tmpl: tmpl, mapping: mapping, opts: opts, log: zap.NewNop()}
	for _, o := range options {
		o(g)
	}
	if g.computed.Len() > 0 {
		g.mapping = mapping.Merge(g.computed.Mapping())
	}
	return g
}

func (g *Generator) Mapping() Mapping { return g.mapping }

// OutputName: <шаблон>_<номер>.json
func (g *Generator) OutputName(row int) string {
	return fmt.Sprintf("%s_%d.json", g.tmpl.BaseName(), row)
}

// RenderRow выполняет полный цикл для одной строки:
// копия шаблона → подстановка → проверка → сериализация.
func (g *Generator) RenderRow(row *Row) (*Output, error) {
	row, err := g.computed.Apply(row, g.mapping)
	if err != nil {
		return nil, err
	}
	tree, err := Clone(g.tmpl.root)
	if err != nil {
		return nil, err
	}
	unmatched := TokenSet{}
	s := &substituter{row: row, mapping: g.mapping, policy: g.opts.Policy, unmatched: unmatched}
	doc, deleted := s.walk(tree)
	if deleted {
		return nil, &DeletionCascadeError{Row: row.Index(), Field: s.trigger}
	}
	doc, stripped, err := Validate(doc, g.opts.Residual)
	if err != nil {
		var residual *ResidualTokenError
		if errors.As(err, &residual) {
			residual.Row = row.Index()
		}
		return nil, err
	}
	data, err := MarshalIndent(doc, g.opts.Indent)
	if err != nil {
		return nil, fmt.Errorf("сериализация: %w", err)
	}
	return &Output{
		Row:       row.Index(),
		Name:      g.OutputName(row.Index()),
		Data:      data,
		Unmatched: unmatched.Sorted(),
		Stripped:  stripped,
	}, nil
}

// Run обрабатывает все строки и передаёт документы в sink.
//
// Все документы сначала строятся в памяти; в sink они попадают, только если
// пакет не прерван. При AbortBatch возвращается ошибка самой ранней упавшей
// строки, и sink не вызывается ни разу. При SkipRow упавшие строки попадают
// в Report.Failed, а остальные выводятся.
func (g *Generator) Run(ctx context.Context, rows []*Row, sink Sink) (*Report, error) {
	start := time.Now()
	rep := &Report{RunID: uuid.New(), Rows: len(rows)}
	log := g.log.With(zap.String("run", rep.RunID.String()), zap.String("template", g.tmpl.Name()))
	log.Info("📊 Начинаем обработку строк",
		zap.Int("rows", len(rows)),
		zap.Int("workers", g.opts.Workers),
		zap.Stringer("residual", g.opts.Residual),
		zap.Stringer("on_row_error", g.opts.OnRowError))

	outputs := make([]*Output, len(rows))
	failures := make([]error, len(rows))
	if err := g.renderAll(ctx, rows, outputs, failures); err != nil {
		return rep, err
	}

	for i, err := range failures {
		if err == nil {
			continue
		}
		rerr := &RowError{Row: rows[i].Index(), Err: err}
		if g.opts.OnRowError == AbortBatch {
			log.Error("❌ Пакет прерван", zap.Int("row", rerr.Row), zap.Error(err))
			rep.Failed = append(rep.Failed, rerr)
			rep.Duration = time.Since(start)
			return rep, rerr
		}
		log.Warn("⚠️ Строка пропущена", zap.Int("row", rerr.Row), zap.Error(err))
		rep.Failed = append(rep.Failed, rerr)
	}

	for _, out := range outputs {
		if out == nil {
			continue
		}
		if len(out.Unmatched) > 0 {
			w := UnmatchedTokenWarning{Row: out.Row, Tokens: out.Unmatched}
			rep.Unmatched = append(rep.Unmatched, w)
			log.Warn("⚠️ Плейсхолдеры без столбца", zap.Int("row", out.Row), zap.Strings("tokens", out.Unmatched))
		}
		if len(out.Stripped) > 0 {
			rep.Stripped = append(rep.Stripped, StrippedTokenWarning{Row: out.Row, Tokens: out.Stripped})
			log.Warn("⚠️ Плейсхолдеры вырезаны", zap.Int("row", out.Row), zap.Strings("tokens", out.Stripped))
		}
		if err := sink.Put(out.Name, out.Data); err != nil {
			rep.Duration = time.Since(start)
			return rep, fmt.Errorf("вывод %s: %w", out.Name, err)
		}
		rep.Written++
	}
	rep.Duration = time.Since(start)
	if tokens := rep.UnmatchedTokens(); len(tokens) > 0 {
		log.Warn("⚠️ Сводка: плейсхолдеры без столбца", zap.Strings("tokens", tokens))
	}
	log.Info("✅ Обработка завершена",
		zap.Int("written", rep.Written),
		zap.Int("failed", len(rep.Failed)),
		zap.Duration("duration", rep.Duration))
	return rep, nil
}

// renderAll заполняет outputs/failures по индексам строк. Ошибку возвращает
// только отмена контекста.
func (g *Generator) renderAll(ctx context.Context, rows []*Row, outputs []*Output, failures []error) error {
	abort := g.opts.OnRowError == AbortBatch
	if g.opts.Workers <= 1 {
		for i, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := g.RenderRow(row)
			if err != nil {
				failures[i] = err
				if abort {
					return nil
				}
				continue
			}
			outputs[i] = out
		}
		return nil
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Workers)
	for i, row := range rows {
		eg.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			out, err := g.RenderRow(row)
			if err != nil {
				failures[i] = err
				if abort {
					return err
				}
				return nil
			}
			outputs[i] = out
			return nil
		})
	}
	_ = eg.Wait()
	return ctx.Err()
}
