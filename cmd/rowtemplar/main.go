package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nikitaxru/rowtemplar"
	"github.com/nikitaxru/rowtemplar/internal/config"
	"github.com/nikitaxru/rowtemplar/internal/server"
)

var (
	rootCmd = &cobra.Command{
		Use:           "rowtemplar",
		Short:         "Excel rows → JSON documents by template",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath string

	// флаги convert/inspect
	outPath      string
	residualFlag string
	rowErrFlag   string
	keyFlag      string
	layoutFlag   string
	sheetFlag    string
	abbrFlag     bool
	workersFlag  int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "rowtemplar.yaml", "Path to the YAML config (optional)")

	for _, cmd := range []*cobra.Command{convertCmd, inspectCmd} {
		cmd.Flags().StringVar(&keyFlag, "key", "", "Row key source: token | formal | abbreviation")
		cmd.Flags().StringVar(&layoutFlag, "layout", "", "Sheet layout: header | simple")
		cmd.Flags().StringVar(&sheetFlag, "sheet", "", "Sheet name (default: first sheet)")
		cmd.Flags().BoolVar(&abbrFlag, "abbreviations", false, "Header has an abbreviation row (row 4)")
	}
	convertCmd.Flags().StringVarP(&outPath, "output", "o", "", "Archive path (default: output_json.zip)")
	convertCmd.Flags().StringVar(&residualFlag, "residual", "", "Residual placeholder policy: strict | lenient")
	convertCmd.Flags().StringVar(&rowErrFlag, "on-row-error", "", "Row failure policy: abort | skip")
	convertCmd.Flags().IntVar(&workersFlag, "workers", 0, "Parallel row workers")

	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig читает конфигурацию и накладывает флаги командной строки.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("key") {
		cfg.Layout.Key = keyFlag
	}
	if flags.Changed("layout") {
		cfg.Layout.Mode = layoutFlag
	}
	if flags.Changed("sheet") {
		cfg.Layout.Sheet = sheetFlag
	}
	if flags.Changed("abbreviations") {
		cfg.Layout.Abbreviations = abbrFlag
	}
	if flags.Lookup("residual") != nil && flags.Changed("residual") {
		cfg.Validation.Residual = residualFlag
	}
	if flags.Lookup("on-row-error") != nil && flags.Changed("on-row-error") {
		cfg.Validation.OnRowError = rowErrFlag
	}
	if flags.Lookup("workers") != nil && flags.Changed("workers") {
		cfg.Workers = workersFlag
	}
	return cfg, nil
}

var convertCmd = &cobra.Command{
	Use:   "convert TEMPLATE.json DATA.xlsx",
	Short: "Render one JSON document per data row and pack them into a zip archive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := cfg.Logger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		opts, err := cfg.Options()
		if err != nil {
			return err
		}
		layout, err := cfg.Layout()
		if err != nil {
			return err
		}
		computed, err := rowtemplar.CompileComputed(cfg.Computed)
		if err != nil {
			return err
		}
		dest := outPath
		if dest == "" {
			dest = cfg.Output.Archive
		}

		rep, err := rowtemplar.ConvertFiles(args[0], args[1], dest, layout, opts,
			rowtemplar.WithLogger(logger), rowtemplar.WithComputed(computed))
		if err != nil {
			var rowErr *rowtemplar.RowError
			if errors.As(err, &rowErr) {
				return fmt.Errorf("batch aborted at row %d: %w", rowErr.Row, rowErr.Err)
			}
			return err
		}

		fmt.Printf("✅ %d/%d documents → %s (run %s)\n", rep.Written, rep.Rows, dest, rep.RunID)
		for _, w := range rep.Unmatched {
			fmt.Printf("⚠️  %s\n", w)
		}
		for _, w := range rep.Stripped {
			fmt.Printf("⚠️  %s\n", w)
		}
		if tokens := rep.UnmatchedTokens(); len(tokens) > 0 {
			fmt.Printf("⚠️  unmatched placeholders: %s\n", strings.Join(tokens, ", "))
		}
		return rep.Err()
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect TEMPLATE.json DATA.xlsx",
	Short: "Show the column → placeholder mapping and template placeholders without a column",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		layout, err := cfg.Layout()
		if err != nil {
			return err
		}
		tmpl, err := rowtemplar.LoadTemplate(args[0])
		if err != nil {
			return err
		}
		ds, err := rowtemplar.LoadWorkbook(args[1], layout, tmpl)
		if err != nil {
			return err
		}

		fmt.Printf("📄 %s: sheet %q, %d data rows\n\n", filepath.Base(args[1]), ds.Sheet, len(ds.Rows))
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COLUMN\tNAME\tPLACEHOLDER\tROW KEY\tIN TEMPLATE")
		for _, c := range ds.Columns {
			col := fmt.Sprint(c.Index + 1)
			used := "-"
			if c.Token != "" && tmpl.Has(c.Token) {
				used = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", col, c.FormalName, c.Token, c.Key, used)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if missing := tmpl.Unmapped(ds.Mapping); len(missing) > 0 {
			fmt.Printf("\n⚠️  placeholders without a column: %s\n", strings.Join(missing, ", "))
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP upload → zip service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		logger, err := cfg.Logger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err = server.New(cfg, logger).ListenAndServe(ctx)
		if err != nil {
			logger.Error("❌ Сервер остановлен с ошибкой", zap.Error(err))
		}
		return err
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config, :8080)")
}
