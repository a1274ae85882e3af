package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/audit"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/config"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/fieldconfig"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/invoke"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/mapping"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/pipeline"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/providers"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/records"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/segment"
)

var (
	recordID string
	forceAll bool
	saveText bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Extract fields from pending records and write them back",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := buildRunner(cfgFile)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if forceAll {
			cleared, err := r.store.ClearExtractedFields(ctx)
			if err != nil {
				return fmt.Errorf("failed to clear extracted fields: %w", err)
			}
			r.logger.Info("cleared extracted fields", "records", cleared)
		}

		var recs []records.Record
		if recordID != "" {
			rec, err := r.store.RecordByID(ctx, recordID)
			if err != nil {
				return fmt.Errorf("record %s: %w", recordID, err)
			}
			recs = []records.Record{rec}
		} else {
			recs, err = r.store.PendingRecords(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch pending records: %w", err)
			}
		}

		if len(recs) == 0 {
			fmt.Println("No records to process.")
			return nil
		}

		failed := r.run(ctx, recs, saveText)
		printUsageSummary(r.trail)

		if failed > 0 {
			return fmt.Errorf("%d of %d records failed", failed, len(recs))
		}
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&recordID, "record-id", "", "process a single record by ID")
	processCmd.Flags().BoolVar(&forceAll, "force-all", false, "clear extracted fields and reprocess every record with a PDF")
	processCmd.Flags().BoolVar(&saveText, "save-text", false, "write segmented plaintext next to the working directory")
}

// runner ties the record store to the extraction pipeline for one run.
type runner struct {
	store      *records.Client
	downloader *records.Downloader
	pipe       *pipeline.Pipeline
	trail      *audit.Trail
	logger     *slog.Logger
}

func buildRunner(cfgFile string) (*runner, error) {
	cm, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg := cm.Get()
	logger := slog.Default()

	fieldsData, err := os.ReadFile(cfg.FieldsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read field configuration: %w", err)
	}
	model, err := fieldconfig.Load(fieldsData)
	if err != nil {
		return nil, err
	}

	client := providers.NewOpenAIClient(providers.OpenAIConfig{
		APIKey:  config.ResolveEnvVars(cfg.Provider.APIKey),
		Model:   cfg.Provider.Model,
		Timeout: cfg.Provider.Timeout,
	})

	trail := audit.NewTrail(logger)
	limiter := invoke.NewLimiter(
		cfg.Limits.MaxConcurrentCalls,
		cfg.Limits.MinCallInterval,
		cfg.Limits.AdmitTimeout,
	)
	invoker := invoke.NewInvoker(client, limiter, trail, logger, invoke.Config{
		Model:          cfg.Provider.Model,
		Temperature:    cfg.Provider.Temperature,
		MaxTokens:      cfg.Provider.MaxTokens,
		MaxAttempts:    cfg.Provider.MaxAttempts,
		RetryBaseDelay: cfg.Provider.RetryDelay,
	})

	pipe := pipeline.New(pipeline.Config{
		Segmenter:  segment.NewSegmenter(logger, segment.DefaultDetectors()...),
		Invoker:    invoker,
		Model:      model,
		Logger:     logger,
		MaxWorkers: cfg.Limits.MaxWorkers,
	})

	// Hot-swap the field configuration when the config file changes and
	// the fields file is readable; in-flight documents keep their plan.
	cm.OnChange(func(next *config.Config) {
		data, err := os.ReadFile(next.FieldsFile)
		if err != nil {
			logger.Error("field configuration reload failed", "error", err)
			return
		}
		m, err := fieldconfig.Load(data)
		if err != nil {
			logger.Error("field configuration reload rejected", "error", err)
			return
		}
		pipe.Reconfigure(m)
	})
	cm.WatchConfig()

	store := records.NewClient(records.ClientConfig{
		APIKey:         config.ResolveEnvVars(cfg.Airtable.APIKey),
		BaseID:         config.ResolveEnvVars(cfg.Airtable.BaseID),
		Table:          cfg.Airtable.Table,
		PendingFormula: cfg.Airtable.PendingFormula,
		Logger:         logger,
	})

	return &runner{
		store:      store,
		downloader: records.NewDownloader(nil, 3),
		pipe:       pipe,
		trail:      trail,
		logger:     logger,
	}, nil
}

// source locates the PDF for a record: an attachment wins, otherwise the
// source URL is resolved (arXiv abstract pages become PDF links).
type source struct {
	fetchURL      string
	canonicalURL  string
	fromSourceURL bool
}

func resolveSource(rec records.Record) (source, error) {
	if url, ok := rec.PDFURL(); ok {
		return source{fetchURL: url}, nil
	}
	fetchURL, canonical := records.ResolveSourceURL(rec.SourceURL())
	if fetchURL == "" {
		return source{}, fmt.Errorf("record %s: no PDF attachment and no source URL", rec.ID)
	}
	return source{fetchURL: fetchURL, canonicalURL: canonical, fromSourceURL: true}, nil
}

// run downloads, processes and writes back every record. It returns the
// number of failed records; one failure never stops the rest.
func (r *runner) run(ctx context.Context, recs []records.Record, saveText bool) int {
	inputs := make([]pipeline.Input, 0, len(recs))
	sources := make(map[string]source, len(recs))
	failed := 0

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			failed += len(recs) - len(inputs)
			break
		}

		src, err := resolveSource(rec)
		if err != nil {
			r.fail(ctx, rec.ID, err)
			failed++
			continue
		}

		if err := r.store.SetProcessingStatus(ctx, rec.ID, records.StatusProcessing, ""); err != nil {
			r.logger.Warn("status update failed", "record_id", rec.ID, "error", err)
		}

		pdf, err := r.downloader.Download(ctx, src.fetchURL)
		if err != nil {
			r.fail(ctx, rec.ID, err)
			failed++
			continue
		}

		sources[rec.ID] = src
		inputs = append(inputs, pipeline.Input{RecordID: rec.ID, PDF: pdf})
	}

	byID := make(map[string]records.Record, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}

	for _, outcome := range r.pipe.ProcessAll(ctx, inputs) {
		if outcome.Err != nil {
			r.fail(ctx, outcome.RecordID, outcome.Err)
			failed++
			continue
		}
		if err := r.writeBack(ctx, byID[outcome.RecordID], sources[outcome.RecordID], outcome.Result, saveText); err != nil {
			r.fail(ctx, outcome.RecordID, err)
			failed++
		}
	}

	return failed
}

func (r *runner) fail(ctx context.Context, recordID string, cause error) {
	r.logger.Error("record failed", "record_id", recordID, "error", cause)
	if err := r.store.SetProcessingStatus(ctx, recordID, records.StatusFailed, cause.Error()); err != nil {
		r.logger.Warn("status update failed", "record_id", recordID, "error", err)
	}
}

func (r *runner) writeBack(ctx context.Context, rec records.Record, src source, res *pipeline.DocumentResult, saveText bool) error {
	if saveText {
		if err := savePlaintext(res); err != nil {
			r.logger.Warn("plaintext save failed", "record_id", res.RecordID, "error", err)
		}
	}

	fields := make(map[string]any)
	for _, f := range res.Fields {
		if f.Status == mapping.StatusOK && f.Value != "" {
			fields[f.Name] = f.Value
		}
	}
	if len(fields) == 0 {
		return fmt.Errorf("no fields extracted successfully")
	}

	// Backfill the canonical source URL, never overwriting a user value.
	if rec.SourceURL() == "" && src.canonicalURL != "" {
		fields[records.FieldSourceURL] = src.canonicalURL
	}

	if err := r.store.Update(ctx, res.RecordID, fields); err != nil {
		return err
	}

	// Backfill the PDF attachment when the file came from a source URL.
	if src.fromSourceURL {
		if _, has := rec.PDFURL(); !has {
			att := map[string]any{records.FieldPDF: []records.Attachment{{URL: src.fetchURL}}}
			if err := r.store.Update(ctx, res.RecordID, att); err != nil {
				r.logger.Warn("PDF backfill failed", "record_id", res.RecordID, "error", err)
			}
		}
	}

	return r.store.SetProcessingStatus(ctx, res.RecordID, records.StatusComplete, "")
}

func savePlaintext(res *pipeline.DocumentResult) error {
	f, err := os.Create(res.RecordID + "_plaintext.txt")
	if err != nil {
		return err
	}
	defer f.Close()

	for _, z := range res.Zones {
		if _, err := fmt.Fprintf(f, "\n\n===== %s =====\n\n%s", z.Name, z.Text); err != nil {
			return err
		}
	}
	return nil
}

func printUsageSummary(trail *audit.Trail) {
	entries := trail.Entries()
	total := audit.Summarize(entries)
	fmt.Printf("\nLLM usage: %d calls (%d failed), %d input tokens, %d output tokens\n",
		total.Count, total.ErrorCount, total.InputTokens, total.OutputTokens)

	for id, s := range audit.RecordSummaries(entries) {
		fmt.Printf("  %s: %d calls, %d in / %d out\n", id, s.Count, s.InputTokens, s.OutputTokens)
	}
}
