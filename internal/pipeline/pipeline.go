// Package pipeline orchestrates the per-document extraction flow: segment
// the PDF, plan batches from the active field configuration, invoke the
// model per batch, and map responses to field results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/fieldconfig"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/invoke"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/mapping"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/plan"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/segment"
)

// DocumentResult is the outcome of processing one document. FailedBatches
// lists batches whose fields came back missing because their invocation
// failed; they do not fail the document.
type DocumentResult struct {
	RecordID      string
	Fields        []mapping.FieldResult
	Meta          segment.Metadata
	Zones         []segment.Zone
	Batches       int
	FailedBatches []string
}

// Segmenter partitions raw PDF bytes into a zoned document.
type Segmenter interface {
	Segment(raw []byte, id string) (*segment.Document, error)
}

// Pipeline runs documents through segmentation, planning, invocation and
// mapping. The field configuration can be swapped between documents;
// documents already in flight keep the plan they started with.
type Pipeline struct {
	segmenter Segmenter
	invoker   *invoke.Invoker
	logger    *slog.Logger

	mu    sync.RWMutex
	model *fieldconfig.Model

	maxWorkers int
}

// Config assembles a pipeline.
type Config struct {
	Segmenter Segmenter
	Invoker   *invoke.Invoker
	Model     *fieldconfig.Model
	Logger    *slog.Logger

	// MaxWorkers caps documents processed concurrently. Defaults to 4.
	MaxWorkers int
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	return &Pipeline{
		segmenter:  cfg.Segmenter,
		invoker:    cfg.Invoker,
		logger:     cfg.Logger,
		model:      cfg.Model,
		maxWorkers: cfg.MaxWorkers,
	}
}

// Reconfigure swaps the field configuration used for documents that start
// after the call.
func (p *Pipeline) Reconfigure(m *fieldconfig.Model) {
	p.mu.Lock()
	p.model = m
	p.mu.Unlock()
	p.logger.Info("field configuration swapped", "fields", len(m.EnabledFields()))
}

func (p *Pipeline) currentModel() *fieldconfig.Model {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// Process runs one document end to end. Batch-level failures of any kind
// degrade to missing fields; only segmentation failures, planning failures
// and cancellation fail the document. The per-document audit view is
// available from the shared trail via audit.Trail.ForRecord.
func (p *Pipeline) Process(ctx context.Context, pdf []byte, recordID string) (*DocumentResult, error) {
	model := p.currentModel()

	doc, err := p.segmenter.Segment(pdf, recordID)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", recordID, err)
	}

	batches, err := plan.Plan(model, doc)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", recordID, err)
	}

	result := &DocumentResult{
		RecordID: recordID,
		Meta:     doc.Meta,
		Zones:    doc.Zones,
		Batches:  len(batches),
	}

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fields, failed, err := p.runBatch(ctx, recordID, b)
		if err != nil {
			return nil, err
		}
		if failed {
			result.FailedBatches = append(result.FailedBatches, b.Name)
		}
		result.Fields = append(result.Fields, fields...)
	}

	p.logger.Info("document processed",
		"record_id", recordID,
		"batches", result.Batches,
		"failed_batches", len(result.FailedBatches),
		"fields", len(result.Fields))

	return result, nil
}

// runBatch invokes one batch and maps its response. Retry exhaustion,
// fatal provider rejections and admission timeouts mark the batch failed
// with all fields missing; sibling batches still run.
func (p *Pipeline) runBatch(ctx context.Context, recordID string, b plan.Batch) ([]mapping.FieldResult, bool, error) {
	res, err := p.invoker.Invoke(ctx, recordID, b)
	if err != nil {
		var fatal *invoke.FatalInvocationError
		switch {
		case errors.As(err, &fatal):
			p.logger.Warn("batch rejected by provider",
				"record_id", recordID, "batch", b.Name, "error", err)
			return mapping.Failed(b.Fields), true, nil
		case errors.Is(err, invoke.ErrRateLimitTimeout):
			p.logger.Warn("batch not admitted within wait budget",
				"record_id", recordID, "batch", b.Name)
			return mapping.Failed(b.Fields), true, nil
		}
		return nil, false, err
	}

	if !res.Success {
		return mapping.Failed(b.Fields), true, nil
	}

	if res.Structured {
		return mapping.MapStructured(res.Content, b.Fields, res.Schema), false, nil
	}
	return mapping.MapDelimited(res.Content, b.Fields), false, nil
}

// Input is one document queued for a run.
type Input struct {
	RecordID string
	PDF      []byte
}

// Outcome pairs a processed document with its result or failure.
type Outcome struct {
	RecordID string
	Result   *DocumentResult
	Err      error
}

// ProcessAll runs documents concurrently up to MaxWorkers. Document
// failures are isolated: one failed document never stops the others.
// Cancellation stops admitting new documents; in-flight ones see the
// cancelled context through their own calls.
func (p *Pipeline) ProcessAll(ctx context.Context, inputs []Input) []Outcome {
	outcomes := make([]Outcome, len(inputs))

	sem := make(chan struct{}, p.maxWorkers)
	var wg sync.WaitGroup

	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			outcomes[i] = Outcome{RecordID: in.RecordID, Err: err}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, in Input) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := p.Process(ctx, in.PDF, in.RecordID)
			if err != nil {
				p.logger.Error("document failed",
					"record_id", in.RecordID, "error", err)
			}
			outcomes[i] = Outcome{RecordID: in.RecordID, Result: res, Err: err}
		}(i, in)
	}

	wg.Wait()
	return outcomes
}
