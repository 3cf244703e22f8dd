// Package syncapp runs catalog synchronization: it maps and validates
// source rows, imports them into the catalog in batches, and manages the
// lifecycle of sync runs.
package syncapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/infrastructure/mapping"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultProcessorConcurrency bounds the goroutines mapping one batch
const DefaultProcessorConcurrency = 8

// ProcessResult is the outcome of processing one batch. Records keep the
// order of the input rows.
type ProcessResult struct {
	Records    []*datasync.ValidatedRecord
	Rejections []datasync.Rejection
	// FailedRows counts rows rejected as a whole
	FailedRows int
}

// Processor maps raw rows and applies business rules. It never touches the
// catalog store.
type Processor struct {
	mapper      *mapping.Mapper
	rules       []Rule
	concurrency int
	logger      *zap.Logger
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithConcurrency sets how many rows are mapped in parallel
func WithConcurrency(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithProcessorLogger sets the logger
func WithProcessorLogger(logger *zap.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor creates a processor for the mapper's entity type
func NewProcessor(mapper *mapping.Mapper, rules []Rule, opts ...ProcessorOption) *Processor {
	p := &Processor{
		mapper:      mapper,
		rules:       rules,
		concurrency: DefaultProcessorConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type rowOutcome struct {
	record     *datasync.ValidatedRecord
	rejections []datasync.Rejection
}

// Process maps every row of the batch. Rows are handled concurrently and the
// result preserves input order. The only error is context cancellation.
func (p *Processor) Process(ctx context.Context, batch []datasync.RawRecord) (ProcessResult, error) {
	outcomes := make([]rowOutcome, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range batch {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.processRow(batch[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ProcessResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ProcessResult{}, err
	}

	result := ProcessResult{Records: make([]*datasync.ValidatedRecord, 0, len(batch))}
	for _, o := range outcomes {
		result.Rejections = append(result.Rejections, o.rejections...)
		if o.record == nil {
			result.FailedRows++
			continue
		}
		result.Records = append(result.Records, o.record)
	}

	p.logger.Debug("Processed batch",
		zap.String("entity_type", string(p.mapper.EntityType())),
		zap.Int("rows", len(batch)),
		zap.Int("valid", len(result.Records)),
		zap.Int("failed", result.FailedRows),
	)
	return result, nil
}

func (p *Processor) processRow(raw datasync.RawRecord) rowOutcome {
	rec, rejections := p.mapper.Map(raw)
	if rec == nil {
		return rowOutcome{rejections: rejections}
	}

	for _, rule := range p.rules {
		err := rule.Apply(rec)
		if err == nil {
			continue
		}
		rej, fatal := ruleRejection(raw.RowID, rule.Name, err)
		rejections = append(rejections, rej)
		if fatal {
			return rowOutcome{rejections: rejections}
		}
	}

	schema := p.mapper.Schema()
	key, ok := schema.NaturalKey(rec)
	if !ok {
		rejections = append(rejections, datasync.NewRejection(raw.RowID, "", datasync.RuleNaturalKey,
			fmt.Sprintf("natural key fields %v are incomplete", schema.KeyFields)))
		return rowOutcome{rejections: rejections}
	}
	rec.NaturalKey = key
	return rowOutcome{record: rec, rejections: rejections}
}

func ruleRejection(rowID, rule string, err error) (datasync.Rejection, bool) {
	var re *RuleError
	if errors.As(err, &re) {
		return datasync.Rejection{
			RowID:          rowID,
			Field:          re.Field,
			Rule:           rule,
			Reason:         re.Reason,
			Value:          re.Value,
			RecordRejected: re.Fatal,
		}, re.Fatal
	}
	return datasync.NewRejection(rowID, "", rule, err.Error()), true
}
