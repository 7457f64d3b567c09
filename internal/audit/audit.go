// Package audit measures how often predicted labels agree with
// human-supplied evaluations.
package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/epotapov/SentimentAnalysis/internal/bus"
	"github.com/epotapov/SentimentAnalysis/internal/config"
	"github.com/epotapov/SentimentAnalysis/internal/history"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/logger"
	"github.com/epotapov/SentimentAnalysis/internal/table"
)

const eventSource = "audit"

// DefaultSentinel marks a ground-truth cell as not applicable.
const DefaultSentinel = "N/A"

// Pair names a predicted column and the ground-truth column it is checked
// against.
type Pair struct {
	Question  string
	Predicted string
	Truth     string
}

// PairsFrom builds pairs from configured questions. The question name is the
// result column without its " Result" suffix.
func PairsFrom(cfg []config.QuestionConfig) []Pair {
	out := make([]Pair, 0, len(cfg))
	for _, q := range cfg {
		if q.TruthColumn == "" {
			continue
		}
		out = append(out, Pair{
			Question:  strings.TrimSuffix(q.ResultColumn, " Result"),
			Predicted: q.ResultColumn,
			Truth:     q.TruthColumn,
		})
	}
	return out
}

// QuestionAccuracy counts agreement for one question. Rows whose truth is
// not applicable are in neither count.
type QuestionAccuracy struct {
	Question string
	Correct  int
	Eligible int
}

// Ratio returns Correct/Eligible. ok is false when no row was eligible.
func (q QuestionAccuracy) Ratio() (ratio float64, ok bool) {
	if q.Eligible == 0 {
		return 0, false
	}
	return float64(q.Correct) / float64(q.Eligible), true
}

// Report is the outcome of one audit.
type Report struct {
	AuditID   string
	Input     string
	Rows      int
	Questions []QuestionAccuracy
}

// Summary formats the report as "Question 1: c/e Question 2: c/e".
func (r *Report) Summary() string {
	parts := make([]string, len(r.Questions))
	for i, q := range r.Questions {
		parts[i] = fmt.Sprintf("%s: %d/%d", q.Question, q.Correct, q.Eligible)
	}
	return strings.Join(parts, " ")
}

// Ledger stores audit results.
type Ledger interface {
	RecordAudit(ctx context.Context, entries []history.AuditEntry) error
}

// Auditor compares predicted and ground-truth columns.
type Auditor struct {
	sentinel string
	bus      bus.Bus
	ledger   Ledger
	out      io.Writer
	log      *logger.Logger
}

// NewAuditor creates an auditor treating cells equal to sentinel as not
// applicable. An empty sentinel means DefaultSentinel. eventBus is optional.
func NewAuditor(sentinel string, log *logger.Logger, eventBus bus.Bus) *Auditor {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Auditor{
		sentinel: sentinel,
		bus:      eventBus,
		out:      os.Stdout,
		log:      log.WithComponent("audit"),
	}
}

// SetLedger records every audit in l.
func (a *Auditor) SetLedger(l Ledger) {
	a.ledger = l
}

// SetOutput redirects the progress and summary lines. The default is stdout.
func (a *Auditor) SetOutput(w io.Writer) {
	a.out = w
}

// Audit counts, per pair, the applicable rows and those whose predicted cell
// equals the truth exactly. All columns are checked before any row is read.
func (a *Auditor) Audit(ctx context.Context, tbl *table.Table, pairs []Pair) (*Report, error) {
	for _, p := range pairs {
		if err := tbl.Require(p.Predicted, p.Truth); err != nil {
			return nil, err
		}
	}

	report := &Report{
		AuditID:   uuid.NewString(),
		Rows:      tbl.Len(),
		Questions: make([]QuestionAccuracy, len(pairs)),
	}
	for i, p := range pairs {
		report.Questions[i].Question = p.Question
	}

	n := tbl.Len()
	for row := range n {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("audit canceled at row %d: %w", row+1, err)
		}
		fmt.Fprintf(a.out, "Reading %d out of %d\n", row+1, n)
		for i, p := range pairs {
			truth := ParseTruth(tbl.Cell(row, p.Truth), a.sentinel)
			if !truth.Applicable() {
				continue
			}
			report.Questions[i].Eligible++
			if truth.Matches(tbl.Cell(row, p.Predicted)) {
				report.Questions[i].Correct++
			}
		}
	}

	fmt.Fprintln(a.out, report.Summary())
	a.log.Info("Audit completed", "audit_id", report.AuditID, "rows", n, "summary", report.Summary())
	return report, nil
}

// AuditFile audits the table at input, then records the report in the
// ledger and publishes it. Ledger and bus failures are logged only.
func (a *Auditor) AuditFile(ctx context.Context, input string, pairs []Pair) (*Report, error) {
	tbl, err := table.ReadFile(input)
	if err != nil {
		return nil, err
	}
	report, err := a.Audit(ctx, tbl, pairs)
	if err != nil {
		return nil, err
	}
	report.Input = input

	if a.ledger != nil {
		now := time.Now()
		entries := make([]history.AuditEntry, len(report.Questions))
		for i, q := range report.Questions {
			entries[i] = history.AuditEntry{
				AuditID:   report.AuditID,
				Input:     input,
				Question:  q.Question,
				Correct:   q.Correct,
				Eligible:  q.Eligible,
				CreatedAt: now,
			}
		}
		if err := a.ledger.RecordAudit(ctx, entries); err != nil {
			a.log.Warn("Failed to record audit", "audit_id", report.AuditID, "error", err)
		}
	}

	a.publish(ctx, report)
	return report, nil
}

func (a *Auditor) publish(ctx context.Context, report *Report) {
	if a.bus == nil {
		return
	}
	results := make([]bus.QuestionResult, len(report.Questions))
	for i, q := range report.Questions {
		results[i] = bus.QuestionResult{Question: q.Question, Correct: q.Correct, Eligible: q.Eligible}
	}
	payload := bus.AuditCompleted{Input: report.Input, Rows: report.Rows, Questions: results}
	event := bus.NewEvent(bus.TopicAuditCompleted, eventSource, report.AuditID, payload)
	if err := a.bus.Publish(ctx, bus.TopicAuditCompleted, event); err != nil {
		a.log.Warn("Failed to publish event", "topic", bus.TopicAuditCompleted, "error", err)
	}
}
