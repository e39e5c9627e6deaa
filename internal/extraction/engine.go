// Package extraction turns a running dictation transcript into structured medication
// and lab orders. The pattern Engine is deterministic and never fails: the worst case
// is an unchanged or partial snapshot.
package extraction

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/extraction/attributes"
	"github.com/zatekoja/clinicalorders/internal/extraction/normalize"
	"github.com/zatekoja/clinicalorders/internal/extraction/reconcile"
	"github.com/zatekoja/clinicalorders/internal/extraction/segment"
	"github.com/zatekoja/clinicalorders/internal/extraction/strategies"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/observability"
	"github.com/zatekoja/clinicalorders/internal/vocabulary"
)

var bulkRefill = regexp.MustCompile(`(?i)\b(?:refill|renew)\s+(?:both|all|everything|all\s+(?:of\s+)?(?:his|her|their|the\s+)?\s*(?:medications|meds|prescriptions))\b`)

// Options configures an Engine. A nil Vocabulary means the embedded default.
type Options struct {
	Vocabulary *vocabulary.Vocabulary
	Guardrails GuardrailConfig
	Clock      func() time.Time
}

// Engine is the pattern extraction engine. It holds only read-only tables and is safe
// for concurrent use; calls against the same previous snapshot must still be serialized
// by the caller.
type Engine struct {
	normalizer *normalize.Normalizer
	strategies *strategies.Set
	places     *attributes.Extractor
	guardrails *Guardrails
	clock      func() time.Time
}

// Result is the outcome of one extraction call.
type Result struct {
	Snapshot entities.OrdersSnapshot
	Batch    entities.CandidateBatch
	Dropped  []entities.Drop
}

func NewEngine(opts Options) (*Engine, error) {
	vocab := opts.Vocabulary
	if vocab == nil {
		v, err := vocabulary.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load default vocabulary: %w", err)
		}
		vocab = v
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	n := normalize.NewNormalizer(vocab)
	return &Engine{
		normalizer: n,
		strategies: strategies.NewSet(n),
		places:     attributes.NewExtractor(vocab),
		guardrails: NewGuardrails(opts.Guardrails),
		clock:      clock,
	}, nil
}

// Extract runs the pattern engine over transcript and reconciles the result into
// previous, stamped with the engine clock.
func (e *Engine) Extract(transcript string, previous entities.OrdersSnapshot) entities.OrdersSnapshot {
	return e.Run(context.Background(), transcript, previous, e.clock()).Snapshot
}

// Run is Extract with an explicit timestamp and the diagnostics kept. A panic in any
// strategy is recovered and yields previous unchanged.
func (e *Engine) Run(ctx context.Context, transcript string, previous entities.OrdersSnapshot, at time.Time) (res Result) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("pattern extraction panicked, keeping previous snapshot")
			res = Result{Snapshot: previous.Clone()}
			RecordRun(ctx, EnginePattern, time.Since(start), res.Snapshot, nil, fmt.Errorf("panic: %v", r))
		}
	}()

	batch, dropped := e.Candidates(transcript)
	reconciled := reconcile.Reconcile(batch, previous, at)
	dropped = append(dropped, reconciled.Dropped...)

	logDrops(logger, dropped)
	RecordRun(ctx, EnginePattern, time.Since(start), reconciled.Snapshot, dropped, nil)

	return Result{Snapshot: reconciled.Snapshot, Batch: batch, Dropped: dropped}
}

// Candidates extracts the unreconciled candidate batch from transcript.
func (e *Engine) Candidates(transcript string) (entities.CandidateBatch, []entities.Drop) {
	text := normalize.NormalizeTranscript(transcript)
	batch := entities.CandidateBatch{
		Medications: []entities.MedicationCandidate{},
		Labs:        []entities.LabCandidate{},
	}
	var dropped []entities.Drop

	for _, seg := range segment.Attemptable(text) {
		if bulkRefill.MatchString(seg.Text) {
			batch.BulkRefill = true
			batch.BulkRefillRaw = seg.Text
		}

		for _, c := range e.medications(text, seg) {
			if !e.guardrails.ShouldKeep(c.Confidence) {
				dropped = append(dropped, entities.Drop{Reason: entities.DropLowConfidence, Kind: "medication", Name: c.DrugName, RawText: c.RawText})
				continue
			}
			batch.Medications = append(batch.Medications, c)
		}
		for _, c := range e.labs(seg) {
			if !e.guardrails.ShouldKeep(c.Confidence) {
				dropped = append(dropped, entities.Drop{Reason: entities.DropLowConfidence, Kind: "lab", Name: c.TestName, RawText: c.RawText})
				continue
			}
			batch.Labs = append(batch.Labs, c)
		}
	}

	batch, limited := e.guardrails.Limit(batch)
	return batch, append(dropped, limited...)
}

func (e *Engine) medications(text string, seg segment.Segment) []entities.MedicationCandidate {
	matches := e.strategies.Medications(seg)
	out := make([]entities.MedicationCandidate, 0, len(matches))

	for i, m := range matches {
		next := -1
		if i+1 < len(matches) {
			next = matches[i+1].Start
		}
		end := attributes.MedicationWindowEnd(m.End, next, len(seg.Text))
		window := seg.Text[m.Start:end]
		after := seg.Text[m.End:end]

		c := entities.MedicationCandidate{
			Command:    m.Command,
			Strategy:   m.Strategy,
			DrugName:   m.DrugName,
			Dosage:     m.Dosage,
			RawText:    seg.Text,
			Confidence: m.Confidence,
			Position:   seg.Start + m.Start,
		}
		if m.Command != entities.CommandCancel {
			if c.Dosage.IsZero() {
				c.Dosage, _ = strategies.ParseDosage(after)
			}
			c.Frequency = attributes.Frequency(after)
			c.Route = attributes.Route(after)
			c.Duration = attributes.Duration(after)
			c.Quantity = attributes.Quantity(after)
			c.Refills = attributes.Refills(window)
			c.Indication = e.places.Indication(after)
			c.Pharmacy = e.places.Pharmacy(window, seg.Text, text)
		}
		if m.Command == entities.CommandRefill && c.Dosage.IsZero() {
			if value, unit, ok := attributes.ContextDosage(text, c.Position, m.DrugName, seg.Text[m.Start:m.End]); ok {
				c.ContextDosage, _ = strategies.ParseDosage(value + unit)
			}
		}
		out = append(out, c)
	}
	return out
}

func (e *Engine) labs(seg segment.Segment) []entities.LabCandidate {
	found := e.strategies.Labs(seg)
	if len(found) == 0 {
		return nil
	}

	var mentions []attributes.Mention
	for i, l := range found {
		for _, s := range l.Spans {
			mentions = append(mentions, attributes.Mention{Owner: i, Start: s.Start, End: s.End})
		}
	}
	cues := attributes.AssignCues(attributes.Cues(seg.Text), mentions)
	phrase := attributes.DatePhrase(seg.Text)
	location := e.places.LabLocation(seg.Text)

	out := make([]entities.LabCandidate, 0, len(found))
	for i, l := range found {
		first := l.First()
		urgency := attributes.UrgencyFrom(cues[i])
		end := first.Start + attributes.LabWindow
		if end > len(seg.Text) {
			end = len(seg.Text)
		}
		out = append(out, entities.LabCandidate{
			Strategy:   l.Strategy,
			TestName:   l.TestName,
			OrderDate:  attributes.OrderDate(phrase, urgency),
			Urgency:    urgency,
			Fasting:    attributes.FastingFrom(cues[i]),
			Notes:      attributes.Notes(seg.Text[first.Start:end]),
			Location:   location,
			RawText:    seg.Text,
			Confidence: l.Confidence,
			Position:   seg.Start + first.Start,
		})
	}
	return out
}

func logDrops(logger *zerolog.Logger, dropped []entities.Drop) {
	if len(dropped) == 0 || zerolog.GlobalLevel() > zerolog.DebugLevel {
		return
	}
	for _, d := range dropped {
		logger.Debug().
			Str("reason", string(d.Reason)).
			Str("kind", d.Kind).
			Str("name", d.Name).
			Str("raw_text", strings.TrimSpace(d.RawText)).
			Msg("candidate dropped")
	}
}
