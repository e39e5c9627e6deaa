// Package modelextract is the language-model extraction path. It sends the transcript
// to a JSONModel, validates the answer strictly and reconciles it the same way the
// pattern engine does. Unlike the pattern engine it reports failures to the caller.
package modelextract

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/domain/providers"
	"github.com/zatekoja/clinicalorders/internal/extraction"
	"github.com/zatekoja/clinicalorders/internal/extraction/normalize"
	"github.com/zatekoja/clinicalorders/internal/extraction/reconcile"
	"github.com/zatekoja/clinicalorders/internal/extraction/strategies"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/observability"
	"github.com/zatekoja/clinicalorders/internal/vocabulary"
	apperrors "github.com/zatekoja/clinicalorders/pkg/errors"
)

// Confidence is assigned to every order the model path emits.
const Confidence = 0.95

// Extractor runs the model extraction path.
type Extractor struct {
	model      providers.JSONModel
	normalizer *normalize.Normalizer
	timeout    time.Duration
	clock      func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTimeout bounds each model call. Zero leaves only the caller's deadline.
func WithTimeout(d time.Duration) Option {
	return func(x *Extractor) { x.timeout = d }
}

// WithClock overrides the snapshot timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(x *Extractor) { x.clock = clock }
}

// New builds an Extractor. model may be nil, in which case every call fails with
// ErrModelUnavailable.
func New(model providers.JSONModel, vocab *vocabulary.Vocabulary, opts ...Option) *Extractor {
	x := &Extractor{
		model:      model,
		normalizer: normalize.NewNormalizer(vocab),
		clock:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Available reports whether a model is configured.
func (x *Extractor) Available() bool {
	return x != nil && x.model != nil
}

// Extract runs the model path and reconciles its orders into previous.
func (x *Extractor) Extract(ctx context.Context, transcript string, previous entities.OrdersSnapshot) (entities.OrdersSnapshot, error) {
	res, err := x.Run(ctx, transcript, previous, x.clock())
	if err != nil {
		return entities.OrdersSnapshot{}, err
	}
	return res.Snapshot, nil
}

// Run is Extract with an explicit timestamp and the diagnostics kept.
func (x *Extractor) Run(ctx context.Context, transcript string, previous entities.OrdersSnapshot, at time.Time) (extraction.Result, error) {
	start := time.Now()
	res, err := x.run(ctx, transcript, previous, at)
	extraction.RecordRun(ctx, extraction.EngineModel, time.Since(start), res.Snapshot, res.Dropped, err)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("model extraction failed")
	}
	return res, err
}

func (x *Extractor) run(ctx context.Context, transcript string, previous entities.OrdersSnapshot, at time.Time) (extraction.Result, error) {
	if !x.Available() {
		return extraction.Result{}, apperrors.NewModelUnavailableError("no language model configured", nil)
	}

	callCtx := ctx
	if x.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}

	text, err := x.model.CompleteJSON(callCtx, systemPrompt, buildUserPrompt(transcript, previous))
	if err != nil {
		if errors.Is(err, apperrors.ErrModelUnavailable) || errors.Is(err, apperrors.ErrMalformedModelResponse) {
			return extraction.Result{}, err
		}
		return extraction.Result{}, apperrors.NewModelUnavailableError(x.model.Name()+" request failed", err)
	}

	p, err := parsePayload(text)
	if err != nil {
		return extraction.Result{}, apperrors.NewMalformedModelResponseError(x.model.Name()+" returned an unusable response", err)
	}

	batch, dropped := x.candidates(transcript, p)
	reconciled := reconcile.Reconcile(batch, previous, at)
	return extraction.Result{
		Snapshot: reconciled.Snapshot,
		Batch:    batch,
		Dropped:  append(dropped, reconciled.Dropped...),
	}, nil
}

func (x *Extractor) candidates(transcript string, p *payload) (entities.CandidateBatch, []entities.Drop) {
	batch := entities.CandidateBatch{
		Medications: []entities.MedicationCandidate{},
		Labs:        []entities.LabCandidate{},
	}
	var dropped []entities.Drop
	lower := strings.ToLower(transcript)

	for i, m := range *p.Medications {
		c, ok := x.medication(lower, m)
		if !ok {
			dropped = append(dropped, entities.Drop{Reason: entities.DropModelValidation, Kind: "medication", Name: m.DrugName, RawText: m.RawText})
			continue
		}
		c.Position = position(lower, m.RawText, i)
		batch.Medications = append(batch.Medications, c)
	}

	for i, l := range *p.Labs {
		name, ok := x.labName(l.TestName)
		if !ok {
			dropped = append(dropped, entities.Drop{Reason: entities.DropModelValidation, Kind: "lab", Name: l.TestName, RawText: l.RawText})
			continue
		}
		batch.Labs = append(batch.Labs, entities.LabCandidate{
			Strategy:   extraction.EngineModel,
			TestName:   name,
			OrderDate:  strings.TrimSpace(l.OrderDate),
			Urgency:    entities.ParseUrgency(l.Urgency),
			Fasting:    l.Fasting,
			Notes:      strings.TrimSpace(l.Notes),
			Location:   strings.TrimSpace(l.Location),
			RawText:    strings.TrimSpace(l.RawText),
			Confidence: Confidence,
			Position:   position(lower, l.RawText, i),
		})
	}
	return batch, dropped
}

// medication rejects drugs that are neither known nor spoken in the transcript, and
// orders without a dose unless they cancel one.
func (x *Extractor) medication(transcript string, m medicationPayload) (entities.MedicationCandidate, bool) {
	raw := strings.TrimSpace(m.DrugName)
	if raw == "" {
		return entities.MedicationCandidate{}, false
	}
	name, ok := x.normalizer.CanonicalizeDrugName(raw)
	if !ok {
		if !strings.Contains(transcript, strings.ToLower(raw)) {
			return entities.MedicationCandidate{}, false
		}
		name = raw
	}

	status := entities.ParseOrderStatus(m.Status)
	var dose entities.Dosage
	if m.Dosage != nil && m.Dosage.Value > 0 && strings.TrimSpace(m.Dosage.Unit) != "" {
		dose = entities.Dosage{Value: m.Dosage.Value, Unit: strategies.NormalizeUnit(m.Dosage.Unit)}
	}
	if dose.IsZero() && status != entities.OrderStatusCancelled {
		return entities.MedicationCandidate{}, false
	}

	command := entities.CommandCreate
	switch status {
	case entities.OrderStatusCancelled:
		command = entities.CommandCancel
	case entities.OrderStatusModified:
		command = entities.CommandModify
	}

	return entities.MedicationCandidate{
		Command:    command,
		Strategy:   extraction.EngineModel,
		DrugName:   name,
		Dosage:     dose,
		Frequency:  strings.TrimSpace(m.Frequency),
		Route:      strings.TrimSpace(m.Route),
		Duration:   strings.TrimSpace(m.Duration),
		Quantity:   strings.TrimSpace(m.Quantity),
		Refills:    m.Refills,
		Indication: strings.ToLower(strings.TrimSpace(m.Indication)),
		Pharmacy:   strings.TrimSpace(m.Pharmacy),
		RawText:    strings.TrimSpace(m.RawText),
		Confidence: Confidence,
	}, true
}

// labName accepts only tests the vocabulary knows; free-text names are a pattern engine
// fallback and are not trusted from the model.
func (x *Extractor) labName(raw string) (string, bool) {
	cleaned, ok := x.normalizer.CanonicalizeTestName(raw)
	if !ok {
		return "", false
	}
	return x.normalizer.Vocabulary().LookupLab(cleaned)
}

// position locates rawText in the transcript so superseding cancellations order
// correctly; unknown spans keep the model's order.
func position(transcript, raw string, fallback int) int {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw != "" {
		if i := strings.Index(transcript, raw); i >= 0 {
			return i
		}
	}
	return fallback
}
