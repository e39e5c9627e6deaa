package extraction

import "github.com/zatekoja/clinicalorders/internal/domain/entities"

type GuardrailConfig struct {
	MinConfidence float64
	MaxEntities   int
}

// Guardrails bound what a single extraction call may emit.
type Guardrails struct {
	config GuardrailConfig
}

func NewGuardrails(config GuardrailConfig) *Guardrails {
	if config.MinConfidence <= 0 {
		config.MinConfidence = 0.5
	}
	if config.MaxEntities <= 0 {
		config.MaxEntities = 50
	}
	return &Guardrails{config: config}
}

func (g *Guardrails) ShouldKeep(confidence float64) bool {
	return confidence >= g.config.MinConfidence
}

// Limit trims the batch to MaxEntities, medications first, and reports what was cut.
func (g *Guardrails) Limit(batch entities.CandidateBatch) (entities.CandidateBatch, []entities.Drop) {
	var dropped []entities.Drop
	budget := g.config.MaxEntities

	if len(batch.Medications) > budget {
		for _, m := range batch.Medications[budget:] {
			dropped = append(dropped, entities.Drop{Reason: entities.DropEntityLimit, Kind: "medication", Name: m.DrugName, RawText: m.RawText})
		}
		batch.Medications = batch.Medications[:budget]
	}
	budget -= len(batch.Medications)

	if len(batch.Labs) > budget {
		for _, l := range batch.Labs[budget:] {
			dropped = append(dropped, entities.Drop{Reason: entities.DropEntityLimit, Kind: "lab", Name: l.TestName, RawText: l.RawText})
		}
		batch.Labs = batch.Labs[:budget]
	}
	return batch, dropped
}
