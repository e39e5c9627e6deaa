package modelextract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
)

const systemPrompt = `You extract clinical orders from a doctor's dictation transcript. Return ONLY valid JSON with this schema:
{
  "medications": [
    {
      "drugName": string,
      "dosage": {"value": number, "unit": "mg" | "mcg" | "g" | "ml" | "units"},
      "frequency": string,
      "route": string,
      "duration": string,
      "quantity": string,
      "refills": number | null,
      "indication": string,
      "pharmacy": string,
      "status": "new" | "modified" | "cancelled",
      "rawText": string (the exact words the order came from)
    }
  ],
  "labs": [
    {
      "testName": string,
      "orderDate": string,
      "urgency": "routine" | "urgent" | "stat",
      "fasting": boolean,
      "notes": string,
      "location": string,
      "rawText": string
    }
  ]
}
Include a medication only when the transcript names the drug together with a dosage value and unit, unless the order is being stopped.
Use status "cancelled" for stopped or discontinued drugs and "modified" for dose changes.
Include a lab only when it is a recognised laboratory test that is being ordered.
Do not include conversational fragments, insurance or billing talk, bare numbers, past results, or anything the doctor decided not to order.
Use empty strings for unknown text fields. Both arrays must be present, empty when nothing was ordered.`

type payload struct {
	Medications *[]medicationPayload `json:"medications"`
	Labs        *[]labPayload        `json:"labs"`
}

type dosagePayload struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type medicationPayload struct {
	DrugName   string         `json:"drugName"`
	Dosage     *dosagePayload `json:"dosage"`
	Frequency  string         `json:"frequency"`
	Route      string         `json:"route"`
	Duration   string         `json:"duration"`
	Quantity   string         `json:"quantity"`
	Refills    *int           `json:"refills"`
	Indication string         `json:"indication"`
	Pharmacy   string         `json:"pharmacy"`
	Status     string         `json:"status"`
	RawText    string         `json:"rawText"`
}

type labPayload struct {
	TestName  string `json:"testName"`
	OrderDate string `json:"orderDate"`
	Urgency   string `json:"urgency"`
	Fasting   bool   `json:"fasting"`
	Notes     string `json:"notes"`
	Location  string `json:"location"`
	RawText   string `json:"rawText"`
}

func buildUserPrompt(transcript string, previous entities.OrdersSnapshot) string {
	var b strings.Builder
	if active := previous.ActiveMedications(); len(active) > 0 {
		b.WriteString("Medications already on the order list:\n")
		for _, m := range active {
			fmt.Fprintf(&b, "- %s %s\n", m.DrugName, m.Dosage.String())
		}
		b.WriteString("\n")
	}
	b.WriteString("Transcript:\n")
	b.WriteString(transcript)
	b.WriteString("\n")
	return b.String()
}

// cleanResponse drops a Markdown code fence around the JSON document.
func cleanResponse(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	return strings.TrimSpace(cleaned)
}

// parsePayload is all-or-nothing: any syntax error, trailing data or missing array
// rejects the whole response.
func parsePayload(text string) (*payload, error) {
	dec := json.NewDecoder(strings.NewReader(cleanResponse(text)))
	var p payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse model payload: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after model payload")
	}
	if p.Medications == nil || p.Labs == nil {
		return nil, fmt.Errorf("model payload must contain medications and labs arrays")
	}
	return &p, nil
}
