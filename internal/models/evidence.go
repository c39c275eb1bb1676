package models

import "encoding/json"

// Evidence is one audited input to a work unit's scores. Each kind carries
// only its own fields; the kind tag is emitted on serialization so the
// analytics layer can discriminate without sniffing field names.
type Evidence interface {
	EvidenceKind() string
}

// StructuralEvidence records one work-item-type contribution to the
// structural scores.
type StructuralEvidence struct {
	WorkItemType string             `json:"work_item_type"`
	Count        int                `json:"count"`
	Weights      map[string]float64 `json:"weights"`
	Contribution map[string]float64 `json:"contribution"`
}

func (StructuralEvidence) EvidenceKind() string { return "work_item_type" }

// TextualEvidence records one keyword hit and the modifier it contributed.
type TextualEvidence struct {
	Category  string  `json:"category"`
	Keyword   string  `json:"keyword"`
	Source    string  `json:"source"`
	Weight    float64 `json:"weight"`
	Magnitude float64 `json:"magnitude"`
}

func (TextualEvidence) EvidenceKind() string { return "keyword" }

// ClampEvidence is emitted whenever clamping changed a category's textual
// modifier, for auditability.
type ClampEvidence struct {
	Category string  `json:"category"`
	Raw      float64 `json:"raw"`
	Clamped  float64 `json:"clamped"`
}

func (ClampEvidence) EvidenceKind() string { return "clamped" }

// TemporalEvidence records the unit's time range and the temporal score it
// produced.
type TemporalEvidence struct {
	Start      string  `json:"start"`
	End        string  `json:"end"`
	SpanDays   float64 `json:"span_days"`
	WindowDays float64 `json:"window_days"`
	Score      float64 `json:"score"`
	Fallback   bool    `json:"fallback,omitempty"`
}

func (TemporalEvidence) EvidenceKind() string { return "time_range" }

// DensityEvidence records the unit's graph density inputs.
type DensityEvidence struct {
	Nodes int     `json:"nodes"`
	Edges int     `json:"edges"`
	Value float64 `json:"value"`
}

func (DensityEvidence) EvidenceKind() string { return "graph_density" }

// ProvenanceEvidence records the mean edge confidence over the unit.
type ProvenanceEvidence struct {
	Edges int     `json:"edges"`
	Value float64 `json:"value"`
}

func (ProvenanceEvidence) EvidenceKind() string { return "provenance" }

// EvidenceBundle groups the evidence behind one work unit score by channel.
type EvidenceBundle struct {
	Structural []Evidence `json:"structural"`
	Temporal   []Evidence `json:"temporal"`
	Textual    []Evidence `json:"textual"`
}

func tagAll(items []Evidence) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		entry := map[string]any{}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, err
		}
		entry["type"] = item.EvidenceKind()
		out = append(out, entry)
	}
	return out, nil
}

// MarshalJSON flattens each evidence item with its kind tag.
func (b EvidenceBundle) MarshalJSON() ([]byte, error) {
	structural, err := tagAll(b.Structural)
	if err != nil {
		return nil, err
	}
	temporal, err := tagAll(b.Temporal)
	if err != nil {
		return nil, err
	}
	textual, err := tagAll(b.Textual)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Structural []map[string]any `json:"structural"`
		Temporal   []map[string]any `json:"temporal"`
		Textual    []map[string]any `json:"textual"`
	}{structural, temporal, textual})
}
