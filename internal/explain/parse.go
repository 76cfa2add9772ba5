package explain

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mr1hm/go-flood-risk/internal/models"
)

// parseExplanation decodes model output into an explanation. Any deviation
// from the expected shape is an error; the caller substitutes the default.
func parseExplanation(raw string) (models.ContextualExplanation, error) {
	sanitized := strings.TrimSpace(raw)
	sanitized = strings.TrimPrefix(sanitized, "```json")
	sanitized = strings.TrimSuffix(sanitized, "```")
	sanitized = strings.Trim(sanitized, "`")
	sanitized = strings.TrimSpace(strings.TrimPrefix(sanitized, "json"))

	var wire struct {
		RiskFactors     json.RawMessage `json:"risk_factors"`
		Summary         string          `json:"summary"`
		Recommendations json.RawMessage `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(sanitized), &wire); err != nil {
		return models.ContextualExplanation{}, err
	}

	factors, err := coerceStringArray(wire.RiskFactors)
	if err != nil {
		return models.ContextualExplanation{}, err
	}
	recommendations, err := coerceStringArray(wire.Recommendations)
	if err != nil {
		return models.ContextualExplanation{}, err
	}

	out := models.ContextualExplanation{
		RiskFactors:     normalizeList(factors),
		Summary:         strings.TrimSpace(wire.Summary),
		Recommendations: normalizeList(recommendations),
	}
	if out.Summary == "" {
		return models.ContextualExplanation{}, errors.New("summary missing")
	}
	if len(out.Recommendations) == 0 {
		return models.ContextualExplanation{}, errors.New("recommendations missing")
	}
	return out, nil
}

func coerceStringArray(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	switch raw[0] {
	case '"':
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, err
		}
		if strings.TrimSpace(single) == "" {
			return nil, nil
		}
		return []string{single}, nil
	case '[':
		var many []string
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, err
		}
		return many, nil
	default:
		return nil, errors.New("unsupported list format")
	}
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{})
	for _, item := range items {
		clean := strings.TrimSpace(item)
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}
