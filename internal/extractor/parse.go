package extractor

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/rxlens/rxlens-api/internal/model"
)

// parseResponse turns raw model output into a candidate record.
// Vision models routinely wrap the JSON in markdown code fences, so
// those are stripped first. Output that still fails to decode yields
// the all-sentinel fallback record rather than an error: merging the
// fallback is a no-op, so one bad response never poisons a session.
func parseResponse(content string) model.PrescriptionRecord {
	cleaned := stripFences(content)

	record, err := model.DecodePrescriptionRecord([]byte(cleaned))
	if err != nil {
		log.Error().Err(err).Str("raw_response", content).Msg("failed to parse model response, using fallback record")
		return model.NewPrescriptionRecord()
	}
	return record
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
	}
	content = strings.ReplaceAll(content, "```", "")
	return strings.TrimSpace(content)
}
