package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"sensor-anomaly/internal/models"
)

var ErrEmptyPayload = errors.New("empty payload")

// DecodeReadings accepts either one JSON reading or a JSON array of readings.
func DecodeReadings(data []byte) ([]models.Reading, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	if data[0] == '[' {
		var readings []models.Reading
		if err := json.Unmarshal(data, &readings); err != nil {
			return nil, fmt.Errorf("invalid reading array: %w", err)
		}
		return readings, nil
	}

	var r models.Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("invalid reading: %w", err)
	}
	return []models.Reading{r}, nil
}
