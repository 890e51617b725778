package feeder

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONFeeder reads records from a file holding a JSON array of flat objects.
// Non-string values are rendered with their JSON encoding.
type JSONFeeder struct {
	cycle
}

func NewJSONFeeder(path string) (*JSONFeeder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open JSON file: %w", err)
	}
	defer file.Close()

	var rawRecords []map[string]json.RawMessage
	if err := json.NewDecoder(file).Decode(&rawRecords); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if len(rawRecords) == 0 {
		return nil, fmt.Errorf("JSON file contains empty array")
	}

	records := make([]Record, 0, len(rawRecords))
	for i, raw := range rawRecords {
		if len(raw) == 0 {
			return nil, fmt.Errorf("record %d is empty", i)
		}
		record := make(Record, len(raw))
		for key, value := range raw {
			var s string
			if err := json.Unmarshal(value, &s); err == nil {
				record[key] = s
			} else {
				record[key] = string(value)
			}
		}
		records = append(records, record)
	}

	return &JSONFeeder{cycle: cycle{records: records}}, nil
}
