package database

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jo-hoe/medscan/internal/document"
)

func generateID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

// prepareResult assigns an id if missing and returns the encoded record
func prepareResult(result *document.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("result cannot be nil")
	}
	if result.ID == "" {
		id, err := generateID()
		if err != nil {
			return nil, err
		}
		result.ID = id
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result %s: %w", result.ID, err)
	}
	return data, nil
}

func decodeResult(data []byte) (*document.Result, error) {
	var result document.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}
