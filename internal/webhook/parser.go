package webhook

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/streamhaven/mediasync/pkg/models"
)

// ErrMalformedEvent is returned when a webhook body cannot be decoded into
// an event envelope. Callers respond with HTTP 400 and mutate nothing.
var ErrMalformedEvent = errors.New("malformed webhook event")

// Parse decodes a raw webhook body into a typed event envelope. Purely
// structural: no business interpretation happens at this layer.
func Parse(rawBody []byte) (*models.ProviderEvent, error) {
	var event models.ProviderEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}
	return &event, nil
}

// decodeData decodes the envelope's raw data into a per-type payload struct
func decodeData(event *models.ProviderEvent, out interface{}) error {
	if len(event.Data) == 0 {
		return fmt.Errorf("%w: missing event data", ErrMalformedEvent)
	}
	if err := json.Unmarshal(event.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}
