package httpserver

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/duskport/eventcollector/internal/domain"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// eventPayload is the wire shape of a single event inside a publish batch.
// Timestamp is kept as a raw string and parsed by parseTimestamp after
// decoding, so a bad value is reported as a validation error naming the
// event's index rather than as a malformed body. Only RFC3339 instants
// (with or without fractional seconds) are accepted.
type eventPayload struct {
	Topic     string         `json:"topic" validate:"required,max=255"`
	EventID   string         `json:"event_id" validate:"required,max=255"`
	Timestamp string         `json:"timestamp" validate:"required"`
	Source    string         `json:"source" validate:"required,max=255"`
	Payload   map[string]any `json:"payload"`
}

// publishRequest is the decoded body of POST /publish.
type publishRequest struct {
	Events []eventPayload `json:"events" validate:"required,min=1,dive"`
}

// validateAndConvert validates req as a whole and converts every element to
// a domain.Event. Validation is all-or-nothing: the first failure aborts the
// batch and no events are returned, matching the Intake endpoint's "no
// partial enqueue" contract.
func validateAndConvert(req publishRequest) ([]domain.Event, error) {
	if err := getValidator().Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, describeValidationError(err))
	}

	out := make([]domain.Event, 0, len(req.Events))
	for i, ep := range req.Events {
		ts, err := parseTimestamp(ep.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: events[%d].timestamp: %s", domain.ErrValidation, i, err)
		}
		payload := ep.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		out = append(out, domain.Event{
			Topic:     ep.Topic,
			EventID:   ep.EventID,
			Timestamp: ts,
			Source:    ep.Source,
			Payload:   payload,
		})
	}
	return out, nil
}

// parseTimestamp accepts RFC3339/ISO-8601 instants, normalizing a bare
// trailing "Z" the way time.Parse already does, plus the common
// fractional-second variants a publisher may emit.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("not a valid ISO-8601 instant: %q", s)
}

func describeValidationError(err error) string {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s:%s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ",")
}
