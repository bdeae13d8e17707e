package kafka

import (
	"strings"

	segkafka "github.com/segmentio/kafka-go"
)

// HeaderCarrier exposes board message headers to OpenTelemetry propagators.
// Header names match case-insensitively. The board-event header belongs to the
// producer: propagators can neither see nor overwrite it.
type HeaderCarrier []segkafka.Header

// NewHeaderCarrier starts a header set for a message carrying event.
func NewHeaderCarrier(event string) HeaderCarrier {
	return HeaderCarrier{{Key: EventHeader, Value: []byte(event)}}
}

// Event returns the board event name, or "" for messages from other producers.
func (c HeaderCarrier) Event() string {
	for _, h := range c {
		if isEventHeader(h.Key) {
			return string(h.Value)
		}
	}
	return ""
}

// Get returns the propagation field named key, or "".
func (c HeaderCarrier) Get(key string) string {
	if isEventHeader(key) {
		return ""
	}
	for _, h := range c {
		if strings.EqualFold(h.Key, key) {
			return string(h.Value)
		}
	}
	return ""
}

// Set stores a propagation field, replacing an earlier value for the same key.
// Attempts to set the board-event header are ignored.
func (c *HeaderCarrier) Set(key, value string) {
	if isEventHeader(key) {
		return
	}
	kept := (*c)[:0]
	for _, h := range *c {
		if !strings.EqualFold(h.Key, key) {
			kept = append(kept, h)
		}
	}
	*c = append(kept, segkafka.Header{Key: strings.ToLower(key), Value: []byte(value)})
}

// Keys lists the propagation fields present, without the board-event header.
func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, h := range c {
		if !isEventHeader(h.Key) {
			keys = append(keys, h.Key)
		}
	}
	return keys
}

func isEventHeader(key string) bool { return strings.EqualFold(key, EventHeader) }
