// SPDX-License-Identifier: MIT

package telemetry

import "go.opentelemetry.io/otel/attribute"

// Common attribute keys for consistent spans across the engine.
const (
	FeedIdentifierKey = "feed.identifier"
	FeedSlotKey       = "feed.slot"
	FeedCollectionKey = "feed.collection"
	FillOutcomeKey    = "fill.outcome"
	FillCheckpointKey = "fill.checkpoint"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// ItemAttributes creates the span attributes for one feed item.
func ItemAttributes(id, collection string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(FeedIdentifierKey, id),
		attribute.String(FeedCollectionKey, collection),
	}
}

// ErrorAttributes marks a span as failed with a classified error type.
func ErrorAttributes(errType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errType),
	}
}
