package ports

import (
	"context"
	"encoding/json"
)

// DocumentMetadata is what the upstream text extractor knows about a document.
type DocumentMetadata struct {
	Title           string `json:"title" bson:"title"`
	ContentType     string `json:"content_type" bson:"content_type"`
	ContentLength   int    `json:"content_length" bson:"content_length"`
	ContentEncoding string `json:"content_encoding,omitempty" bson:"content_encoding,omitempty"`
	ContentLanguage string `json:"content_language,omitempty" bson:"content_language,omitempty"`
}

// Document is one already-extracted document handed to the matcher.
type Document struct {
	URL      string           `json:"url"`
	Text     string           `json:"text"`
	Metadata DocumentMetadata `json:"metadata"`
}

// StoredEvent is the sink-facing view of a match event: the hash sinks dedup
// on plus the fully encoded event body.
type StoredEvent struct {
	Hash        string
	ContentHash string
	AssetID     string
	CaseID      string
	URL         string
	Body        json.RawMessage
}

// EventSink receives match events. Writes must be idempotent on Hash: writing
// the same event twice stores it once. Inserted reports whether the event was
// new.
type EventSink interface {
	WriteEvent(ctx context.Context, ev StoredEvent) (inserted bool, err error)
}
