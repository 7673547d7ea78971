package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RawDocument is content fetched from a single URL. Immutable once fetched;
// the content hash is the dedup key across discovery and complaint
// collection, and the addressing key for cache entries.
type RawDocument struct {
	SourceURL   string    `json:"source_url"`
	FetchedAt   time.Time `json:"fetched_at"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
}

// NewRawDocument builds a RawDocument with its content hash computed.
func NewRawDocument(sourceURL, content string, fetchedAt time.Time) RawDocument {
	return RawDocument{
		SourceURL:   sourceURL,
		FetchedAt:   fetchedAt,
		Content:     content,
		ContentHash: HashContent(content),
	}
}

// HashContent returns the hex-encoded SHA-256 of the content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
