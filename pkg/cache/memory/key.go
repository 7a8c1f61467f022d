package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// RequestMeta is the request half of a response fingerprint.
type RequestMeta struct {
	URL       string
	Method    string
	UserAgent string
}

// keyRecord is serialized in field order, so the digest is stable.
type keyRecord struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	UserAgent string `json:"userAgent,omitempty"`
	DataHash  string `json:"dataHash"`
}

// GenerateKey fingerprints a response payload together with the request that
// produced it. On failure (a payload that cannot be serialized, such as a
// cyclic structure) it emits an error event and returns ok=false; callers
// should then skip caching for the request.
func (c *Cache) GenerateKey(meta RequestMeta, payload any) (key string, ok bool) {
	dataHash, err := hashPayload(payload)
	if err != nil {
		c.events.emit(Event{Kind: EventError, Err: fmt.Errorf("key generation failed: %w", err)})
		return "", false
	}
	data, err := json.Marshal(keyRecord{
		URL:       meta.URL,
		Method:    meta.Method,
		UserAgent: meta.UserAgent,
		DataHash:  dataHash,
	})
	if err != nil {
		c.events.emit(Event{Kind: EventError, Err: fmt.Errorf("key generation failed: %w", err)})
		return "", false
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), true
}

// HashData fingerprints a payload on its own, for request-body caching.
// Strings and byte slices are hashed as is; other values by their JSON form.
func (c *Cache) HashData(payload any) (digest string, ok bool) {
	digest, err := hashPayload(payload)
	if err != nil {
		c.events.emit(Event{Kind: EventError, Err: fmt.Errorf("payload hash failed: %w", err)})
		return "", false
	}
	return digest, true
}

func hashPayload(payload any) (string, error) {
	var data []byte
	switch p := payload.(type) {
	case string:
		data = []byte(p)
	case []byte:
		data = p
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return "", err
		}
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
