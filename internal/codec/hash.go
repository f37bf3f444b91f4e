package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf16"

	"github.com/roach88/folio/internal/model"
)

// Domain prefixes for content fingerprints.
const (
	DomainIntent   = "folio/intent/v1"
	DomainSnapshot = "folio/snapshot/v1"
)

// Hash computes the snapshot fingerprint.
//
// Algorithm: h starts at 5381; for each UTF-16 code unit c of the JSON
// serialization, h = int32(h*33) XOR c. The result is the unsigned 32-bit
// value in base 36.
func Hash(s model.Snapshot) (string, error) {
	data, err := marshalJSON(s)
	if err != nil {
		return "", fmt.Errorf("hash snapshot: %w", err)
	}
	return HashBytes(data), nil
}

// MustHash is like Hash but panics on error.
// Use only in tests or when the snapshot is known to be serializable.
func MustHash(s model.Snapshot) string {
	h, err := Hash(s)
	if err != nil {
		panic(err)
	}
	return h
}

// HashBytes applies the snapshot hash to an already serialized document.
func HashBytes(data []byte) string {
	var h int32 = 5381
	for _, c := range utf16.Encode([]rune(string(data))) {
		h = (h * 33) ^ int32(c)
	}
	return strconv.FormatUint(uint64(uint32(h)), 36)
}

// Seal wraps a snapshot in an envelope carrying its hash.
func Seal(s model.Snapshot) (model.Envelope, error) {
	h, err := Hash(s)
	if err != nil {
		return model.Envelope{}, err
	}
	return model.Envelope{Hash: h, Snapshot: s}, nil
}

// marshalJSON serializes v without HTML escaping and without escaping
// U+2028/U+2029, matching the backend's JSON encoder byte for byte.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// IntentFingerprint computes a content fingerprint of what an intent would
// send: method, url, metadata and fields. Id, creation time and
// idempotency key are excluded, so two submissions of the same form with
// the same values share a fingerprint.
func IntentFingerprint(in model.Intent) (string, error) {
	fields := make([]any, len(in.Fields))
	for i, f := range in.Fields {
		entry := map[string]any{
			"name": f.Name,
			"kind": string(f.Kind),
		}
		if f.Kind == model.FieldFile {
			sum := sha256.Sum256(f.Blob)
			entry["blob"] = hex.EncodeToString(sum[:])
			entry["fileName"] = f.FileName
			entry["fileType"] = f.FileType
			entry["lastModified"] = f.LastModified
		} else {
			entry["value"] = f.Value
		}
		fields[i] = entry
	}

	obj := map[string]any{
		"method": in.Method,
		"url":    in.URL,
		"fields": fields,
	}
	if in.Meta != nil {
		meta := map[string]any{
			"entity":    string(in.Meta.Entity),
			"operation": string(in.Meta.Operation),
		}
		if in.Meta.TargetID != nil {
			meta["targetId"] = *in.Meta.TargetID
		}
		obj["meta"] = meta
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("intent fingerprint: %w", err)
	}
	return hashWithDomain(DomainIntent, canonical), nil
}

// SnapshotDigest is a normalization-insensitive SHA-256 digest of a
// snapshot, used to compare mirrors regardless of key order.
func SnapshotDigest(s model.Snapshot) (string, error) {
	canonical, err := MarshalCanonical(s)
	if err != nil {
		return "", fmt.Errorf("snapshot digest: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}
