// Package codec provides the deterministic encodings folio relies on.
//
// Hash fingerprints a snapshot. It is a 32-bit multiplicative hash over the
// snapshot's JSON serialization, computed on UTF-16 code units so the value
// matches what the backend reports for the same snapshot. Collections are
// serialized in input order; reordering a collection changes the hash.
//
// MarshalCanonical produces canonical JSON (sorted keys, NFC strings, no HTML
// escaping, integers only) for content fingerprints such as
// IntentFingerprint. Unlike Hash, canonical output is insensitive to map
// ordering and Unicode normalization form.
//
// Neither encoding is a security mechanism. A Hash collision only causes an
// unnecessary re-merge.
package codec
