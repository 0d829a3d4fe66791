package crypto

import "errors"

var (
	// ErrValidation covers malformed input: empty or oversized plaintext and
	// payloads with missing fields.
	ErrValidation = errors.New("crypto validation failed")
	// ErrIntegrity is a MAC mismatch. Always audited as critical; the payload
	// was tampered with or encrypted under different key material.
	ErrIntegrity = errors.New("payload integrity check failed")
	// ErrDecryptFailed is an AEAD rejection after the MAC passed.
	ErrDecryptFailed = errors.New("decryption failed")
)
