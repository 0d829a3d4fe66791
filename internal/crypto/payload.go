package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Payload bundles everything needed to decrypt a value later: which key,
// which context, the nonce, the ciphertext, and a MAC checked before any
// decrypt attempt. Opaque outside the owning context.
type Payload struct {
	KeyID      string `json:"key_id"`
	Context    string `json:"context"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	MAC        string `json:"mac"`
}

func (p *Payload) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil payload", ErrValidation)
	}
	if p.KeyID == "" || p.Context == "" || p.Nonce == "" || p.Ciphertext == "" || p.MAC == "" {
		return fmt.Errorf("%w: payload missing required fields", ErrValidation)
	}
	return nil
}

func (p *Payload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(raw), nil
}

func DecodePayload(encoded string) (*Payload, error) {
	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not base64", ErrValidation)
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrValidation)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
