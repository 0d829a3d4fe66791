package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/securekit/secure-session-service/internal/domain"
	"github.com/securekit/secure-session-service/internal/observability"
	"github.com/securekit/secure-session-service/internal/security"
)

const defaultMaxPlaintext = 1 << 20

// Encryptor provides authenticated encryption per named context. The AEAD
// already authenticates the ciphertext; the additional HMAC lets integrity be
// checked without touching the cipher, and its mismatch is the signal for the
// tamper audit path.
type Encryptor struct {
	keyring      *Keyring
	auditor      *observability.AuditLogger
	maxPlaintext int
}

func NewEncryptor(keyring *Keyring, auditor *observability.AuditLogger, maxPlaintext int) *Encryptor {
	if maxPlaintext <= 0 {
		maxPlaintext = defaultMaxPlaintext
	}
	return &Encryptor{keyring: keyring, auditor: auditor, maxPlaintext: maxPlaintext}
}

func (e *Encryptor) Encrypt(ctx context.Context, plaintext []byte, keyContext string) (*Payload, error) {
	if len(plaintext) == 0 {
		observability.RecordCryptoOperation(ctx, "encrypt", "validation_failed")
		return nil, fmt.Errorf("%w: empty plaintext", ErrValidation)
	}
	if len(plaintext) > e.maxPlaintext {
		observability.RecordCryptoOperation(ctx, "encrypt", "validation_failed")
		return nil, fmt.Errorf("%w: plaintext exceeds %d bytes", ErrValidation, e.maxPlaintext)
	}
	if keyContext == "" {
		keyContext = domain.ContextDefault
	}

	key, err := e.keyring.Active(ctx, keyContext)
	if err != nil {
		observability.RecordCryptoOperation(ctx, "encrypt", "error")
		return nil, fmt.Errorf("load active key: %w", err)
	}
	aead, err := newAEAD(key.Material)
	if err != nil {
		observability.RecordCryptoOperation(ctx, "encrypt", "error")
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		observability.RecordCryptoOperation(ctx, "encrypt", "error")
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, []byte(keyContext))

	mac, err := computeMAC(key, ciphertext)
	if err != nil {
		observability.RecordCryptoOperation(ctx, "encrypt", "error")
		return nil, err
	}

	p := &Payload{
		KeyID:      key.ID,
		Context:    keyContext,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(ciphertext),
		MAC:        base64.RawStdEncoding.EncodeToString(mac),
	}
	observability.RecordCryptoOperation(ctx, "encrypt", "success")
	e.auditor.Event(ctx, "data_encryption", domain.SecurityContext{}, map[string]string{
		"context": keyContext,
		"key_id":  key.ID,
	})
	return p, nil
}

func (e *Encryptor) Decrypt(ctx context.Context, p *Payload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		observability.RecordCryptoOperation(ctx, "decrypt", "validation_failed")
		return nil, err
	}
	nonce, err := base64.RawStdEncoding.DecodeString(p.Nonce)
	if err != nil {
		observability.RecordCryptoOperation(ctx, "decrypt", "validation_failed")
		return nil, fmt.Errorf("%w: nonce is not base64", ErrValidation)
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(p.Ciphertext)
	if err != nil {
		observability.RecordCryptoOperation(ctx, "decrypt", "validation_failed")
		return nil, fmt.Errorf("%w: ciphertext is not base64", ErrValidation)
	}
	mac, err := base64.RawStdEncoding.DecodeString(p.MAC)
	if err != nil {
		observability.RecordCryptoOperation(ctx, "decrypt", "validation_failed")
		return nil, fmt.Errorf("%w: mac is not base64", ErrValidation)
	}

	key, err := e.keyring.ByID(ctx, p.KeyID)
	if err != nil {
		observability.RecordCryptoOperation(ctx, "decrypt", "error")
		return nil, fmt.Errorf("load key %s: %w", p.KeyID, err)
	}

	want, err := computeMAC(key, ciphertext)
	if err != nil {
		observability.RecordCryptoOperation(ctx, "decrypt", "error")
		return nil, err
	}
	if !security.ConstantTimeEqual(mac, want) {
		observability.RecordCryptoOperation(ctx, "decrypt", "integrity_failed")
		e.auditor.Critical(ctx, "data_decryption", domain.SecurityContext{}, map[string]string{
			"context": p.Context,
			"key_id":  p.KeyID,
			"outcome": "integrity_failure",
		})
		return nil, ErrIntegrity
	}

	aead, err := newAEAD(key.Material)
	if err != nil {
		observability.RecordCryptoOperation(ctx, "decrypt", "error")
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		observability.RecordCryptoOperation(ctx, "decrypt", "validation_failed")
		return nil, fmt.Errorf("%w: bad nonce length", ErrValidation)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(p.Context))
	if err != nil {
		observability.RecordCryptoOperation(ctx, "decrypt", "cipher_failed")
		e.auditor.Critical(ctx, "data_decryption", domain.SecurityContext{}, map[string]string{
			"context": p.Context,
			"key_id":  p.KeyID,
			"outcome": "cipher_failure",
		})
		return nil, ErrDecryptFailed
	}
	observability.RecordCryptoOperation(ctx, "decrypt", "success")
	e.auditor.Event(ctx, "data_decryption", domain.SecurityContext{}, map[string]string{
		"context": p.Context,
		"key_id":  p.KeyID,
	})
	return plaintext, nil
}

func newAEAD(material []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return aead, nil
}

func computeMAC(key *domain.EncryptionKey, ciphertext []byte) ([]byte, error) {
	macKey, err := deriveMACKey(key)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, macKey)
	mac.Write(ciphertext)
	return mac.Sum(nil), nil
}
