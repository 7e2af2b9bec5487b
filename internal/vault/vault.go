package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Vault seals and opens tenant secret fields. Callers treat ciphertext as
// opaque; plaintext never reaches logs.
type Vault interface {
	Encrypt(tenantID, field, plaintext string) (string, error)
	Decrypt(tenantID, field, ciphertext string) (string, error)
}

// AESGCM is a Vault backed by AES-256-GCM with a static master key. The
// tenant id and field name are bound into the ciphertext as additional
// authenticated data, so a blob copied between tenants or fields fails to
// open.
type AESGCM struct {
	aead cipher.AEAD
}

func NewAESGCM(masterKey string) (*AESGCM, error) {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("vault: master key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault: master key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return &AESGCM{aead: aead}, nil
}

func (v *AESGCM) Encrypt(tenantID, field, plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), aad(tenantID, field))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (v *AESGCM) Decrypt(tenantID, field, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", fmt.Errorf("vault: no secret stored for field %q", field)
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("vault: field %q is not valid base64: %w", field, err)
	}
	if len(raw) < v.aead.NonceSize() {
		return "", fmt.Errorf("vault: field %q ciphertext too short", field)
	}
	nonce, sealed := raw[:v.aead.NonceSize()], raw[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, sealed, aad(tenantID, field))
	if err != nil {
		return "", fmt.Errorf("vault: open field %q: %w", field, err)
	}
	return string(plaintext), nil
}

func aad(tenantID, field string) []byte {
	return []byte(tenantID + "/" + field)
}
