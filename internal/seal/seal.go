// Package seal encrypts exported audit segments before they leave the
// host. It wraps filippo.io/age: exports can be sealed to an X25519
// recipient (operator holds the matching identity offline) or to an
// scrypt passphrase.
package seal

import (
	"fmt"
	"io"

	"filippo.io/age"
)

// Sealer encrypts a stream. Implementations must fully flush the
// ciphertext before returning.
type Sealer interface {
	// Seal reads plaintext from r and writes ciphertext to w.
	Seal(r io.Reader, w io.Writer) error
}

// AgeSealer seals to one or more age recipients.
type AgeSealer struct {
	recipients []age.Recipient
}

var _ Sealer = (*AgeSealer)(nil)

// NewRecipientSealer creates a sealer for an age X25519 public key
// (the "age1..." string).
func NewRecipientSealer(publicKey string) (*AgeSealer, error) {
	recipient, err := age.ParseX25519Recipient(publicKey)
	if err != nil {
		return nil, fmt.Errorf("parsing age recipient: %w", err)
	}
	return &AgeSealer{recipients: []age.Recipient{recipient}}, nil
}

// NewPassphraseSealer creates a sealer using age's scrypt-based
// passphrase encryption.
func NewPassphraseSealer(passphrase string) (*AgeSealer, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	return &AgeSealer{recipients: []age.Recipient{recipient}}, nil
}

// Seal reads plaintext from r and writes age ciphertext to w.
func (s *AgeSealer) Seal(r io.Reader, w io.Writer) error {
	encWriter, err := age.Encrypt(w, s.recipients...)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}

	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	return nil
}

// Unseal decrypts age ciphertext from r to w using the given identities.
// Used by operator tooling and tests; the service itself never unseals.
func Unseal(r io.Reader, w io.Writer, identities ...age.Identity) error {
	decReader, err := age.Decrypt(r, identities...)
	if err != nil {
		return fmt.Errorf("opening encrypted stream: %w", err)
	}

	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}

	return nil
}
