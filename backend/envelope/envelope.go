// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package envelope implements the versioned message envelope.
//
// Version 0 is legacy plaintext and is only ever read. Version 1 is
// AES-256-GCM with a 96-bit random nonce and a 128-bit tag. New messages are
// sealed without associated data, but older clients bound the match id as
// AAD, so Open tries both variants.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/efchatnet/skillmatch/backend/models"
)

const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16
)

// Placeholder is shown in place of a message that cannot be decrypted.
const Placeholder = "[encrypted message]"

// Key is a conversation key. Its String form never prints key material.
type Key [KeySize]byte

func (k Key) String() string   { return "envelope.Key(redacted)" }
func (k Key) GoString() string { return k.String() }

// Bytes returns a copy of the raw key.
func (k Key) Bytes() []byte {
	b := make([]byte, KeySize)
	copy(b, k[:])
	return b
}

// GenerateKey reads a fresh key from r, or crypto/rand when r is nil.
func GenerateKey(r io.Reader) (Key, error) {
	if r == nil {
		r = rand.Reader
	}
	var k Key
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return Key{}, fmt.Errorf("generate key: %w", err)
	}
	return k, nil
}

// KeyFromBytes validates and copies raw key bytes.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: key is %d bytes, want %d", models.ErrMalformed, len(b), KeySize)
	}
	copy(k[:], b)
	return k, nil
}

// EncodeKey renders a key in the stored base64 form.
func EncodeKey(k Key) string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// ParseKey decodes the stored base64 form.
func ParseKey(s string) (Key, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w: key encoding: %v", models.ErrMalformed, err)
	}
	return KeyFromBytes(raw)
}

// Sealed is the output of Encrypt. Ciphertext includes the GCM tag.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
}

func newGCM(key Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithTagSize(block, TagSize)
}

// Encrypt seals plaintext under key with a fresh random nonce and no AAD.
func Encrypt(key Key, plaintext string) (Sealed, error) {
	return seal(key, plaintext, nil, rand.Reader)
}

// EncryptWithAAD seals with associated data bound into the tag. Only older
// clients wrote this variant; it is kept for interop tooling and tests.
func EncryptWithAAD(key Key, plaintext string, aad []byte) (Sealed, error) {
	return seal(key, plaintext, aad, rand.Reader)
}

func seal(key Key, plaintext string, aad []byte, r io.Reader) (Sealed, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return Sealed{}, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return Sealed{}, fmt.Errorf("generate nonce: %w", err)
	}
	return Sealed{
		Ciphertext: gcm.Seal(nil, nonce, []byte(plaintext), aad),
		Nonce:      nonce,
	}, nil
}

// Decrypt opens ciphertext with the given AAD (nil for none). Any
// verification failure, including a wrong-sized nonce, is reported as
// models.ErrAuthenticationFailed.
func Decrypt(key Key, ciphertext, nonce, aad []byte) (string, error) {
	if len(nonce) != NonceSize || len(ciphertext) < TagSize {
		return "", fmt.Errorf("%w: bad envelope geometry", models.ErrAuthenticationFailed)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrAuthenticationFailed, err)
	}
	return string(plain), nil
}

// Open returns the plaintext of msg. Version 1 is tried first without AAD
// and then with the match id as AAD.
func Open(key Key, msg models.Message) (string, error) {
	plain, _, err := OpenVariant(key, msg)
	return plain, err
}

// Variant identifies which envelope encoding verified a message.
type Variant int

const (
	VariantPlaintext Variant = iota
	VariantNoAAD
	VariantMatchAAD
)

func (v Variant) String() string {
	switch v {
	case VariantPlaintext:
		return "plaintext"
	case VariantNoAAD:
		return "no_aad"
	case VariantMatchAAD:
		return "match_aad"
	}
	return "unknown"
}

// OpenVariant is Open that also reports the variant that verified.
func OpenVariant(key Key, msg models.Message) (string, Variant, error) {
	switch msg.EncVersion {
	case models.EncVersionPlaintext:
		return msg.Content, VariantPlaintext, nil
	case models.EncVersionAESGCM:
		plain, err := Decrypt(key, msg.Ciphertext, msg.Nonce, nil)
		if err == nil {
			return plain, VariantNoAAD, nil
		}
		plain, err = Decrypt(key, msg.Ciphertext, msg.Nonce, []byte(msg.MatchID))
		if err != nil {
			return "", VariantMatchAAD, err
		}
		return plain, VariantMatchAAD, nil
	default:
		return "", VariantPlaintext, fmt.Errorf("%w: envelope version %d", models.ErrMalformed, msg.EncVersion)
	}
}

// Seal builds an encrypted version 1 message body on msg.
func Seal(key Key, msg *models.Message, plaintext string) error {
	s, err := Encrypt(key, plaintext)
	if err != nil {
		return err
	}
	msg.EncVersion = models.EncVersionAESGCM
	msg.Ciphertext = s.Ciphertext
	msg.Nonce = s.Nonce
	msg.Content = ""
	return nil
}
