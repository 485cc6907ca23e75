// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sealed implements SealedScroll, a self-contained,
// URI-encodable, AES-256-GCM-encrypted envelope for sharing a single
// Scroll outside a Namespace.
package sealed

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/beescroll/nines/nine"
)

// MaxPlaintextBytes is the size cap on a Scroll's canonical JSON
// representation before sealing.
const MaxPlaintextBytes = 65536

const (
	pbkdf2Iterations = 100_000
	noPasswordSecret = "beescroll:no-password"

	uriPrefix       = "beescroll://v1/"
	legacyURIPrefix = "beenote://v1/"
)

// SealedScroll is the wire-ready envelope produced by Seal.
type SealedScroll struct {
	Version     int    `json:"version"`
	Ciphertext  string `json:"ciphertext"`
	Nonce       string `json:"nonce"`
	Salt        string `json:"salt,omitempty"`
	HasPassword bool   `json:"has_password"`
	SealedAt    int64  `json:"sealed_at"`
	ScrollType  string `json:"scroll_type,omitempty"`
}

// ErrorKind identifies why a seal/unseal/decode operation failed.
type ErrorKind string

const (
	ContentTooLarge ErrorKind = "content_too_large"
	InvalidFormat   ErrorKind = "invalid_format"
	Decryption      ErrorKind = "decryption"
)

// Error reports a sealed-envelope failure.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Msg }

func newErr(kind ErrorKind, msg string) error { return &Error{Kind: kind, Msg: msg} }

// Seal encrypts scroll into a SealedScroll. An empty password produces an
// obfuscation-only (not secure) envelope, per spec.
func Seal(clock nine.Clock, rng nine.RNG, scroll *nine.Scroll, password string) (*SealedScroll, error) {
	scrollJSON, err := json.Marshal(scroll)
	if err != nil {
		return nil, newErr(InvalidFormat, err.Error())
	}
	tree, err := nine.DecodeData(scrollJSON)
	if err != nil {
		return nil, newErr(InvalidFormat, err.Error())
	}
	plaintext, err := nine.Canonical(tree)
	if err != nil {
		return nil, newErr(InvalidFormat, err.Error())
	}
	if len(plaintext) > MaxPlaintextBytes {
		return nil, newErr(ContentTooLarge, "scroll exceeds 65536 bytes")
	}

	var key, salt []byte
	hasPassword := password != ""
	if hasPassword {
		salt = rng.Bytes(16)
		key = pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
	} else {
		sum := sha256.Sum256([]byte(noPasswordSecret))
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, newErr(InvalidFormat, err.Error())
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, newErr(InvalidFormat, err.Error())
	}
	nonce := rng.Bytes(gcm.NonceSize())
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := &SealedScroll{
		Version:     1,
		Ciphertext:  base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:       base64.StdEncoding.EncodeToString(nonce),
		HasPassword: hasPassword,
		SealedAt:    clock.NowMilli() / 1000,
		ScrollType:  scroll.Type,
	}
	if hasPassword {
		out.Salt = base64.StdEncoding.EncodeToString(salt)
	}
	return out, nil
}

// Unseal decrypts a SealedScroll back into a Scroll, requiring password
// iff s.HasPassword.
func Unseal(s *SealedScroll, password string) (*nine.Scroll, error) {
	if s.Version != 1 {
		return nil, newErr(InvalidFormat, "unsupported version")
	}
	if s.HasPassword && password == "" {
		return nil, newErr(Decryption, "password required")
	}

	var key []byte
	if s.HasPassword {
		salt, err := base64.StdEncoding.DecodeString(s.Salt)
		if err != nil {
			return nil, newErr(InvalidFormat, "malformed salt")
		}
		key = pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
	} else {
		sum := sha256.Sum256([]byte(noPasswordSecret))
		key = sum[:]
	}

	nonce, err := base64.StdEncoding.DecodeString(s.Nonce)
	if err != nil {
		return nil, newErr(InvalidFormat, "malformed nonce")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return nil, newErr(InvalidFormat, "malformed ciphertext")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, newErr(InvalidFormat, err.Error())
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, newErr(InvalidFormat, err.Error())
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, newErr(Decryption, "authentication failed, wrong password or corrupt data")
	}

	var scroll nine.Scroll
	if err := json.Unmarshal(plaintext, &scroll); err != nil {
		return nil, newErr(InvalidFormat, "decrypted payload is not a scroll")
	}
	return &scroll, nil
}

// ToURI encodes s as a beescroll://v1/ URI.
func ToURI(s *SealedScroll) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", newErr(InvalidFormat, err.Error())
	}
	return uriPrefix + base64.URLEncoding.EncodeToString(raw), nil
}

// FromURI decodes a beescroll://v1/ URI, the legacy beenote://v1/ prefix,
// or a raw JSON object starting with "{".
func FromURI(uri string) (*SealedScroll, error) {
	var encoded string
	switch {
	case strings.HasPrefix(uri, uriPrefix):
		encoded = strings.TrimPrefix(uri, uriPrefix)
	case strings.HasPrefix(uri, legacyURIPrefix):
		encoded = strings.TrimPrefix(uri, legacyURIPrefix)
	case strings.HasPrefix(uri, "{"):
		var s SealedScroll
		if err := json.Unmarshal([]byte(uri), &s); err != nil {
			return nil, newErr(InvalidFormat, "malformed raw JSON envelope")
		}
		return &s, nil
	default:
		return nil, newErr(InvalidFormat, "unrecognized envelope format")
	}
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, newErr(InvalidFormat, "malformed base64url payload")
	}
	var s SealedScroll
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, newErr(InvalidFormat, "malformed envelope JSON")
	}
	return &s, nil
}
