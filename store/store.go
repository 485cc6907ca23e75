// Copyright 2026 The Nines Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store implements the versioned, optionally encrypted Store that
// wraps a Memory or File backend with patch/anchor history, grounded on the
// teacher's dir/server versioning discipline (a Sequence bump on every Put)
// and its tree/log.go append-only per-key log for the optional durable
// history mode.
package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/beescroll/nines/anchor"
	"github.com/beescroll/nines/nine"
	"github.com/beescroll/nines/patch"
	"github.com/beescroll/nines/path"
)

const (
	// DefaultMaxPatches is the default per-key patch ring-buffer size.
	DefaultMaxPatches = 100
	// DefaultMaxAnchors is the default per-key anchor ring-buffer size.
	DefaultMaxAnchors = 10

	hkdfSalt = "nine_s_v1"
)

// Config configures a new Store.
type Config struct {
	// Encrypted enables AES-256-GCM encryption at rest. Key must be
	// exactly 32 bytes when set.
	Encrypted bool
	Key       []byte

	// History enables the patch/anchor engine. HistoryDir, if non-empty,
	// persists patches and anchors as newline-delimited JSON logs under the
	// given directory instead of keeping them only in memory.
	History    bool
	HistoryDir string

	MaxPatches int
	MaxAnchors int

	Clock nine.Clock
	RNG   nine.RNG
}

// DeriveAppKey derives a 32-byte key from master via HKDF-SHA256, so that
// the same master key yields independent keys per appName.
func DeriveAppKey(master []byte, appName string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, []byte(hkdfSalt), []byte(appName))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, nine.E("store.DeriveAppKey", nine.Internal, err)
	}
	return key, nil
}

// Store is a versioned Namespace wrapping a Memory or File backend with
// optional encryption at rest and optional patch/anchor history.
type Store struct {
	backend nine.Namespace
	cfg     Config
	clock   nine.Clock
	rng     nine.RNG

	mu      sync.Mutex
	history historyEngine
	closed  bool
}

var _ nine.Namespace = (*Store)(nil)

// New wraps backend with the behavior described by cfg.
func New(backend nine.Namespace, cfg Config) (*Store, error) {
	const op = "store.New"
	if cfg.Encrypted && len(cfg.Key) != 32 {
		return nil, nine.E(op, nine.InvalidData, nine.Err("encrypted store requires a 32-byte key"))
	}
	if cfg.MaxPatches <= 0 {
		cfg.MaxPatches = DefaultMaxPatches
	}
	if cfg.MaxAnchors <= 0 {
		cfg.MaxAnchors = DefaultMaxAnchors
	}
	clock := cfg.Clock
	if clock == nil {
		clock = nine.SystemClock{}
	}
	rng := cfg.RNG
	if rng == nil {
		rng = nine.CryptoRNG{}
	}
	s := &Store{
		backend: backend,
		cfg:     cfg,
		clock:   clock,
		rng:     rng,
	}
	if cfg.History {
		if cfg.HistoryDir != "" {
			eng, err := newDurableHistory(cfg.HistoryDir, cfg.MaxPatches, cfg.MaxAnchors)
			if err != nil {
				return nil, nine.E(op, nine.Internal, err)
			}
			s.history = eng
		} else {
			s.history = newMemoryHistory(cfg.MaxPatches, cfg.MaxAnchors)
		}
	}
	return s, nil
}

func (s *Store) checkOpen(op string) error {
	if s.closed {
		return nine.E(op, nine.Closed)
	}
	return nil
}

// Read implements nine.Namespace, reversing encryption before returning.
func (s *Store) Read(p string) (*nine.Scroll, error) {
	const op = "store.Read"
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(op); err != nil {
		return nil, err
	}
	return s.readDecrypted(op, p)
}

func (s *Store) readDecrypted(op, p string) (*nine.Scroll, error) {
	raw, err := s.backend.Read(p)
	if err != nil || raw == nil {
		return raw, err
	}
	if !s.cfg.Encrypted {
		return raw, nil
	}
	data, err := s.decrypt(raw.Data)
	if err != nil {
		return nil, nine.E(op, nine.Internal, err)
	}
	out := raw.Clone()
	out.Data = data
	hash, err := nine.Hash(out.Key, out.Type, out.Data)
	if err != nil {
		return nil, nine.E(op, nine.Internal, err)
	}
	out.Metadata.Hash = hash
	return out, nil
}

// Write implements nine.Namespace.
func (s *Store) Write(p string, data map[string]any) (*nine.Scroll, error) {
	return s.writeScroll(p, &nine.Scroll{Key: p, Data: data}, false)
}

// WriteScroll implements nine.Namespace.
func (s *Store) WriteScroll(in *nine.Scroll) (*nine.Scroll, error) {
	return s.writeScroll(in.Key, in, true)
}

func (s *Store) writeScroll(p string, in *nine.Scroll, preserveType bool) (*nine.Scroll, error) {
	const op = "store.Write"
	if err := path.Validate(p); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(op); err != nil {
		return nil, err
	}

	prior, err := s.readDecrypted(op, p)
	if err != nil {
		return nil, err
	}

	plainIn := *in
	writeData := in.Data
	if s.cfg.Encrypted {
		ciphertext, err := s.encrypt(in.Data)
		if err != nil {
			return nil, nine.E(op, nine.Internal, err)
		}
		writeData = ciphertext
	}
	plainIn.Data = writeData

	var stored *nine.Scroll
	if preserveType {
		stored, err = s.backend.WriteScroll(&plainIn)
	} else {
		stored, err = s.backend.Write(p, writeData)
	}
	if err != nil {
		return nil, err
	}

	out := stored.Clone()
	out.Data = nine.CloneValue(in.Data).(map[string]any)
	if s.cfg.Encrypted {
		// The backend hashed the opaque {"_encrypted": ...} blob it was
		// handed; re-stamp with the hash of the plaintext content so the
		// Scroll stays content-addressed regardless of the per-write
		// random nonce.
		hash, err := nine.Hash(out.Key, out.Type, out.Data)
		if err != nil {
			return nil, nine.E(op, nine.Internal, err)
		}
		out.Metadata.Hash = hash
	}

	if s.history != nil {
		var priorData map[string]any
		if prior != nil {
			priorData = prior.Data
		}
		ops := patch.Diff(priorData, out.Data)
		if err := s.history.appendPatch(p, ops, prior, out); err != nil {
			return nil, nine.E(op, nine.Internal, err)
		}
	}
	return out, nil
}

// List implements nine.Namespace.
func (s *Store) List(prefix string) ([]string, error) {
	const op = "store.List"
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(op); err != nil {
		return nil, err
	}
	return s.backend.List(prefix)
}

// Watch implements nine.Namespace. Emitted Scrolls are decrypted before
// forwarding.
func (s *Store) Watch(pattern string) (*nine.Subscription, error) {
	const op = "store.Watch"
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(op); err != nil {
		return nil, err
	}
	inner, err := s.backend.Watch(pattern)
	if err != nil {
		return nil, err
	}
	if !s.cfg.Encrypted {
		return inner, nil
	}
	out := nine.NewSubscription(pattern, 64)
	go func() {
		for scroll := range inner.Events() {
			data, err := s.decrypt(scroll.Data)
			if err != nil {
				continue
			}
			decrypted := scroll.Clone()
			decrypted.Data = data
			if hash, err := nine.Hash(decrypted.Key, decrypted.Type, decrypted.Data); err == nil {
				decrypted.Metadata.Hash = hash
			}
			if !nine.Deliver(out, decrypted) {
				return
			}
		}
		out.Close()
	}()
	return out, nil
}

// Close implements nine.Namespace.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}

// encrypt produces the { "_encrypted": base64(nonce||ciphertext||tag) }
// representation written to the backend.
func (s *Store) encrypt(data map[string]any) (map[string]any, error) {
	plaintext, err := nine.Canonical(data)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(s.cfg.Key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := s.rng.Bytes(gcm.NonceSize())
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	blob := append(append([]byte{}, nonce...), sealed...)
	return map[string]any{"_encrypted": base64.StdEncoding.EncodeToString(blob)}, nil
}

// decrypt reverses encrypt, also accepting the compatibility format
// { ciphertext, nonce } with separate base64 fields.
func (s *Store) decrypt(data map[string]any) (map[string]any, error) {
	if !s.cfg.Encrypted {
		return data, nil
	}
	block, err := aes.NewCipher(s.cfg.Key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	var nonce, ciphertext []byte
	if blobStr, ok := data["_encrypted"].(string); ok {
		blob, err := base64.StdEncoding.DecodeString(blobStr)
		if err != nil {
			return nil, err
		}
		if len(blob) < gcm.NonceSize() {
			return nil, nine.Err("encrypted blob too short")
		}
		nonce, ciphertext = blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	} else if ctStr, ok := data["ciphertext"].(string); ok {
		nonceStr, _ := data["nonce"].(string)
		ciphertext, err = base64.StdEncoding.DecodeString(ctStr)
		if err != nil {
			return nil, err
		}
		nonce, err = base64.StdEncoding.DecodeString(nonceStr)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, nine.Err("no recognized encrypted representation")
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	return nine.DecodeData(plaintext)
}

// Anchor creates an Anchor witnessing the current Scroll at p.
func (s *Store) Anchor(p string, label *string) (*anchor.Anchor, error) {
	const op = "store.Anchor"
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(op); err != nil {
		return nil, err
	}
	scroll, err := s.readDecrypted(op, p)
	if err != nil {
		return nil, err
	}
	if scroll == nil {
		return nil, nine.E(op, nine.NotFound, nine.Path(p))
	}
	a, err := anchor.Create(s.clock, s.rng, scroll, label)
	if err != nil {
		return nil, err
	}
	if s.history != nil {
		if err := s.history.appendAnchor(p, a); err != nil {
			return nil, nine.E(op, nine.Internal, err)
		}
	}
	return a, nil
}

// Restore writes the anchor's witnessed Scroll back via the normal write
// pipeline, producing a fresh version bump.
func (s *Store) Restore(p string, anchorID string) (*nine.Scroll, error) {
	const op = "store.Restore"
	if s.history == nil {
		return nil, nine.E(op, nine.NotFound, nine.Path(p))
	}
	s.mu.Lock()
	a, err := s.history.findAnchor(p, anchorID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ok, err := anchor.Verify(a)
	if err != nil {
		return nil, nine.E(op, nine.Internal, err)
	}
	if !ok {
		return nil, nine.E(op, nine.Internal, nine.Err("anchor integrity check failed"))
	}
	return s.WriteScroll(a.Scroll)
}

// StateAt replays patches [1..seq] against an empty document at p.
func (s *Store) StateAt(p string, seq int) (*nine.Scroll, error) {
	const op = "store.StateAt"
	if s.history == nil {
		return nil, nine.E(op, nine.NotFound, nine.Path(p))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.stateAt(p, seq)
}

// PruneHistory trims the ring buffers for a single key.
func (s *Store) PruneHistory(p string, keepPatches, keepAnchors int) error {
	if s.history == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.prune(p, keepPatches, keepAnchors)
}

// PruneAllHistory trims the ring buffers for every key with history.
func (s *Store) PruneAllHistory(keepPatches, keepAnchors int) error {
	if s.history == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.pruneAll(keepPatches, keepAnchors)
}

// History returns the retained patch records for p, oldest first.
func (s *Store) History(p string) ([]PatchRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.listPatches(p)
}

// Anchors returns the retained anchors for p, oldest first.
func (s *Store) Anchors(p string) ([]*anchor.Anchor, error) {
	if s.history == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.listAnchors(p)
}
