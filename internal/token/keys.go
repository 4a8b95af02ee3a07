package token

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// SigningKey is the private half of the key currently used to sign.
type SigningKey struct {
	ID      string
	Private ed25519.PrivateKey
}

// PublicKey is a verification key.  NotAfter is zero for keys without a
// scheduled retirement.
type PublicKey struct {
	ID       string
	Key      ed25519.PublicKey
	NotAfter time.Time
}

// KeyProvider supplies signing and verification keys.  Implementations
// must return the same keys to every process so tokens survive restarts
// and verify on any node.
type KeyProvider interface {
	CurrentKey(ctx context.Context) (SigningKey, error)
	PublicKeySet(ctx context.Context) ([]PublicKey, error)
}

const hkdfSalt = "gate-presence/token-signing/v1"

// DerivedKeys derives Ed25519 keys from a shared master secret and a list
// of key ids with HKDF-SHA256.  The first id signs; every id verifies, which
// gives rotation with overlap by prepending a new id and later dropping the
// old one.
type DerivedKeys struct {
	current SigningKey
	public  []PublicKey
}

// NewDerivedKeys builds the provider.  secret may be hex encoded; anything
// that does not decode as hex is used as raw bytes.
func NewDerivedKeys(secret string, ids []string) (*DerivedKeys, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < 32 || len(ids) == 0 {
		return nil, fmt.Errorf("%w: master secret must be at least 32 characters and one key id is required", ErrConfig)
	}
	master, err := hex.DecodeString(secret)
	if err != nil {
		master = []byte(secret)
	}
	d := &DerivedKeys{}
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		if id == "" || seen[id] {
			return nil, fmt.Errorf("%w: duplicate or empty key id %q", ErrConfig, id)
		}
		seen[id] = true
		priv, err := deriveKey(master, id)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			d.current = SigningKey{ID: id, Private: priv}
		}
		d.public = append(d.public, PublicKey{ID: id, Key: priv.Public().(ed25519.PublicKey)})
	}
	return d, nil
}

func deriveKey(master []byte, id string) (ed25519.PrivateKey, error) {
	seed := make([]byte, ed25519.SeedSize)
	r := hkdf.New(sha256.New, master, []byte(hkdfSalt), []byte("kid:"+id))
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("derive key %s: %w", id, err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func (d *DerivedKeys) CurrentKey(context.Context) (SigningKey, error) { return d.current, nil }

func (d *DerivedKeys) PublicKeySet(context.Context) ([]PublicKey, error) {
	out := make([]PublicKey, len(d.public))
	copy(out, d.public)
	return out, nil
}

// findKey picks the verification key for kid, skipping retired keys.
func findKey(set []PublicKey, kid string, now time.Time) (ed25519.PublicKey, bool) {
	for _, k := range set {
		if k.ID != kid {
			continue
		}
		if !k.NotAfter.IsZero() && now.After(k.NotAfter) {
			return nil, false
		}
		return k.Key, true
	}
	return nil, false
}
