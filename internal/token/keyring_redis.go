package token

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// storedKey is the JSON value kept per key id in the keyring hash.
type storedKey struct {
	Seed      string `json:"seed"`
	CreatedMs int64  `json:"created_ms"`
	RetireMs  int64  `json:"retire_ms,omitempty"`
}

// RedisKeyring keeps signing keys in Redis so every node signs with the
// same current key and verifies with the same set.  Rotate installs a new
// current key and leaves the previous one verifying for the overlap window.
type RedisKeyring struct {
	rdb      redis.UniversalClient
	hashKey  string
	curKey   string
	overlap  time.Duration
	cacheFor time.Duration
	now      func() time.Time

	mu       sync.Mutex
	loadedAt time.Time
	current  SigningKey
	public   []PublicKey
}

// NewRedisKeyring stores keys under "<prefix>:token:keys".
func NewRedisKeyring(rdb redis.UniversalClient, prefix string, overlap time.Duration, now func() time.Time) *RedisKeyring {
	if now == nil {
		now = time.Now
	}
	return &RedisKeyring{
		rdb:      rdb,
		hashKey:  prefix + ":token:keys",
		curKey:   prefix + ":token:current",
		overlap:  overlap,
		cacheFor: 5 * time.Second,
		now:      now,
	}
}

func (k *RedisKeyring) CurrentKey(ctx context.Context) (SigningKey, error) {
	if err := k.refresh(ctx, false); err != nil {
		return SigningKey{}, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current.ID == "" {
		return SigningKey{}, ErrNoSigningKey
	}
	return k.current, nil
}

func (k *RedisKeyring) PublicKeySet(ctx context.Context) ([]PublicKey, error) {
	if err := k.refresh(ctx, false); err != nil {
		return nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]PublicKey, len(k.public))
	copy(out, k.public)
	return out, nil
}

// Bootstrap creates the first key when the ring is empty.  Concurrent
// bootstraps race on SETNX; the loser removes its unused key.
func (k *RedisKeyring) Bootstrap(ctx context.Context) error {
	cur, err := k.rdb.Get(ctx, k.curKey).Result()
	if err == nil && cur != "" {
		return k.refresh(ctx, true)
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	id, sk, err := k.newKey()
	if err != nil {
		return err
	}
	if err := k.rdb.HSet(ctx, k.hashKey, id, sk).Err(); err != nil {
		return err
	}
	won, err := k.rdb.SetNX(ctx, k.curKey, id, 0).Result()
	if err != nil {
		return err
	}
	if !won {
		_ = k.rdb.HDel(ctx, k.hashKey, id).Err()
	}
	return k.refresh(ctx, true)
}

// Rotate makes a fresh key current and schedules the previous current key
// to retire after the overlap window.  It returns the new key id.
func (k *RedisKeyring) Rotate(ctx context.Context) (string, error) {
	id, sk, err := k.newKey()
	if err != nil {
		return "", err
	}
	prev, err := k.rdb.Get(ctx, k.curKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}

	var prevVal []byte
	if prev != "" {
		raw, err := k.rdb.HGet(ctx, k.hashKey, prev).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return "", err
		}
		if len(raw) > 0 {
			var p storedKey
			if err := json.Unmarshal(raw, &p); err != nil {
				return "", fmt.Errorf("decode key %s: %w", prev, err)
			}
			p.RetireMs = k.now().Add(k.overlap).UnixMilli()
			if prevVal, err = json.Marshal(p); err != nil {
				return "", err
			}
		}
	}

	_, err = k.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k.hashKey, id, sk)
		if prevVal != nil {
			p.HSet(ctx, k.hashKey, prev, prevVal)
		}
		p.Set(ctx, k.curKey, id, 0)
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, k.refresh(ctx, true)
}

// Prune deletes keys whose retirement passed.
func (k *RedisKeyring) Prune(ctx context.Context) (int, error) {
	all, err := k.rdb.HGetAll(ctx, k.hashKey).Result()
	if err != nil {
		return 0, err
	}
	now := k.now().UnixMilli()
	var dead []string
	for id, raw := range all {
		var s storedKey
		if json.Unmarshal([]byte(raw), &s) == nil && s.RetireMs > 0 && s.RetireMs < now {
			dead = append(dead, id)
		}
	}
	if len(dead) == 0 {
		return 0, nil
	}
	if err := k.rdb.HDel(ctx, k.hashKey, dead...).Err(); err != nil {
		return 0, err
	}
	return len(dead), nil
}

func (k *RedisKeyring) newKey() (string, []byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return "", nil, err
	}
	id := ulid.Make().String()
	b, err := json.Marshal(storedKey{Seed: hex.EncodeToString(seed), CreatedMs: k.now().UnixMilli()})
	return id, b, err
}

func (k *RedisKeyring) refresh(ctx context.Context, force bool) error {
	k.mu.Lock()
	fresh := !force && !k.loadedAt.IsZero() && k.now().Sub(k.loadedAt) < k.cacheFor
	k.mu.Unlock()
	if fresh {
		return nil
	}

	cur, err := k.rdb.Get(ctx, k.curKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	all, err := k.rdb.HGetAll(ctx, k.hashKey).Result()
	if err != nil {
		return err
	}

	var (
		current SigningKey
		public  []PublicKey
		created = map[string]int64{}
	)
	for id, raw := range all {
		var s storedKey
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return fmt.Errorf("decode key %s: %w", id, err)
		}
		seed, err := hex.DecodeString(s.Seed)
		if err != nil || len(seed) != ed25519.SeedSize {
			return fmt.Errorf("decode key %s: bad seed", id)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		pk := PublicKey{ID: id, Key: priv.Public().(ed25519.PublicKey)}
		if s.RetireMs > 0 {
			pk.NotAfter = time.UnixMilli(s.RetireMs).UTC()
		}
		public = append(public, pk)
		created[id] = s.CreatedMs
		if id == cur {
			current = SigningKey{ID: id, Private: priv}
		}
	}
	// Newest first, so the key set reads like a rotation history.
	sort.Slice(public, func(i, j int) bool { return created[public[i].ID] > created[public[j].ID] })

	k.mu.Lock()
	k.current = current
	k.public = public
	k.loadedAt = k.now()
	k.mu.Unlock()
	return nil
}

var (
	_ KeyProvider = (*DerivedKeys)(nil)
	_ KeyProvider = (*RedisKeyring)(nil)
)
