// Package sessiontoken signs and verifies the opaque session handles handed to
// HTTP clients. A handle is a compact Ed25519 JWS around the session id, the
// owning user and the device name, so a node can reject forged or foreign
// handles before touching any storage.
package sessiontoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// ErrInvalidToken is returned for malformed, forged or unknown-key handles.
var ErrInvalidToken = errors.New("invalid session token")

// Claims is the payload carried by a session handle.
type Claims struct {
	SessionID string `json:"sid"`
	UserID    string `json:"uid"`
	Device    string `json:"dev"`
	IssuedAt  int64  `json:"iat"`
}

// Keyring holds a set of Ed25519 keys with a designated active key for signing.
// Older keys stay registered so that handles issued before a rotation verify.
type Keyring struct {
	mu        sync.RWMutex
	activeKid string
	privKeys  map[string]ed25519.PrivateKey
	pubKeys   map[string]ed25519.PublicKey
}

func NewKeyring() *Keyring {
	return &Keyring{
		privKeys: make(map[string]ed25519.PrivateKey),
		pubKeys:  make(map[string]ed25519.PublicKey),
	}
}

// NewFromSeed returns a Keyring whose single active key is derived from a
// 32-byte seed. Every node configured with the same seed accepts the others'
// handles. An empty seed generates a random process-local key.
func NewFromSeed(seed []byte) (*Keyring, error) {
	if len(seed) == 0 {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("session key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	kid := KeyID(priv.Public().(ed25519.PublicKey))

	k := NewKeyring()
	k.AddEd25519Key(kid, priv)
	if err := k.SetActive(kid); err != nil {
		return nil, err
	}
	return k, nil
}

// KeyID derives a stable key id from a public key.
func KeyID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}

// AddEd25519Key registers a key pair under kid. The active key is unchanged.
func (k *Keyring) AddEd25519Key(kid string, priv ed25519.PrivateKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.privKeys[kid] = priv
	k.pubKeys[kid] = priv.Public().(ed25519.PublicKey)
}

// SetActive selects the key used for signing.
func (k *Keyring) SetActive(kid string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.privKeys[kid]; !ok {
		return fmt.Errorf("unknown kid: %s", kid)
	}
	k.activeKid = kid
	return nil
}

func (k *Keyring) ActiveKID() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.activeKid
}

// Issue signs claims with the active key. A zero IssuedAt is stamped with the
// current time.
func (k *Keyring) Issue(c Claims) (string, error) {
	if c.SessionID == "" {
		return "", errors.New("session id is required")
	}
	if c.IssuedAt == 0 {
		c.IssuedAt = time.Now().Unix()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	k.mu.RLock()
	kid := k.activeKid
	priv, ok := k.privKeys[kid]
	k.mu.RUnlock()
	if kid == "" {
		return "", fmt.Errorf("no active kid configured")
	}
	if !ok {
		return "", fmt.Errorf("active kid not found: %s", kid)
	}

	opts := (&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", kid)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: priv}, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	compact, err := jws.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize jws: %w", err)
	}
	return compact, nil
}

// Parse verifies token and returns its claims. Every failure wraps
// ErrInvalidToken.
func (k *Keyring) Parse(token string) (Claims, error) {
	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.EdDSA})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: failed to parse jws: %v", ErrInvalidToken, err)
	}
	if len(jws.Signatures) != 1 {
		return Claims{}, fmt.Errorf("%w: unexpected signatures: %d", ErrInvalidToken, len(jws.Signatures))
	}
	kid := jws.Signatures[0].Protected.KeyID

	k.mu.RLock()
	pub, ok := k.pubKeys[kid]
	k.mu.RUnlock()
	if !ok {
		return Claims{}, fmt.Errorf("%w: unknown kid: %s", ErrInvalidToken, kid)
	}
	payload, err := jws.Verify(pub)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: signature verification failed: %v", ErrInvalidToken, err)
	}

	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return Claims{}, fmt.Errorf("%w: malformed claims: %v", ErrInvalidToken, err)
	}
	if c.SessionID == "" {
		return Claims{}, fmt.Errorf("%w: missing session id", ErrInvalidToken)
	}
	return c, nil
}
