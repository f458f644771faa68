package monobank

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

// PubKeyCacheKey is the KeyStore key holding the base64 PEM merchant key.
const PubKeyCacheKey = "monobank:pubkey"

var errKeyRefreshThrottled = errors.New("public key refreshed recently")

// ValidateWebhook reports whether signature (the X-Sign header) is a valid
// signature of rawBody by the merchant key. It never returns an error; any
// failure results in false. A mismatch against a cached key triggers a refetch
// so that key rotation does not reject genuine deliveries; at most one refetch
// runs per refresh interval.
func (c *Client) ValidateWebhook(ctx context.Context, rawBody []byte, signature string) bool {
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(sig) == 0 {
		return false
	}
	digest := sha256.Sum256(rawBody)

	key, cached, err := c.publicKey(ctx, false)
	if errors.Is(err, errKeyRefreshThrottled) {
		return false
	}
	if err != nil {
		log.Warnf("[Monobank] public key unavailable: %v", err)
		return false
	}
	if ecdsa.VerifyASN1(key, digest[:], sig) {
		return true
	}
	if !cached {
		return false
	}

	fresh, _, err := c.publicKey(ctx, true)
	if errors.Is(err, errKeyRefreshThrottled) {
		return false
	}
	if err != nil {
		log.Warnf("[Monobank] public key refresh failed: %v", err)
		return false
	}
	if fresh.Equal(key) {
		return false
	}
	return ecdsa.VerifyASN1(fresh, digest[:], sig)
}

// publicKey returns the merchant key and whether it came from a cache.
func (c *Client) publicKey(ctx context.Context, refresh bool) (*ecdsa.PublicKey, bool, error) {
	if !refresh {
		c.keyMu.RLock()
		key := c.pubKey
		c.keyMu.RUnlock()
		if key != nil {
			return key, true, nil
		}

		if c.keys != nil {
			if encoded, err := c.keys.Get(ctx, PubKeyCacheKey); err == nil && encoded != "" {
				if key, err := ParsePublicKey(encoded); err == nil {
					c.setPublicKey(key)
					return key, true, nil
				}
			}
		}
	}

	v, err, _ := c.keyFetch.Do(PubKeyCacheKey, func() (interface{}, error) {
		return c.loadPublicKey(ctx)
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*ecdsa.PublicKey), false, nil
}

// loadPublicKey fetches the key from the provider. Fetches are spaced by the
// refresh interval whether or not they succeed.
func (c *Client) loadPublicKey(ctx context.Context) (*ecdsa.PublicKey, error) {
	c.keyMu.Lock()
	if !c.lastRefresh.IsZero() && c.now().Sub(c.lastRefresh) < c.refreshInterval {
		c.keyMu.Unlock()
		return nil, errKeyRefreshThrottled
	}
	c.lastRefresh = c.now()
	c.keyMu.Unlock()

	encoded, err := c.fetchPublicKey(ctx)
	if err != nil {
		return nil, err
	}
	key, err := ParsePublicKey(encoded)
	if err != nil {
		return nil, err
	}
	c.setPublicKey(key)
	if c.keys != nil {
		if err := c.keys.Set(ctx, PubKeyCacheKey, encoded, c.keyTTL); err != nil {
			log.Warnf("[Monobank] failed to cache public key: %v", err)
		}
	}
	return key, nil
}

func (c *Client) setPublicKey(key *ecdsa.PublicKey) {
	c.keyMu.Lock()
	c.pubKey = key
	c.keyMu.Unlock()
}

func (c *Client) fetchPublicKey(ctx context.Context) (string, error) {
	if c.Token == "" {
		return "", ErrNotConfigured
	}
	var out struct {
		Key string `json:"key"`
	}
	if err := c.doJSON(ctx, http.MethodGet, pubKeyPath, c.Token, nil, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Key) == "" {
		return "", errors.New("monobank pubkey response missing key")
	}
	return out.Key, nil
}

// ParsePublicKey decodes the base64 encoded PEM key served by the pubkey endpoint.
func ParsePublicKey(encoded string) (*ecdsa.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("public key is not PEM encoded")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not ECDSA")
	}
	return key, nil
}

// EncodePublicKey is the inverse of ParsePublicKey.
func EncodePublicKey(key *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", err
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return base64.StdEncoding.EncodeToString(block), nil
}

