package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store. Presigned URLs are HMAC-signed with the
// configured secret so expiry and key tampering are detectable without any
// per-URL state.
type Memory struct {
	baseURL string
	secret  []byte

	mu      sync.RWMutex
	objects map[string]object
}

// NewMemory builds an empty store. baseURL is the public prefix embedded in
// presigned URLs, e.g. "http://localhost:8080/blobs".
func NewMemory(baseURL string, secret []byte) *Memory {
	return &Memory{
		baseURL: baseURL,
		secret:  secret,
		objects: make(map[string]object),
	}
}

func (m *Memory) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.objects[key] = object{
		data:        buf,
		contentType: contentType,
		metadata:    metadata,
		storedAt:    time.Now(),
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

// Delete removes the object. Deleting a missing key is a no-op so cleanup
// jobs stay idempotent under redelivery.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	return ok, nil
}

func (m *Memory) PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return m.presign(ctx, "PUT", key, ttl)
}

func (m *Memory) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return m.presign(ctx, "GET", key, ttl)
}

func (m *Memory) presign(ctx context.Context, method, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", fmt.Errorf("presign ttl must be positive")
	}

	expires := time.Now().Add(ttl).Unix()
	sig := m.sign(method, key, expires)

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", sig)
	return fmt.Sprintf("%s/%s?%s", m.baseURL, url.PathEscape(key), q.Encode()), nil
}

// VerifyPresigned checks a signature produced by this store and reports
// whether it is still valid at now.
func (m *Memory) VerifyPresigned(method, key, signature string, expires int64, now time.Time) bool {
	if now.Unix() > expires {
		return false
	}
	expected := m.sign(method, key, expires)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (m *Memory) sign(method, key string, expires int64) string {
	mac := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", method, key, expires)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
