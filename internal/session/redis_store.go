// Package session keeps gorilla sessions server side in Redis (or KeyDB).
// The browser only receives a signed session id.
package session

import (
	"bytes"
	"context"
	"encoding/base32"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "session:"
	// defaultServerTTL bounds stored data of browser-session cookies (MaxAge 0).
	defaultServerTTL = 14 * 24 * time.Hour
)

// RedisStore implements sessions.Store on top of a Redis client.
type RedisStore struct {
	client    redis.UniversalClient
	codecs    []securecookie.Codec
	keyPrefix string
	serverTTL time.Duration

	Options *sessions.Options
}

// NewRedisStore returns a store signing cookies with the given key pairs
// (see securecookie.CodecsFromPairs).
func NewRedisStore(client redis.UniversalClient, keyPairs ...[]byte) *RedisStore {
	return &RedisStore{
		client:    client,
		codecs:    securecookie.CodecsFromPairs(keyPairs...),
		keyPrefix: defaultKeyPrefix,
		serverTTL: defaultServerTTL,
		Options: &sessions.Options{
			Path:     "/",
			MaxAge:   86400 * 14,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
	}
}

// MaxAge sets the cookie lifetime and the signature age accepted by the
// codecs. Zero gives browser-session cookies.
func (s *RedisStore) MaxAge(age int) {
	s.Options.MaxAge = age
	for _, codec := range s.codecs {
		if sc, ok := codec.(*securecookie.SecureCookie); ok {
			sc.MaxAge(age)
		}
	}
}

// SetServerTTL changes how long data of sessions without a MaxAge is kept.
func (s *RedisStore) SetServerTTL(ttl time.Duration) {
	if ttl > 0 {
		s.serverTTL = ttl
	}
}

// SetKeyPrefix changes the Redis key namespace.
func (s *RedisStore) SetKeyPrefix(prefix string) {
	s.keyPrefix = prefix
}

// Get returns the session registered for the request, creating it on first use.
func (s *RedisStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session referenced by the request cookie. Missing, forged or
// expired ids yield a fresh session with an empty id.
func (s *RedisStore) New(r *http.Request, name string) (*sessions.Session, error) {
	sess := sessions.NewSession(s, name)
	opts := *s.Options
	sess.Options = &opts
	sess.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return sess, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &sess.ID, s.codecs...); err != nil {
		sess.ID = ""
		return sess, nil
	}

	found, err := s.load(r.Context(), sess)
	if err != nil {
		sess.ID = ""
		return sess, err
	}
	if !found {
		sess.ID = ""
		return sess, nil
	}
	sess.IsNew = false
	return sess, nil
}

// Save persists the session and writes the cookie. A negative MaxAge deletes
// the stored data and expires the cookie.
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, sess *sessions.Session) error {
	if sess.Options.MaxAge < 0 {
		if sess.ID != "" {
			if err := s.client.Del(r.Context(), s.key(sess.ID)).Err(); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
		}
		http.SetCookie(w, sessions.NewCookie(sess.Name(), "", sess.Options))
		return nil
	}

	if sess.ID == "" {
		sess.ID = newSessionID()
	}
	if err := s.store(r.Context(), sess); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(sess.Name(), sess.ID, s.codecs...)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, sessions.NewCookie(sess.Name(), encoded, sess.Options))
	return nil
}

// Renew drops the stored data behind sess and clears its id so the next Save
// issues a new one. Values are kept.
func (s *RedisStore) Renew(ctx context.Context, sess *sessions.Session) error {
	if sess.ID != "" {
		if err := s.client.Del(ctx, s.key(sess.ID)).Err(); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	sess.ID = ""
	sess.IsNew = true
	return nil
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

func (s *RedisStore) ttl(sess *sessions.Session) time.Duration {
	if sess.Options.MaxAge > 0 {
		return time.Duration(sess.Options.MaxAge) * time.Second
	}
	return s.serverTTL
}

func (s *RedisStore) store(ctx context.Context, sess *sessions.Session) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sess.Values); err != nil {
		return fmt.Errorf("encode session values: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), buf.Bytes(), s.ttl(sess)).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, sess *sessions.Session) (bool, error) {
	data, err := s.client.Get(ctx, s.key(sess.ID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&sess.Values); err != nil {
		return false, fmt.Errorf("decode session values: %w", err)
	}
	return true, nil
}

func newSessionID() string {
	return strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
}

var _ sessions.Store = (*RedisStore)(nil)
