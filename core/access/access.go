// Package access manages user accounts, sessions and access tokens.
//
// Accounts live in a protected store, separate from the client-facing data.
// Passwords are kept as HMAC-SHA256 hashes; access tokens are the hash of
// the session record's ID. Clients pass the token in the X-Authorization
// header, and the middleware resolves it to a caller record in the request
// context.
package access

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/yoanarobeva/book-reads-app-server/core"
	"github.com/yoanarobeva/book-reads-app-server/core/logger"
	"github.com/yoanarobeva/book-reads-app-server/core/storage"
)

const (
	// AuthorizationHeader carries the access token on authenticated requests.
	AuthorizationHeader = "X-Authorization"

	usersCollection    = "users"
	sessionsCollection = "sessions"

	fieldHashedPassword = "hashedPassword"
	fieldAccessToken    = "accessToken"
	fieldUserID         = "userId"
	fieldPassword       = "password"
)

type contextKeyCallerType struct{}

var contextKeyCaller = &contextKeyCallerType{}

// Manager handles registration, login, logout and token resolution against
// a protected store.
type Manager struct {
	protected *storage.Store
	identity  string
	secret    []byte
}

// NewManager creates a manager on top of the protected store. identity is
// the property that identifies accounts, typically "email" or "username".
func NewManager(protected *storage.Store, identity string, secret []byte) *Manager {
	return &Manager{
		protected: protected,
		identity:  identity,
		secret:    secret,
	}
}

// Identity returns the property that identifies accounts.
func (m *Manager) Identity() string {
	return m.identity
}

// Hash returns the hex-encoded HMAC-SHA256 of value under the manager's
// secret. The same function covers passwords and access tokens.
func (m *Manager) Hash(value string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Register creates a new account from the request body and opens a session
// for it. The body must carry a non-empty identity property and password.
func (m *Manager) Register(body storage.Record) (storage.Record, error) {
	identity, _ := body[m.identity].(string)
	password, _ := body[fieldPassword].(string)
	if strings.TrimSpace(identity) == "" || strings.TrimSpace(password) == "" {
		return nil, core.RequestError("Missing fields")
	}
	existing, err := m.protected.Query(usersCollection, storage.Record{m.identity: identity})
	if err == nil && len(existing) > 0 {
		return nil, core.ConflictError(fmt.Sprintf("A user with the same %s already exists", m.identity))
	}
	user := m.protected.Add(usersCollection, storage.Record{
		m.identity:          identity,
		fieldHashedPassword: m.Hash(password),
	})
	return m.saveSession(user)
}

// Login verifies the credentials in the request body and opens a session.
func (m *Manager) Login(body storage.Record) (storage.Record, error) {
	identity, _ := body[m.identity].(string)
	password, _ := body[fieldPassword].(string)
	mismatch := core.CredentialError(fmt.Sprintf("%s or password don't match", capitalize(m.identity)))
	matches, err := m.protected.Query(usersCollection, storage.Record{m.identity: identity})
	if err != nil || len(matches) != 1 {
		return nil, mismatch
	}
	user := matches[0]
	if hash, _ := user[fieldHashedPassword].(string); hash != m.Hash(password) {
		return nil, mismatch
	}
	return m.saveSession(user)
}

// Logout closes the caller's session. The token becomes invalid.
func (m *Manager) Logout(caller storage.Record) error {
	if caller == nil {
		return core.CredentialError("User session does not exist")
	}
	userID, _ := caller[storage.FieldID].(string)
	sessions, err := m.protected.Query(sessionsCollection, storage.Record{fieldUserID: userID})
	if err != nil || len(sessions) == 0 {
		return core.CredentialError("User session does not exist")
	}
	sessionID, _ := sessions[0][storage.FieldID].(string)
	if _, err := m.protected.Delete(sessionsCollection, sessionID); err != nil {
		return core.CredentialError("User session does not exist")
	}
	return nil
}

// ResolveCaller maps an access token back to its user record.
func (m *Manager) ResolveCaller(token string) (storage.Record, error) {
	sessions, err := m.protected.Query(sessionsCollection, storage.Record{fieldAccessToken: token})
	if err != nil || len(sessions) == 0 {
		return nil, core.CredentialError("Invalid access token")
	}
	userID, _ := sessions[0][fieldUserID].(string)
	user, err := m.protected.Get(usersCollection, userID)
	if err != nil {
		return nil, core.CredentialError("Invalid access token")
	}
	return user, nil
}

// saveSession opens a session for the user and returns the user record with
// the access token attached and the password hash removed.
func (m *Manager) saveSession(user storage.Record) (storage.Record, error) {
	userID, _ := user[storage.FieldID].(string)
	session := m.protected.Add(sessionsCollection, storage.Record{fieldUserID: userID})
	sessionID, _ := session[storage.FieldID].(string)
	token := m.Hash(sessionID)
	session[fieldAccessToken] = token
	if _, err := m.protected.Set(sessionsCollection, sessionID, session); err != nil {
		return nil, err
	}
	result := storage.Record{}
	for k, v := range user {
		if k == fieldHashedPassword {
			continue
		}
		result[k] = v
	}
	result[fieldAccessToken] = token
	return result, nil
}

// Middleware resolves the X-Authorization header to a caller record in the
// request context. Requests without a token pass through anonymously;
// requests with an invalid token are rejected.
func (m *Manager) Middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(AuthorizationHeader)
		if token == "" {
			h.ServeHTTP(w, r)
			return
		}
		caller, err := m.ResolveCaller(token)
		if err != nil {
			logger.FromContext(r.Context()).WithError(err).Info("rejected access token")
			core.WriteError(w, err)
			return
		}
		ctx := ContextWithCaller(r.Context(), caller)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ContextWithCaller returns a new context carrying the caller record.
func ContextWithCaller(ctx context.Context, caller storage.Record) context.Context {
	return context.WithValue(ctx, contextKeyCaller, caller)
}

// CallerFromContext returns the caller record from the context, or nil for
// anonymous requests.
func CallerFromContext(ctx context.Context) storage.Record {
	caller, _ := ctx.Value(contextKeyCaller).(storage.Record)
	return caller
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
