package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yoanarobeva/book-reads-app-server/core"
	"github.com/yoanarobeva/book-reads-app-server/core/storage"
)

func newManager() *Manager {
	return NewManager(storage.New(), "email", []byte("unit test secret"))
}

func TestHashIsDeterministic(t *testing.T) {
	m := newManager()
	assert.Equal(t, m.Hash("123456"), m.Hash("123456"))
	assert.NotEqual(t, m.Hash("123456"), m.Hash("1234567"))
	assert.Len(t, m.Hash("123456"), 64, "hex encoded HMAC-SHA256")

	other := NewManager(storage.New(), "email", []byte("another secret"))
	assert.NotEqual(t, m.Hash("123456"), other.Hash("123456"),
		"the hash must depend on the secret")
}

func TestRegisterStoresHashNotPassword(t *testing.T) {
	protected := storage.New()
	m := NewManager(protected, "email", []byte("unit test secret"))

	result, err := m.Register(storage.Record{"email": "a@x.com", "password": "123456"})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "a@x.com", result["email"])
	assert.NotEmpty(t, result["accessToken"])
	assert.NotContains(t, result, "hashedPassword")

	users, err := protected.GetAll("users")
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, users, 1)
	assert.Equal(t, m.Hash("123456"), users[0]["hashedPassword"])
	assert.NotContains(t, users[0], "password")
}

func TestRegisterValidation(t *testing.T) {
	m := newManager()

	for _, body := range []storage.Record{
		{"password": "123456"},
		{"email": "a@x.com"},
		{"email": "", "password": "123456"},
		{"email": "a@x.com", "password": ""},
	} {
		_, err := m.Register(body)
		serviceErr := core.AsError(err)
		assert.Equal(t, 400, serviceErr.Status, "body %v must be rejected", body)
		assert.Equal(t, "Missing fields", serviceErr.Message)
	}
}

func TestRegisterDuplicateIdentity(t *testing.T) {
	m := newManager()
	_, err := m.Register(storage.Record{"email": "a@x.com", "password": "123456"})
	if err != nil {
		t.Fatal(err)
	}

	// the store's query lowercases strings, so the collision check is
	// effectively case-insensitive
	_, err = m.Register(storage.Record{"email": "A@X.COM", "password": "other"})
	serviceErr := core.AsError(err)
	assert.Equal(t, 409, serviceErr.Status)
	assert.Contains(t, serviceErr.Message, "already exists")
}

func TestLogin(t *testing.T) {
	m := newManager()
	_, err := m.Register(storage.Record{"email": "a@x.com", "password": "123456"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.Login(storage.Record{"email": "a@x.com", "password": "wrong"})
	assert.Equal(t, 403, core.AsError(err).Status)

	_, err = m.Login(storage.Record{"email": "nobody@x.com", "password": "123456"})
	assert.Equal(t, 403, core.AsError(err).Status)

	result, err := m.Login(storage.Record{"email": "a@x.com", "password": "123456"})
	if err != nil {
		t.Fatal(err)
	}
	assert.NotEmpty(t, result["accessToken"])
	assert.NotContains(t, result, "hashedPassword")
}

func TestTokenRoundtrip(t *testing.T) {
	m := newManager()
	registered, err := m.Register(storage.Record{"email": "a@x.com", "password": "123456"})
	if err != nil {
		t.Fatal(err)
	}
	token := registered["accessToken"].(string)

	caller, err := m.ResolveCaller(token)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, registered["_id"], caller["_id"])

	_, err = m.ResolveCaller("forged token")
	assert.Equal(t, 403, core.AsError(err).Status)
}

func TestLogout(t *testing.T) {
	m := newManager()
	registered, err := m.Register(storage.Record{"email": "a@x.com", "password": "123456"})
	if err != nil {
		t.Fatal(err)
	}
	token := registered["accessToken"].(string)
	caller, err := m.ResolveCaller(token)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Logout(caller); err != nil {
		t.Fatal(err)
	}
	_, err = m.ResolveCaller(token)
	assert.Error(t, err, "the token must be invalid after logout")

	assert.Error(t, m.Logout(caller), "a second logout has no session left")
	assert.Error(t, m.Logout(nil))
}
