package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"authgate/internal/auth"
	"authgate/internal/config"
	"authgate/internal/crypto"
	"authgate/internal/email"
	"authgate/internal/hydra"
	"authgate/internal/oauth"
)

// memStore is an in-memory UserStore + auth.ResolverStore.
type memStore struct {
	mu     sync.Mutex
	byID   map[string]*auth.User
	social map[string]string // provider+"/"+providerID -> userID
}

func newMemStore() *memStore {
	return &memStore{byID: map[string]*auth.User{}, social: map[string]string{}}
}

func (m *memStore) Create(_ context.Context, mail string, passwordHash *string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == mail {
			return nil, auth.ErrEmailExists
		}
	}
	user := &auth.User{
		ID:           uuid.NewString(),
		Email:        mail,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.byID[user.ID] = user
	return user, nil
}

func (m *memStore) FindByEmail(_ context.Context, mail string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == mail {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByID(_ context.Context, id string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id], nil
}

func (m *memStore) UpdatePassword(_ context.Context, userID, hashed string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[userID]; ok {
		u.PasswordHash = &hashed
	}
	return nil
}

func (m *memStore) FindBySocial(_ context.Context, provider, providerID string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.social[provider+"/"+providerID]; ok {
		return m.byID[id], nil
	}
	return nil, nil
}

func (m *memStore) LinkSocial(_ context.Context, userID, provider, providerID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.social[provider+"/"+providerID] = userID
	return nil
}

func (m *memStore) CreateWithSocialLink(ctx context.Context, mail, provider, providerID string) (*auth.User, error) {
	user, err := m.Create(ctx, mail, nil)
	if err != nil {
		return nil, err
	}
	return user, m.LinkSocial(ctx, user.ID, provider, providerID, mail)
}

type fakeTwoFactor struct {
	mu      sync.Mutex
	secrets map[string]*auth.TwoFactorSecret
}

func newFakeTwoFactor() *fakeTwoFactor {
	return &fakeTwoFactor{secrets: map[string]*auth.TwoFactorSecret{}}
}

func (f *fakeTwoFactor) Get(_ context.Context, userID string) (*auth.TwoFactorSecret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.secrets[userID], nil
}

func (f *fakeTwoFactor) SavePending(_ context.Context, userID string, secretEncrypted []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets[userID] = &auth.TwoFactorSecret{UserID: userID, SecretEncrypted: secretEncrypted}
	return nil
}

func (f *fakeTwoFactor) Enable(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sec, ok := f.secrets[userID]; ok {
		sec.Enabled = true
	}
	return nil
}

func (f *fakeTwoFactor) Delete(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.secrets, userID)
	return nil
}

type fakeResetTokens struct {
	mu     sync.Mutex
	byHash map[string]*auth.PasswordResetToken
}

func newFakeResetTokens() *fakeResetTokens {
	return &fakeResetTokens{byHash: map[string]*auth.PasswordResetToken{}}
}

func (f *fakeResetTokens) Create(_ context.Context, userID, tokenHash string, expiresAt time.Time) (*auth.PasswordResetToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok := &auth.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	f.byHash[tokenHash] = tok
	return tok, nil
}

func (f *fakeResetTokens) FindByHash(_ context.Context, tokenHash string) (*auth.PasswordResetToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byHash[tokenHash], nil
}

func (f *fakeResetTokens) MarkUsed(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tok := range f.byHash {
		if tok.ID == id {
			if tok.UsedAt != nil {
				return false, nil
			}
			now := time.Now()
			tok.UsedAt = &now
			return true, nil
		}
	}
	return false, nil
}

type fakeThrottle struct {
	mu            sync.Mutex
	banned        bool
	loginFailures int
	twoFAFailures int
}

func (f *fakeThrottle) IsIPBanned(context.Context, string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.banned
}

func (f *fakeThrottle) RegisterLoginFailure(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginFailures++
	return nil
}

func (f *fakeThrottle) ResetLogin(context.Context, string) {}

func (f *fakeThrottle) Register2FAFailure(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.twoFAFailures++
	return false, nil
}

func (f *fakeThrottle) Reset2FA(context.Context, string) {}

func (f *fakeThrottle) RegisterResetAttempt(context.Context, string) (bool, error) {
	return false, nil
}

func (f *fakeThrottle) RegisterRegisterAttempt(context.Context, string) (bool, error) {
	return false, nil
}

type testEnv struct {
	srv       *Server
	store     *memStore
	twoFactor *fakeTwoFactor
	tokens    *fakeResetTokens
	throttle  *fakeThrottle
	box       *crypto.Box
	handler   http.Handler
}

func newTestEnv(t *testing.T, hydraURL string) *testEnv {
	t.Helper()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	box, err := crypto.NewBox(key)
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}

	store := newMemStore()
	twoFactor := newFakeTwoFactor()
	tokens := newFakeResetTokens()
	throttle := &fakeThrottle{}
	hasher := auth.NewBcryptHasher()

	cfg := config.Config{
		PasswordResetURL: "http://localhost:3000/reset-password",
		PasswordResetTTL: time.Hour,
	}

	srv := &Server{
		Users:       store,
		TwoFactor:   twoFactor,
		ResetTokens: tokens,
		Verifier:    &auth.Verifier{Users: store, Hasher: hasher},
		Resolver:    &auth.Resolver{Store: store},
		TOTP:        auth.NewTOTPService("AuthGate", box),
		Hasher:      hasher,
		RateLimiter: throttle,
		Hydra:       hydra.NewClient(hydraURL),
		Providers:   oauth.NewRegistry(),
		States:      &oauth.StateCodec{Box: box},
		Mailer:      email.NewSender(config.EmailConfig{}),
		Config:      cfg,
	}

	return &testEnv{
		srv:       srv,
		store:     store,
		twoFactor: twoFactor,
		tokens:    tokens,
		throttle:  throttle,
		box:       box,
		handler:   srv.Router(),
	}
}

func (e *testEnv) addUser(t *testing.T, mail, password string) *auth.User {
	t.Helper()
	hashed, err := e.srv.Hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user, err := e.store.Create(context.Background(), mail, &hashed)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (e *testEnv) postJSON(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

// hydraStub serves the admin endpoints the handlers touch.
type hydraStub struct {
	loginSkip    bool
	loginSubject string
	consentSkip  bool
	requested    []string
}

func (h *hydraStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/oauth2/auth/requests/login":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"challenge": r.URL.Query().Get("login_challenge"),
				"skip":      h.loginSkip,
				"subject":   h.loginSubject,
			})
		case "/admin/oauth2/auth/requests/login/accept":
			var body struct {
				Subject string `json:"subject"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"redirect_to": "https://hydra/after-login/" + body.Subject,
			})
		case "/admin/oauth2/auth/requests/consent":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"challenge":       r.URL.Query().Get("consent_challenge"),
				"skip":            h.consentSkip,
				"requested_scope": h.requested,
			})
		case "/admin/oauth2/auth/requests/consent/accept":
			var body struct {
				GrantScope []string `json:"grant_scope"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"redirect_to": "https://hydra/after-consent?granted=" + joinScopes(body.GrantScope),
			})
		case "/admin/oauth2/auth/requests/logout":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"challenge": r.URL.Query().Get("logout_challenge"),
				"subject":   "user-1",
			})
		case "/admin/oauth2/auth/requests/logout/accept":
			_ = json.NewEncoder(w).Encode(map[string]string{"redirect_to": "https://hydra/after-logout"})
		default:
			t.Errorf("unexpected hydra request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func joinScopes(scopes []string) string {
	out := ""
	for i, sc := range scopes {
		if i > 0 {
			out += "+"
		}
		out += sc
	}
	return out
}
