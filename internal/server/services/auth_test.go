package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/cliptube/cliptube/internal/common"
	"github.com/cliptube/cliptube/internal/dbx"
	"github.com/cliptube/cliptube/internal/logging"
	"github.com/cliptube/cliptube/internal/server/auth"
	"github.com/cliptube/cliptube/internal/server/models"
	"github.com/cliptube/cliptube/internal/server/repositories/users"
)

// --- fakes ---

// memUsersRepo is an in-memory users.Repository with the same semantics as
// the Postgres one, including the atomic conditional refresh-token update.
type memUsersRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.User
	nextID int
}

func newMemUsersRepo() *memUsersRepo {
	return &memUsersRepo{byID: map[string]*models.User{}}
}

func (r *memUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Username == u.Username || existing.Email == u.Email {
			return nil, common.ErrDuplicateUser
		}
	}
	r.nextID++
	u.ID = fmt.Sprintf("u-%d", r.nextID)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	clone := *u
	r.byID[u.ID] = &clone
	return u, nil
}

func (r *memUsersRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, common.ErrNotFound
}

func (r *memUsersRepo) FindByLogin(ctx context.Context, identifier string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Username == identifier || u.Email == identifier {
			clone := *u
			return &clone, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *memUsersRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *memUsersRepo) SetRefreshToken(ctx context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	u.RefreshToken = token
	return nil
}

func (r *memUsersRepo) UpdateRefreshTokenIfMatches(ctx context.Context, id, expected, newToken string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok || u.RefreshToken != expected {
		return false, nil
	}
	u.RefreshToken = newToken
	return true, nil
}

func (r *memUsersRepo) ClearRefreshToken(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	u.RefreshToken = ""
	return nil
}

func (r *memUsersRepo) UpdateProfile(ctx context.Context, id, fullName, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	u.FullName, u.Email = fullName, email
	return nil
}

func (r *memUsersRepo) UpdateAvatar(ctx context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	u.AvatarURL = url
	return nil
}

func (r *memUsersRepo) UpdateCover(ctx context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	u.CoverURL = url
	return nil
}

type fakeRepoManager struct {
	u users.Repository
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository           { return m.u }

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testCodec() *auth.TokenCodec {
	return auth.NewTokenCodec([]byte("access-secret"), []byte("refresh-secret"), time.Hour, 24*time.Hour)
}

func newAuthService(t *testing.T, db *sql.DB, repo users.Repository) *AuthService {
	t.Helper()
	return NewAuthService(db, &fakeRepoManager{u: repo}, auth.NewPasswordHasher(4), testCodec(), testLogger())
}

func registerAlice(t *testing.T, s *AuthService, mock sqlmock.Sqlmock) *models.SanitizedUser {
	t.Helper()
	mock.ExpectBegin()
	mock.ExpectCommit()
	u, err := s.Register(context.Background(), RegisterParams{
		FullName:  "Alice A",
		Email:     "alice@example.com",
		Username:  "Alice",
		Password:  "passw0rd",
		AvatarURL: "https://cdn/avatar.png",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	return u
}

// --- tests ---

func TestRegisterLogin_RoundTrip(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newMemUsersRepo())
	registered := registerAlice(t, s, mock)

	if registered.Username != "alice" {
		t.Fatalf("username must be lowercased, got %q", registered.Username)
	}

	user, pair, err := s.Login(context.Background(), "alice", "passw0rd")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("login returned wrong user: %+v", user)
	}

	codec := testCodec()
	for purpose, tok := range map[auth.TokenPurpose]string{
		auth.PurposeAccess:  pair.AccessToken,
		auth.PurposeRefresh: pair.RefreshToken,
	} {
		claims, err := codec.Verify(tok, purpose)
		if err != nil {
			t.Fatalf("Verify(%s) error: %v", purpose, err)
		}
		if claims.Subject != registered.ID {
			t.Fatalf("token subject mismatch: got %q want %q", claims.Subject, registered.ID)
		}
	}

	// login by email works too
	if _, _, err := s.Login(context.Background(), "alice@example.com", "passw0rd"); err != nil {
		t.Fatalf("Login by email error: %v", err)
	}
}

func TestRegisterLogin_MixedCaseEmail(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newMemUsersRepo())

	mock.ExpectBegin()
	mock.ExpectCommit()
	u, err := s.Register(context.Background(), RegisterParams{
		FullName:  "Bob B",
		Email:     "Bob@Example.com",
		Username:  "bob",
		Password:  "passw0rd",
		AvatarURL: "https://cdn/avatar.png",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if u.Email != "bob@example.com" {
		t.Fatalf("email must be stored lowercased, got %q", u.Email)
	}

	// login works no matter how the email is cased
	for _, identifier := range []string{"Bob@Example.com", "bob@example.com", "BOB@EXAMPLE.COM"} {
		if _, _, err := s.Login(context.Background(), identifier, "passw0rd"); err != nil {
			t.Fatalf("Login(%q) error: %v", identifier, err)
		}
	}

	// a re-registration differing only in email case is a conflict
	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = s.Register(context.Background(), RegisterParams{
		FullName: "Imposter", Email: "BOB@EXAMPLE.COM", Username: "bob2",
		Password: "pw", AvatarURL: "u",
	})
	if !errors.Is(err, common.ErrDuplicateUser) {
		t.Fatalf("case-variant email: want common.ErrDuplicateUser, got %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newMemUsersRepo())

	cases := []RegisterParams{
		{FullName: "  ", Email: "a@b.c", Username: "a", Password: "p", AvatarURL: "u"},
		{FullName: "A", Email: "", Username: "a", Password: "p", AvatarURL: "u"},
		{FullName: "A", Email: "a@b.c", Username: "   ", Password: "p", AvatarURL: "u"},
		{FullName: "A", Email: "a@b.c", Username: "a", Password: " ", AvatarURL: "u"},
		{FullName: "A", Email: "a@b.c", Username: "a", Password: "p", AvatarURL: ""},
	}
	for i, p := range cases {
		if _, err := s.Register(context.Background(), p); !errors.Is(err, common.ErrValidation) {
			t.Fatalf("case %d: want common.ErrValidation, got %v", i, err)
		}
	}
}

func TestRegister_Duplicates(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newMemUsersRepo())
	registerAlice(t, s, mock)

	// same username, different email
	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err := s.Register(context.Background(), RegisterParams{
		FullName: "Other", Email: "other@example.com", Username: "alice",
		Password: "pw", AvatarURL: "u",
	})
	if !errors.Is(err, common.ErrDuplicateUser) {
		t.Fatalf("duplicate username: want common.ErrDuplicateUser, got %v", err)
	}

	// same email, different username
	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = s.Register(context.Background(), RegisterParams{
		FullName: "Other", Email: "alice@example.com", Username: "bob",
		Password: "pw", AvatarURL: "u",
	})
	if !errors.Is(err, common.ErrDuplicateUser) {
		t.Fatalf("duplicate email: want common.ErrDuplicateUser, got %v", err)
	}
}

func TestLogin_IndistinguishableFailures(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newMemUsersRepo())
	registerAlice(t, s, mock)

	_, _, errUnknown := s.Login(context.Background(), "ghost", "whatever")
	_, _, errWrongPw := s.Login(context.Background(), "alice", "wrong")

	if !errors.Is(errUnknown, common.ErrInvalidCredentials) {
		t.Fatalf("unknown user: want common.ErrInvalidCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrongPw, common.ErrInvalidCredentials) {
		t.Fatalf("wrong password: want common.ErrInvalidCredentials, got %v", errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Fatalf("failure modes must be indistinguishable: %q vs %q", errUnknown, errWrongPw)
	}
}

func TestRefresh_Rotation(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newMemUsersRepo())
	registerAlice(t, s, mock)

	_, pair0, err := s.Login(context.Background(), "alice", "passw0rd")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	r0 := pair0.RefreshToken

	pair1, err := s.Refresh(context.Background(), r0)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if pair1.RefreshToken == r0 {
		t.Fatalf("rotation must produce a new refresh token")
	}

	// replaying the rotated-out value fails
	if _, err := s.Refresh(context.Background(), r0); !errors.Is(err, common.ErrStaleToken) {
		t.Fatalf("replay of r0: want common.ErrStaleToken, got %v", err)
	}

	// the current value still works
	if _, err := s.Refresh(context.Background(), pair1.RefreshToken); err != nil {
		t.Fatalf("Refresh with current token error: %v", err)
	}
}

func TestRefresh_ConcurrentRace(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newMemUsersRepo())
	registerAlice(t, s, mock)

	_, pair, err := s.Login(context.Background(), "alice", "passw0rd")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	r0 := pair.RefreshToken

	const callers = 2
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Refresh(context.Background(), r0)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, stale int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, common.ErrStaleToken):
			stale++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if successes != 1 || stale != callers-1 {
		t.Fatalf("want exactly one winner: successes=%d stale=%d", successes, stale)
	}
}

func TestRefresh_TokenErrors(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newMemUsersRepo())
	registerAlice(t, s, mock)

	_, pair, err := s.Login(context.Background(), "alice", "passw0rd")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	if _, err := s.Refresh(context.Background(), "not.a.jwt"); !errors.Is(err, common.ErrTokenMalformed) {
		t.Fatalf("malformed: want common.ErrTokenMalformed, got %v", err)
	}

	// an access token presented as a refresh token fails the signature
	// check (independent secrets)
	if _, err := s.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, common.ErrTokenInvalidSignature) {
		t.Fatalf("access-as-refresh: want common.ErrTokenInvalidSignature, got %v", err)
	}
}

func TestLogout_InvalidatesRefreshAndIsIdempotent(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newMemUsersRepo())
	u := registerAlice(t, s, mock)

	_, pair, err := s.Login(context.Background(), "alice", "passw0rd")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	if err := s.Logout(context.Background(), u.ID); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if _, err := s.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, common.ErrStaleToken) {
		t.Fatalf("after logout: want common.ErrStaleToken, got %v", err)
	}

	// double logout is a no-op success; so is logging out an unknown user
	if err := s.Logout(context.Background(), u.ID); err != nil {
		t.Fatalf("second Logout error: %v", err)
	}
	if err := s.Logout(context.Background(), "no-such-user"); err != nil {
		t.Fatalf("Logout of unknown user must be a no-op, got %v", err)
	}
}

func TestChangePassword_Flows(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	repo := newMemUsersRepo()
	s := newAuthService(t, db, repo)
	u := registerAlice(t, s, mock)

	// wrong old password: rejected, stored hash untouched
	err := s.ChangePassword(context.Background(), u.ID, "wrong", "newpass")
	if !errors.Is(err, common.ErrInvalidCredentials) {
		t.Fatalf("wrong old password: want common.ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := s.Login(context.Background(), "alice", "passw0rd"); err != nil {
		t.Fatalf("old password must still log in: %v", err)
	}

	// correct old password switches which password works
	mock.ExpectBegin()
	mock.ExpectCommit()
	if err := s.ChangePassword(context.Background(), u.ID, "passw0rd", "newpass"); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}
	if _, _, err := s.Login(context.Background(), "alice", "newpass"); err != nil {
		t.Fatalf("new password must log in: %v", err)
	}
	if _, _, err := s.Login(context.Background(), "alice", "passw0rd"); !errors.Is(err, common.ErrInvalidCredentials) {
		t.Fatalf("old password must be rejected, got %v", err)
	}
}

func TestChangePassword_RevokesSession(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newMemUsersRepo())
	u := registerAlice(t, s, mock)

	_, pair, err := s.Login(context.Background(), "alice", "passw0rd")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectCommit()
	if err := s.ChangePassword(context.Background(), u.ID, "passw0rd", "newpass"); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}
	if _, err := s.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, common.ErrStaleToken) {
		t.Fatalf("refresh after password change: want common.ErrStaleToken, got %v", err)
	}
}

func TestSanitization_NoCredentialMaterial(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	s := newAuthService(t, db, newMemUsersRepo())
	registerAlice(t, s, mock)

	user, _, err := s.Login(context.Background(), "alice", "passw0rd")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	// the projection type itself must have no credential fields; the JSON
	// form is what ultimately leaves the server
	b, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	for _, banned := range []string{"password", "passwordHash", "refreshToken", "refresh_token"} {
		if strings.Contains(string(b), banned) {
			t.Fatalf("sanitized user leaks %q: %s", banned, b)
		}
	}
}
