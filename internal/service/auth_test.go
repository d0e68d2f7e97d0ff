package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/auth"
)

// newTestAuthService returns an AuthService wired with fake dependencies.
// bcrypt cost 4 keeps the tests fast.
func newTestAuthService(t *testing.T, store *memStore) *AuthService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewAuthService(store, ts, auth.NewPasswordServiceForTest(4), discardLogger())
}

func registerTestUser(t *testing.T, store *memStore, email, password string) int64 {
	t.Helper()
	users := NewUserService(store, store, auth.NewPasswordServiceForTest(4), &fakeMedia{}, discardLogger())
	u, err := users.Register(context.Background(), RegisterInput{
		Email:     email,
		Username:  strings.Split(email, "@")[0],
		FirstName: "Test",
		LastName:  "User",
		Password:  password,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return u.ID
}

// =========================================================================
// Login TESTS
// =========================================================================

func TestLogin_Success(t *testing.T) {
	store := newMemStore()
	id := registerTestUser(t, store, "cook@example.com", "s3cret-pass")
	svc := newTestAuthService(t, store)

	result, err := svc.Login(context.Background(), "  cook@example.com ", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.ID != id {
		t.Errorf("User.ID = %d, want %d", result.User.ID, id)
	}

	got, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if got != id {
		t.Errorf("token subject = %d, want %d", got, id)
	}
}

func TestLogin_BadCredentialsLookTheSame(t *testing.T) {
	store := newMemStore()
	registerTestUser(t, store, "cook@example.com", "s3cret-pass")
	svc := newTestAuthService(t, store)

	_, wrongPassword := svc.Login(context.Background(), "cook@example.com", "nope")
	_, unknownEmail := svc.Login(context.Background(), "ghost@example.com", "s3cret-pass")

	for _, err := range []error{wrongPassword, unknownEmail} {
		if !errors.Is(err, apperror.ErrUnauthorized) {
			t.Fatalf("Login() error = %v, want ErrUnauthorized", err)
		}
	}
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Errorf("messages differ: %q vs %q", wrongPassword, unknownEmail)
	}
}

func TestLogin_GitHubOnlyAccountHasNoPassword(t *testing.T) {
	store := newMemStore()
	svc := newTestAuthService(t, store)

	if _, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID: 1, Login: "octo", Email: "octo@example.com",
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := svc.Login(context.Background(), "octo@example.com", "")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("Login() error = %v, want ErrUnauthorized", err)
	}
}

// =========================================================================
// LoginOrRegisterGitHub TESTS
// =========================================================================

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	store := newMemStore()
	svc := newTestAuthService(t, store)

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID:    42,
		Login: "octocat",
		Name:  "Mona Lisa Octocat",
		Email: "Octocat@GitHub.com",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if result.Token == "" {
		t.Fatal("LoginOrRegisterGitHub() returned empty Token")
	}

	u := result.User
	if u.ID == 0 {
		t.Error("User.ID should be set after upsert")
	}
	if u.Username != "octocat" || u.Email != "octocat@github.com" {
		t.Errorf("user = %q <%s>, want octocat <octocat@github.com>", u.Username, u.Email)
	}
	if u.FirstName != "Mona" || u.LastName != "Lisa Octocat" {
		t.Errorf("name = %q %q, want Mona / Lisa Octocat", u.FirstName, u.LastName)
	}
}

func TestLoginOrRegisterGitHub_SecondLoginReusesAccount(t *testing.T) {
	store := newMemStore()
	svc := newTestAuthService(t, store)
	gh := &auth.GitHubUser{ID: 99, Login: "octo", Email: "octo@example.com"}

	first, err := svc.LoginOrRegisterGitHub(context.Background(), gh)
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := svc.LoginOrRegisterGitHub(context.Background(), gh)
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if first.User.ID != second.User.ID {
		t.Errorf("second login created user %d, want %d", second.User.ID, first.User.ID)
	}
}

func TestLoginOrRegisterGitHub_LinksExistingEmail(t *testing.T) {
	store := newMemStore()
	id := registerTestUser(t, store, "cook@example.com", "s3cret-pass")
	svc := newTestAuthService(t, store)

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID: 7, Login: "someone-else", Email: "cook@example.com",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if result.User.ID != id {
		t.Errorf("linked user = %d, want %d", result.User.ID, id)
	}
}

func TestLoginOrRegisterGitHub_PrivateEmailAndTakenUsername(t *testing.T) {
	store := newMemStore()
	registerTestUser(t, store, "octo@example.com", "s3cret-pass")
	svc := newTestAuthService(t, store)

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 5, Login: "octo"})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if result.User.Username != "octo-5" {
		t.Errorf("Username = %q, want octo-5", result.User.Username)
	}
	if result.User.Email != "5+octo@users.noreply.github.com" {
		t.Errorf("Email = %q, want the noreply address", result.User.Email)
	}
}

func TestLoginOrRegisterGitHub_NilGitHubUser(t *testing.T) {
	svc := newTestAuthService(t, newMemStore())

	if _, err := svc.LoginOrRegisterGitHub(context.Background(), nil); err == nil {
		t.Fatal("LoginOrRegisterGitHub() should return error for nil GitHubUser")
	}
}

func TestLoginOrRegisterGitHub_RepositoryError(t *testing.T) {
	store := newMemStore()
	store.failNext = errDatabaseDown
	svc := newTestAuthService(t, store)

	_, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "user"})
	if !errors.Is(err, errDatabaseDown) {
		t.Fatalf("error = %v, want the repository error", err)
	}
}

// =========================================================================
// GetUserByID / ValidateToken TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	store := newMemStore()
	id := registerTestUser(t, store, "cook@example.com", "s3cret-pass")
	svc := newTestAuthService(t, store)

	user, err := svc.GetUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Username != "cook" {
		t.Errorf("Username = %q, want cook", user.Username)
	}

	if _, err := svc.GetUserByID(context.Background(), 0); err == nil {
		t.Error("GetUserByID(0) should fail")
	}
	if _, err := svc.GetUserByID(context.Background(), 404); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID(404) error = %v, want ErrNotFound", err)
	}
}

func TestValidateToken_InvalidToken(t *testing.T) {
	svc := newTestAuthService(t, newMemStore())

	if _, err := svc.ValidateToken("this.is.garbage"); err == nil {
		t.Fatal("ValidateToken() should return error for garbage token")
	}
}

func TestTokenTTL(t *testing.T) {
	svc := newTestAuthService(t, newMemStore())
	if got := svc.TokenTTL(); got != 3600 {
		t.Errorf("TokenTTL() = %d, want 3600", got)
	}
}
