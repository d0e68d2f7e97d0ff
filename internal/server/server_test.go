package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/foodgram/internal/auth"
	"github.com/sakif/foodgram/internal/config"
	"github.com/sakif/foodgram/internal/model"
)

func init() {
	newPasswordService = func() *auth.PasswordService {
		return auth.NewPasswordServiceForTest(bcrypt.MinCost)
	}
}

type testServer struct {
	t       *testing.T
	srv     *Server
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = ":memory:"
	cfg.Media.Dir = t.TempDir()
	cfg.Auth.JWTSecret = "server-test-secret-0123456789"
	cfg.Security.RateLimitDisabled = true

	srv, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	return &testServer{t: t, srv: srv, handler: srv.Handler()}
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// signUp registers a user, logs in and returns the id and token.
func (ts *testServer) signUp(username string) (int64, string) {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/users", "", map[string]string{
		"email":      username + "@example.com",
		"username":   username,
		"first_name": strings.ToUpper(username[:1]) + username[1:],
		"last_name":  "Cook",
		"password":   "long-enough-1",
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode[map[string]any](ts.t, rec)

	rec = ts.do(http.MethodPost, "/api/auth/token/login", "", map[string]string{
		"email":    username + "@example.com",
		"password": "long-enough-1",
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	token := decode[map[string]string](ts.t, rec)["auth_token"]
	require.NotEmpty(ts.t, token)

	return int64(user["id"].(float64)), token
}

func (ts *testServer) seedIngredients(names ...string) map[string]int64 {
	ts.t.Helper()
	items := make([]model.Ingredient, len(names))
	for i, n := range names {
		items[i] = model.Ingredient{Name: n, MeasurementUnit: "g"}
	}
	_, err := ts.srv.db.CreateIngredients(context.Background(), items)
	require.NoError(ts.t, err)

	all, err := ts.srv.db.SearchIngredients(context.Background(), "")
	require.NoError(ts.t, err)
	ids := make(map[string]int64, len(all))
	for _, it := range all {
		ids[it.Name] = it.ID
	}
	return ids
}

func pngDataURI(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func (ts *testServer) createRecipe(token, name string, ingredients []map[string]any) *httptest.ResponseRecorder {
	ts.t.Helper()
	return ts.do(http.MethodPost, "/api/recipes", token, map[string]any{
		"name":         name,
		"text":         "Mix and bake.",
		"cooking_time": 25,
		"image":        pngDataURI(ts.t),
		"ingredients":  ingredients,
	})
}

func recipePath(id int64, suffix string) string {
	return "/api/recipes/" + strconv.FormatInt(id, 10) + suffix
}

// =========================================================================
// TESTS
// =========================================================================

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = ts.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "foodgram_http_requests_total")
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)
	aliceID, token := ts.signUp("alice")

	rec := ts.do(http.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[model.UserView](t, rec)
	assert.Equal(t, aliceID, me.ID)
	assert.False(t, me.IsSubscribed)

	rec = ts.do(http.MethodPost, "/api/auth/token/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/api/users", "", map[string]string{
		"email": "ALICE@example.com", "username": "alice2", "first_name": "A",
		"last_name": "B", "password": "long-enough-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "email is unique regardless of case")

	rec = ts.do(http.MethodPost, "/api/users", "", map[string]string{
		"email": "me@example.com", "username": "me", "first_name": "A",
		"last_name": "B", "password": "long-enough-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reserved username")

	rec = ts.do(http.MethodPost, "/api/users/set_password", token, map[string]string{
		"current_password": "long-enough-1", "new_password": "even-longer-2",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodPost, "/api/auth/token/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), auth.CookieName+"=;")
}

func TestRecipeLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ids := ts.seedIngredients("flour", "sugar", "eggs")
	_, alice := ts.signUp("alice")
	_, bob := ts.signUp("bob")

	rec := ts.createRecipe(alice, "  pancakes ", []map[string]any{
		{"id": ids["flour"], "amount": 200},
		{"id": ids["eggs"], "amount": 2},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.RecipeView](t, rec)
	assert.Equal(t, "Pancakes", created.Name)
	assert.Len(t, created.Ingredients, 2)
	assert.True(t, strings.HasPrefix(created.Image, "/media/recipes/images/"))

	// The stored image is served under /media.
	rec = ts.do(http.MethodGet, created.Image, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	t.Run("duplicate name conflicts", func(t *testing.T) {
		rec := ts.createRecipe(alice, "Pancakes", []map[string]any{{"id": ids["sugar"], "amount": 1}})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("ingredient errors carry field and ids", func(t *testing.T) {
		rec := ts.createRecipe(alice, "Waffles", []map[string]any{
			{"id": ids["flour"], "amount": 1},
			{"id": ids["flour"], "amount": 2},
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode[map[string]any](t, rec)
		assert.Equal(t, "duplicate_error", body["error"])
		assert.Equal(t, "ingredients", body["field"])

		rec = ts.createRecipe(alice, "Waffles", []map[string]any{{"id": 999, "amount": 1}})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body = decode[map[string]any](t, rec)
		assert.Equal(t, "not_found", body["error"])
		assert.Equal(t, []any{float64(999)}, body["ids"])

		rec = ts.createRecipe(alice, "Waffles", []map[string]any{{"id": ids["flour"], "amount": 2.5}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("only the author may update", func(t *testing.T) {
		body := map[string]any{"ingredients": []map[string]any{{"id": ids["sugar"], "amount": 50}}}
		rec := ts.do(http.MethodPatch, recipePath(created.ID, ""), bob, body)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = ts.do(http.MethodPatch, recipePath(created.ID, ""), alice, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		updated := decode[model.RecipeView](t, rec)
		require.Len(t, updated.Ingredients, 1)
		assert.Equal(t, "sugar", updated.Ingredients[0].Name)
		assert.Equal(t, 50, updated.Ingredients[0].Amount)
	})

	t.Run("short link redirects", func(t *testing.T) {
		rec := ts.do(http.MethodGet, recipePath(created.ID, "/get-link"), "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		link := decode[map[string]string](t, rec)["short-link"]
		assert.True(t, strings.HasSuffix(link, "/s/"+strconv.FormatInt(created.ID, 10)), link)

		rec = ts.do(http.MethodGet, "/s/"+strconv.FormatInt(created.ID, 10), "", nil)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/recipes/"+strconv.FormatInt(created.ID, 10), rec.Header().Get("Location"))

		rec = ts.do(http.MethodGet, "/s/424242", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := ts.do(http.MethodDelete, recipePath(created.ID, ""), bob, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = ts.do(http.MethodDelete, recipePath(created.ID, ""), alice, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = ts.do(http.MethodGet, recipePath(created.ID, ""), "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestFavoritesCartAndShoppingList(t *testing.T) {
	ts := newTestServer(t)
	ids := ts.seedIngredients("flour", "milk")
	_, alice := ts.signUp("alice")
	_, bob := ts.signUp("bob")

	rec := ts.createRecipe(alice, "Pancakes", []map[string]any{
		{"id": ids["flour"], "amount": 200},
		{"id": ids["milk"], "amount": 300},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pancakes := decode[model.RecipeView](t, rec)

	rec = ts.createRecipe(alice, "Crepes", []map[string]any{{"id": ids["flour"], "amount": 100}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	crepes := decode[model.RecipeView](t, rec)

	// Favorite toggle.
	rec = ts.do(http.MethodPost, recipePath(pancakes.ID, "/favorite"), bob, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	short := decode[model.ShortRecipe](t, rec)
	assert.Equal(t, "Pancakes", short.Name)

	rec = ts.do(http.MethodPost, recipePath(pancakes.ID, "/favorite"), bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/recipes?is_favorited=1", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Count   int                `json:"count"`
		Results []model.RecipeView `json:"results"`
	}](t, rec)
	assert.Equal(t, 1, page.Count)
	assert.True(t, page.Results[0].IsFavorited)

	rec = ts.do(http.MethodGet, "/api/recipes?is_favorited=1", "", nil)
	assert.Equal(t, float64(2), decode[map[string]any](t, rec)["count"], "filter ignored for anonymous")

	rec = ts.do(http.MethodDelete, recipePath(pancakes.ID, "/favorite"), bob, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(http.MethodDelete, recipePath(pancakes.ID, "/favorite"), bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Shopping list.
	rec = ts.do(http.MethodGet, "/api/recipes/download_shopping_cart", bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty cart")

	for _, id := range []int64{pancakes.ID, crepes.ID} {
		rec = ts.do(http.MethodPost, recipePath(id, "/shopping_cart"), bob, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = ts.do(http.MethodGet, "/api/recipes/download_shopping_cart", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "shopping_cart.txt")
	report := rec.Body.String()
	assert.Contains(t, report, "1. Flour (g): 300\n")
	assert.Contains(t, report, "2. Milk (g): 300\n")
	assert.Contains(t, report, "- Pancakes (alice)\n")
}

func TestSubscriptions(t *testing.T) {
	ts := newTestServer(t)
	ids := ts.seedIngredients("flour")
	aliceID, alice := ts.signUp("alice")
	bobID, bob := ts.signUp("bob")

	for _, name := range []string{"Bread", "Buns", "Rolls"} {
		rec := ts.createRecipe(alice, name, []map[string]any{{"id": ids["flour"], "amount": 500}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	alicePath := "/api/users/" + strconv.FormatInt(aliceID, 10)

	rec := ts.do(http.MethodPost, "/api/users/"+strconv.FormatInt(bobID, 10)+"/subscribe", bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "self subscription")

	rec = ts.do(http.MethodPost, alicePath+"/subscribe?recipes_limit=2", bob, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	author := decode[model.AuthorView](t, rec)
	assert.True(t, author.IsSubscribed)
	assert.Len(t, author.Recipes, 2)
	assert.Equal(t, 3, author.RecipesCount)

	rec = ts.do(http.MethodPost, alicePath+"/subscribe", bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "already subscribed")

	rec = ts.do(http.MethodGet, alicePath, bob, nil)
	assert.True(t, decode[model.UserView](t, rec).IsSubscribed)
	rec = ts.do(http.MethodGet, alicePath, "", nil)
	assert.False(t, decode[model.UserView](t, rec).IsSubscribed)

	rec = ts.do(http.MethodGet, "/api/users/subscriptions?recipes_limit=1", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	subs := decode[struct {
		Count   int                `json:"count"`
		Results []model.AuthorView `json:"results"`
	}](t, rec)
	require.Equal(t, 1, subs.Count)
	assert.Len(t, subs.Results[0].Recipes, 1)

	rec = ts.do(http.MethodDelete, alicePath+"/subscribe", bob, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(http.MethodDelete, alicePath+"/subscribe", bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvatar(t *testing.T) {
	ts := newTestServer(t)
	_, alice := ts.signUp("alice")

	rec := ts.do(http.MethodPut, "/api/users/me/avatar", alice, map[string]string{"avatar": pngDataURI(t)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	url := decode[map[string]string](t, rec)["avatar"]
	assert.True(t, strings.HasPrefix(url, "/media/users/avatars/"))

	rec = ts.do(http.MethodPut, "/api/users/me/avatar", alice, map[string]string{"avatar": "not a data uri"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/users/me/avatar", alice, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(http.MethodDelete, "/api/users/me/avatar", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngredients(t *testing.T) {
	ts := newTestServer(t)
	ids := ts.seedIngredients("flour", "fennel", "milk")

	rec := ts.do(http.MethodGet, "/api/ingredients?name=F", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]model.Ingredient](t, rec)
	require.Len(t, items, 2)
	assert.Equal(t, "fennel", items[0].Name)

	rec = ts.do(http.MethodGet, "/api/ingredients/"+strconv.FormatInt(ids["milk"], 10), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/api/ingredients/999", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
