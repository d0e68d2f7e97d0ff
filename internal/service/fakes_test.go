package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// memStore is an in-memory stand-in for the SQLite repositories. It keeps
// the same uniqueness rules and error kinds so services see the behaviour
// they get in production.
type memStore struct {
	mu sync.Mutex

	users       map[int64]*model.User
	ingredients map[int64]model.Ingredient
	recipes     map[int64]*model.Recipe
	links       map[int64]map[int64]int // recipe -> ingredient -> amount
	relations   map[model.RelationKind]map[[2]int64]bool
	subs        map[[2]int64]bool
	nextID      int64

	// hasRelationLies makes HasRelation report absent, simulating a
	// concurrent add that slipped past the fast-path check.
	hasRelationLies bool
	// failNext makes the next write return this error.
	failNext error
}

var (
	_ repository.UserRepository         = (*memStore)(nil)
	_ repository.IngredientRepository   = (*memStore)(nil)
	_ repository.RecipeRepository       = (*memStore)(nil)
	_ repository.RelationRepository     = (*memStore)(nil)
	_ repository.SubscriptionRepository = (*memStore)(nil)
	_ repository.ShoppingRepository     = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[int64]*model.User),
		ingredients: make(map[int64]model.Ingredient),
		recipes:     make(map[int64]*model.Recipe),
		links:       make(map[int64]map[int64]int),
		relations: map[model.RelationKind]map[[2]int64]bool{
			model.RelationFavorite: {},
			model.RelationCart:     {},
		},
		subs: make(map[[2]int64]bool),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

// ---- users ----

func (m *memStore) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	for _, other := range m.users {
		if strings.EqualFold(other.Email, u.Email) {
			return apperror.AlreadyExists("a user with this email already exists")
		}
		if other.Username == u.Username {
			return apperror.AlreadyExists("a user with this username already exists")
		}
	}
	u.ID = m.id()
	u.Touch(time.Now())
	stored := *u
	m.users[u.ID] = &stored
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFoundMessage("user not found with this email")
}

func (m *memStore) ListUsers(_ context.Context, opts repository.ListOptions) ([]model.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	return page(all, opts), len(all), nil
}

func (m *memStore) UpsertGitHubUser(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	if err := m.takeFailure(); err != nil {
		m.mu.Unlock()
		return err
	}
	for _, existing := range m.users {
		if existing.GitHubID == u.GitHubID {
			*u = *existing
			m.mu.Unlock()
			return nil
		}
	}
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			existing.GitHubID = u.GitHubID
			*u = *existing
			m.mu.Unlock()
			return nil
		}
	}
	m.mu.Unlock()
	return m.CreateUser(ctx, u)
}

func (m *memStore) UpdateAvatar(_ context.Context, id int64, avatar string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Avatar = avatar
	return nil
}

func (m *memStore) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.PasswordHash = hash
	return nil
}

// ---- ingredients ----

func (m *memStore) addIngredient(name, unit string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.ingredients[id] = model.Ingredient{ID: id, Name: name, MeasurementUnit: unit}
	return id
}

func (m *memStore) ExistingIngredientIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, ok := m.ingredients[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (m *memStore) CreateIngredients(_ context.Context, items []model.Ingredient) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
outer:
	for _, it := range items {
		for _, existing := range m.ingredients {
			if existing.Name == it.Name && existing.MeasurementUnit == it.MeasurementUnit {
				continue outer
			}
		}
		it.ID = m.id()
		m.ingredients[it.ID] = it
		inserted++
	}
	return inserted, nil
}

func (m *memStore) GetIngredient(_ context.Context, id int64) (*model.Ingredient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.ingredients[id]
	if !ok {
		return nil, apperror.NotFound("ingredient", id)
	}
	return &it, nil
}

func (m *memStore) SearchIngredients(_ context.Context, prefix string) ([]model.Ingredient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Ingredient
	for _, it := range m.ingredients {
		if strings.HasPrefix(it.Name, prefix) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---- recipes ----

func (m *memStore) nameTaken(authorID int64, name string, exceptID int64) bool {
	for _, r := range m.recipes {
		if r.ID != exceptID && r.IsAuthoredBy(authorID) && r.Name == name {
			return true
		}
	}
	return false
}

func (m *memStore) replaceLinks(recipeID int64, ingredients map[int64]int) error {
	for id := range ingredients {
		if _, ok := m.ingredients[id]; !ok {
			return apperror.MissingReferences("ingredients", "ingredient", []int64{id})
		}
	}
	links := make(map[int64]int, len(ingredients))
	for id, amount := range ingredients {
		links[id] = amount
	}
	m.links[recipeID] = links
	return nil
}

func (m *memStore) CreateRecipe(_ context.Context, r *model.Recipe, ingredients map[int64]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if r.AuthorID != nil && m.nameTaken(*r.AuthorID, r.Name, 0) {
		return apperror.Conflict("recipe", "you already have a recipe with this name")
	}
	r.ID = m.id()
	r.Touch(time.Now())
	if err := m.replaceLinks(r.ID, ingredients); err != nil {
		r.ID = 0
		return err
	}
	stored := *r
	m.recipes[r.ID] = &stored
	return nil
}

func (m *memStore) UpdateRecipe(_ context.Context, r *model.Recipe, ingredients map[int64]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.recipes[r.ID]; !ok {
		return apperror.NotFound("recipe", r.ID)
	}
	if err := m.replaceLinks(r.ID, ingredients); err != nil {
		return err
	}
	r.Touch(time.Now())
	stored := *r
	m.recipes[r.ID] = &stored
	return nil
}

func (m *memStore) GetRecipe(_ context.Context, id int64) (*model.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[id]
	if !ok {
		return nil, apperror.NotFound("recipe", id)
	}
	copied := *r
	return &copied, nil
}

func (m *memStore) DeleteRecipe(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recipes[id]; !ok {
		return apperror.NotFound("recipe", id)
	}
	delete(m.recipes, id)
	delete(m.links, id)
	for _, rel := range m.relations {
		for k := range rel {
			if k[1] == id {
				delete(rel, k)
			}
		}
	}
	return nil
}

func (m *memStore) sortedRecipes(keep func(*model.Recipe) bool) []model.Recipe {
	var out []model.Recipe
	for _, r := range m.recipes {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memStore) ListRecipes(_ context.Context, f repository.RecipeFilter) ([]model.Recipe, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sortedRecipes(func(r *model.Recipe) bool {
		if f.AuthorID != 0 && !r.IsAuthoredBy(f.AuthorID) {
			return false
		}
		key := [2]int64{f.ViewerID, r.ID}
		if f.ViewerID != 0 && f.Favorited != nil && m.relations[model.RelationFavorite][key] != *f.Favorited {
			return false
		}
		if f.ViewerID != 0 && f.InCart != nil && m.relations[model.RelationCart][key] != *f.InCart {
			return false
		}
		return true
	})
	return page(all, f.ListOptions), len(all), nil
}

func (m *memStore) ListRecipesByAuthor(_ context.Context, authorID int64, limit int) ([]model.Recipe, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sortedRecipes(func(r *model.Recipe) bool { return r.IsAuthoredBy(authorID) })
	total := len(all)
	if limit > 0 && limit < total {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *memStore) RecipeIngredients(_ context.Context, recipeID int64) ([]model.IngredientAmount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.IngredientAmount
	for id, amount := range m.links[recipeID] {
		it := m.ingredients[id]
		out = append(out, model.IngredientAmount{ID: id, Name: it.Name, MeasurementUnit: it.MeasurementUnit, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) RecipeNameTaken(_ context.Context, authorID int64, name string, exceptID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nameTaken(authorID, name, exceptID), nil
}

func (m *memStore) Flags(_ context.Context, viewerID int64, ids []int64) (map[int64]model.RecipeFlags, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]model.RecipeFlags, len(ids))
	for _, id := range ids {
		key := [2]int64{viewerID, id}
		out[id] = model.RecipeFlags{
			Favorited: m.relations[model.RelationFavorite][key],
			InCart:    m.relations[model.RelationCart][key],
		}
	}
	return out, nil
}

// ---- relations ----

func (m *memStore) HasRelation(_ context.Context, kind model.RelationKind, userID, recipeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasRelationLies {
		return false, nil
	}
	return m.relations[kind][[2]int64{userID, recipeID}], nil
}

func (m *memStore) AddRelation(_ context.Context, kind model.RelationKind, userID, recipeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	key := [2]int64{userID, recipeID}
	if m.relations[kind][key] {
		return apperror.AlreadyExists(fmt.Sprintf("recipe is already in your %s", kind.Label()))
	}
	m.relations[kind][key] = true
	return nil
}

func (m *memStore) RemoveRelation(_ context.Context, kind model.RelationKind, userID, recipeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]int64{userID, recipeID}
	if !m.relations[kind][key] {
		return false, nil
	}
	delete(m.relations[kind], key)
	return true, nil
}

// ---- subscriptions ----

func (m *memStore) IsSubscribed(_ context.Context, subscriberID, authorID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return false, err
	}
	return m.subs[[2]int64{subscriberID, authorID}], nil
}

func (m *memStore) Subscribe(_ context.Context, subscriberID, authorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subscriberID == authorID {
		return apperror.SelfReference("you cannot subscribe to yourself")
	}
	key := [2]int64{subscriberID, authorID}
	if m.subs[key] {
		return apperror.AlreadyExists("you are already subscribed to this user")
	}
	m.subs[key] = true
	return nil
}

func (m *memStore) Unsubscribe(_ context.Context, subscriberID, authorID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return false, err
	}
	key := [2]int64{subscriberID, authorID}
	if !m.subs[key] {
		return false, nil
	}
	delete(m.subs, key)
	return true, nil
}

func (m *memStore) SubscribedAuthors(_ context.Context, subscriberID int64, opts repository.ListOptions) ([]model.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.User
	for key := range m.subs {
		if key[0] == subscriberID {
			all = append(all, *m.users[key[1]])
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	return page(all, opts), len(all), nil
}

func (m *memStore) SubscribedAmong(_ context.Context, subscriberID int64, authorIDs []int64) (map[int64]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]bool)
	for _, id := range authorIDs {
		if m.subs[[2]int64{subscriberID, id}] {
			out[id] = true
		}
	}
	return out, nil
}

// ---- shopping ----

func (m *memStore) CartRecipes(_ context.Context, userID int64) ([]model.CartRecipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.CartRecipe
	for key := range m.relations[model.RelationCart] {
		if key[0] != userID {
			continue
		}
		r := m.recipes[key[1]]
		author := ""
		if r.AuthorID != nil {
			if u, ok := m.users[*r.AuthorID]; ok {
				author = u.Username
			}
		}
		out = append(out, model.CartRecipe{ID: r.ID, Name: r.Name, AuthorName: author})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) IngredientLines(_ context.Context, recipeIDs []int64) ([]model.IngredientLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.IngredientLine
	for _, rid := range recipeIDs {
		for id, amount := range m.links[rid] {
			it := m.ingredients[id]
			out = append(out, model.IngredientLine{RecipeID: rid, Name: it.Name, MeasurementUnit: it.MeasurementUnit, Amount: amount})
		}
	}
	return out, nil
}

func page[T any](all []T, opts repository.ListOptions) []T {
	if opts.Offset >= len(all) {
		return []T{}
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all
}

// fakeMedia records what the services ask of the media store.
type fakeMedia struct {
	saved      []string
	deleted    []string
	thumbnails []string
	saveErr    error
	thumbErr   error
	n          int
}

func (f *fakeMedia) SaveDataURI(kind, field, dataURI string) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	if !strings.HasPrefix(dataURI, "data:image/") {
		return "", apperror.Schema(field, "image must be a data URI")
	}
	f.n++
	rel := fmt.Sprintf("%s/file%d.png", kind, f.n)
	f.saved = append(f.saved, rel)
	return rel, nil
}

func (f *fakeMedia) Thumbnail(rel string) error {
	f.thumbnails = append(f.thumbnails, rel)
	return f.thumbErr
}

func (f *fakeMedia) Delete(rel string) error {
	if rel != "" {
		f.deleted = append(f.deleted, rel)
	}
	return nil
}

func (f *fakeMedia) URL(rel string) string {
	if rel == "" {
		return ""
	}
	return "/media/" + rel
}

var errDatabaseDown = errors.New("database is on fire")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (m *memStore) addUser(username string) int64 {
	u := &model.User{Email: username + "@example.com", Username: username}
	if err := m.CreateUser(context.Background(), u); err != nil {
		panic(err)
	}
	return u.ID
}

func (m *memStore) addRecipe(authorID int64, name string, links map[int64]int) int64 {
	r := &model.Recipe{AuthorID: &authorID, Name: name, Text: "text", CookingTime: 10, Image: "recipes/images/" + name + ".png"}
	if err := m.CreateRecipe(context.Background(), r, links); err != nil {
		panic(err)
	}
	return r.ID
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func ptr[T any](v T) *T {
	return &v
}
