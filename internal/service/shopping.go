package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/template"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sakif/foodgram/internal/apperror"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
)

// ShoppingListFilename is the attachment name of the downloaded report.
const ShoppingListFilename = "shopping_cart.txt"

// =========================================================================
// AGGREGATION
// =========================================================================

// AggregateShoppingList sums ingredient amounts across the cart's recipes,
// grouped by (name, unit), and collects the distinct recipe/author pairs.
// Items are sorted by name, then unit.
func AggregateShoppingList(recipes []model.CartRecipe, lines []model.IngredientLine, now time.Time) (*model.ShoppingList, error) {
	if len(recipes) == 0 {
		return nil, apperror.EmptyCart()
	}

	type key struct{ name, unit string }
	totals := make(map[key]int)
	for _, l := range lines {
		totals[key{l.Name, l.MeasurementUnit}] += l.Amount
	}

	items := make([]model.ShoppingItem, 0, len(totals))
	for k, total := range totals {
		items = append(items, model.ShoppingItem{
			Name:            k.name,
			MeasurementUnit: k.unit,
			TotalAmount:     total,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].MeasurementUnit < items[j].MeasurementUnit
	})

	type pair struct{ recipe, author string }
	seen := make(map[pair]bool, len(recipes))
	pairs := make([]model.CartRecipe, 0, len(recipes))
	for _, r := range recipes {
		p := pair{r.Name, r.AuthorName}
		if seen[p] {
			continue
		}
		seen[p] = true
		pairs = append(pairs, r)
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Name != pairs[j].Name {
			return pairs[i].Name < pairs[j].Name
		}
		return pairs[i].AuthorName < pairs[j].AuthorName
	})

	return &model.ShoppingList{
		Items:       items,
		Recipes:     pairs,
		GeneratedAt: now,
	}, nil
}

// =========================================================================
// TEXT REPORT
// =========================================================================

var shoppingListTemplate = template.Must(template.New("shopping_list").Funcs(template.FuncMap{
	"capitalize": capitalize,
	"inc":        func(i int) int { return i + 1 },
	"author": func(name string) string {
		if name == "" {
			return "deleted user"
		}
		return name
	},
}).Parse(`Foodgram shopping list
Generated: {{.GeneratedAt.Format "2006-01-02"}}
{{range $i, $item := .Items}}{{inc $i}}. {{capitalize $item.Name}} ({{$item.MeasurementUnit}}): {{$item.TotalAmount}}
{{end}}
{{range .Recipes}}- {{.Name}} ({{author .AuthorName}})
{{end}}Happy cooking!
`))

// RenderShoppingList writes the plain-text report for list.
func RenderShoppingList(w io.Writer, list *model.ShoppingList) error {
	if err := shoppingListTemplate.Execute(w, list); err != nil {
		return fmt.Errorf("service/shopping: rendering list: %w", err)
	}
	return nil
}

// capitalize upper-cases the first letter. Catalog names are stored
// lowercased, so "wheat flour" becomes "Wheat flour".
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// =========================================================================
// SERVICE
// =========================================================================

type ShoppingListService struct {
	repo   repository.ShoppingRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewShoppingListService(repo repository.ShoppingRepository, logger *slog.Logger) *ShoppingListService {
	return &ShoppingListService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Build aggregates the user's current cart.
func (s *ShoppingListService) Build(ctx context.Context, userID int64) (*model.ShoppingList, error) {
	recipes, err := s.repo.CartRecipes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/shopping: loading cart of user %d: %w", userID, err)
	}
	if len(recipes) == 0 {
		return nil, apperror.EmptyCart()
	}

	ids := make([]int64, len(recipes))
	for i, r := range recipes {
		ids[i] = r.ID
	}
	lines, err := s.repo.IngredientLines(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("service/shopping: loading ingredients of user %d: %w", userID, err)
	}

	list, err := AggregateShoppingList(recipes, lines, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Debug("shopping list built",
		slog.Int64("userID", userID),
		slog.Int("recipes", len(recipes)),
		slog.Int("items", len(list.Items)),
	)
	return list, nil
}
