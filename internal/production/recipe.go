package production

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gravitas-games/prodsim/internal/catalog"
	"github.com/gravitas-games/prodsim/internal/storage"
)

var (
	// ErrRecipeNotFound is returned when a recipe name is not registered.
	ErrRecipeNotFound = errors.New("production: recipe not found")
	// ErrInvalidRecipe is returned for recipes with negative amounts or
	// durations.
	ErrInvalidRecipe = errors.New("production: invalid recipe")
)

// Bundle is an amount of one resource.
type Bundle struct {
	Resource catalog.ResourceID `json:"resource" yaml:"resource"`
	Amount   int                `json:"amount" yaml:"amount"`
}

// Recipe defines one production cycle. An input with Amount 0 lets the
// resource through a building's drop zone without consuming it.
type Recipe struct {
	Name                  string             `json:"name"`
	Output                catalog.ResourceID `json:"output"`
	Inputs                []Bundle           `json:"inputs,omitempty"`
	ProductionTimeSeconds float64            `json:"productionTimeSeconds"`
}

// NewRecipe validates and builds a recipe. Inputs are copied.
func NewRecipe(name string, output catalog.ResourceID, seconds float64, inputs ...Bundle) (Recipe, error) {
	if seconds < 0 {
		return Recipe{}, fmt.Errorf("%w: %q: production time cannot be negative", ErrInvalidRecipe, name)
	}
	for i, in := range inputs {
		if in.Amount < 0 {
			return Recipe{}, fmt.Errorf("%w: %q: input %d: amount cannot be negative", ErrInvalidRecipe, name, i)
		}
	}
	r := Recipe{
		Name:                  name,
		Output:                output,
		ProductionTimeSeconds: seconds,
	}
	if len(inputs) > 0 {
		r.Inputs = append([]Bundle(nil), inputs...)
	}
	return r, nil
}

// MustRecipe is NewRecipe for static tables; it panics on error.
func MustRecipe(name string, output catalog.ResourceID, seconds float64, inputs ...Bundle) Recipe {
	r, err := NewRecipe(name, output, seconds, inputs...)
	if err != nil {
		panic(err)
	}
	return r
}

// HasInputs reports whether the recipe lists any input, including
// zero-amount ones.
func (r Recipe) HasInputs() bool {
	return len(r.Inputs) > 0
}

// HasOutput reports whether a cycle produces a unit.
func (r Recipe) HasOutput() bool {
	return r.Output != catalog.NoResource
}

// TotalInputUnits sums the input amounts.
func (r Recipe) TotalInputUnits() int {
	total := 0
	for _, in := range r.Inputs {
		total += in.Amount
	}
	return total
}

// ForEachInput visits inputs in declaration order.
func (r Recipe) ForEachInput(visit func(id catalog.ResourceID, amount int)) {
	for _, in := range r.Inputs {
		visit(in.Resource, in.Amount)
	}
}

// InputFilter admits only the recipe's input resources.
func InputFilter(r Recipe) storage.Filter {
	ids := make([]catalog.ResourceID, 0, len(r.Inputs))
	for _, in := range r.Inputs {
		ids = append(ids, in.Resource)
	}
	return storage.AllowOnly(ids...)
}

// Registry stores recipes by name with an output index.
type Registry struct {
	mu       sync.RWMutex
	recipes  map[string]Recipe
	byOutput map[catalog.ResourceID][]string
}

// NewRegistry creates an empty recipe registry.
func NewRegistry() *Registry {
	return &Registry{
		recipes:  make(map[string]Recipe),
		byOutput: make(map[catalog.ResourceID][]string),
	}
}

// Register adds or replaces a recipe.
func (r *Registry) Register(recipe Recipe) error {
	if recipe.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidRecipe)
	}
	if _, err := NewRecipe(recipe.Name, recipe.Output, recipe.ProductionTimeSeconds, recipe.Inputs...); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.recipes[recipe.Name]; ok {
		r.byOutput[existing.Output] = removeName(r.byOutput[existing.Output], existing.Name)
		if len(r.byOutput[existing.Output]) == 0 {
			delete(r.byOutput, existing.Output)
		}
	}
	r.recipes[recipe.Name] = recipe
	if recipe.HasOutput() {
		r.byOutput[recipe.Output] = append(r.byOutput[recipe.Output], recipe.Name)
	}
	return nil
}

func removeName(names []string, target string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != target {
			out = append(out, n)
		}
	}
	return out
}

// Lookup returns the recipe registered under name.
func (r *Registry) Lookup(name string) (Recipe, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recipe, ok := r.recipes[name]
	if !ok {
		return Recipe{}, fmt.Errorf("%w: %q", ErrRecipeNotFound, name)
	}
	return recipe, nil
}

// ByOutput returns the names of recipes producing id.
func (r *Registry) ByOutput(id catalog.ResourceID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.byOutput[id]
	if names == nil {
		return nil
	}
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// All returns every recipe sorted by name.
func (r *Registry) All() []Recipe {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Recipe, 0, len(r.recipes))
	for _, recipe := range r.recipes {
		out = append(out, recipe)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of recipes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.recipes)
}
