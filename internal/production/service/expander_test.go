package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/production/repository"
	"github.com/craftline/craftline-backend/internal/production/service"
	"github.com/craftline/craftline-backend/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fakeRecipes resolves recipes from memory, keyed by id and by output ref.
type fakeRecipes struct {
	byID     map[string]*repository.Recipe
	byOutput map[string]*repository.Recipe
}

func newFakeRecipes(recipes ...*repository.Recipe) *fakeRecipes {
	f := &fakeRecipes{
		byID:     make(map[string]*repository.Recipe),
		byOutput: make(map[string]*repository.Recipe),
	}
	for _, r := range recipes {
		f.byID[r.ID] = r
		f.byOutput[r.OutputRef().Key()] = r
	}
	return f
}

func (f *fakeRecipes) GetByID(_ context.Context, id string) (*repository.Recipe, error) {
	if r, ok := f.byID[id]; ok {
		return r, nil
	}
	return nil, errors.NotFound("recipe")
}

func (f *fakeRecipes) GetByOutput(_ context.Context, ref domain.ItemRef) (*repository.Recipe, error) {
	if r, ok := f.byOutput[ref.Key()]; ok {
		return r, nil
	}
	return nil, errors.NotFound("recipe")
}

// identityConverter treats every unit pair as 1:1, which is enough for
// expansion tests that keep component and stock units aligned.
type identityConverter struct{}

func (identityConverter) Convert(_ context.Context, _ domain.ItemRef, quantity decimal.Decimal, _, _ string) (decimal.Decimal, error) {
	return quantity, nil
}

// fakeItems answers catalog lookups with a fixed stock unit per item.
type fakeItems map[string]string

func (f fakeItems) Lookup(_ context.Context, ref domain.ItemRef) (*domain.ItemDescriptor, error) {
	unit, ok := f[ref.Key()]
	if !ok {
		return nil, errors.NotFound("item " + ref.Key())
	}
	return &domain.ItemDescriptor{Name: ref.ID, Unit: unit, Active: true}, nil
}

func material(id string) domain.ItemRef {
	return domain.ItemRef{Kind: domain.KindMaterial, ID: id}
}

func product(id string) domain.ItemRef {
	return domain.ItemRef{Kind: domain.KindProduct, ID: id}
}

func breadRecipe() *repository.Recipe {
	return &repository.Recipe{
		ID:             "recipe-bread",
		Name:           "Sourdough Loaf",
		OutputKind:     domain.KindProduct,
		OutputID:       "bread",
		OutputQuantity: dec("10"),
		OutputUnit:     "pcs",
		IsActive:       true,
		Items: []*repository.RecipeItem{
			{ComponentKind: domain.KindMaterial, ComponentID: "flour", Quantity: dec("5"), Unit: "kg"},
			{ComponentKind: domain.KindMaterial, ComponentID: "salt", Quantity: dec("0.1"), Unit: "kg", WastePercentage: dec("10")},
		},
	}
}

func TestRecipeExpander_Expand(t *testing.T) {
	ctx := context.Background()
	items := fakeItems{
		"material:flour": "kg",
		"material:salt":  "kg",
	}
	expander := service.NewRecipeExpander(newFakeRecipes(), identityConverter{}, items)

	reqs, err := expander.Expand(ctx, breadRecipe(), dec("15"))
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	// 15/10 scale: flour 5 * 1.5 = 7.5, no waste.
	assert.Equal(t, material("flour"), reqs[0].Component)
	assert.True(t, reqs[0].Quantity.Equal(dec("7.5")), "flour = %s", reqs[0].Quantity)
	assert.True(t, reqs[0].WasteQuantity.IsZero())

	// salt 0.1 * 1.5 = 0.15, plus 10% waste = 0.165.
	assert.Equal(t, material("salt"), reqs[1].Component)
	assert.True(t, reqs[1].Quantity.Equal(dec("0.165")), "salt = %s", reqs[1].Quantity)
	assert.True(t, reqs[1].WasteQuantity.Equal(dec("0.015")))
}

func TestRecipeExpander_RejectsNonPositiveTarget(t *testing.T) {
	expander := service.NewRecipeExpander(newFakeRecipes(), identityConverter{}, fakeItems{})

	_, err := expander.Expand(context.Background(), breadRecipe(), decimal.Zero)
	assert.True(t, errors.Is(err, errors.ErrInvalidQuantity))
}

func TestRecipeExpander_ExpandRecursive(t *testing.T) {
	ctx := context.Background()

	// bread needs dough, dough needs flour and water. Dough is itself a
	// produced item with its own recipe, so it must be expanded away.
	dough := &repository.Recipe{
		ID:             "recipe-dough",
		Name:           "Dough",
		OutputKind:     domain.KindProduct,
		OutputID:       "dough",
		OutputQuantity: dec("2"),
		OutputUnit:     "kg",
		IsActive:       true,
		Items: []*repository.RecipeItem{
			{ComponentKind: domain.KindMaterial, ComponentID: "flour", Quantity: dec("1.2"), Unit: "kg"},
			{ComponentKind: domain.KindMaterial, ComponentID: "water", Quantity: dec("0.8"), Unit: "l"},
		},
	}
	bread := &repository.Recipe{
		ID:             "recipe-bread",
		Name:           "Bread",
		OutputKind:     domain.KindProduct,
		OutputID:       "bread",
		OutputQuantity: dec("1"),
		OutputUnit:     "pcs",
		IsActive:       true,
		Items: []*repository.RecipeItem{
			{ComponentKind: domain.KindProduct, ComponentID: "dough", Quantity: dec("1"), Unit: "kg"},
			{ComponentKind: domain.KindMaterial, ComponentID: "flour", Quantity: dec("0.05"), Unit: "kg"},
		},
	}
	items := fakeItems{
		"material:flour": "kg",
		"material:water": "l",
		"product:dough":  "kg",
	}
	expander := service.NewRecipeExpander(newFakeRecipes(dough, bread), identityConverter{}, items)

	reqs, err := expander.ExpandRecursive(ctx, bread, dec("4"))
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	byKey := make(map[string]decimal.Decimal)
	for _, r := range reqs {
		byKey[r.Component.Key()] = r.Quantity
	}

	// 4 breads need 4kg dough -> dough scale 2 -> 2.4kg flour + 1.6l water,
	// plus 0.2kg dusting flour straight from the bread recipe.
	assert.True(t, byKey["material:flour"].Equal(dec("2.6")), "flour = %s", byKey["material:flour"])
	assert.True(t, byKey["material:water"].Equal(dec("1.6")), "water = %s", byKey["material:water"])
}

func TestRecipeExpander_ProductWithoutRecipeIsStocked(t *testing.T) {
	ctx := context.Background()
	assembly := &repository.Recipe{
		ID:             "recipe-hamper",
		Name:           "Gift Hamper",
		OutputKind:     domain.KindProduct,
		OutputID:       "hamper",
		OutputQuantity: dec("1"),
		OutputUnit:     "pcs",
		IsActive:       true,
		Items: []*repository.RecipeItem{
			{ComponentKind: domain.KindProduct, ComponentID: "jam", Quantity: dec("2"), Unit: "pcs"},
		},
	}
	items := fakeItems{"product:jam": "pcs"}
	expander := service.NewRecipeExpander(newFakeRecipes(assembly), identityConverter{}, items)

	reqs, err := expander.ExpandRecursive(ctx, assembly, dec("3"))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, product("jam"), reqs[0].Component)
	assert.True(t, reqs[0].Quantity.Equal(dec("6")))
}

func TestRecipeExpander_CycleDetected(t *testing.T) {
	ctx := context.Background()

	// a produces x from y, b produces y from x.
	a := &repository.Recipe{
		ID: "recipe-a", Name: "A",
		OutputKind: domain.KindProduct, OutputID: "x",
		OutputQuantity: dec("1"), OutputUnit: "pcs", IsActive: true,
		Items: []*repository.RecipeItem{
			{ComponentKind: domain.KindProduct, ComponentID: "y", Quantity: dec("1"), Unit: "pcs"},
		},
	}
	b := &repository.Recipe{
		ID: "recipe-b", Name: "B",
		OutputKind: domain.KindProduct, OutputID: "y",
		OutputQuantity: dec("1"), OutputUnit: "pcs", IsActive: true,
		Items: []*repository.RecipeItem{
			{ComponentKind: domain.KindProduct, ComponentID: "x", Quantity: dec("1"), Unit: "pcs"},
		},
	}
	items := fakeItems{"product:x": "pcs", "product:y": "pcs"}
	expander := service.NewRecipeExpander(newFakeRecipes(a, b), identityConverter{}, items)

	_, err := expander.ExpandRecursive(ctx, a, dec("1"))
	assert.True(t, errors.Is(err, errors.ErrRecipeCycle))
}

func TestRecipeExpander_MergesDuplicateComponents(t *testing.T) {
	ctx := context.Background()
	recipe := &repository.Recipe{
		ID: "recipe-mix", Name: "Mix",
		OutputKind: domain.KindProduct, OutputID: "mix",
		OutputQuantity: dec("1"), OutputUnit: "kg", IsActive: true,
		Items: []*repository.RecipeItem{
			{ComponentKind: domain.KindMaterial, ComponentID: "sugar", Quantity: dec("0.3"), Unit: "kg"},
			{ComponentKind: domain.KindMaterial, ComponentID: "sugar", Quantity: dec("0.2"), Unit: "kg"},
		},
	}
	items := fakeItems{"material:sugar": "kg"}
	expander := service.NewRecipeExpander(newFakeRecipes(recipe), identityConverter{}, items)

	reqs, err := expander.ExpandRecursive(ctx, recipe, dec("1"))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Quantity.Equal(dec("0.5")))
}
