package inventory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

type fakeLookup struct {
	variants []Variant
}

func (f fakeLookup) GetVariant(_ context.Context, id string) (Variant, error) {
	for _, v := range f.variants {
		if v.ID == id {
			return v, nil
		}
	}
	return Variant{}, ErrVariantNotFound
}

func (f fakeLookup) ListVariantsByProduct(_ context.Context, productID string) ([]Variant, error) {
	var out []Variant
	for _, v := range f.variants {
		if v.ParentProductID == productID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f fakeLookup) SearchVariantsByName(_ context.Context, name string, _ int) ([]Variant, error) {
	var out []Variant
	for _, v := range f.variants {
		if strings.Contains(strings.ToLower(v.Name), strings.ToLower(name)) {
			out = append(out, v)
		}
	}
	return out, nil
}

func resolverFixture() *ResolverChain {
	return NewResolverChain(fakeLookup{variants: []Variant{
		{ID: "v-1", ParentProductID: "p-oil", Name: "Cooking Oil", Size: "1 L", Unit: "bottle"},
		{ID: "v-2", ParentProductID: "p-oil", Name: "Cooking Oil", Size: "2 L", Unit: "bottle"},
		{ID: "v-3", ParentProductID: "p-salt", Name: "Sea Salt", Size: "500 g", Unit: "pack"},
	}})
}

func TestResolveByExplicitVariant(t *testing.T) {
	v, err := resolverFixture().Resolve(context.Background(), ResolveRequest{VariantID: "v-2", ProductID: "p-oil"})
	require.NoError(t, err)
	require.Equal(t, "v-2", v.ID)
}

func TestResolveProductIDAsVariant(t *testing.T) {
	v, err := resolverFixture().Resolve(context.Background(), ResolveRequest{ProductID: "v-3"})
	require.NoError(t, err)
	require.Equal(t, "v-3", v.ID)
}

func TestResolveSingleVariantProduct(t *testing.T) {
	v, err := resolverFixture().Resolve(context.Background(), ResolveRequest{ProductID: "p-salt"})
	require.NoError(t, err)
	require.Equal(t, "v-3", v.ID)
}

func TestResolveParentDisambiguatesBySize(t *testing.T) {
	v, err := resolverFixture().Resolve(context.Background(), ResolveRequest{ProductID: "p-oil", Size: "2l", Unit: "Bottle"})
	require.NoError(t, err)
	require.Equal(t, "v-2", v.ID)
}

func TestResolveAmbiguousParent(t *testing.T) {
	_, err := resolverFixture().Resolve(context.Background(), ResolveRequest{Line: 1, ProductID: "p-oil", ProductName: "Cooking Oil"})
	require.ErrorIs(t, err, ErrVariantAmbiguous)
	require.Contains(t, err.Error(), "line 2")
}

func TestResolveByName(t *testing.T) {
	v, err := resolverFixture().Resolve(context.Background(), ResolveRequest{ProductID: "legacy-123", ProductName: "sea salt"})
	require.NoError(t, err)
	require.Equal(t, "v-3", v.ID)
}

func TestResolveStaleVariantFallsBack(t *testing.T) {
	v, err := resolverFixture().Resolve(context.Background(), ResolveRequest{VariantID: "gone", ProductID: "p-salt"})
	require.NoError(t, err)
	require.Equal(t, "v-3", v.ID)
}

func TestResolveNothingNamesLine(t *testing.T) {
	_, err := resolverFixture().Resolve(context.Background(), ResolveRequest{Line: 0, ProductID: "p-missing", ProductName: "Flour"})
	require.ErrorIs(t, err, ErrVariantNotResolved)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "line 1 (Flour)")
}
