package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-po/internal/shared"
)

var (
	// ErrVariantNotResolved indicates no strategy could map a line onto a variant.
	ErrVariantNotResolved = fmt.Errorf("%w: inventory: variant not resolved", shared.ErrValidation)
	// ErrVariantAmbiguous indicates several variants matched equally well.
	ErrVariantAmbiguous = fmt.Errorf("%w: inventory: variant ambiguous", shared.ErrValidation)
)

// VariantLookup is the read side the resolver strategies need.
type VariantLookup interface {
	GetVariant(ctx context.Context, id string) (Variant, error)
	ListVariantsByProduct(ctx context.Context, productID string) ([]Variant, error)
	SearchVariantsByName(ctx context.Context, name string, limit int) ([]Variant, error)
}

// ResolveRequest carries the identity hints of one order line.
type ResolveRequest struct {
	Line        int
	VariantID   string
	ProductID   string
	ProductName string
	Size        string
	Unit        string
}

func (r ResolveRequest) label() string {
	name := r.ProductName
	if name == "" {
		name = r.ProductID
	}
	return fmt.Sprintf("line %d (%s)", r.Line+1, name)
}

// ResolveStrategy tries to map a request onto a variant. ok is false when the
// strategy does not apply or found nothing.
type ResolveStrategy interface {
	Name() string
	Resolve(ctx context.Context, lookup VariantLookup, req ResolveRequest) (v Variant, ok bool, err error)
}

// ResolverChain runs strategies in order; the first match wins.
type ResolverChain struct {
	lookup     VariantLookup
	strategies []ResolveStrategy
}

// NewResolverChain builds a chain. Without strategies the default order is used:
// explicit variant id, product id as variant id, parent product, fuzzy name.
func NewResolverChain(lookup VariantLookup, strategies ...ResolveStrategy) *ResolverChain {
	if len(strategies) == 0 {
		strategies = []ResolveStrategy{ByVariantID{}, ByProductAsVariant{}, ByParentProduct{}, ByName{Limit: 20}}
	}
	return &ResolverChain{lookup: lookup, strategies: strategies}
}

// Resolve maps req onto exactly one variant.
func (c *ResolverChain) Resolve(ctx context.Context, req ResolveRequest) (Variant, error) {
	for _, s := range c.strategies {
		v, ok, err := s.Resolve(ctx, c.lookup, req)
		if err != nil {
			if errors.Is(err, ErrVariantAmbiguous) {
				return Variant{}, fmt.Errorf("%w: %s via %s", err, req.label(), s.Name())
			}
			return Variant{}, err
		}
		if ok {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("%w: %s", ErrVariantNotResolved, req.label())
}

// ByVariantID uses the explicit variant id carried by the line.
type ByVariantID struct{}

func (ByVariantID) Name() string { return "variant_id" }

func (ByVariantID) Resolve(ctx context.Context, lookup VariantLookup, req ResolveRequest) (Variant, bool, error) {
	if req.VariantID == "" {
		return Variant{}, false, nil
	}
	return getOptional(ctx, lookup, req.VariantID)
}

// ByProductAsVariant handles legacy lines whose productId is in fact a variant id.
type ByProductAsVariant struct{}

func (ByProductAsVariant) Name() string { return "product_as_variant" }

func (ByProductAsVariant) Resolve(ctx context.Context, lookup VariantLookup, req ResolveRequest) (Variant, bool, error) {
	if req.ProductID == "" || req.ProductID == req.VariantID {
		return Variant{}, false, nil
	}
	return getOptional(ctx, lookup, req.ProductID)
}

// ByParentProduct loads all variants of the product and picks the best match.
type ByParentProduct struct{}

func (ByParentProduct) Name() string { return "parent_product" }

func (ByParentProduct) Resolve(ctx context.Context, lookup VariantLookup, req ResolveRequest) (Variant, bool, error) {
	if req.ProductID == "" {
		return Variant{}, false, nil
	}
	candidates, err := lookup.ListVariantsByProduct(ctx, req.ProductID)
	if err != nil {
		return Variant{}, false, err
	}
	return pickBest(candidates, req)
}

// ByName searches by product name as the last resort.
type ByName struct {
	Limit int
}

func (ByName) Name() string { return "name" }

func (s ByName) Resolve(ctx context.Context, lookup VariantLookup, req ResolveRequest) (Variant, bool, error) {
	if strings.TrimSpace(req.ProductName) == "" {
		return Variant{}, false, nil
	}
	limit := s.Limit
	if limit <= 0 {
		limit = 20
	}
	found, err := lookup.SearchVariantsByName(ctx, req.ProductName, limit)
	if err != nil {
		return Variant{}, false, err
	}
	want := NormalizeToken(req.ProductName)
	var candidates []Variant
	for _, v := range found {
		if strings.Contains(NormalizeToken(v.Name), want) {
			candidates = append(candidates, v)
		}
	}
	return pickBest(candidates, req)
}

func getOptional(ctx context.Context, lookup VariantLookup, id string) (Variant, bool, error) {
	v, err := lookup.GetVariant(ctx, id)
	if errors.Is(err, ErrVariantNotFound) {
		return Variant{}, false, nil
	}
	if err != nil {
		return Variant{}, false, err
	}
	return v, true, nil
}

// pickBest scores candidates on size, unit and name. A single candidate always
// wins; a tie on the best score is ambiguous.
func pickBest(candidates []Variant, req ResolveRequest) (Variant, bool, error) {
	switch len(candidates) {
	case 0:
		return Variant{}, false, nil
	case 1:
		return candidates[0], true, nil
	}
	best, bestScore, tie := -1, -1, false
	for i, v := range candidates {
		score := matchScore(v, req)
		switch {
		case score > bestScore:
			best, bestScore, tie = i, score, false
		case score == bestScore:
			tie = true
		}
	}
	if tie || bestScore == 0 {
		return Variant{}, false, ErrVariantAmbiguous
	}
	return candidates[best], true, nil
}

func matchScore(v Variant, req ResolveRequest) int {
	score := 0
	if req.Size != "" && NormalizeToken(v.Size) == NormalizeToken(req.Size) {
		score += 2
	}
	if req.Unit != "" && NormalizeToken(v.Unit) == NormalizeToken(req.Unit) {
		score += 2
	}
	if req.ProductName != "" && NormalizeToken(v.Name) == NormalizeToken(req.ProductName) {
		score++
	}
	return score
}
