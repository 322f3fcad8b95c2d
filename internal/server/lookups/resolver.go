package lookups

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/civisync/internal/common"
)

// Resolver converts natural keys carried by CRM payloads into local ids.
// It is a pure read over a Repository; callers merge the result into their
// own output instead of mutating the payload in place.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// KnownKey reports whether the domain key has a lookup target.
func KnownKey(key string) bool {
	_, ok := targets[key]
	return ok
}

// ResultField returns the normalized output key the resolved id of the
// given domain key is stored under.
func ResultField(key string) string {
	return targets[key].ResultField
}

// Resolve maps (domainKey, value) to the set of matching local ids.
// Scalar values yield a single-element set. An empty result set is an
// error wrapping common.ErrLookupNotFound that names the key and value.
func (r *Resolver) Resolve(ctx context.Context, key string, value any) ([]int64, error) {
	target, ok := targets[key]
	if !ok {
		return nil, fmt.Errorf("unknown lookup key: %s", key)
	}

	var values []any
	switch v := value.(type) {
	case []any:
		values = v
	case []string:
		values = make([]any, len(v))
		for i, s := range v {
			values[i] = s
		}
	default:
		values = []any{value}
	}

	ids, err := r.repo.SelectIDs(ctx, target, values)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", key, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: this %s doesn't exist in the ledger: %v", common.ErrLookupNotFound, key, value)
	}
	return ids, nil
}

// ResolveTitle matches a partner title by name or shortcut.
func (r *Resolver) ResolveTitle(ctx context.Context, title string) (int64, error) {
	id, err := r.repo.TitleID(ctx, title)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, fmt.Errorf("%w: can not find title: %s", common.ErrLookupNotFound, title)
		}
		return 0, err
	}
	return id, nil
}

// ResolveCountry matches a country by ISO code.
func (r *Resolver) ResolveCountry(ctx context.Context, isoCode string) (int64, error) {
	id, err := r.repo.CountryID(ctx, isoCode)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, fmt.Errorf("%w: can not find country_iso_code: %s", common.ErrLookupNotFound, isoCode)
		}
		return 0, err
	}
	return id, nil
}

// TaxAmounts exposes tax percentages for tax computation.
func (r *Resolver) TaxAmounts(ctx context.Context, ids []int64) (map[int64]float64, error) {
	return r.repo.TaxAmounts(ctx, ids)
}
