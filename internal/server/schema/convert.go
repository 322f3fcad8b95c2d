package schema

import (
	"context"
	"strconv"

	"github.com/dmitrijs2005/civisync/internal/server/lookups"
	"github.com/dmitrijs2005/civisync/internal/timex"
)

// Converters builds the standard field converters used by the contact and
// contribution schemas. Lookup converters replace the natural key in the
// normalized output with the resolved local id under the lookup's result
// field.
type Converters struct {
	resolver *lookups.Resolver
}

func NewConverters(resolver *lookups.Resolver) *Converters {
	return &Converters{resolver: resolver}
}

// Timestamp converts an epoch-seconds value (number or numeric string) into
// a time.Time stored under the same key.
func (c *Converters) Timestamp(ctx context.Context, key string, value any, out Values, acc *Accumulator) {
	var sec int64
	switch v := value.(type) {
	case int64:
		sec = v
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			acc.Addf("invalid timestamp in %s: %s", key, v)
			return
		}
		sec = parsed
	default:
		acc.Addf("invalid timestamp in %s: %v", key, value)
		return
	}
	out[key] = timex.FromEpoch(sec)
}

// LookupID resolves a natural key to a local id (or id list for list-valued
// input). On success the natural key is removed from the output and the id
// appears under the lookup's result field; on failure the error accumulates
// and the output is left as-is.
func (c *Converters) LookupID(ctx context.Context, key string, value any, out Values, acc *Accumulator) {
	ids, err := c.resolver.Resolve(ctx, key, value)
	if err != nil {
		acc.Add(err)
		return
	}
	if _, isList := value.([]string); isList {
		out[lookups.ResultField(key)] = ids
	} else {
		out[lookups.ResultField(key)] = ids[0]
	}
	delete(out, key)
}

// LookupTaxIDs resolves a list of tax names to tax ids. An empty list simply
// drops the key; no tax is a valid state, not an error.
func (c *Converters) LookupTaxIDs(ctx context.Context, key string, value any, out Values, acc *Accumulator) {
	names, _ := value.([]string)
	if len(names) == 0 {
		delete(out, key)
		return
	}
	ids, err := c.resolver.Resolve(ctx, key, names)
	if err != nil {
		acc.Add(err)
		delete(out, key)
		return
	}
	out[lookups.ResultField(key)] = ids
	delete(out, key)
}

// DuplicateField returns a converter copying the value of a sibling field
// over the annotated one. The source sibling must carry a lower weight so it
// is already normalized when the copy runs.
func DuplicateField(source string) ConvertFunc {
	return func(ctx context.Context, key string, value any, out Values, acc *Accumulator) {
		if v, ok := out[source]; ok {
			out[key] = v
		}
	}
}
