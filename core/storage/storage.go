// Package storage provides document helpers shared by store adapters:
// cloning, merging, filter matching, ordering and paging.
package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/artpar/crudkit/domain/model"
	"github.com/artpar/crudkit/ports"
)

// Clone returns a deep copy of doc. Nested maps and slices are copied so
// that callers cannot mutate stored state.
func Clone(doc model.Document) model.Document {
	if doc == nil {
		return nil
	}
	out := make(model.Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return Clone(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// Merge applies a merge update: every key of patch overwrites dst.
// The id and creation timestamp are never overwritten.
func Merge(dst, patch model.Document) model.Document {
	out := Clone(dst)
	for k, v := range patch {
		if k == model.IDField || k == model.CreatedAtField {
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// Replace builds the document stored by a replace update: the new content
// plus the preserved id and creation timestamp of the old document.
func Replace(old, doc model.Document) model.Document {
	out := Clone(doc)
	out[model.IDField] = old[model.IDField]
	if created, ok := old[model.CreatedAtField]; ok {
		out[model.CreatedAtField] = created
	}
	return out
}

// Match reports whether doc satisfies every equality term of filter.
func Match(doc, filter model.Document) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if Compare(got, want) != 0 {
			return false
		}
	}
	return true
}

// Compare orders two scalar values. Numbers compare numerically, times
// chronologically, strings lexically and booleans false before true.
// Values of different kinds order by kind; nil sorts first.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}

	switch ra {
	case rankNil:
		return 0
	case rankNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	case rankTime:
		return a.(time.Time).Compare(b.(time.Time))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

const (
	rankNil = iota
	rankNumber
	rankString
	rankBool
	rankTime
	rankOther
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNil
	case float64, float32, int, int32, int64:
		return rankNumber
	case string:
		return rankString
	case bool:
		return rankBool
	case time.Time:
		return rankTime
	}
	return rankOther
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// SortDocuments orders docs in place. Documents are kept in their original
// order when every sort key compares equal.
func SortDocuments(docs []model.Document, fields []model.SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			c := Compare(docs[i][f.Name], docs[j][f.Name])
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Page applies skip and limit to docs.
func Page(docs []model.Document, q ports.Query) []model.Document {
	if q.Skip > 0 {
		if q.Skip >= int64(len(docs)) {
			return []model.Document{}
		}
		docs = docs[q.Skip:]
	}
	if q.Limit > 0 && q.Limit < int64(len(docs)) {
		docs = docs[:q.Limit]
	}
	return docs
}
