package storage

import (
	"testing"
	"time"

	"github.com/artpar/crudkit/domain/model"
	"github.com/artpar/crudkit/ports"
)

func TestClone_Deep(t *testing.T) {
	src := model.Document{"a": map[string]any{"b": 1}, "l": []any{map[string]any{"c": 2}}}
	cp := Clone(src)

	cp["a"].(map[string]any)["b"] = 9
	cp["l"].([]any)[0].(map[string]any)["c"] = 9

	if src["a"].(map[string]any)["b"] != 1 {
		t.Error("nested map aliased")
	}
	if src["l"].([]any)[0].(map[string]any)["c"] != 2 {
		t.Error("nested slice aliased")
	}
	if Clone(nil) != nil {
		t.Error("Clone(nil) should be nil")
	}
}

func TestMerge_KeepsSystemFields(t *testing.T) {
	old := model.Document{"_id": "1", "createdAt": "t0", "a": 1, "b": 2}
	got := Merge(old, model.Document{"_id": "2", "createdAt": "t9", "b": 3, "c": 4})

	if got["_id"] != "1" || got["createdAt"] != "t0" {
		t.Errorf("system fields overwritten: %v", got)
	}
	if got["a"] != 1 || got["b"] != 3 || got["c"] != 4 {
		t.Errorf("Merge = %v", got)
	}
	if old["b"] != 2 {
		t.Error("Merge must not mutate its input")
	}
}

func TestReplace(t *testing.T) {
	old := model.Document{"_id": "1", "createdAt": "t0", "a": 1}
	got := Replace(old, model.Document{"b": 2})

	if _, ok := got["a"]; ok {
		t.Error("Replace should drop old fields")
	}
	if got["_id"] != "1" || got["createdAt"] != "t0" || got["b"] != 2 {
		t.Errorf("Replace = %v", got)
	}
}

func TestCompare(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		a, b any
		want int
	}{
		{int64(2), 2.0, 0},
		{1, 2.5, -1},
		{"b", "a", 1},
		{false, true, -1},
		{true, true, 0},
		{t0, t0.In(time.FixedZone("x", 3600)), 0},
		{t0, t0.Add(time.Second), -1},
		{nil, 1, -1},
		{"1", 1, 1},
	}
	for _, tt := range tests {
		got := Compare(tt.a, tt.b)
		if sign(got) != tt.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

func TestMatch(t *testing.T) {
	doc := model.Document{"name": "Ann", "age": int64(30), "active": true}

	if !Match(doc, nil) {
		t.Error("empty filter should match")
	}
	if !Match(doc, model.Document{"age": 30.0, "active": true}) {
		t.Error("numeric filter should match across int/float")
	}
	if Match(doc, model.Document{"name": "Bob"}) {
		t.Error("different value matched")
	}
	if Match(doc, model.Document{"missing": "x"}) {
		t.Error("absent field matched a value")
	}
}

func TestSortDocuments_Stable(t *testing.T) {
	docs := []model.Document{
		{"n": 1, "k": "a"},
		{"n": 2, "k": "b"},
		{"n": 1, "k": "c"},
	}
	SortDocuments(docs, []model.SortField{{Name: "n", Desc: true}})

	want := []string{"b", "a", "c"}
	for i, w := range want {
		if docs[i]["k"] != w {
			t.Errorf("docs[%d] = %v, want k=%s", i, docs[i], w)
		}
	}
}

func TestPage(t *testing.T) {
	docs := []model.Document{{"i": 0}, {"i": 1}, {"i": 2}}

	if got := Page(docs, ports.Query{Skip: 1, Limit: 1}); len(got) != 1 || got[0]["i"] != 1 {
		t.Errorf("Page(skip 1, limit 1) = %v", got)
	}
	if got := Page(docs, ports.Query{Skip: 5}); got == nil || len(got) != 0 {
		t.Errorf("skip past end = %#v, want empty slice", got)
	}
	if got := Page(docs, ports.Query{}); len(got) != 3 {
		t.Errorf("no paging = %v", got)
	}
}
