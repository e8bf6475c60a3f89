package routebuilder

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/artpar/crudkit/adapters/clock"
	"github.com/artpar/crudkit/adapters/hasher"
	"github.com/artpar/crudkit/adapters/idgen"
	"github.com/artpar/crudkit/adapters/memory"
	"github.com/artpar/crudkit/domain/entity"
	"github.com/artpar/crudkit/domain/httperr"
	"github.com/artpar/crudkit/domain/model"
	"github.com/artpar/crudkit/ports"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	id1 = "00000000-0000-4000-8000-000000000001"
	id3 = "00000000-0000-4000-8000-000000000003"
	id9 = "00000000-0000-4000-8000-000000000009"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.DocumentStore
	clock   *clock.Fake
	router  chi.Router
	builder *Builder
	errs    []error
}

func allTypes() entity.Types {
	return entity.Types{
		entity.GET:    entity.Shorthand(entity.GET, true),
		entity.POST:   entity.Shorthand(entity.POST, true),
		entity.PATCH:  entity.Shorthand(entity.PATCH, true),
		entity.PUT:    entity.Shorthand(entity.PUT, true),
		entity.DELETE: entity.Shorthand(entity.DELETE, true),
	}
}

func newFixture(t *testing.T, types entity.Types, configure func(*Options)) *fixture {
	t.Helper()

	desc := entity.Descriptor{
		Name: "user",
		Path: "/users",
		Model: model.Model{
			Collection: "users",
			Timestamps: true,
			Fields: model.Fields{
				{Name: "name", Type: model.TypeString, Required: true},
				{Name: "email", Type: model.TypeEmail, Unique: true},
				{Name: "age", Type: model.TypeInt},
				{Name: "role", Type: model.TypeString, Enum: []string{"user", "admin"}, Default: "user"},
				{Name: "password", Type: model.TypePassword},
			},
		},
		Types: types,
	}
	require.NoError(t, desc.Init())

	f := &fixture{
		store: memory.NewWithIDs(idgen.NewSequential()),
		clock: clock.NewFake(t0),
	}
	require.NoError(t, f.store.EnsureCollection(t.Context(), desc.Model))

	opts := Options{
		Hasher: hasher.Fake{},
		Clock:  f.clock,
		OnError: func(w http.ResponseWriter, r *http.Request, err error) {
			f.errs = append(f.errs, err)
			DefaultOnError(w, r, err)
		},
	}
	if configure != nil {
		configure(&opts)
	}

	f.builder = New(desc, f.store, opts)
	f.router = chi.NewRouter()
	f.builder.Register(f.router)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) lastErr() error {
	if len(f.errs) == 0 {
		return nil
	}
	return f.errs[len(f.errs)-1]
}

func decodeDoc(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc), rec.Body.String())
	return doc
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs), rec.Body.String())
	return docs
}

func TestRoutes_Table(t *testing.T) {
	f := newFixture(t, allTypes(), nil)

	var got []string
	for _, ri := range f.builder.Routes() {
		got = append(got, ri.Route.String()+" "+ri.Method+" "+ri.Pattern)
	}
	assert.Equal(t, []string{
		"GET.ONE GET /users/{id}",
		"GET.ALL GET /users",
		"POST.ONE POST /users",
		"POST.ONESOFT POST /users/draft",
		"PATCH.ONE PATCH /users/{id}",
		"PATCH.ONESOFT PATCH /users/{id}/draft",
		"PUT.ONE PUT /users/{id}",
		"PUT.ONESOFT PUT /users/{id}/draft",
		"DELETE.ONE DELETE /users/{id}",
	}, got)
}

func TestGetOnly_OtherMethodsAre404(t *testing.T) {
	f := newFixture(t, entity.Types{entity.GET: entity.Shorthand(entity.GET, true)}, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/users"},
		{http.MethodPost, "/users/draft"},
		{http.MethodPatch, "/users/" + id1},
		{http.MethodPut, "/users/" + id1},
		{http.MethodDelete, "/users/" + id1},
	} {
		rec := f.do(tc.method, tc.path, `{"name":"x"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
		body := decodeDoc(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, MsgRouteNotFound, body["error"])
	}

	rec := f.do(http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetAllOnly_GetOneIs404(t *testing.T) {
	f := newFixture(t, entity.Types{entity.GET: {entity.ALL: true}}, nil)

	rec := f.do(http.MethodGet, "/users/"+id1, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, MsgRouteNotFound, decodeDoc(t, rec)["error"])
}

func TestCreate_AndGetOne(t *testing.T) {
	f := newFixture(t, allTypes(), nil)

	rec := f.do(http.MethodPost, "/users", `{"name":"Ann","email":"ANN@x.io","age":"34","password":"pw","extra":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	created := decodeDoc(t, rec)
	assert.Equal(t, id1, created["_id"])
	assert.Equal(t, "ann@x.io", created["email"])
	assert.Equal(t, float64(34), created["age"])
	assert.Equal(t, "user", created["role"], "default applied")
	assert.NotContains(t, created, "password")
	assert.NotContains(t, created, "extra")
	assert.Equal(t, t0.Format(time.RFC3339), created["createdAt"])
	assert.Equal(t, created["createdAt"], created["updatedAt"])

	stored, err := f.store.FindByID(t.Context(), "users", id1)
	require.NoError(t, err)
	assert.Equal(t, "fake$pw", stored["password"], "password stored hashed")

	rec = f.do(http.MethodGet, "/users/"+id1, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeDoc(t, rec)
	assert.Equal(t, "Ann", got["name"])
	assert.NotContains(t, got, "password")
}

func TestCreate_ValidationVersusDraft(t *testing.T) {
	f := newFixture(t, allTypes(), nil)

	rec := f.do(http.MethodPost, "/users", `{"role":"root"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "unmapped here; the app error handler maps it to 400")
	var verr *model.ValidationError
	require.ErrorAs(t, f.lastErr(), &verr)
	assert.Equal(t, "Path `name` is required.,`root` is not a valid enum value for path `role`.", verr.Error())

	rec = f.do(http.MethodPost, "/users/draft", `{"role":"root"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "root", decodeDoc(t, rec)["role"])

	rec = f.do(http.MethodPost, "/users/draft", `{"age":"old"}`)
	require.ErrorAs(t, f.lastErr(), &verr, "drafts still cast")
}

func TestCreate_Duplicate(t *testing.T) {
	f := newFixture(t, allTypes(), nil)

	f.do(http.MethodPost, "/users", `{"name":"a","email":"a@x.io"}`)
	f.do(http.MethodPost, "/users", `{"name":"b","email":"a@x.io"}`)

	var dup *model.DuplicateKeyError
	assert.ErrorAs(t, f.lastErr(), &dup)
}

func TestCreate_Bodies(t *testing.T) {
	f := newFixture(t, allTypes(), nil)

	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader("name=Form&age=7"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(7), decodeDoc(t, rec)["age"])

	for _, body := range []string{`{"name":`, `[1,2]`, `null`} {
		rec = f.do(http.MethodPost, "/users", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Invalid JSON body", decodeDoc(t, rec)["error"])
	}
}

func TestGetOne_Errors(t *testing.T) {
	f := newFixture(t, allTypes(), nil)

	rec := f.do(http.MethodGet, "/users/"+id9, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, MsgNoRecord, decodeDoc(t, rec)["error"])

	f.do(http.MethodGet, "/users/not-an-id", "")
	var cerr *model.CastError
	assert.ErrorAs(t, f.lastErr(), &cerr)
}

func TestGetAll(t *testing.T) {
	f := newFixture(t, allTypes(), nil)

	rec := f.do(http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String(), "empty collection is an empty array")

	for _, body := range []string{
		`{"name":"c","age":30,"role":"admin"}`,
		`{"name":"a","age":20}`,
		`{"name":"b","age":30}`,
	} {
		require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/users", body).Code)
	}

	docs := decodeList(t, f.do(http.MethodGet, "/users?age=30&sort=name", ""))
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0]["name"])
	assert.Equal(t, "c", docs[1]["name"])

	docs = decodeList(t, f.do(http.MethodGet, "/users?sort=-age,name&skip=1&limit=1&select=name", ""))
	require.Len(t, docs, 1)
	assert.Equal(t, map[string]any{"_id": id1, "name": "c"}, docs[0])

	docs = decodeList(t, f.do(http.MethodGet, "/users?_id="+id3, ""))
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0]["name"])

	docs = decodeList(t, f.do(http.MethodGet, "/users?unknown=1&password=x", ""))
	assert.Len(t, docs, 3, "unknown and hidden filters are ignored")

	rec = f.do(http.MethodGet, "/users?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/users?select=name,-age", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.do(http.MethodGet, "/users?age=old", "")
	var cerr *model.CastError
	assert.ErrorAs(t, f.lastErr(), &cerr)
}

func TestUpdate_PatchMergesPutReplaces(t *testing.T) {
	f := newFixture(t, allTypes(), nil)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/users", `{"name":"Ann","age":30,"email":"a@x.io"}`).Code)

	f.clock.Advance(time.Hour)
	rec := f.do(http.MethodPatch, "/users/"+id1, `{"age":31}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decodeDoc(t, rec)
	assert.Equal(t, "Ann", patched["name"])
	assert.Equal(t, float64(31), patched["age"])
	assert.Equal(t, t0.Format(time.RFC3339), patched["createdAt"])
	assert.Equal(t, t0.Add(time.Hour).Format(time.RFC3339), patched["updatedAt"])

	rec = f.do(http.MethodPut, "/users/"+id1, `{"name":"Bob"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replaced := decodeDoc(t, rec)
	assert.Equal(t, "Bob", replaced["name"])
	assert.NotContains(t, replaced, "age")
	assert.NotContains(t, replaced, "email")
	assert.Equal(t, t0.Format(time.RFC3339), replaced["createdAt"], "PUT keeps createdAt")
}

func TestUpdate_Validation(t *testing.T) {
	f := newFixture(t, allTypes(), nil)
	f.do(http.MethodPost, "/users", `{"name":"Ann"}`)

	f.do(http.MethodPatch, "/users/"+id1, `{"name":""}`)
	var verr *model.ValidationError
	require.ErrorAs(t, f.lastErr(), &verr)

	f.errs = nil
	rec := f.do(http.MethodPatch, "/users/"+id1+"/draft", `{"name":""}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, f.lastErr())

	f.do(http.MethodPut, "/users/"+id1, `{"age":1}`)
	require.ErrorAs(t, f.lastErr(), &verr, "PUT validates the full document")

	rec = f.do(http.MethodPut, "/users/"+id1+"/draft", `{"age":1}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateAndDelete_Missing(t *testing.T) {
	f := newFixture(t, allTypes(), nil)

	for _, method := range []string{http.MethodPatch, http.MethodPut, http.MethodDelete} {
		rec := f.do(method, "/users/"+id9, `{"name":"x"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code, method)
		assert.Equal(t, MsgNoDocument, decodeDoc(t, rec)["error"], method)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t, allTypes(), nil)
	f.do(http.MethodPost, "/users", `{"name":"Ann","password":"pw"}`)

	rec := f.do(http.MethodDelete, "/users/"+id1, "")
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decodeDoc(t, rec)
	assert.Equal(t, "Ann", deleted["name"])
	assert.NotContains(t, deleted, "password")

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/users/"+id1, "").Code)
}

func TestHooks_Order(t *testing.T) {
	var trace []string
	mark := func(name string) Hook {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, has := Result(r)
				if has {
					trace = append(trace, name+"(result)")
				} else {
					trace = append(trace, name)
				}
				next.ServeHTTP(w, r)
			})
		}
	}

	route := entity.Route{Verb: entity.GET, Variant: entity.ALL}
	f := newFixture(t, allTypes(), func(o *Options) {
		o.Before = map[entity.Route][]Hook{route: {mark("b1"), mark("b2")}}
		o.After = map[entity.Route][]Hook{route: {mark("a1"), mark("a2")}}
	})

	rec := f.do(http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"b1", "b2", "a1(result)", "a2(result)"}, trace)
}

func TestHooks_SeeTheirRoute(t *testing.T) {
	var (
		gotName  string
		gotRoute entity.Route
	)
	route := entity.Route{Verb: entity.PATCH, Variant: entity.ONESOFT}
	f := newFixture(t, allTypes(), func(o *Options) {
		o.Before = map[entity.Route][]Hook{route: {func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotName, gotRoute, _ = Route(r)
				next.ServeHTTP(w, r)
			})
		}}}
	})

	f.do(http.MethodPatch, "/users/"+id1+"/draft", `{"name":"Ann"}`)
	assert.Equal(t, "user", gotName)
	assert.Equal(t, route, gotRoute)

	_, _, ok := Route(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok, "no route outside a chain")
}

func TestHooks_AfterReplacesResult(t *testing.T) {
	route := entity.Route{Verb: entity.POST, Variant: entity.ONE}
	f := newFixture(t, allTypes(), func(o *Options) {
		o.After = map[entity.Route][]Hook{route: {func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				doc, _ := Result(r)
				SetResult(r, map[string]any{"wrapped": doc})
				SetStatus(r, http.StatusCreated)
				next.ServeHTTP(w, r)
			})
		}}}
	})

	rec := f.do(http.MethodPost, "/users", `{"name":"Ann"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeDoc(t, rec)
	assert.Contains(t, body, "wrapped")
}

func TestHooks_BeforeCanStopTheChain(t *testing.T) {
	route := entity.Route{Verb: entity.POST, Variant: entity.ONE}
	f := newFixture(t, allTypes(), func(o *Options) {
		o.Before = map[entity.Route][]Hook{route: {func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Fail(w, r, httperr.New(httperr.Options{Message: "nope", Status: http.StatusForbidden}))
			})
		}}}
	})

	rec := f.do(http.MethodPost, "/users", `{"name":"Ann"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "nope", decodeDoc(t, rec)["error"])

	docs, err := f.store.Find(t.Context(), "users", ports.Query{})
	require.NoError(t, err)
	assert.Empty(t, docs, "generic handler must not run")
}

func TestHooks_ClearedResultIs404(t *testing.T) {
	route := entity.Route{Verb: entity.GET, Variant: entity.ALL}
	f := newFixture(t, allTypes(), func(o *Options) {
		o.After = map[entity.Route][]Hook{route: {func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ClearResult(r)
				next.ServeHTTP(w, r)
			})
		}}}
	})

	rec := f.do(http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPanicIsForwarded(t *testing.T) {
	route := entity.Route{Verb: entity.GET, Variant: entity.ALL}
	f := newFixture(t, allTypes(), func(o *Options) {
		o.Before = map[entity.Route][]Hook{route: {func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic("boom")
			})
		}}}
	})

	rec := f.do(http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Error(t, f.lastErr())
	assert.Contains(t, f.lastErr().Error(), "boom")
}

func TestPanicAfterResponseWritten(t *testing.T) {
	route := entity.Route{Verb: entity.GET, Variant: entity.ALL}
	f := newFixture(t, allTypes(), func(o *Options) {
		o.After = map[entity.Route][]Hook{route: {func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r)
				panic("late boom")
			})
		}}}
	})

	rec := f.do(http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var docs []any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs), rec.Body.String())
	assert.NoError(t, f.lastErr())
}

func TestDefaultOnError_WrappedHTTPError(t *testing.T) {
	rec := httptest.NewRecorder()
	err := errors.Join(httperr.NotFound("gone"))
	DefaultOnError(rec, httptest.NewRequest(http.MethodGet, "/", nil), err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
