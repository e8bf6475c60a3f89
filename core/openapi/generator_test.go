package openapi

import (
	"encoding/json"
	"testing"

	"github.com/artpar/crudkit/domain/entity"
	"github.com/swaggo/swag"
)

func testDescriptors(t *testing.T) []entity.Descriptor {
	t.Helper()
	descs, err := entity.Parse([]byte(`
entities:
  - name: user
    path: /users
    model:
      collection: users
      timestamps: true
      fields:
        name: {type: string, required: true, minLength: 2}
        email: {type: email, unique: true}
        age: {type: int, min: 0}
        role: {type: string, enum: [user, admin], default: user}
        password: {type: password}
        secret: {type: string, hidden: true}
        tags: array
    types:
      GET: true
      POST: true
      PATCH: {ONE: true}
      DELETE: true
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return descs
}

func TestGenerate_Paths(t *testing.T) {
	spec := NewGenerator().Generate(testDescriptors(t))

	if spec.OpenAPI != "3.0.3" {
		t.Errorf("OpenAPI = %s", spec.OpenAPI)
	}

	coll, ok := spec.Paths["/users"]
	if !ok {
		t.Fatal("missing /users")
	}
	if coll.Get == nil || coll.Get.OperationID != "listUser" {
		t.Errorf("GET /users = %+v", coll.Get)
	}
	if coll.Post == nil || coll.Post.OperationID != "createUser" {
		t.Errorf("POST /users = %+v", coll.Post)
	}

	draft, ok := spec.Paths["/users/draft"]
	if !ok || draft.Post == nil || draft.Post.OperationID != "createUserDraft" {
		t.Errorf("POST /users/draft = %+v", draft.Post)
	}

	item := spec.Paths["/users/{id}"]
	if item.Get == nil || item.Patch == nil || item.Delete == nil {
		t.Errorf("/users/{id} = %+v", item)
	}
	if item.Put != nil {
		t.Error("PUT is not enabled")
	}
	if _, ok := spec.Paths["/users/{id}/draft"]; ok {
		t.Error("PATCH.ONESOFT is not enabled")
	}

	if len(item.Get.Parameters) == 0 || item.Get.Parameters[0].Name != "id" {
		t.Errorf("GET one parameters = %+v", item.Get.Parameters)
	}
	if _, ok := item.Delete.Responses["404"]; !ok {
		t.Error("DELETE should document 404")
	}
}

func TestGenerate_ListParameters(t *testing.T) {
	spec := NewGenerator().Generate(testDescriptors(t))
	params := map[string]Parameter{}
	for _, p := range spec.Paths["/users"].Get.Parameters {
		params[p.Name] = p
	}

	for _, name := range []string{"select", "sort", "skip", "limit", "name", "email", "age", "role"} {
		if _, ok := params[name]; !ok {
			t.Errorf("missing list parameter %s", name)
		}
	}
	for _, name := range []string{"password", "secret", "tags"} {
		if _, ok := params[name]; ok {
			t.Errorf("%s should not be filterable", name)
		}
	}
}

func TestGenerate_Schemas(t *testing.T) {
	spec := NewGenerator().Generate(testDescriptors(t))

	resp := spec.Components.Schemas["User"]
	if resp == nil {
		t.Fatal("missing User schema")
	}
	for _, name := range []string{"_id", "createdAt", "updatedAt", "name", "email", "role"} {
		if _, ok := resp.Properties[name]; !ok {
			t.Errorf("User schema missing %s", name)
		}
	}
	for _, name := range []string{"password", "secret"} {
		if _, ok := resp.Properties[name]; ok {
			t.Errorf("User schema should not expose %s", name)
		}
	}
	if resp.Properties["email"].Format != "email" {
		t.Errorf("email format = %s", resp.Properties["email"].Format)
	}
	if resp.Properties["age"].Type != "integer" || *resp.Properties["age"].Minimum != 0 {
		t.Errorf("age schema = %+v", resp.Properties["age"])
	}

	input := spec.Components.Schemas["UserInput"]
	if input == nil {
		t.Fatal("missing UserInput schema")
	}
	if len(input.Required) != 1 || input.Required[0] != "name" {
		t.Errorf("Required = %v, want [name]", input.Required)
	}
	if !input.Properties["password"].WriteOnly {
		t.Error("password should be write-only")
	}
	if _, ok := spec.Components.Schemas[ErrorSchema]; !ok {
		t.Error("missing error schema")
	}
}

func TestDocument_Register(t *testing.T) {
	descs := testDescriptors(t)
	Register(NewDocument(NewGenerator(), func() []entity.Descriptor { return descs }))

	raw, err := swag.ReadDoc()
	if err != nil {
		t.Fatalf("ReadDoc: %v", err)
	}

	var spec Spec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := spec.Paths["/users"]; !ok {
		t.Error("registered document should describe /users")
	}

	descs = nil
	Register(NewDocument(NewGenerator(), func() []entity.Descriptor { return descs }))
	raw, _ = swag.ReadDoc()
	var empty Spec
	if err := json.Unmarshal([]byte(raw), &empty); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(empty.Paths) != 0 {
		t.Errorf("later registration should replace the document, got %d paths", len(empty.Paths))
	}
}

func TestSchemaName(t *testing.T) {
	tests := map[string]string{
		"user":       "User",
		"blog_post":  "BlogPost",
		"order-item": "OrderItem",
	}
	for in, want := range tests {
		if got := schemaName(in); got != want {
			t.Errorf("schemaName(%q) = %q, want %q", in, got, want)
		}
	}
}
