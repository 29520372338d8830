package shopify

import (
	"context"

	"github.com/rotisserie/eris"
)

// Field is one key/value pair of a metaobject. Values are always strings.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metaobject is a typed key/value record stored in the shop.
type Metaobject struct {
	ID     string  `json:"id"`
	Handle string  `json:"handle"`
	Type   string  `json:"type"`
	Fields []Field `json:"fields"`
}

// Field returns the value for key.
func (m *Metaobject) Field(key string) (string, bool) {
	for _, f := range m.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// FieldDefinition declares one field of a metaobject definition.
type FieldDefinition struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// MetaobjectDefinition declares a metaobject type.
type MetaobjectDefinition struct {
	Name             string            `json:"name"`
	Type             string            `json:"type"`
	FieldDefinitions []FieldDefinition `json:"fieldDefinitions"`
}

const findMetaobjectQuery = `query findMetaobject($type: String!) {
  metaobjects(type: $type, first: 1) {
    edges { node { id handle type fields { key value } } }
  }
}`

const createMetaobjectMutation = `mutation createMetaobject($metaobject: MetaobjectCreateInput!) {
  metaobjectCreate(metaobject: $metaobject) {
    metaobject { id handle type fields { key value } }
    userErrors { field message code }
  }
}`

const updateMetaobjectMutation = `mutation updateMetaobject($id: ID!, $metaobject: MetaobjectUpdateInput!) {
  metaobjectUpdate(id: $id, metaobject: $metaobject) {
    metaobject { id handle type fields { key value } }
    userErrors { field message code }
  }
}`

const definitionByTypeQuery = `query definitionByType($type: String!) {
  metaobjectDefinitionByType(type: $type) { id type }
}`

const createDefinitionMutation = `mutation createDefinition($definition: MetaobjectDefinitionCreateInput!) {
  metaobjectDefinitionCreate(definition: $definition) {
    metaobjectDefinition { id name type }
    userErrors { field message code }
  }
}`

type metaobjectPayload struct {
	Metaobject *Metaobject `json:"metaobject"`
	UserErrors UserErrors  `json:"userErrors"`
}

// FindMetaobject returns the first metaobject of typ, or nil when none exists.
func (c *Client) FindMetaobject(ctx context.Context, typ string) (*Metaobject, error) {
	var data struct {
		Metaobjects struct {
			Edges []struct {
				Node Metaobject `json:"node"`
			} `json:"edges"`
		} `json:"metaobjects"`
	}
	if err := c.Do(ctx, findMetaobjectQuery, map[string]any{"type": typ}, &data); err != nil {
		return nil, eris.Wrapf(err, "shopify: find metaobject %s", typ)
	}
	if len(data.Metaobjects.Edges) == 0 {
		return nil, nil
	}
	m := data.Metaobjects.Edges[0].Node
	return &m, nil
}

// CreateMetaobject creates a metaobject of typ with fields.
func (c *Client) CreateMetaobject(ctx context.Context, typ string, fields []Field) (*Metaobject, error) {
	var data struct {
		MetaobjectCreate metaobjectPayload `json:"metaobjectCreate"`
	}
	vars := map[string]any{
		"metaobject": map[string]any{
			"type":   typ,
			"fields": fields,
		},
	}
	if err := c.Do(ctx, createMetaobjectMutation, vars, &data); err != nil {
		return nil, eris.Wrapf(err, "shopify: create metaobject %s", typ)
	}
	return data.MetaobjectCreate.result()
}

// UpdateMetaobject replaces the given fields on the metaobject with id.
func (c *Client) UpdateMetaobject(ctx context.Context, id string, fields []Field) (*Metaobject, error) {
	var data struct {
		MetaobjectUpdate metaobjectPayload `json:"metaobjectUpdate"`
	}
	vars := map[string]any{
		"id":         id,
		"metaobject": map[string]any{"fields": fields},
	}
	if err := c.Do(ctx, updateMetaobjectMutation, vars, &data); err != nil {
		return nil, eris.Wrapf(err, "shopify: update metaobject %s", id)
	}
	return data.MetaobjectUpdate.result()
}

func (p metaobjectPayload) result() (*Metaobject, error) {
	if len(p.UserErrors) > 0 {
		return nil, p.UserErrors
	}
	if p.Metaobject == nil {
		return nil, eris.New("shopify: mutation returned no metaobject")
	}
	return p.Metaobject, nil
}

// MetaobjectDefinitionExists reports whether a definition for typ exists.
func (c *Client) MetaobjectDefinitionExists(ctx context.Context, typ string) (bool, error) {
	var data struct {
		Definition *struct {
			ID string `json:"id"`
		} `json:"metaobjectDefinitionByType"`
	}
	if err := c.Do(ctx, definitionByTypeQuery, map[string]any{"type": typ}, &data); err != nil {
		return false, eris.Wrapf(err, "shopify: lookup definition %s", typ)
	}
	return data.Definition != nil && data.Definition.ID != "", nil
}

// CreateMetaobjectDefinition creates def. A TAKEN user error means the type
// already exists and is not reported.
func (c *Client) CreateMetaobjectDefinition(ctx context.Context, def MetaobjectDefinition) error {
	var data struct {
		Create struct {
			Definition *struct {
				ID string `json:"id"`
			} `json:"metaobjectDefinition"`
			UserErrors UserErrors `json:"userErrors"`
		} `json:"metaobjectDefinitionCreate"`
	}
	if err := c.Do(ctx, createDefinitionMutation, map[string]any{"definition": def}, &data); err != nil {
		return eris.Wrapf(err, "shopify: create definition %s", def.Type)
	}
	if errs := data.Create.UserErrors; len(errs) > 0 && !errs.HasCode("TAKEN") {
		return errs
	}
	return nil
}
