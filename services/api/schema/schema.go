// Package schema validates the shape of request bodies against embedded JSON schemas.
package schema

import (
	"embed"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
)

// Schema ids of the embedded documents.
const (
	Measures = "measures"
	Sensor   = "sensor"
	Device   = "device"
	Vote     = "vote"
	Link     = "link"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Validator holds compiled schemas by id.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidator compiles the embedded schemas.
func NewValidator() (*Validator, error) {
	files, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("cannot read schemas: %w", err)
	}
	docs := make([]string, 0, len(files))
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		b, err := schemaFS.ReadFile("schemas/" + f.Name())
		if err != nil {
			return nil, fmt.Errorf("cannot read schema '%s': %w", f.Name(), err)
		}
		docs = append(docs, string(b))
	}
	return Compile(docs)
}

// Compile builds a Validator from schema documents. Every document needs an $id.
func Compile(docs []string) (*Validator, error) {
	type header struct {
		ID string `json:"$id"`
	}
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema)}
	for _, doc := range docs {
		var h header
		if err := json.Unmarshal([]byte(doc), &h); err != nil {
			return nil, fmt.Errorf("parse error '%v' in schema: '%s'", err, doc)
		}
		if h.ID == "" {
			return nil, fmt.Errorf("schema does not contain $id: '%s'", doc)
		}
		compiled, err := gojsonschema.NewSchemaLoader().Compile(gojsonschema.NewStringLoader(doc))
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %s: %w", h.ID, err)
		}
		v.schemas[h.ID] = compiled
	}
	return v, nil
}

// HasSchema reports whether id is known.
func (v *Validator) HasSchema(id string) bool {
	_, ok := v.schemas[id]
	return ok
}

// Validate checks body against the schema id. Violations are validation errors listing
// every failing path.
func (v *Validator) Validate(id string, body []byte) error {
	s, ok := v.schemas[id]
	if !ok {
		return fmt.Errorf("there is no schema %s", id)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperr.Validation("JSON inválido: %s", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return apperr.Validation("Formato inválido: %s", strings.Join(msgs, "; "))
}
