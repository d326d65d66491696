package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var schemaFiles = map[string]string{
	TypeHello: "schemas/hello.schema.json",
	TypeAct:   "schemas/act.schema.json",
	TypeObs:   "schemas/obs.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for _, path := range schemaFiles {
			b, err := schemaFS.ReadFile(path)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(path, bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("schema %s: %w", path, err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(schemaFiles))
		for typ, path := range schemaFiles {
			s, err := c.Compile(path)
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", path, err)
				return
			}
			out[typ] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// Validate checks a raw message against the schema for its type. Types
// without a schema pass.
func Validate(typ string, raw []byte) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	s, ok := all[typ]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

// DecodeHello validates and decodes a HELLO message.
func DecodeHello(raw []byte) (HelloMsg, error) {
	var m HelloMsg
	if err := Validate(TypeHello, raw); err != nil {
		return m, err
	}
	err := json.Unmarshal(raw, &m)
	return m, err
}

// DecodeAct validates and decodes an ACT message.
func DecodeAct(raw []byte) (ActMsg, error) {
	var m ActMsg
	if err := Validate(TypeAct, raw); err != nil {
		return m, err
	}
	err := json.Unmarshal(raw, &m)
	return m, err
}
