package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Request bodies are validated against JSON Schemas before decoding, so a
// malformed payload is rejected with a field-level message instead of being
// zero-filled into the store.

const noteSchemaJSON = `{
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"folderId": {"type": "string"},
		"title": {"type": "string"},
		"content": {"type": "string"},
		"updatedAt": {"type": "integer"},
		"targetWordCount": {"type": "integer", "minimum": 0}
	},
	"required": ["title"],
	"additionalProperties": false
}`

const foldersSchemaJSON = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"name": {"type": "string", "minLength": 1},
			"color": {"type": "string"}
		},
		"required": ["id", "name"],
		"additionalProperties": false
	}
}`

const inspirationSchemaJSON = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"type": {"enum": ["text", "image", "video", "link", "highlight"]},
			"content": {"type": "string"},
			"title": {"type": "string"},
			"snippet": {"type": "string"},
			"createdAt": {"type": "integer"},
			"x": {"type": "number"},
			"y": {"type": "number"}
		},
		"required": ["type", "content"],
		"additionalProperties": false
	}
}`

const configSchemaJSON = `{
	"type": "object",
	"properties": {
		"url": {"type": "string", "minLength": 1},
		"key": {"type": "string"}
	},
	"required": ["url"],
	"additionalProperties": false
}`

const wordsSchemaJSON = `{
	"type": "object",
	"properties": {
		"delta": {"type": "integer", "minimum": 0}
	},
	"required": ["delta"],
	"additionalProperties": false
}`

var (
	noteSchema        = mustCompileSchema("note.json", noteSchemaJSON)
	foldersSchema     = mustCompileSchema("folders.json", foldersSchemaJSON)
	inspirationSchema = mustCompileSchema("inspiration.json", inspirationSchemaJSON)
	configSchema      = mustCompileSchema("config.json", configSchemaJSON)
	wordsSchema       = mustCompileSchema("words.json", wordsSchemaJSON)
)

func mustCompileSchema(name, raw string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("httpapi: schema %s unreadable: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("httpapi: schema %s rejected: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("httpapi: schema %s does not compile: %v", name, err))
	}
	return schema
}

// decodeValidated reads the body once, validates it against the schema, then
// decodes it into dst.
func (s *Server) decodeValidated(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema, dst any) bool {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return false
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(body)))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return false
	}
	if err := schema.Validate(doc); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return false
	}
	return true
}
