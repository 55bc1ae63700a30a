package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema names.
const (
	OrderEventSchema  = "order-event"
	RankRequestSchema = "rank-request"
)

//go:embed schemas/*.json
var embeddedSchemas embed.FS

// SchemaValidator validates JSON documents against named schemas.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewSchemaValidator creates a validator loaded with the built-in schemas.
func NewSchemaValidator() (*SchemaValidator, error) {
	sv := &SchemaValidator{schemas: make(map[string]*gojsonschema.Schema)}
	if err := sv.LoadSchemaFromFS(embeddedSchemas, "schemas"); err != nil {
		return nil, err
	}
	return sv, nil
}

// LoadSchemaFromFS loads every *.json file in dir, named after the file.
func (sv *SchemaValidator) LoadSchemaFromFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to list schema directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".json" {
			continue
		}

		schemaPath := path.Join(dir, entry.Name())
		schemaBytes, err := fs.ReadFile(fsys, schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", schemaPath, err)
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
		if err != nil {
			return fmt.Errorf("failed to load schema %s: %w", entry.Name(), err)
		}

		sv.schemas[strings.TrimSuffix(entry.Name(), ".json")] = schema
	}

	return nil
}

// Validate checks data against the named schema. Strings and byte slices are
// treated as raw JSON; anything else is marshalled first.
func (sv *SchemaValidator) Validate(schemaName string, data interface{}) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return invalid("schema", fmt.Sprintf("Schema '%s' not found", schemaName), "SCHEMA_NOT_FOUND")
	}

	var documentLoader gojsonschema.JSONLoader
	switch v := data.(type) {
	case string:
		documentLoader = gojsonschema.NewStringLoader(v)
	case []byte:
		documentLoader = gojsonschema.NewBytesLoader(v)
	default:
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return invalid("data", fmt.Sprintf("Failed to marshal data to JSON: %v", err), "JSON_MARSHAL_ERROR")
		}
		documentLoader = gojsonschema.NewBytesLoader(jsonBytes)
	}

	result, err := schema.Validate(documentLoader)
	if err != nil {
		// Malformed JSON ends up here.
		return invalid("body", fmt.Sprintf("Invalid JSON: %v", err), "INVALID_JSON")
	}

	validationResult := &ValidationResult{
		Valid:  result.Valid(),
		Errors: make([]ValidationError, 0),
	}
	for _, e := range result.Errors() {
		validationResult.Errors = append(validationResult.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
			Code:    "VALIDATION_ERROR",
			Value:   e.Value(),
		})
	}

	return validationResult
}

// SchemaExists reports whether name is loaded.
func (sv *SchemaValidator) SchemaExists(name string) bool {
	_, exists := sv.schemas[name]
	return exists
}

// AvailableSchemas returns the loaded schema names in sorted order.
func (sv *SchemaValidator) AvailableSchemas() []string {
	names := make([]string, 0, len(sv.schemas))
	for name := range sv.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func invalid(field, message, code string) *ValidationResult {
	return &ValidationResult{
		Valid:  false,
		Errors: []ValidationError{{Field: field, Message: message, Code: code}},
	}
}

// ValidationResult is the outcome of one validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is a single schema violation.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// Err folds the violations into one error, nil when valid.
func (vr *ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	msgs := make([]string, len(vr.Errors))
	for i, e := range vr.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// ToAPIError converts the result to the API error body.
func (vr *ValidationResult) ToAPIError() map[string]interface{} {
	if vr.Valid {
		return nil
	}

	fieldErrors := make(map[string][]string)
	for _, err := range vr.Errors {
		if err.Field != "" {
			fieldErrors[err.Field] = append(fieldErrors[err.Field], err.Message)
		}
	}

	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "VALIDATION_ERROR",
			"message": "Request validation failed",
			"details": map[string]interface{}{
				"validationErrors": vr.Errors,
				"fieldErrors":      fieldErrors,
			},
		},
	}
}
