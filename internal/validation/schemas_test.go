package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *SchemaValidator {
	t.Helper()
	sv, err := NewSchemaValidator()
	require.NoError(t, err)
	return sv
}

func TestNewSchemaValidator(t *testing.T) {
	sv := newValidator(t)
	assert.Equal(t, []string{OrderEventSchema, RankRequestSchema}, sv.AvailableSchemas())
	assert.True(t, sv.SchemaExists(OrderEventSchema))
	assert.False(t, sv.SchemaExists("user-profile"))
}

func TestValidate_OrderEvent(t *testing.T) {
	sv := newValidator(t)

	t.Run("valid", func(t *testing.T) {
		result := sv.Validate(OrderEventSchema, `{
			"event_id": "7f0c7c0e-2b7a-4b7e-9c1d-8a4f5b6c7d8e",
			"order_id": "o-1",
			"user_id": "u-1",
			"status": "Delivered",
			"occurred_at": "2025-06-01T10:00:00Z",
			"line_items": [{"item_id": "p-1", "quantity": 2}]
		}`)
		assert.True(t, result.Valid, "%v", result.Errors)
		assert.NoError(t, result.Err())
		assert.Nil(t, result.ToAPIError())
	})

	t.Run("unknown status and missing user", func(t *testing.T) {
		result := sv.Validate(OrderEventSchema, map[string]interface{}{
			"event_id":    "7f0c7c0e-2b7a-4b7e-9c1d-8a4f5b6c7d8e",
			"order_id":    "o-1",
			"status":      "Lost",
			"occurred_at": "2025-06-01T10:00:00Z",
		})
		assert.False(t, result.Valid)
		assert.Error(t, result.Err())
		assert.GreaterOrEqual(t, len(result.Errors), 2)
	})

	t.Run("negative quantity", func(t *testing.T) {
		result := sv.Validate(OrderEventSchema, []byte(`{
			"event_id": "7f0c7c0e-2b7a-4b7e-9c1d-8a4f5b6c7d8e",
			"order_id": "o-1", "user_id": "u-1", "status": "Delivered",
			"occurred_at": "2025-06-01T10:00:00Z",
			"line_items": [{"item_id": "p-1", "quantity": -1}]
		}`))
		assert.False(t, result.Valid)
	})

	t.Run("malformed json", func(t *testing.T) {
		result := sv.Validate(OrderEventSchema, "{")
		assert.False(t, result.Valid)
		assert.Equal(t, "INVALID_JSON", result.Errors[0].Code)
	})
}

func TestValidate_RankRequest(t *testing.T) {
	sv := newValidator(t)

	assert.True(t, sv.Validate(RankRequestSchema, `{"query": "phone", "candidates": [{"id": "1", "name": "Phone"}]}`).Valid)
	assert.True(t, sv.Validate(RankRequestSchema, `{"query": "", "candidates": []}`).Valid)

	result := sv.Validate(RankRequestSchema, `{"query": "phone", "candidates": [{"name": "no id"}], "weights": {"name": -1}}`)
	assert.False(t, result.Valid)

	body := result.ToAPIError()
	require.NotNil(t, body)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
}

func TestValidate_UnknownSchema(t *testing.T) {
	result := newValidator(t).Validate("missing", `{}`)
	assert.False(t, result.Valid)
	assert.Equal(t, "SCHEMA_NOT_FOUND", result.Errors[0].Code)
}
