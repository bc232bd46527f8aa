package schema

import (
	"encoding/json"
	"testing"

	"github.com/carrysync/carry/pkg/engineerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersSchema() CollectionSchema {
	return NewCollection("users",
		Required("name", FieldString),
		Optional("age", FieldInt),
	)
}

func TestValidateValidPayload(t *testing.T) {
	err := usersSchema().ValidatePayload(json.RawMessage(`{"name":"Alice","age":30}`))
	require.NoError(t, err)
}

func TestValidateMissingRequiredField(t *testing.T) {
	err := usersSchema().ValidatePayload(json.RawMessage(`{"age":30}`))
	require.Error(t, err)
	assert.Equal(t, engineerr.KindMissingRequiredField, engineerr.KindOf(err))
}

func TestValidateNullRequiredField(t *testing.T) {
	err := usersSchema().ValidatePayload(json.RawMessage(`{"name":null}`))
	require.Error(t, err)
	assert.Equal(t, engineerr.KindMissingRequiredField, engineerr.KindOf(err))
}

func TestValidateWrongType(t *testing.T) {
	err := usersSchema().ValidatePayload(json.RawMessage(`{"name":"Alice","age":"thirty"}`))
	require.Error(t, err)
	assert.Equal(t, engineerr.KindTypeMismatch, engineerr.KindOf(err))
}

func TestValidateExtraFieldsAccepted(t *testing.T) {
	err := usersSchema().ValidatePayload(json.RawMessage(`{"name":"Alice","nickname":"Al"}`))
	require.NoError(t, err)
}

func TestValidatePayloadMustBeObject(t *testing.T) {
	err := usersSchema().ValidatePayload(json.RawMessage(`[1,2,3]`))
	require.Error(t, err)
	assert.Equal(t, engineerr.KindInvalidPayload, engineerr.KindOf(err))
}

func TestCollectionNotFound(t *testing.T) {
	s := New(1).WithCollection(usersSchema())
	_, ok := s.Collection("orders")
	assert.False(t, ok)

	err := s.ValidatePayload("orders", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Equal(t, engineerr.KindCollectionNotFound, engineerr.KindOf(err))
}

func TestJSONFieldAcceptsAnyValue(t *testing.T) {
	s := NewCollection("events", Required("data", FieldJSON))
	require.NoError(t, s.ValidatePayload(json.RawMessage(`{"data":{"nested":[1,2,3]}}`)))
	require.NoError(t, s.ValidatePayload(json.RawMessage(`{"data":null}`)))
}

func TestFloatAcceptsIntegers(t *testing.T) {
	s := NewCollection("prices", Required("amount", FieldFloat))
	require.NoError(t, s.ValidatePayload(json.RawMessage(`{"amount":5}`)))
	require.NoError(t, s.ValidatePayload(json.RawMessage(`{"amount":5.5}`)))
}

func TestTimestampRejectsNegative(t *testing.T) {
	s := NewCollection("events", Required("at", FieldTimestamp))
	err := s.ValidatePayload(json.RawMessage(`{"at":-1}`))
	require.Error(t, err)
	assert.Equal(t, engineerr.KindTypeMismatch, engineerr.KindOf(err))
}
