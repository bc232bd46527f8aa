package engineerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesOnKindOnly(t *testing.T) {
	a := RecordNotFound("doc-1")
	b := RecordNotFound("doc-2")
	assert.True(t, errors.Is(a, b))

	c := CollectionNotFound("docs")
	assert.False(t, errors.Is(a, c))
}

func TestClassifyGroupsKindsByRetryBehavior(t *testing.T) {
	assert.Equal(t, ClassConcurrency, Classify(VersionMismatch(1, 2)))
	assert.Equal(t, ClassConcurrency, Classify(RecordAlreadyExists("doc-1")))
	assert.Equal(t, ClassConcurrency, Classify(RecordNotFound("doc-1")))
	assert.Equal(t, ClassConcurrency, Classify(OperationOnDeleted("doc-1")))

	assert.Equal(t, ClassFormat, Classify(InvalidSnapshot("bad")))
	assert.Equal(t, ClassFormat, Classify(SchemaVersionMismatch(1, 2)))
	assert.Equal(t, ClassFormat, Classify(ClockOverflow()))

	assert.Equal(t, ClassValidation, Classify(InvalidPayload("bad json")))
	assert.Equal(t, ClassValidation, Classify(MissingRequiredField("title")))
	assert.Equal(t, ClassValidation, Classify(errors.New("not ours")))
}

func TestKindOfExtractsKind(t *testing.T) {
	assert.Equal(t, KindRecordNotFound, KindOf(RecordNotFound("doc-1")))
	assert.Equal(t, Kind(""), KindOf(errors.New("not ours")))
}

func TestErrorMessagesIncludeContext(t *testing.T) {
	assert.Contains(t, VersionMismatch(3, 5).Error(), "expected 3, got 5")
	assert.Contains(t, TypeMismatch("count", "number", "string").Error(), "count")
}
