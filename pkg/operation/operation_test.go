package operation

import (
	"encoding/json"
	"testing"

	"github.com/carrysync/carry/pkg/clock"
	"github.com/carrysync/carry/pkg/engineerr"
	"github.com/carrysync/carry/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationOrderingByClock(t *testing.T) {
	c1 := clock.WithCounter("node-1", 1)
	c2 := clock.WithCounter("node-1", 2)
	op1 := Create("op-1", "r1", "c", json.RawMessage(`{}`), 1000, c1)
	op2 := Create("op-2", "r2", "c", json.RawMessage(`{}`), 1000, c2)
	assert.True(t, Less(op1, op2))
}

func TestOperationOrderingSameClockDifferentTimestamp(t *testing.T) {
	c := clock.WithCounter("node-1", 1)
	op1 := Create("op-1", "r1", "c", json.RawMessage(`{}`), 1000, c)
	op2 := Create("op-2", "r2", "c", json.RawMessage(`{}`), 2000, c)
	assert.True(t, Less(op1, op2))
}

func TestOperationOrderingSameClockSameTimestampOpIDTiebreak(t *testing.T) {
	c := clock.WithCounter("node-1", 1)
	opA := Create("op-a", "r1", "c", json.RawMessage(`{}`), 1000, c)
	opB := Create("op-b", "r2", "c", json.RawMessage(`{}`), 1000, c)
	assert.True(t, Less(opA, opB))
}

func TestKey(t *testing.T) {
	op := Update("op-1", "user-1", "users", json.RawMessage(`{}`), 1, 1000, clock.New("n"))
	assert.Equal(t, Key{Collection: "users", RecordID: "user-1"}, op.Key())
}

func testSchema() schema.Schema {
	return schema.New(1).WithCollection(schema.NewCollection("users",
		schema.Required("name", schema.FieldString)))
}

func TestValidateCreateOperation(t *testing.T) {
	op := Create("op-1", "user-1", "users", json.RawMessage(`{"name":"Alice"}`), 1000, clock.New("n"))
	require.NoError(t, Validate(testSchema(), op))
}

func TestValidateUnknownCollection(t *testing.T) {
	op := Create("op-1", "order-1", "orders", json.RawMessage(`{}`), 1000, clock.New("n"))
	err := Validate(testSchema(), op)
	require.Error(t, err)
	assert.Equal(t, engineerr.KindCollectionNotFound, engineerr.KindOf(err))
}

func TestValidateDeleteHasNoPayload(t *testing.T) {
	op := Delete("op-1", "user-1", "users", 1, 1000, clock.New("n"))
	require.NoError(t, Validate(testSchema(), op))
}

func TestValidatePanicsOnReservedOpIDPrefix(t *testing.T) {
	op := Create(SyntheticSeedPrefix+"user-1", "user-1", "users", json.RawMessage(`{"name":"Alice"}`), 1000, clock.New("n"))
	assert.Panics(t, func() {
		_ = Validate(testSchema(), op)
	})
}
