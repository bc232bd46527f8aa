package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/carrysync/carry/pkg/clock"
	"github.com/carrysync/carry/pkg/operation"
)

// OperationLog is the append-only canonical log a server replica keeps of
// every operation it has accepted, plus a derived record table holding each
// record's latest state. Pull is answered from the log (see Since).
type OperationLog struct {
	pool *Pool
}

// NewOperationLog wraps pool as an OperationLog repository.
func NewOperationLog(pool *Pool) *OperationLog {
	return &OperationLog{pool: pool}
}

// Append inserts op into the log if its opId has not been seen before,
// matching the Push idempotency rule in spec.md §6: pushing an
// already-seen opId is a no-op that still reports the op as accepted.
func (l *OperationLog) Append(ctx context.Context, op operation.Operation) error {
	_, err := l.pool.pool.Exec(ctx, `
		INSERT INTO operation_log (op_id, node_id, collection, record_id, op_type, clock_node, clock_counter, timestamp, base_version, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (op_id) DO NOTHING
	`, op.OpID, op.Clock.NodeID, op.Collection, op.ID, string(op.Type), op.Clock.NodeID, int64(op.Clock.Counter), int64(op.Timestamp), int64(op.BaseVersion), nullableJSON(op.Payload))
	if err != nil {
		return fmt.Errorf("append operation: %w", err)
	}
	return nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// Since returns up to limit operations with seq greater than the sequence
// encoded in token, in seq order, plus the token to resume from and whether
// more remain. A nil/empty token starts from the beginning of the log.
func (l *OperationLog) Since(ctx context.Context, token string, limit int) ([]operation.Operation, string, bool, error) {
	afterSeq, err := decodeToken(token)
	if err != nil {
		return nil, "", false, err
	}

	rows, err := l.pool.pool.Query(ctx, `
		SELECT seq, op_id, collection, record_id, op_type, clock_node, clock_counter, timestamp, base_version, payload
		FROM operation_log
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`, afterSeq, limit+1)
	if err != nil {
		return nil, "", false, fmt.Errorf("query operation log: %w", err)
	}
	defer rows.Close()

	var ops []operation.Operation
	var seqs []int64
	for rows.Next() {
		var (
			seq                     int64
			opID, collection, recID string
			opType, clockNode       string
			clockCounter            int64
			timestamp, baseVersion  int64
			payload                 []byte
		)
		if err := rows.Scan(&seq, &opID, &collection, &recID, &opType, &clockNode, &clockCounter, &timestamp, &baseVersion, &payload); err != nil {
			return nil, "", false, fmt.Errorf("scan operation row: %w", err)
		}
		seqs = append(seqs, seq)
		c := clock.WithCounter(clockNode, uint64(clockCounter))
		switch operation.Type(opType) {
		case operation.TypeCreate:
			ops = append(ops, operation.Create(opID, recID, collection, payload, uint64(timestamp), c))
		case operation.TypeUpdate:
			ops = append(ops, operation.Update(opID, recID, collection, payload, uint64(baseVersion), uint64(timestamp), c))
		case operation.TypeDelete:
			ops = append(ops, operation.Delete(opID, recID, collection, uint64(baseVersion), uint64(timestamp), c))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, "", false, fmt.Errorf("iterate operation log: %w", err)
	}

	hasMore := len(ops) > limit
	if hasMore {
		ops = ops[:limit]
		seqs = seqs[:limit]
	}
	nextToken := encodeToken(afterSeq, ops, seqs)
	return ops, nextToken, hasMore, nil
}

// encodeToken builds the opaque syncToken for the last operation returned,
// formatted "{timestamp}_{opId}" per spec.md §6's log-backed convention
// (here timestamp is the log's own monotonic seq, not the op's wall clock,
// since seq is what Since actually resumes from).
func encodeToken(afterSeq int64, ops []operation.Operation, seqs []int64) string {
	if len(ops) == 0 {
		return strconv.FormatInt(afterSeq, 10)
	}
	last := ops[len(ops)-1]
	return fmt.Sprintf("%d_%s", seqs[len(seqs)-1], last.OpID)
}

func decodeToken(token string) (int64, error) {
	if token == "" {
		return 0, nil
	}
	parts := strings.SplitN(token, "_", 2)
	seq, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sync token %q: %w", token, err)
	}
	return seq, nil
}

// UpsertRecord writes the materialized record row for one record, inserting
// it or replacing the existing row for the same collection and id.
func (l *OperationLog) UpsertRecord(ctx context.Context, collection, id string, version uint64, payload []byte, deleted bool, createdAt, updatedAt uint64, origin string, c clock.Clock) error {
	_, err := l.pool.pool.Exec(ctx, `
		INSERT INTO records (collection, record_id, version, payload, deleted, created_at, updated_at, origin, clock_node, clock_counter)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (collection, record_id) DO UPDATE SET
			version = EXCLUDED.version,
			payload = EXCLUDED.payload,
			deleted = EXCLUDED.deleted,
			updated_at = EXCLUDED.updated_at,
			origin = EXCLUDED.origin,
			clock_node = EXCLUDED.clock_node,
			clock_counter = EXCLUDED.clock_counter
		WHERE records.version < EXCLUDED.version
	`, collection, id, int64(version), nullableJSON(payload), deleted, int64(createdAt), int64(updatedAt), origin, c.NodeID, int64(c.Counter))
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// SeenOpIDs reports which of opIDs are already present in the log, used to
// satisfy the Push idempotency rule in spec.md §6: pushing an already-seen
// opId is a no-op that still reports the op as accepted.
func (l *OperationLog) SeenOpIDs(ctx context.Context, opIDs []string) (map[string]bool, error) {
	seen := map[string]bool{}
	if len(opIDs) == 0 {
		return seen, nil
	}
	rows, err := l.pool.pool.Query(ctx, `SELECT op_id FROM operation_log WHERE op_id = ANY($1)`, opIDs)
	if err != nil {
		return nil, fmt.Errorf("query seen op ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan op id: %w", err)
		}
		seen[id] = true
	}
	return seen, rows.Err()
}

// Tx runs fn inside a transaction, matching pgx.Tx usage throughout
// ipiton-alert-history-service's repository layer.
func (l *OperationLog) Tx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := l.pool.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
