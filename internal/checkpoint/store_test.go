package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/dagline/dagline/pkg/models"
)

// newBunDBWithMock creates a bun.DB backed by go-sqlmock for unit
// testing, the same harness the teacher's interceptors_test.go uses
// for repository tests without a live Postgres.
func newBunDBWithMock(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return bun.NewDB(db, pgdialect.New()), mock
}

func TestStore_StartExecution_InsertsRow(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	store := NewStore(db)

	mock.ExpectExec(`INSERT INTO "dagline_executions"`).WillReturnResult(sqlmock.NewResult(1, 1))

	wf := &models.Workflow{ID: "wf-1", Name: "test"}
	ec := &models.ExecutionContext{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		Status:      models.ExecutionStatusRunning,
		Input:       map[string]interface{}{"a": 1.0},
		StartedAt:   time.Now(),
	}
	require.NoError(t, store.StartExecution(context.Background(), wf, ec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FinishExecution_UpdatesStatus(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	store := NewStore(db)

	mock.ExpectExec(`UPDATE "dagline_executions"`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.FinishExecution(context.Background(), "exec-1", models.ExecutionStatusCompleted, "")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_NodeFinish_UpsertsWithinTransaction(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "dagline_node_results"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE "dagline_executions"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	node := &models.Node{ID: "n1", Type: string(models.NodeKindLog)}
	result := &models.NodeResult{
		NodeID:    "n1",
		Status:    models.NodeResultSuccess,
		Output:    map[string]interface{}{"ok": true},
		StartedAt: time.Now(),
		EndedAt:   time.Now(),
	}
	err := store.NodeFinish(context.Background(), "exec-1", node, result, map[string]int{"n2": 0})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToJSONMapRoundTrip(t *testing.T) {
	wf := &models.Workflow{ID: "wf-1", Name: "test", Nodes: []*models.Node{{ID: "n1", Type: "log"}}}
	m, err := toJSONMap(wf)
	require.NoError(t, err)

	var decoded models.Workflow
	require.NoError(t, fromJSONMap(m, &decoded))
	require.Equal(t, "wf-1", decoded.ID)
	require.Len(t, decoded.Nodes, 1)
	require.Equal(t, "n1", decoded.Nodes[0].ID)
}
