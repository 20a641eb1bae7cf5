package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"nftsync/internal/model"
)

func setupActivityStore(t *testing.T) *ActivityStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Application: Ready for connections").WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("9000/tcp"),
			),
			Env: map[string]string{"CLICKHOUSE_DB": "test", "CLICKHOUSE_USER": "default", "CLICKHOUSE_PASSWORD": ""},
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	conn, err := NewConn(ctx, fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := NewActivityStore(conn)
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestInsertActivitiesCollapsesRedelivery(t *testing.T) {
	store := setupActivityStore(t)
	ctx := context.Background()

	docs := []model.Activity{
		{
			Type: model.ActivitySale, Contract: "0xnft", TokenID: "1", From: "0xa", To: "0xb",
			Amount: "1", Price: "1000", Currency: model.ZeroAddress, OrderKind: "seaport",
			BaseEventParams: model.BaseEventParams{BlockHash: "0xh", TxHash: "0xt", LogIndex: 4, Block: 9, Timestamp: 1700000000},
		},
		{
			Type: model.ActivityTransfer, Contract: "0xnft", TokenID: "1", From: "0xa", To: "0xb", Amount: "1",
			BaseEventParams: model.BaseEventParams{BlockHash: "0xh", TxHash: "0xt", LogIndex: 3, Block: 9, Timestamp: 1700000000},
		},
	}
	require.NoError(t, store.InsertActivities(ctx, docs))
	require.NoError(t, store.InsertActivities(ctx, docs))

	n, err := store.CountByTx(ctx, "0xt")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
