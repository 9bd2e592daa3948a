package cmdstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/chatforge/commandd/pkg/types"
)

func storedCommand(id, serverID, name string) string {
	now := time.Now().UTC()
	cmd := &types.Command{
		ID:        id,
		ServerID:  serverID,
		Name:      name,
		Graph:     testGraph(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, _ := json.Marshal(cmd)
	return string(data)
}

func TestRedisStore_CreateLosingClaimConflicts(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	store := NewRedisStoreWithClient(client)

	// The id is generated inside Create, so match the claim value loosely.
	mock.Regexp().ExpectSetNX(nameIndexKey("S1", "ping"), `.+`, 0).SetVal(false)

	_, err := store.Create(ctx, createReq("S1", "ping"))
	if !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRedisStore_UpdateReleasesClaimOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	store := NewRedisStoreWithClient(client)

	mock.ExpectGet(commandKey("cmd-1")).SetVal(storedCommand("cmd-1", "S1", "old-name"))
	mock.ExpectSetNX(nameIndexKey("S1", "new-name"), "cmd-1", 0).SetVal(true)
	mock.ExpectTxPipeline()
	mock.Regexp().ExpectSet(commandKey("cmd-1"), `.+`, 0).SetVal("OK")
	mock.ExpectDel(nameIndexKey("S1", "old-name")).SetVal(1)
	mock.ExpectTxPipelineExec().SetErr(errors.New("connection reset"))

	// The record still holds the old name, so the failed rename must release
	// the new-name claim or the name stays unclaimable forever.
	mock.ExpectDel(nameIndexKey("S1", "new-name")).SetVal(1)

	_, err := store.Update(ctx, "S1", "cmd-1", &UpdateCommandRequest{
		Name:  "new-name",
		Graph: testGraph("new-name"),
	})
	if err == nil {
		t.Fatal("expected the write failure to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("new-name claim was not released: %v", err)
	}
}

func TestRedisStore_UpdateKeepsClaimOnSameNameWriteFailure(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	store := NewRedisStoreWithClient(client)

	mock.ExpectGet(commandKey("cmd-1")).SetVal(storedCommand("cmd-1", "S1", "ping"))
	mock.ExpectTxPipeline()
	mock.Regexp().ExpectSet(commandKey("cmd-1"), `.+`, 0).SetVal("OK")
	mock.ExpectTxPipelineExec().SetErr(errors.New("connection reset"))

	// No rename happened, so the existing claim stays untouched.
	_, err := store.Update(ctx, "S1", "cmd-1", &UpdateCommandRequest{
		Name:  "ping",
		Graph: testGraph("ping"),
	})
	if err == nil {
		t.Fatal("expected the write failure to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
