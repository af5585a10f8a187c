package storage

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"taskflow/domain"
	"taskflow/session"
)

type fakeTable struct {
	createErr error
	rows      map[string][]byte
	lastOpts  *aztables.UpsertEntityOptions
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string][]byte{}}
}

func (f *fakeTable) CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error) {
	return aztables.CreateTableResponse{}, f.createErr
}

func (f *fakeTable) GetEntity(ctx context.Context, pk, rk string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	v, ok := f.rows[pk+"/"+rk]
	if !ok {
		return aztables.GetEntityResponse{}, &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "ResourceNotFound"}
	}
	return aztables.GetEntityResponse{Value: v}, nil
}

func (f *fakeTable) UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error) {
	var ent aztables.Entity
	if err := sonic.Unmarshal(entity, &ent); err != nil {
		return aztables.UpsertEntityResponse{}, err
	}
	f.rows[ent.PartitionKey+"/"+ent.RowKey] = entity
	f.lastOpts = options
	return aztables.UpsertEntityResponse{}, nil
}

func (f *fakeTable) DeleteEntity(ctx context.Context, pk, rk string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	key := pk + "/" + rk
	if _, ok := f.rows[key]; !ok {
		return aztables.DeleteEntityResponse{}, &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "ResourceNotFound"}
	}
	delete(f.rows, key)
	return aztables.DeleteEntityResponse{}, nil
}

func TestTableSessionStoreRoundTrip(t *testing.T) {
	table := newFakeTable()
	store := &TableSessionStore{table: table, now: time.Now}
	ctx := context.Background()

	in := session.Session{
		ID:        "s-9",
		Token:     "tok",
		User:      domain.User{ID: 3, Email: "bo@example.com", Role: domain.RoleAdmin},
		ExpiresAt: time.Unix(1700000000, 0),
	}
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	if table.lastOpts == nil || table.lastOpts.UpdateMode != aztables.UpdateModeReplace {
		t.Fatalf("expected replace upsert, got %#v", table.lastOpts)
	}

	var raw map[string]any
	if err := sonic.Unmarshal(table.rows["session/s-9"], &raw); err != nil {
		t.Fatalf("decode raw entity: %v", err)
	}
	if raw["ExpiresAt@odata.type"] != edmInt64 {
		t.Fatalf("expected int64 annotation, got %v", raw["ExpiresAt@odata.type"])
	}

	out, err := store.Load(ctx, "s-9")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.ID != "s-9" || out.Token != "tok" || out.User.Email != "bo@example.com" || out.User.Role != domain.RoleAdmin {
		t.Fatalf("unexpected session: %#v", out)
	}
	if !out.ExpiresAt.Equal(in.ExpiresAt) {
		t.Fatalf("unexpected expiry: %v", out.ExpiresAt)
	}
}

func TestTableSessionStoreNotFound(t *testing.T) {
	store := &TableSessionStore{table: newFakeTable(), now: time.Now}
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestTableSessionStoreEnsureTable(t *testing.T) {
	table := newFakeTable()
	store := &TableSessionStore{table: table, now: time.Now}

	table.createErr = &azcore.ResponseError{StatusCode: http.StatusConflict, ErrorCode: string(aztables.TableAlreadyExists)}
	if err := store.EnsureTable(context.Background()); err != nil {
		t.Fatalf("expected existing table to be accepted, got %v", err)
	}

	table.createErr = errors.New("boom")
	if err := store.EnsureTable(context.Background()); err == nil {
		t.Fatalf("expected create error")
	}
}
