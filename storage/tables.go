package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"taskflow/domain"
	"taskflow/session"
)

const (
	sessionPartition = "session"
	edmInt64         = "Edm.Int64"
)

// tableClient is the subset of *aztables.Client the session table uses.
type tableClient interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

// TableSessionStore keeps sessions in an Azure table, one entity per session.
type TableSessionStore struct {
	table tableClient
	now   func() time.Time
}

type sessionEntity struct {
	aztables.Entity
	Token         string `json:"Token"`
	User          string `json:"User"`
	ExpiresAt     int64  `json:"ExpiresAt"`
	ExpiresAtType string `json:"ExpiresAt@odata.type,omitempty"`
}

// NewTableSessionStore connects to the sessions table described by connStr.
func NewTableSessionStore(connStr, table string) (*TableSessionStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Second * 30,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableSessionStore{table: svc.NewClient(table), now: time.Now}, nil
}

// EnsureTable creates the sessions table when it does not exist yet.
func (s *TableSessionStore) EnsureTable(ctx context.Context) error {
	if _, err := s.table.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return err
		}
	}
	return nil
}

func (s *TableSessionStore) Save(ctx context.Context, sess session.Session) error {
	user, err := sonic.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	ent := sessionEntity{
		Entity:        aztables.Entity{PartitionKey: sessionPartition, RowKey: sess.ID},
		Token:         sess.Token,
		User:          string(user),
		ExpiresAt:     sess.ExpiresAt.Unix(),
		ExpiresAtType: edmInt64,
	}
	if sess.ExpiresAt.IsZero() {
		ent.ExpiresAt = 0
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return fmt.Errorf("encode session entity: %w", err)
	}
	_, err = s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (s *TableSessionStore) Load(ctx context.Context, id string) (session.Session, error) {
	resp, err := s.table.GetEntity(ctx, sessionPartition, id, nil)
	if err != nil {
		if isNotFound(err) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, err
	}
	var ent sessionEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return session.Session{}, fmt.Errorf("decode session entity: %w", err)
	}
	var user domain.User
	if err := sonic.UnmarshalString(ent.User, &user); err != nil {
		return session.Session{}, fmt.Errorf("decode session user: %w", err)
	}
	sess := session.Session{ID: ent.RowKey, Token: ent.Token, User: user}
	if ent.ExpiresAt > 0 {
		sess.ExpiresAt = time.Unix(ent.ExpiresAt, 0)
	}
	return sess, nil
}

func (s *TableSessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.table.DeleteEntity(ctx, sessionPartition, id, nil); err != nil {
		if isNotFound(err) {
			return session.ErrNotFound
		}
		return err
	}
	return nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
