package collabs

import (
	"context"
	"encoding/json"
	"fmt"

	"accountd/accounts"
	"accountd/pkg/logger"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DirectoryQueueEvent is the envelope published to the directory-queue
// channel. Type discriminates the three shapes the consumer understands;
// the consumer (contact-discovery's ingestion worker) is out of scope here.
type DirectoryQueueEvent struct {
	Type      string    `json:"type"`
	ACI       uuid.UUID `json:"aci"`
	OldNumber string    `json:"oldNumber,omitempty"`
	NewNumber string    `json:"newNumber,omitempty"`
}

const (
	directoryQueueChannel = "directory-queue"

	eventDeleteAccount   = "delete"
	eventRefreshAccount  = "refresh"
	eventChangeNumber    = "changeNumber"
)

// DirectoryQueue is the narrow contract the lifecycle coordinator
// publishes discoverability transitions through. Every call is documented
// as idempotent at the consumer, per spec.md's §9 open question on
// deleteAccount being invoked from two call sites (a number change that
// displaces a live account, and delete).
type DirectoryQueue interface {
	DeleteAccount(ctx context.Context, a *accounts.Account) error
	RefreshAccount(ctx context.Context, a *accounts.Account) error
	ChangePhoneNumber(ctx context.Context, a *accounts.Account, oldNumber, newNumber string) error
}

// RedisDirectoryQueue publishes events over a Redis pub/sub channel,
// following the same *redis.Client wiring as the rest of this module's
// Redis-backed collaborators.
type RedisDirectoryQueue struct {
	client *goredis.Client
	log    *logger.Logger
}

func NewRedisDirectoryQueue(client *goredis.Client, log *logger.Logger) *RedisDirectoryQueue {
	return &RedisDirectoryQueue{client: client, log: log}
}

func (q *RedisDirectoryQueue) publish(ctx context.Context, ev DirectoryQueueEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode directory queue event: %w", err)
	}
	if err := q.client.Publish(ctx, directoryQueueChannel, body).Err(); err != nil {
		q.log.WarnCtx(ctx, "directory queue publish failed", zap.Error(err))
		return nil
	}
	return nil
}

func (q *RedisDirectoryQueue) DeleteAccount(ctx context.Context, a *accounts.Account) error {
	return q.publish(ctx, DirectoryQueueEvent{Type: eventDeleteAccount, ACI: a.ACI})
}

func (q *RedisDirectoryQueue) RefreshAccount(ctx context.Context, a *accounts.Account) error {
	return q.publish(ctx, DirectoryQueueEvent{Type: eventRefreshAccount, ACI: a.ACI})
}

func (q *RedisDirectoryQueue) ChangePhoneNumber(ctx context.Context, a *accounts.Account, oldNumber, newNumber string) error {
	return q.publish(ctx, DirectoryQueueEvent{
		Type:      eventChangeNumber,
		ACI:       a.ACI,
		OldNumber: oldNumber,
		NewNumber: newNumber,
	})
}
