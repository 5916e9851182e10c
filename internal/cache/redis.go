// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup.
// A nil Rdb disables the round action log.
var Rdb *redis.Client

// DefaultQueueName is the Redis list (queue) name for round action logs.
const DefaultQueueName = "memoria_actions"

// QueueName is the list PublishRoundAction pushes to. Overridden from config at startup.
var QueueName = DefaultQueueName

// ErrNotConnected is returned when publishing before ConnectRedis succeeded.
var ErrNotConnected = errors.New("redis client is not connected")

// RoundActionRecord holds the minimal info needed by the historian service.
type RoundActionRecord struct {
	RoundID       uuid.UUID              `json:"round_id"`
	ActionIndex   int                    `json:"action_index"`
	PlayerName    string                 `json:"player_name"`
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"`
}

// ConnectRedis initializes the global Redis client and verifies it answers a PING.
func ConnectRedis(addr string, db int) error {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	Rdb = client
	return nil
}

// Close releases the global client, if any.
func Close() error {
	if Rdb == nil {
		return nil
	}
	err := Rdb.Close()
	Rdb = nil
	return err
}

// EncodeRoundAction serializes a record for the queue.
func EncodeRoundAction(record RoundActionRecord) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RoundActionRecord: %w", err)
	}
	return data, nil
}

// DecodeRoundAction parses a queue payload produced by EncodeRoundAction.
func DecodeRoundAction(payload []byte) (RoundActionRecord, error) {
	var rec RoundActionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return RoundActionRecord{}, fmt.Errorf("invalid round action record: %w", err)
	}
	if rec.RoundID == uuid.Nil {
		return RoundActionRecord{}, errors.New("invalid round action record: missing round_id")
	}
	return rec, nil
}

// PublishRoundAction serializes the given record to JSON, then pushes it to the Redis queue.
func PublishRoundAction(ctx context.Context, record RoundActionRecord) error {
	if Rdb == nil {
		return ErrNotConnected
	}
	data, err := EncodeRoundAction(record)
	if err != nil {
		return err
	}
	if err := Rdb.RPush(ctx, QueueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", QueueName, err)
	}
	return nil
}
