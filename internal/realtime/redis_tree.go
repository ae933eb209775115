package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/campuspool/internal/models"
)

// ChatLog is the port the lifecycle handlers use to narrate automated events
// into a ride's message stream and to drop a ride's realtime trees on
// archival.
type ChatLog interface {
	AppendSystemMessage(ctx context.Context, rideID, text string) error
	DeleteRideTrees(ctx context.Context, rideID string) error
}

// RedisTree implements ChatLog against the realtime key-path store. Messages
// live as JSON entries in the list at chats:{rideID}; live locations under
// ridelocations:{rideID} are written by the geolocation service and only
// deleted here.
type RedisTree struct {
	client *redis.Client
}

func NewRedisTree(addr, password string) *RedisTree {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisTree{client: c}
}

func NewRedisTreeFromClient(c *redis.Client) *RedisTree { return &RedisTree{client: c} }

func (t *RedisTree) AppendSystemMessage(ctx context.Context, rideID, text string) error {
	msg := models.ChatSystemMessage{
		ID:         uuid.NewString(),
		SenderRole: "system",
		Text:       text,
		SentAt:     time.Now().UTC(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return t.client.RPush(ctx, chatKey(rideID), b).Err()
}

func (t *RedisTree) DeleteRideTrees(ctx context.Context, rideID string) error {
	return t.client.Del(ctx, chatKey(rideID), locationKey(rideID)).Err()
}

func (t *RedisTree) Ping(ctx context.Context) error { return t.client.Ping(ctx).Err() }

func (t *RedisTree) Close() error { return t.client.Close() }

func chatKey(rideID string) string     { return "chats:" + rideID }
func locationKey(rideID string) string { return "ridelocations:" + rideID }
