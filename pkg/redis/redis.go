package redis

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var NilError = goredis.Nil

type Options = goredis.UniversalOptions

// StreamMessage represents a message in a Redis stream.
type StreamMessage struct {
	ID     string
	Values map[string]interface{}
}

// Z is one scored member for sorted-set operations.
type Z = goredis.Z

type RedisAdapter interface {
	// Basic operations
	Set(key string, value []byte, ttl time.Duration) error
	SetNX(key string, value []byte, ttl time.Duration) (bool, error)
	Get(key string) ([]byte, error)
	Del(key string) error
	Exist(key string) (int64, error)
	TxPipelined(fn func(goredis.Pipeliner) error) ([]goredis.Cmder, error)
	Client() goredis.UniversalClient

	// Key applies the adapter's key prefix. Callers composing raw
	// pipeline commands must prefix their keys through this.
	Key(key string) string

	// Stream operations
	XAdd(key string, values map[string]interface{}) (string, error)
	XReadGroup(group, consumer, key, id string, count int64) ([]StreamMessage, error)
	XAck(key, group string, ids ...string) error
	XGroupCreateMkStream(key, group, start string) error
	XLen(key string) (int64, error)
	XDel(key string, ids ...string) error
	XTrimApprox(key string, maxLen int64) error
	XPending(key, group string) (*goredis.XPending, error)
	XPendingExt(key, group string, start, end string, count int64) ([]goredis.XPendingExt, error)
	XClaim(key, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error)

	// Sorted-set operations (delayed retries, bounded history)
	ZAdd(key string, members ...Z) error
	ZRangeByScore(key string, min, max string, count int64) ([]string, error)
	ZRem(key string, members ...interface{}) error
	ZRemRangeByScore(key string, min, max string) (int64, error)
	ZCard(key string) (int64, error)
}

type redisAdapter struct {
	prefix   string
	Conn     goredis.UniversalClient
	ConnName string
}

var redisLock = &sync.RWMutex{}
var redisInstance map[string]RedisAdapter

func NewRedisAdapter(connName string, keysPrefix string, opts *goredis.UniversalOptions) (RedisAdapter, error) {
	redisLock.RLock()
	if redisInstance != nil {
		if adapter, ok := redisInstance[connName]; ok {
			redisLock.RUnlock()
			return adapter, nil
		}
	}
	redisLock.RUnlock()

	c := goredis.NewUniversalClient(opts)
	if cmd := c.Ping(context.Background()); cmd.Err() != nil {
		return nil, cmd.Err()
	}

	adapter := &redisAdapter{
		Conn:     c,
		prefix:   keysPrefix,
		ConnName: connName,
	}

	redisLock.Lock()
	if redisInstance == nil {
		redisInstance = make(map[string]RedisAdapter)
	}
	if existing, ok := redisInstance[connName]; ok {
		redisLock.Unlock()
		_ = c.Close()
		return existing, nil
	}
	redisInstance[connName] = adapter
	redisLock.Unlock()

	return adapter, nil
}

func GetRedis(connName ...string) RedisAdapter {
	redisLock.RLock()
	defer redisLock.RUnlock()

	name := "default"
	if len(connName) > 0 && connName[0] != "" {
		name = connName[0]
	}

	if adapter, ok := redisInstance[name]; ok {
		return adapter
	}
	return redisInstance["default"]
}

func (r *redisAdapter) Key(key string) string {
	return r.prefix + key
}

func (r *redisAdapter) Set(key string, value []byte, ttl time.Duration) error {
	st := r.Conn.Set(context.Background(), r.prefix+key, value, ttl)
	return st.Err()
}

func (r *redisAdapter) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	cmd := r.Conn.SetNX(context.Background(), r.prefix+key, value, ttl)
	if err := cmd.Err(); err != nil {
		return false, err
	}
	return cmd.Val(), nil
}

func (r *redisAdapter) Get(key string) ([]byte, error) {
	st := r.Conn.Get(context.Background(), r.prefix+key)
	if err := st.Err(); err != nil {
		return nil, err
	}
	return st.Bytes()
}

func (r *redisAdapter) Del(key string) error {
	cmd := r.Conn.Del(context.Background(), r.prefix+key)
	return cmd.Err()
}

func (r *redisAdapter) Exist(key string) (int64, error) {
	return r.Conn.Exists(context.Background(), r.prefix+key).Result()
}

func (r *redisAdapter) Client() goredis.UniversalClient {
	return r.Conn
}

func (r *redisAdapter) TxPipelined(fn func(goredis.Pipeliner) error) ([]goredis.Cmder, error) {
	pipelined, err := r.Conn.TxPipelined(context.Background(), fn)
	if err != nil {
		return nil, err
	}
	return pipelined, nil
}

// Stream operations

func (r *redisAdapter) XAdd(key string, values map[string]interface{}) (string, error) {
	cmd := r.Conn.XAdd(context.Background(), &goredis.XAddArgs{
		Stream: r.prefix + key,
		ID:     "*",
		Values: values,
	})
	if cmd.Err() != nil {
		return "", cmd.Err()
	}
	return cmd.Val(), nil
}

func (r *redisAdapter) XReadGroup(group, consumer, key, id string, count int64) ([]StreamMessage, error) {
	streams := r.Conn.XReadGroup(context.Background(), &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{r.prefix + key, id},
		Count:    count,
		// Negative Block means no BLOCK option: the call returns
		// immediately so poll loops keep servicing their other work.
		Block: -1,
	})
	if streams.Err() != nil {
		return nil, streams.Err()
	}

	var messages []StreamMessage
	for _, stream := range streams.Val() {
		for _, msg := range stream.Messages {
			messages = append(messages, StreamMessage{
				ID:     msg.ID,
				Values: msg.Values,
			})
		}
	}
	return messages, nil
}

func (r *redisAdapter) XAck(key, group string, ids ...string) error {
	cmd := r.Conn.XAck(context.Background(), r.prefix+key, group, ids...)
	return cmd.Err()
}

func (r *redisAdapter) XGroupCreateMkStream(key, group, start string) error {
	cmd := r.Conn.XGroupCreateMkStream(context.Background(), r.prefix+key, group, start)
	return cmd.Err()
}

func (r *redisAdapter) XLen(key string) (int64, error) {
	cmd := r.Conn.XLen(context.Background(), r.prefix+key)
	if cmd.Err() != nil {
		return 0, cmd.Err()
	}
	return cmd.Val(), nil
}

func (r *redisAdapter) XDel(key string, ids ...string) error {
	cmd := r.Conn.XDel(context.Background(), r.prefix+key, ids...)
	return cmd.Err()
}

func (r *redisAdapter) XTrimApprox(key string, maxLen int64) error {
	cmd := r.Conn.XTrimMaxLenApprox(context.Background(), r.prefix+key, maxLen, 0)
	return cmd.Err()
}

func (r *redisAdapter) XPending(key, group string) (*goredis.XPending, error) {
	cmd := r.Conn.XPending(context.Background(), r.prefix+key, group)
	if cmd.Err() != nil {
		return nil, cmd.Err()
	}
	return cmd.Val(), nil
}

func (r *redisAdapter) XPendingExt(key, group string, start, end string, count int64) ([]goredis.XPendingExt, error) {
	cmd := r.Conn.XPendingExt(context.Background(), &goredis.XPendingExtArgs{
		Stream: r.prefix + key,
		Group:  group,
		Start:  start,
		End:    end,
		Count:  count,
	})
	if cmd.Err() != nil {
		return nil, cmd.Err()
	}
	return cmd.Val(), nil
}

func (r *redisAdapter) XClaim(key, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error) {
	cmd := r.Conn.XClaim(context.Background(), &goredis.XClaimArgs{
		Stream:   r.prefix + key,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	})
	if cmd.Err() != nil {
		return nil, cmd.Err()
	}

	var messages []StreamMessage
	for _, msg := range cmd.Val() {
		messages = append(messages, StreamMessage{
			ID:     msg.ID,
			Values: msg.Values,
		})
	}
	return messages, nil
}

// Sorted-set operations

func (r *redisAdapter) ZAdd(key string, members ...Z) error {
	cmd := r.Conn.ZAdd(context.Background(), r.prefix+key, members...)
	return cmd.Err()
}

func (r *redisAdapter) ZRangeByScore(key string, min, max string, count int64) ([]string, error) {
	cmd := r.Conn.ZRangeByScore(context.Background(), r.prefix+key, &goredis.ZRangeBy{
		Min:   min,
		Max:   max,
		Count: count,
	})
	if cmd.Err() != nil {
		return nil, cmd.Err()
	}
	return cmd.Val(), nil
}

func (r *redisAdapter) ZRem(key string, members ...interface{}) error {
	cmd := r.Conn.ZRem(context.Background(), r.prefix+key, members...)
	return cmd.Err()
}

func (r *redisAdapter) ZRemRangeByScore(key string, min, max string) (int64, error) {
	cmd := r.Conn.ZRemRangeByScore(context.Background(), r.prefix+key, min, max)
	if cmd.Err() != nil {
		return 0, cmd.Err()
	}
	return cmd.Val(), nil
}

func (r *redisAdapter) ZCard(key string) (int64, error) {
	cmd := r.Conn.ZCard(context.Background(), r.prefix+key)
	if cmd.Err() != nil {
		return 0, cmd.Err()
	}
	return cmd.Val(), nil
}
