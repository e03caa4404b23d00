package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStreamSink публикует события в Redis stream для внешних подписчиков
// (вебхуки, интеграции). Каждое сообщение содержит kind, id, data (JSON) и timestamp.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	// maxLen — приблизительное ограничение длины потока (0 — без ограничения)
	maxLen int64
}

// NewRedisStreamSink создаёт sink для потока stream.
func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Handle реализует Handler.
func (s *RedisStreamSink) Handle(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}

	meta := ev.Metadata()
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"kind":      string(ev.Kind()),
			"id":        meta.ID,
			"data":      string(data),
			"timestamp": meta.OccurredAt.Unix(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("ошибка публикации события в поток %s: %w", s.stream, err)
	}
	return nil
}
