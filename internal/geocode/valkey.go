package geocode

import (
	"context"
	"encoding/json"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/mr1hm/go-flood-risk/internal/models"
)

// ValkeyCache shares resolved coordinates between service replicas.
type ValkeyCache struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

func NewValkeyCache(client valkey.Client, prefix string, ttl time.Duration) *ValkeyCache {
	if prefix == "" {
		prefix = "geocode"
	}
	return &ValkeyCache{client: client, prefix: prefix, ttl: ttl}
}

func (s *ValkeyCache) Get(ctx context.Context, key string) (models.Coordinates, bool, error) {
	payload, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(key)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return models.Coordinates{}, false, nil
		}
		return models.Coordinates{}, false, err
	}
	var coords models.Coordinates
	if err := json.Unmarshal([]byte(payload), &coords); err != nil {
		return models.Coordinates{}, false, err
	}
	return coords, true, nil
}

func (s *ValkeyCache) Put(ctx context.Context, key string, coords models.Coordinates) error {
	payload, err := json.Marshal(coords)
	if err != nil {
		return err
	}
	if s.ttl > 0 {
		return s.client.Do(ctx, s.client.B().Set().Key(s.key(key)).Value(string(payload)).Ex(s.ttl).Build()).Error()
	}
	return s.client.Do(ctx, s.client.B().Set().Key(s.key(key)).Value(string(payload)).Build()).Error()
}

func (s *ValkeyCache) key(k string) string {
	return s.prefix + ":" + k
}
