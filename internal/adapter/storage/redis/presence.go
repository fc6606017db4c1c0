package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fieldops/dispatch/internal/core/domain"
	"github.com/fieldops/dispatch/internal/core/port"
)

// presenceTTL bounds how long a heartbeat stays visible. The scorer applies
// its own freshness cut below this, so expiry only has to stop unbounded
// key growth.
const presenceTTL = 30 * time.Minute

type heartbeat struct {
	Lat float64   `json:"lat"`
	Lng float64   `json:"lng"`
	At  time.Time `json:"at"`
}

type presenceStore struct {
	client redis.UniversalClient
	log    *zap.Logger
}

// NewPresenceStore creates the Redis-backed live-location store.
func NewPresenceStore(client redis.UniversalClient, log *zap.Logger) port.PresenceStore {
	return &presenceStore{
		client: client,
		log:    log,
	}
}

// RecordPresence saves the worker's location heartbeat, extending its TTL.
func (p *presenceStore) RecordPresence(ctx context.Context, workerID string, loc domain.GeoPoint, at time.Time) error {
	data, err := json.Marshal(heartbeat{Lat: loc.Lat, Lng: loc.Lng, At: at})
	if err != nil {
		return err
	}

	key := fmt.Sprintf("presence:%s", workerID)
	return p.client.Set(ctx, key, data, presenceTTL).Err()
}

func (p *presenceStore) LastKnown(ctx context.Context, workerID string) (*domain.GeoPoint, time.Time, error) {
	key := fmt.Sprintf("presence:%s", workerID)
	val, err := p.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	var hb heartbeat
	if err := json.Unmarshal([]byte(val), &hb); err != nil {
		p.log.Warn("Dropping corrupt presence record",
			zap.String("worker_id", workerID), zap.Error(err))
		return nil, time.Time{}, nil
	}
	return &domain.GeoPoint{Lat: hb.Lat, Lng: hb.Lng}, hb.At, nil
}
