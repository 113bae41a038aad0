package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	rd "github.com/redis/go-redis/v9"
)

// Marker 基于 SET PX 的短期存在标记，多实例共享。
type Marker struct {
	rdb *rd.Client
}

func NewMarker(rdb *rd.Client) *Marker {
	return &Marker{rdb: rdb}
}

func (m *Marker) Mark(ctx context.Context, name string, ttl time.Duration) error {
	return errors.Wrapf(m.rdb.Set(ctx, MarkerKey(name), "1", ttl).Err(), "mark %s", name)
}

func (m *Marker) Seen(ctx context.Context, name string) (bool, error) {
	n, err := m.rdb.Exists(ctx, MarkerKey(name)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "check marker %s", name)
	}
	return n > 0, nil
}
