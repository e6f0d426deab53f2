package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Typed хранит значения T в JSON поверх байтового кэша
// под общим префиксом ключей
type Typed[T any] struct {
	cache  Cache
	prefix string
	ttl    time.Duration
}

// NewTyped создаёт типизированный кэш
func NewTyped[T any](c Cache, prefix string, ttl time.Duration) *Typed[T] {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Typed[T]{cache: c, prefix: prefix, ttl: ttl}
}

// Get возвращает значение и признак попадания.
// Повреждённая запись удаляется и считается промахом.
func (t *Typed[T]) Get(ctx context.Context, key string) (*T, bool, error) {
	data, err := t.cache.Get(ctx, t.prefix+key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		_ = t.cache.Delete(ctx, t.prefix+key) //nolint:errcheck // best effort cleanup
		return nil, false, nil
	}

	return &v, true, nil
}

// Set сохраняет значение
func (t *Typed[T]) Set(ctx context.Context, key string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.cache.Set(ctx, t.prefix+key, data, t.ttl)
}

// InvalidateAll удаляет все значения этого кэша
func (t *Typed[T]) InvalidateAll(ctx context.Context) (int64, error) {
	return t.cache.DeleteByPrefix(ctx, t.prefix)
}
