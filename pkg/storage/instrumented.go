// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"
)

// Instrument decorates a store so that every call is logged at debug level, with its duration
func Instrument(logger *zap.Logger, store Store) Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumentedStore{
		store: store,
		l:     logger.With(zap.String("store", store.String())),
	}
}

type instrumentedStore struct {
	store Store
	l     *zap.Logger
}

func (i *instrumentedStore) done(op string, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("op", op), zap.Duration("elapsed", time.Since(start)))
	if err != nil {
		i.l.Debug("storage call failed", append(fields, zap.Error(err))...)
		return
	}
	i.l.Debug("storage call", fields...)
}

func (i *instrumentedStore) Has(ctx context.Context, key string) (has bool, err error) {
	defer func(start time.Time) { i.done("has", start, err, zap.String("key", key)) }(time.Now())
	return i.store.Has(ctx, key)
}

func (i *instrumentedStore) Get(ctx context.Context, key string) (rdr io.ReadCloser, err error) {
	defer func(start time.Time) { i.done("get", start, err, zap.String("key", key)) }(time.Now())
	return i.store.Get(ctx, key)
}

func (i *instrumentedStore) Put(ctx context.Context, key string, rdr io.Reader, exclusive bool) (err error) {
	defer func(start time.Time) { i.done("put", start, err, zap.String("key", key)) }(time.Now())
	return i.store.Put(ctx, key, rdr, exclusive)
}

func (i *instrumentedStore) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { i.done("delete", start, err, zap.String("key", key)) }(time.Now())
	return i.store.Delete(ctx, key)
}

func (i *instrumentedStore) Keys(ctx context.Context) (keys []string, err error) {
	defer func(start time.Time) { i.done("keys", start, err, zap.Int("count", len(keys))) }(time.Now())
	return i.store.Keys(ctx)
}

func (i *instrumentedStore) KeysPrefix(ctx context.Context, prefix string) (keys []string, err error) {
	defer func(start time.Time) {
		i.done("keysPrefix", start, err, zap.String("prefix", prefix), zap.Int("count", len(keys)))
	}(time.Now())
	return i.store.KeysPrefix(ctx, prefix)
}

func (i *instrumentedStore) Clear(ctx context.Context) (err error) {
	defer func(start time.Time) { i.done("clear", start, err) }(time.Now())
	return i.store.Clear(ctx)
}

func (i *instrumentedStore) String() string {
	return i.store.String()
}
