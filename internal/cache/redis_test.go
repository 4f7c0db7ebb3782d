package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
)

func TestRedis_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := newRedis(db, "valscreen:")
	ctx := context.Background()

	t.Run("cache hit returns value", func(t *testing.T) {
		mock.ExpectGet("valscreen:constituents:sp500").SetVal(`["AAPL"]`)

		value, found, err := c.Get(ctx, "constituents:sp500")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !found {
			t.Error("Expected cache hit")
		}
		if string(value) != `["AAPL"]` {
			t.Errorf("unexpected value %s", value)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Redis expectations not met: %v", err)
		}
	})

	t.Run("cache miss returns not found", func(t *testing.T) {
		mock.ExpectGet("valscreen:missing").RedisNil()

		value, found, err := c.Get(ctx, "missing")
		if err != nil {
			t.Fatalf("Get should not return error on cache miss: %v", err)
		}
		if found || value != nil {
			t.Error("Expected cache miss")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Redis expectations not met: %v", err)
		}
	})

	t.Run("redis error returns error", func(t *testing.T) {
		mock.ExpectGet("valscreen:error").SetErr(redis.TxFailedErr)

		if _, _, err := c.Get(ctx, "error"); err == nil {
			t.Error("Expected error when Redis fails")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Redis expectations not met: %v", err)
		}
	})
}

func TestRedis_SetDelete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := newRedis(db, "valscreen:")
	ctx := context.Background()

	value := []byte(`{"identifier":"AAPL"}`)
	mock.ExpectSet("valscreen:valuation:AAPL", value, 12*time.Hour).SetVal("OK")
	if err := c.Set(ctx, "valuation:AAPL", value, 12*time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	mock.ExpectDel("valscreen:valuation:AAPL").SetVal(1)
	if err := c.Delete(ctx, "valuation:AAPL"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	mock.ExpectSet("valscreen:k", value, time.Minute).SetErr(redis.TxFailedErr)
	if err := c.Set(ctx, "k", value, time.Minute); err == nil {
		t.Error("Expected error when Redis set fails")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Redis expectations not met: %v", err)
	}
}

func TestRedis_ImplementsCache(t *testing.T) {
	var _ Cache = (*Redis)(nil)
	var _ Cache = (*Memory)(nil)
}
