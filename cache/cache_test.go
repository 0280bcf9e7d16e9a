package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestNoopProvider(t *testing.T) {
	var p Provider = NoopProvider{}
	ctx := context.Background()

	if _, err := p.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	for i := 0; i < 2; i++ {
		ok, err := p.SetNX(ctx, "k", []byte("v"), time.Minute)
		if err != nil || !ok {
			t.Fatalf("noop claims should always succeed, got %v %v", ok, err)
		}
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
}

func TestRedisProviderClaims(t *testing.T) {
	url := os.Getenv("FARE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FARE_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	p := NewRedisProvider(client, "fare-test:")
	defer p.Close()

	key := "claim:" + time.Now().Format(time.RFC3339Nano)
	defer p.Del(ctx, key)

	ok, err := p.SetNX(ctx, key, []byte("1"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first claim = %v %v", ok, err)
	}
	ok, err = p.SetNX(ctx, key, []byte("2"), time.Minute)
	if err != nil || ok {
		t.Fatalf("second claim should be refused, got %v %v", ok, err)
	}
	value, err := p.Get(ctx, key)
	if err != nil || string(value) != "1" {
		t.Fatalf("get = %q %v", value, err)
	}
	if err := p.Del(ctx, key); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := p.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "not-a-url://"); err == nil {
		t.Fatalf("expected parse error")
	}
}
