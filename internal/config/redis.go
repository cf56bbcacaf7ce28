package config

import (
	"context"
	"crypto/tls"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds the Redis client used for rate limiting and
// seat-map snapshot caching.  Redis is strictly optional here: seat state
// and bookings never live in it, so when the server is unreachable the
// function logs and returns nil, and callers disable their Redis-backed
// feature instead of failing startup.
//
// Supported variables:
//
//	REDIS_ADDR           host:port (overridden by REDIS_HOST/REDIS_PORT when both set)
//	REDIS_HOST, REDIS_PORT
//	REDIS_PASSWORD       optional
//	REDIS_DB             database number, default 0
//	REDIS_TLS            enable TLS when "true" or "1"
func NewRedisClient() *redis.Client {
	addr := redisAddr()
	dbNum := 0
	if s := os.Getenv("REDIS_DB"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			dbNum = n
		}
	}
	var tlsConf *tls.Config
	if v := os.Getenv("REDIS_TLS"); strings.EqualFold(v, "true") || v == "1" {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}

	client := redis.NewClient(&redis.Options{
		Addr:      addr,
		Password:  os.Getenv("REDIS_PASSWORD"),
		DB:        dbNum,
		TLSConfig: tlsConf,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("config: redis ping %s failed: %v", addr, err)
		_ = client.Close()
		return nil
	}
	return client
}

func redisAddr() string {
	host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")
	if host != "" && port != "" {
		return host + ":" + port
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}
