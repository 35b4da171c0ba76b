package tokenstore

import "errors"

var (
	// ErrEmptyKey indicates that a storage operation was attempted without a key.
	ErrEmptyKey = errors.New("tokenstore.empty_key")
	// ErrMissingRedisClient indicates that a RedisStorage was constructed without a client.
	ErrMissingRedisClient = errors.New("tokenstore.missing_redis_client")
)
