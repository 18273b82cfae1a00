package utils

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-redis/redis/v8"
)

const (
	// Redis only has string type, there is no boolean or int, so we use "1" to
	// represent true
	RedisTrue = "1"
)

var ctx = context.Background()

// ViewStatusStore tracks which posts a user has already viewed, so that
// views_count is bumped at most once per (user, post). Redis is the right
// home for this: the data is a pure overlay and losing it only means a view
// may be counted twice.
type ViewStatusStore struct {
	inner     *redis.Client
	keyParser RedisKeyParser
}

func GetViewStatusStore() (*ViewStatusStore, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")),
		Password: os.Getenv("REDIS_PASSWD"),
		DB:       0, // use default DB
	})
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	return NewViewStatusStore(redisClient), nil
}

// NewViewStatusStore wraps an existing client. Tests pass a client pointed at
// miniredis.
func NewViewStatusStore(client *redis.Client) *ViewStatusStore {
	return &ViewStatusStore{
		inner:     client,
		keyParser: RedisKeyParser{delimiter: "__"},
	}
}

type RedisKeyParser struct {
	delimiter string
}

func (r RedisKeyParser) ValidateId(id string) bool {
	return !strings.Contains(id, r.delimiter)
}

func (r RedisKeyParser) EncodePostKey(userId string, postId string) (string, error) {
	if !r.ValidateId(userId) || !r.ValidateId(postId) {
		return "", fmt.Errorf("invalid userId or postId")
	}
	return fmt.Sprintf("%s%s%s", userId, r.delimiter, postId), nil
}

// MarkPostViewed records that userId has viewed postId. Returns true iff this
// is the first recorded view for the pair.
func (s *ViewStatusStore) MarkPostViewed(userId string, postId string) (bool, error) {
	key, err := s.keyParser.EncodePostKey(userId, postId)
	if err != nil {
		return false, err
	}
	return s.inner.SetNX(ctx, key, RedisTrue, 0).Result()
}

// GetPostsViewStatus returns, for each post id in order, whether userId has
// viewed it.
func (s *ViewStatusStore) GetPostsViewStatus(postIds []string, userId string) ([]bool, error) {
	if len(postIds) == 0 {
		return []bool{}, nil
	}

	postKeys := []string{}
	for _, pid := range postIds {
		key, err := s.keyParser.EncodePostKey(userId, pid)
		if err != nil {
			return nil, err
		}
		postKeys = append(postKeys, key)
	}

	res, err := s.inner.MGet(ctx, postKeys...).Result()
	if err != nil {
		return nil, err
	}
	status := []bool{}
	for _, v := range res {
		status = append(status, v == RedisTrue)
	}
	return status, nil
}
