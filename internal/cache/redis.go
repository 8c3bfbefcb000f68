package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithTTLScript atomically increments KEYS[1] by ARGV[1] and, only when
// the key did not previously exist, applies a TTL of ARGV[2] seconds (0
// means no TTL). The TTL is set atomically with the first increment,
// never as two operations.
//
// KEYS[1] = counter key
// ARGV[1] = delta
// ARGV[2] = ttl seconds (0 = none)
const incrWithTTLScript = `
local existed = redis.call('EXISTS', KEYS[1])
local value = redis.call('INCRBY', KEYS[1], ARGV[1])
if existed == 0 and tonumber(ARGV[2]) > 0 then
    redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return value
`

// casScript implements CompareAndSwap: replace KEYS[1] with ARGV[2] iff its
// current value equals ARGV[1] (empty string ARGV[1] with ARGV[3]=="1"
// means "key must be absent").
//
// KEYS[1] = key
// ARGV[1] = expected old value
// ARGV[2] = new value
// ARGV[3] = "1" if oldValue represents "absent", else "0"
// ARGV[4] = ttl seconds (0 = none)
const casScript = `
local current = redis.call('GET', KEYS[1])
local absent = ARGV[3] == '1'
if absent then
    if current then
        return 0
    end
else
    if current ~= ARGV[1] then
        return 0
    end
end
redis.call('SET', KEYS[1], ARGV[2])
if tonumber(ARGV[4]) > 0 then
    redis.call('EXPIRE', KEYS[1], ARGV[4])
end
return 1
`

// Redis is the production Shared Cache Abstraction implementation, built on
// go-redis/v9. Lua scripts give the atomic-increment and compare-and-swap
// primitives the counters require without a round trip per check. Scripts
// are loaded once and invoked by SHA, with an EVAL fallback when the server
// answers NOSCRIPT (script cache flushed, failover to a fresh replica).
type Redis struct {
	client    *redis.Client
	keyPrefix string

	shaMu         sync.Mutex
	incrSHA       string
	casSHA        string
}

// NewRedis wraps an existing go-redis client as a Shared Cache Abstraction
// implementation. keyPrefix namespaces every key (e.g. "edge:").
func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (r *Redis) k(key string) string { return r.keyPrefix + key }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.k(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return val, err
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.k(key), value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.k(key)).Err()
}

func (r *Redis) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	sha, err := r.ensureIncrScript(ctx)
	if err != nil {
		return 0, err
	}
	ttlSeconds := int64(ttl.Seconds())
	result, err := r.client.EvalSha(ctx, sha, []string{r.k(key)}, delta, ttlSeconds).Int64()
	if isNoScript(err) {
		r.shaMu.Lock()
		r.incrSHA = ""
		r.shaMu.Unlock()
		result, err = r.client.Eval(ctx, incrWithTTLScript, []string{r.k(key)}, delta, ttlSeconds).Int64()
	}
	return result, err
}

func (r *Redis) CompareAndSwap(ctx context.Context, key string, oldValue, newValue []byte, ttl time.Duration) (bool, error) {
	sha, err := r.ensureCASScript(ctx)
	if err != nil {
		return false, err
	}
	absent := "0"
	old := string(oldValue)
	if oldValue == nil {
		absent = "1"
		old = ""
	}
	ttlSeconds := int64(ttl.Seconds())
	keys := []string{r.k(key)}
	args := []interface{}{old, string(newValue), absent, ttlSeconds}
	result, err := r.client.EvalSha(ctx, sha, keys, args...).Int64()
	if isNoScript(err) {
		r.shaMu.Lock()
		r.casSHA = ""
		r.shaMu.Unlock()
		result, err = r.client.Eval(ctx, casScript, keys, args...).Int64()
	}
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

func (r *Redis) SetAdd(ctx context.Context, key string, member string, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.k(key), member)
	if ttl > 0 {
		pipe.Expire(ctx, r.k(key), ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) SetRemove(ctx context.Context, key string, member string) error {
	return r.client.SRem(ctx, r.k(key), member).Err()
}

func (r *Redis) SetSize(ctx context.Context, key string) (int64, error) {
	return r.client.SCard(ctx, r.k(key)).Result()
}

func (r *Redis) SetMembers(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, r.k(key)).Result()
}

func (r *Redis) DeletePattern(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, r.k(pattern), 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	return r.client.Publish(ctx, r.k(topic), payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	pubsub := r.client.Subscribe(ctx, r.k(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, 64)
	done := make(chan struct{})
	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					close(out)
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-done:
					close(out)
					return
				}
			case <-done:
				close(out)
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

func (r *Redis) ensureIncrScript(ctx context.Context) (string, error) {
	r.shaMu.Lock()
	defer r.shaMu.Unlock()
	if r.incrSHA != "" {
		return r.incrSHA, nil
	}
	sha, err := r.client.ScriptLoad(ctx, incrWithTTLScript).Result()
	if err != nil {
		return "", err
	}
	r.incrSHA = sha
	return sha, nil
}

func (r *Redis) ensureCASScript(ctx context.Context) (string, error) {
	r.shaMu.Lock()
	defer r.shaMu.Unlock()
	if r.casSHA != "" {
		return r.casSHA, nil
	}
	sha, err := r.client.ScriptLoad(ctx, casScript).Result()
	if err != nil {
		return "", err
	}
	r.casSHA = sha
	return sha, nil
}

func isNoScript(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOSCRIPT")
}

var _ Cache = (*Redis)(nil)
var _ CompareAndSwapper = (*Redis)(nil)
