// Package memkv is an in-memory stand-in for the Redis KV store contract
// (spec.md §6: string GET/SET with TTL, sets, sorted sets, INCR/DECR). It
// implements the same method set as store.RedisClient structurally, so it
// satisfies that interface without importing internal/store, and is used
// as the test double for internal/store and internal/dispatcher alike.
package memkv

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is a minimal, goroutine-safe in-memory Redis stand-in covering
// strings, sets, and sorted sets. TTL is accepted but not enforced — no
// test in this module depends on wall-clock expiry.
type Client struct {
	mu       sync.Mutex
	strings  map[string]string
	sets     map[string]map[string]struct{}
	zsets    map[string]map[string]float64
	counters map[string]int64
}

func New() *Client {
	return &Client{
		strings:  make(map[string]string),
		sets:     make(map[string]map[string]struct{}),
		zsets:    make(map[string]map[string]float64),
		counters: make(map[string]int64),
	}
}

func (c *Client) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewStringCmd(context.Background())
	if v, ok := c.strings[key]; ok {
		cmd.SetVal(v)
		return cmd
	}
	if v, ok := c.counters[key]; ok {
		cmd.SetVal(strconv.FormatInt(v, 10))
		return cmd
	}
	cmd.SetErr(redis.Nil)
	return cmd
}

func (c *Client) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strings[key] = toString(value)
	cmd := redis.NewStatusCmd(context.Background())
	cmd.SetVal("OK")
	return cmd
}

func (c *Client) Del(_ context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := c.strings[k]; ok {
			delete(c.strings, k)
			n++
		}
		if _, ok := c.counters[k]; ok {
			delete(c.counters, k)
			n++
		}
	}
	cmd := redis.NewIntCmd(context.Background())
	cmd.SetVal(n)
	return cmd
}

func (c *Client) Expire(_ context.Context, _ string, _ time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(context.Background())
	cmd.SetVal(true)
	return cmd
}

func (c *Client) Incr(_ context.Context, key string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	cmd := redis.NewIntCmd(context.Background())
	cmd.SetVal(c.counters[key])
	return cmd
}

func (c *Client) Decr(_ context.Context, key string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]--
	cmd := redis.NewIntCmd(context.Background())
	cmd.SetVal(c.counters[key])
	return cmd
}

func (c *Client) SAdd(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[key]
	if !ok {
		set = make(map[string]struct{})
		c.sets[key] = set
	}
	var added int64
	for _, m := range members {
		s := toString(m)
		if _, exists := set[s]; !exists {
			set[s] = struct{}{}
			added++
		}
	}
	cmd := redis.NewIntCmd(context.Background())
	cmd.SetVal(added)
	return cmd
}

func (c *Client) SRem(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed int64
	if set, ok := c.sets[key]; ok {
		for _, m := range members {
			s := toString(m)
			if _, exists := set[s]; exists {
				delete(set, s)
				removed++
			}
		}
	}
	cmd := redis.NewIntCmd(context.Background())
	cmd.SetVal(removed)
	return cmd
}

func (c *Client) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	var members []string
	for m := range c.sets[key] {
		members = append(members, m)
	}
	sort.Strings(members)
	cmd := redis.NewStringSliceCmd(context.Background())
	cmd.SetVal(members)
	return cmd
}

func (c *Client) SCard(_ context.Context, key string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewIntCmd(context.Background())
	cmd.SetVal(int64(len(c.sets[key])))
	return cmd
}

func (c *Client) ZAdd(_ context.Context, key string, members ...redis.Z) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	zset, ok := c.zsets[key]
	if !ok {
		zset = make(map[string]float64)
		c.zsets[key] = zset
	}
	var added int64
	for _, z := range members {
		member := toString(z.Member)
		if _, exists := zset[member]; !exists {
			added++
		}
		zset[member] = z.Score
	}
	cmd := redis.NewIntCmd(context.Background())
	cmd.SetVal(added)
	return cmd
}

func (c *Client) sortedMembers(key string) []string {
	zset := c.zsets[key]
	members := make([]string, 0, len(zset))
	for m := range zset {
		members = append(members, m)
	}
	// Equal scores are ordered lexicographically by member, as Redis does.
	sort.Slice(members, func(i, j int) bool {
		if zset[members[i]] != zset[members[j]] {
			return zset[members[i]] < zset[members[j]]
		}
		return members[i] < members[j]
	})
	return members
}

func (c *Client) ZRevRange(_ context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	asc := c.sortedMembers(key)
	desc := make([]string, len(asc))
	for i, m := range asc {
		desc[len(asc)-1-i] = m
	}
	cmd := redis.NewStringSliceCmd(context.Background())
	cmd.SetVal(sliceRange(desc, start, stop))
	return cmd
}

func (c *Client) ZRemRangeByRank(_ context.Context, key string, start, stop int64) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	asc := c.sortedMembers(key)
	toRemove := sliceRange(asc, start, stop)
	for _, m := range toRemove {
		delete(c.zsets[key], m)
	}
	cmd := redis.NewIntCmd(context.Background())
	cmd.SetVal(int64(len(toRemove)))
	return cmd
}

func (c *Client) ZCard(_ context.Context, key string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewIntCmd(context.Background())
	cmd.SetVal(int64(len(c.zsets[key])))
	return cmd
}

func sliceRange(s []string, start, stop int64) []string {
	n := int64(len(s))
	if n == 0 {
		return nil
	}
	if start < 0 {
		start = 0
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil
	}
	out := make([]string, stop-start+1)
	copy(out, s[start:stop+1])
	return out
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
