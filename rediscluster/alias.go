package rediscluster

import (
	"github.com/joomcode/redisrouter/redis"
	"github.com/joomcode/redisrouter/rediscluster/redisclusterutil"
)

// Request is an alias for redis.Request
type Request = redis.Request

// NumSlots is a number of slots in redis cluster.
const NumSlots = redisclusterutil.NumSlots

// Slot is a "shortcut" for redisclusterutil.Slot
func Slot(key string) uint16 { return redisclusterutil.Slot(key) }
