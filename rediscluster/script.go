package rediscluster

import (
	"context"
	"crypto/sha1"
	"encoding/hex"

	"github.com/joomcode/errorx"

	"github.com/joomcode/redisrouter/redis"
)

// Script is a lua script loaded into every master of the cluster.
// It runs with EVALSHA on the master owning its first key, and falls back to EVAL
// if that master has lost the script (ie after restart or failover).
type Script struct {
	pool *Pool
	sha  string
	code string
}

// SHA returns sha1 digest of script, as it is known to redis.
func (s *Script) SHA() string {
	return s.sha
}

// Code returns script source.
func (s *Script) Code() string {
	return s.code
}

// RegisterScript loads script with SCRIPT LOAD into every master of current topology.
// Script cache is per node in redis cluster, so single SCRIPT LOAD is not enough.
func (p *Pool) RegisterScript(ctx context.Context, code string) (*Script, error) {
	if p.isClosed() {
		return nil, redis.ErrContextClosed.New("pool is closed").WithProperty(redis.EKCommand, "SCRIPT LOAD")
	}
	snap := p.topology.Snapshot()
	if snap == nil {
		return nil, ErrNotReady.New("topology is not discovered")
	}

	sum := sha1.Sum([]byte(code))
	sha := hex.EncodeToString(sum[:])
	for _, srv := range snap.Servers() {
		if srv.Role != RoleMaster {
			continue
		}
		name := srv.Name()
		conn := p.AcquireConnection(name)
		if conn == nil {
			return nil, p.exhausted(ctx, "SCRIPT LOAD", name)
		}
		res, err := conn.Do(ctx, "SCRIPT LOAD", code)
		if err != nil {
			return nil, withServer(err, name)
		}
		var got string
		switch v := res.(type) {
		case string:
			got = v
		case []byte:
			got = string(v)
		}
		if got != sha {
			return nil, redis.ErrResponseUnexpected.New("SCRIPT LOAD replied with unexpected sha1").
				WithProperty(redis.EKResponse, res).
				WithProperty(EKServer, name)
		}
	}
	return &Script{pool: p, sha: sha, code: code}, nil
}

// Run executes script. Keys must belong to one slot: the first one is used for routing.
// Script without keys could not be routed and fails with ErrNoSlotKey.
func (s *Script) Run(ctx context.Context, keys []string, args ...interface{}) (interface{}, error) {
	if len(keys) == 0 {
		return nil, ErrNoSlotKey.New("script has no keys").WithProperty(redis.EKCommand, "EVALSHA")
	}
	res, err := s.pool.Send(ctx, s.request("EVALSHA", s.sha, keys, args))
	if errorx.IsOfType(err, redis.ErrNoScript) {
		res, err = s.pool.Send(ctx, s.request("EVAL", s.code, keys, args))
	}
	return res, err
}

func (s *Script) request(cmd, script string, keys []string, args []interface{}) Request {
	reqArgs := make([]interface{}, 0, 2+len(keys)+len(args))
	reqArgs = append(reqArgs, script, len(keys))
	for _, k := range keys {
		reqArgs = append(reqArgs, k)
	}
	reqArgs = append(reqArgs, args...)
	return redis.Req(cmd, reqArgs...)
}
