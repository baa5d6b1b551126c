package rediscluster_test

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/joomcode/errorx"

	"github.com/joomcode/redisrouter/redis"
	. "github.com/joomcode/redisrouter/rediscluster"
)

const getScript = "return redis.call('GET', KEYS[1])"

// scriptNode answers like redis node caching loaded scripts.
func scriptNode(loaded map[string]bool) func(cmd string, args []interface{}) (interface{}, error) {
	return func(cmd string, args []interface{}) (interface{}, error) {
		switch cmd {
		case "SCRIPT LOAD":
			sum := sha1.Sum([]byte(args[0].(string)))
			sha := hex.EncodeToString(sum[:])
			loaded[sha] = true
			return sha, nil
		case "EVALSHA":
			if !loaded[args[0].(string)] {
				return nil, redis.ErrNoScript.New("NOSCRIPT No matching script. Please use EVAL.")
			}
			return "evalsha", nil
		case "EVAL":
			return "eval", nil
		}
		return "OK", nil
	}
}

func (s *PoolSuite) TestRegisterScriptLoadsIntoEveryMaster() {
	s.n.setReply(scriptNode(map[string]bool{}), addrA)
	s.n.setReply(scriptNode(map[string]bool{}), addrC)
	p := s.pool(Opts{})
	defer p.Close()

	script, err := p.RegisterScript(s.ctx, getScript)
	s.r().NoError(err)
	s.Equal("d3c21d0c2b9ca22f82737626a27bcaf5d288f99f", script.SHA())
	s.Equal(getScript, script.Code())

	for _, addr := range []string{addrA, addrC} {
		conns := s.n.connsTo(addr)
		s.Contains(conns[len(conns)-1].commands(), "SCRIPT LOAD "+getScript, addr)
	}
	for _, addr := range []string{addrB, addrD} {
		for _, c := range s.n.connsTo(addr) {
			s.Empty(c.commands(), addr)
		}
	}

	// "foo" is served by C
	res, err := script.Run(s.ctx, []string{"foo"}, "x")
	s.r().NoError(err)
	s.Equal("evalsha", res)
	conns := s.n.connsTo(addrC)
	s.Contains(conns[len(conns)-1].commands(), "EVALSHA "+script.SHA()+" 1 foo x")
}

func (s *PoolSuite) TestScriptFallsBackToEval() {
	cLoaded := map[string]bool{}
	s.n.setReply(scriptNode(map[string]bool{}), addrA)
	s.n.setReply(scriptNode(cLoaded), addrC)
	p := s.pool(Opts{})
	defer p.Close()

	script, err := p.RegisterScript(s.ctx, getScript)
	s.r().NoError(err)

	// C restarted and lost its script cache
	delete(cLoaded, script.SHA())
	res, err := script.Run(s.ctx, []string{"foo"})
	s.r().NoError(err)
	s.Equal("eval", res)

	res, err = script.Run(s.ctx, []string{"bar"})
	s.r().NoError(err)
	s.Equal("evalsha", res)
}

func (s *PoolSuite) TestScriptWithoutKeys() {
	s.n.setReply(scriptNode(map[string]bool{}), addrA, addrC)
	p := s.pool(Opts{})
	defer p.Close()

	script, err := p.RegisterScript(s.ctx, "return 1")
	s.r().NoError(err)
	s.Equal("e0e1f9fabfc9d4800c877a703b823ac0578ff8db", script.SHA())

	_, err = script.Run(s.ctx, nil, "foo")
	s.True(errorx.IsOfType(err, ErrNoSlotKey))
}

func (s *PoolSuite) TestRegisterScriptUnexpectedSHA() {
	p := s.pool(Opts{})
	defer p.Close()

	// default fake reply is not a sha1
	_, err := p.RegisterScript(s.ctx, "return 1")
	s.True(errorx.IsOfType(err, redis.ErrResponseUnexpected))
	server, _ := s.AsError(err).Property(EKServer)
	s.Equal(addrA, server)
}
