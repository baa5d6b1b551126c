package rediscluster_test

import (
	"context"
	"fmt"
	"log"

	"github.com/joomcode/redisrouter/redis"
	"github.com/joomcode/redisrouter/rediscluster"
	"github.com/joomcode/redisrouter/redisconn"
	"github.com/joomcode/redisrouter/testbed"
)

func Example_usage() {
	cl, err := testbed.NewCluster(3, 1)
	if err != nil {
		log.Fatal(err)
	}
	defer cl.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := rediscluster.NewPool(ctx, cl.Seeds(), rediscluster.Opts{
		PoolSize: 2,
		Encoder:  redis.StringEncoder{},
		Name:     "example",
		Logger:   rediscluster.NoopLogger{},
		HostOpts: redisconn.Opts{Logger: redisconn.NoopLogger{}},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if _, err := pool.Do(ctx, "SET", "foo", "bar"); err != nil {
		log.Fatal(err)
	}
	route, _ := pool.Route("foo", false)
	fmt.Println("slot:", route.Slot, "role:", route.Server.Role)
	fmt.Println("servers:", len(pool.Topology().Snapshot().Servers()))
	fmt.Println("connections:", pool.ConnectionsConnected())

	// Output:
	// slot: 12182 role: master
	// servers: 6
	// connections: 12
}
