/*
Package rediscluster routes commands to redis cluster nodes.

Topology learns cluster layout with CLUSTER NODES asked from seed addresses: which server owns
each of 16384 slots, and which replicas replicate it. Layout is published as immutable Snapshot,
so it could be read concurrently without locks. Discovery fails loudly if layout is inconsistent:
if some slot is not covered, if nodes disagree about owner of more than MaxDisagreements slots,
or if master has no replica.

Pool keeps fixed number of connections to every discovered server and dispatches commands:
slot is calculated from command's key, writes go to slot's master, and reads go to random
owner of slot (master or one of replicas). Connection is taken among connected and not busy ones,
rotating connection list on every acquisition to spread load.

Pool doesn't follow MOVED and ASK redirections and doesn't retry: redirection is returned as
ErrRedirected, and caller may call Reset to rediscover topology.

	pool, err := rediscluster.NewPool(ctx, []string{"127.0.0.1:7000"}, rediscluster.Opts{PoolSize: 4})
	if err != nil {
		return err
	}
	defer pool.Close()
	_, err = pool.Do(ctx, "SET", "key", "value")
	res, err := pool.Do(ctx, "GET", "key")
*/
package rediscluster
