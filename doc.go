/*
Package redisrouter - client side router for Redis Cluster.

Redis Cluster splits key space into 16384 slots, and every slot is served by one master and
zero or more replicas. Cluster-aware client should know which node owns which slot, and send
command right to that node. This module learns cluster layout from CLUSTER NODES, keeps a pool
of connections to every node, and dispatches each command to the owner of its key's slot.

Capabilities

- topology discovery from several seed addresses, with loud failure on inconsistent layout
(uncovered slots, disagreeing nodes, masters without replicas),

- writes go to slot's master, reads are spread among master and replicas (READONLY is sent
to replica before read),

- fixed size pool of connections per node, connection is never shared between concurrent requests,

- MOVED and ASK are surfaced as distinct error, so caller decides when to rediscover topology,

- lua scripts are loaded into every master, and run with EVALSHA falling back to EVAL,

- hook for custom logging, zap logger by default,

- OpenTelemetry metrics.

Limitations

- redirections are not followed automatically, and nothing is retried,

- hash tags ("{...}" in keys) are not recognized: whole key is hashed,

- commands touching several keys are routed by their first key,

- there is no pub/sub support, only a connection to pub/sub target node could be taken.

Structure

- root package is empty

- common functionality (errors, requests, encoders) is in redis subpackage

- RESP wire format is in resp subpackage

- single connection is in redisconn subpackage

- topology discovery and routing pool are in rediscluster subpackage

- slot hashing and CLUSTER NODES parsing are in rediscluster/redisclusterutil subpackage

- fake servers and clusters for tests are in testbed subpackage

- command line tool is cmd/redisrouter

Usage

Types accepted as command arguments: nil, []byte, string, int (and all other integer types),
float64, float32, bool. All arguments are converted to redis bulk strings as usual (ie
string and bytes - as is; numbers - in decimal notation). bool converted as "0/1",
nil converted to empty string.

Results are de-serialized into plain go types and are returned as interface{}:

  redis        | go
  -------------|-------
  plain string | string
  bulk string  | []byte (or string with redis.StringEncoder)
  integer      | int64
  array        | []interface{}

Redis error replies, IO, connection, and other errors are returned as error with *errorx.Error
underlying type.
*/
package redisrouter
