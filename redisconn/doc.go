/*
Package redisconn implements connection to single redis server.

Connection wraps single tcp (or unix-socket) connection. Requests are executed one by one:
Do writes request, waits for the answer and only then lets next request in. Connection is
thread-safe, but concurrent callers are serialized, so callers which need parallelism should
hold several connections (rediscluster does so).

Connection tracks whether it is connected now (IsConnected) and whether some request is
in flight or waiting for its turn (IsBusy).

Connection establishes socket synchronously in Connect and returns error if it fails.
After connection broke, it either stays disconnected, or reconnects in background with
exponential backoff if Opts.AutoReconnect is set. Requests are never retried.
*/
package redisconn
