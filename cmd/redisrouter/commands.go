package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gorilla/mux"
	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joomcode/redisrouter/redis"
	"github.com/joomcode/redisrouter/rediscluster"
)

func newSlotsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "Prints slot ranges with their owners and pub/sub target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPool(cmd.Context(), func(cfg *config, pool *rediscluster.Pool) error {
				snap := pool.Topology().Snapshot()
				if snap == nil {
					return rediscluster.ErrNotReady.New("topology is not discovered")
				}
				for _, r := range snap.Ranges() {
					owners := make([]string, len(r.Owners))
					for i, o := range r.Owners {
						owners[i] = o.String()
					}
					printf(cmd, "%d-%d %s\n", r.From, r.To, strings.Join(owners, " "))
				}
				printf(cmd, "pubsub target: %s\n", snap.PubSubTarget().Name())
				for _, d := range snap.Disagreements() {
					printf(cmd, "disagreement: %s\n", d)
				}
				return nil
			})
		},
	}
}

func newServersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "Lists discovered servers with their roles and connection state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPool(cmd.Context(), func(cfg *config, pool *rediscluster.Pool) error {
				snap := pool.Topology().Snapshot()
				if snap == nil {
					return rediscluster.ErrNotReady.New("topology is not discovered")
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SERVER\tROLE\tID\tPOOL\tIN USE\tCONNECTED")
				for _, st := range pool.Stats() {
					srv := snap.Server(st.Server)
					role, id := "-", "-"
					if srv != nil {
						role, id = srv.Role.String(), srv.ID
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", st.Server, role, id, st.Size, st.InUse, st.Connected)
				}
				return tw.Flush()
			})
		},
	}
}

func newDoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "do COMMAND [ARG...]",
		Short: "Dispatches single command to the node owning its key",
		Long: `Dispatches single command to the node owning its key.
If node replies with MOVED or ASK, topology is rediscovered and command is sent once more.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withPool(ctx, func(cfg *config, pool *rediscluster.Pool) error {
				cmdArgs := make([]interface{}, len(args)-1)
				for i, arg := range args[1:] {
					cmdArgs[i] = arg
				}
				req := redis.Req(args[0], cmdArgs...)

				res, err := pool.Send(ctx, req)
				if errorx.IsOfType(err, rediscluster.ErrRedirected) {
					a.logger.Warn("cluster topology is stale, rediscovering", zap.Error(err))
					if err = pool.Reset(ctx); err == nil {
						res, err = pool.Send(ctx, req)
					}
				}
				if err != nil {
					return err
				}
				writeReply(cmd.OutOrStdout(), res, "")
				return nil
			})
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keeps pool open, periodically rediscovers topology and serves metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := a.readConfig()
			if err != nil {
				return err
			}
			var current atomic.Pointer[rediscluster.Pool]
			t, stop, err := a.startTelemetry(cfg, func(r *mux.Router) {
				r.HandleFunc("/topology", func(w http.ResponseWriter, req *http.Request) {
					serveTopology(w, current.Load())
				})
			})
			if err != nil {
				return err
			}
			defer stop()

			pool, err := a.connect(ctx, cfg, t)
			if err != nil {
				a.logger.Error("failed to connect to cluster", zap.Error(err))
				return err
			}
			defer pool.Close()
			current.Store(pool)

			return a.watch(ctx, pool, interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "topology refresh interval")
	return cmd
}

func (a *app) watch(ctx context.Context, pool *rediscluster.Pool, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("stopping", zap.NamedError("reason", ctx.Err()))
			return nil
		case <-ticker.C:
		}
		if err := pool.Initialize(ctx); err != nil {
			a.logger.Warn("topology refresh failed", zap.Error(err))
			continue
		}
		a.logger.Debug("topology refreshed",
			zap.Int("servers", len(pool.Topology().Snapshot().Servers())),
			zap.Int("connected", pool.ConnectionsConnected()))
	}
}

type topologyView struct {
	Source        string      `json:"source"`
	PubSubTarget  string      `json:"pubsub_target"`
	Disagreements []string    `json:"disagreements,omitempty"`
	Ranges        []rangeView `json:"ranges"`
}

type rangeView struct {
	From   uint16   `json:"from"`
	To     uint16   `json:"to"`
	Owners []string `json:"owners"`
}

func serveTopology(w http.ResponseWriter, pool *rediscluster.Pool) {
	var snap *rediscluster.Snapshot
	if pool != nil {
		snap = pool.Topology().Snapshot()
	}
	if snap == nil {
		http.Error(w, "topology is not discovered", http.StatusServiceUnavailable)
		return
	}
	view := topologyView{
		Source:        snap.Source(),
		PubSubTarget:  snap.PubSubTarget().Name(),
		Disagreements: snap.Disagreements(),
	}
	for _, r := range snap.Ranges() {
		rv := rangeView{From: r.From, To: r.To}
		for _, o := range r.Owners {
			rv.Owners = append(rv.Owners, o.Name())
		}
		view.Ranges = append(view.Ranges, rv)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

// writeReply prints reply the way redis-cli does.
func writeReply(w io.Writer, res interface{}, indent string) {
	switch v := res.(type) {
	case nil:
		fmt.Fprintln(w, "(nil)")
	case string:
		fmt.Fprintln(w, v)
	case []byte:
		fmt.Fprintf(w, "%q\n", v)
	case int64:
		fmt.Fprintf(w, "(integer) %d\n", v)
	case error:
		fmt.Fprintf(w, "(error) %v\n", v)
	case []interface{}:
		if len(v) == 0 {
			fmt.Fprintln(w, "(empty array)")
			return
		}
		for i, item := range v {
			prefix := fmt.Sprintf("%d) ", i+1)
			if i == 0 {
				fmt.Fprint(w, prefix)
			} else {
				fmt.Fprint(w, indent+prefix)
			}
			writeReply(w, item, indent+strings.Repeat(" ", len(prefix)))
		}
	default:
		fmt.Fprintf(w, "%v\n", v)
	}
}
