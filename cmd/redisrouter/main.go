// Command redisrouter inspects redis cluster topology and dispatches commands to cluster nodes
// the same way rediscluster.Pool does it in applications.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// ErrCLI - errors of command line tool.
	ErrCLI = errorx.NewNamespace("redisrouter")
	// ErrBadConfig - configuration could not be loaded or is invalid.
	ErrBadConfig = ErrCLI.NewType("bad_config")
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	var cfgFile string

	root := &cobra.Command{
		Use:   "redisrouter",
		Short: "Routes commands to redis cluster nodes by key slot",
		Long: `redisrouter learns redis cluster topology from seed addresses with CLUSTER NODES,
keeps a pool of connections to every node, and dispatches commands to the node
owning the key's slot: writes go to master, reads are spread among master and replicas.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				a.v.SetConfigFile(cfgFile)
				if err := a.v.ReadInConfig(); err != nil {
					return ErrBadConfig.Wrap(err, "failed to load config file %s", cfgFile)
				}
			}
			a.initLogger(cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "specifies a config file to load")

	configFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	configFlags.StringSlice("seeds", []string{"127.0.0.1:7000"}, "comma separated addresses of cluster nodes to learn topology from")
	configFlags.Int("pool-size", 1, "number of connections to every cluster node")
	configFlags.String("password", "", "password for AUTH")
	configFlags.Int("db", 0, "database to SELECT")
	configFlags.Bool("auto-reconnect", false, "reconnect broken connections in background")
	configFlags.String("seed-policy", "try-all", "how seeds are asked for topology: try-all or first-only")
	configFlags.Bool("allow-no-replicas", false, "do not fail if some master has no replica")
	configFlags.String("log-level", "info", "the log level to run at")
	configFlags.String("metrics-addr", "", "address to serve prometheus metrics on, disabled if empty")
	configFlags.Duration("connect-timeout", 0, "how long to retry initial connection, 0 means single attempt")
	root.PersistentFlags().AddFlagSet(configFlags)

	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.SetEnvPrefix("rrouter")
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(configFlags)

	root.AddCommand(
		newSlotsCmd(a),
		newServersCmd(a),
		newDoCmd(a),
		newWatchCmd(a),
	)
	return root
}

func getLogger(w io.Writer) (zap.AtomicLevel, *zap.Logger) {
	logLevel := zap.NewAtomicLevel()
	logConfig := zap.NewProductionEncoderConfig()
	logConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(logConfig)
	core := zapcore.NewCore(jsonEncoder, zapcore.AddSync(w), logLevel)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return logLevel, logger
}

func (a *app) initLogger(w io.Writer) {
	a.level, a.logger = getLogger(w)

	parsed, err := zapcore.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		a.logger.Warn("invalid log level specified, using INFO instead", zap.Error(err))
		parsed = zapcore.InfoLevel
	}
	a.level.SetLevel(parsed)
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
