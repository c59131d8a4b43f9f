package mongo

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wal-g/initsync/internal"
	"github.com/wal-g/initsync/internal/databases/mongo"
	"github.com/wal-g/initsync/internal/databases/mongo/client"
	"github.com/wal-g/initsync/internal/databases/mongo/initsync"
	"github.com/wal-g/initsync/internal/databases/mongo/models"
	"github.com/wal-g/initsync/internal/databases/mongo/oplog"
	"github.com/wal-g/initsync/internal/databases/mongo/replstate"
	"github.com/wal-g/initsync/internal/databases/mongo/stats"
	"github.com/wal-g/initsync/internal/databases/mongo/syncsource"
	"github.com/wal-g/initsync/internal/executor"
	"github.com/wal-g/initsync/internal/webserver"
	"github.com/wal-g/initsync/utility"
	"github.com/wal-g/tracelog"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"golang.org/x/time/rate"
)

// oplogSyncCmd represents oplog sync procedure
var oplogSyncCmd = &cobra.Command{
	Use:   "oplog-sync <since ts.inc>",
	Short: "Tails sync source oplog and applies it to database through initial sync buffer",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		defer func() { tracelog.ErrorLogger.FatalOnError(err) }()

		ctx, cancel := context.WithCancel(context.Background())
		signalHandler := utility.NewSignalHandler(ctx, cancel, []os.Signal{syscall.SIGINT, syscall.SIGTERM})
		defer func() { _ = signalHandler.Close() }()

		since, err := models.TimestampFromStr(args[0])
		if err != nil {
			return
		}

		err = runOplogSync(ctx, since)
	},
}

type oplogSyncConfig struct {
	mongodbURL       string
	sourceURL        string
	buffer           initsync.BufferSettings
	batchLimits      oplog.BatchLimits
	applyWorkers     int
	applyOpsLimit    int
	executorWorkers  int
	stopIfBehind     bool
	statsLogInterval time.Duration
	sync             mongo.OplogSyncSettings
}

// nolint: gocyclo
func loadOplogSyncConfig(since models.Timestamp) (cfg oplogSyncConfig, err error) {
	if cfg.mongodbURL, err = internal.GetRequiredSetting(internal.MongoDBUriSetting); err != nil {
		return
	}
	if cfg.sourceURL, err = internal.GetRequiredSetting(internal.SourceURISetting); err != nil {
		return
	}
	if cfg.buffer.MaxCount, err = internal.GetIntSetting(internal.BufferMaxCountSetting); err != nil {
		return
	}
	if cfg.buffer.MaxBytes, err = internal.GetIntSetting(internal.BufferMaxBytesSetting); err != nil {
		return
	}
	policy, _ := internal.GetSetting(internal.BufferPolicySetting)
	if cfg.buffer.Policy, err = oplog.ParseBackpressurePolicy(policy); err != nil {
		return
	}
	if cfg.batchLimits.MaxOps, err = internal.GetIntSetting(internal.BatchMaxOpsSetting); err != nil {
		return
	}
	if cfg.batchLimits.MaxBytes, err = internal.GetIntSetting(internal.BatchMaxBytesSetting); err != nil {
		return
	}
	if cfg.applyWorkers, err = internal.GetIntSetting(internal.ApplyWorkersSetting); err != nil {
		return
	}
	if cfg.applyOpsLimit, err = internal.GetIntSetting(internal.ApplyOpsLimitSetting); err != nil {
		return
	}
	if cfg.executorWorkers, err = internal.GetIntSetting(internal.ExecutorConcurrencySetting); err != nil {
		return
	}
	if cfg.stopIfBehind, err = internal.GetBoolSettingDefault(internal.StopWhenSourceIsBehindSetting, false); err != nil {
		return
	}
	pushRetries, err := internal.GetIntSetting(internal.PushRetriesSetting)
	if err != nil {
		return
	}
	cfg.sync.PushRetries = uint64(pushRetries)
	if cfg.sync.BatchInterval, err = internal.GetPositiveDurationSetting(internal.BatchIntervalSetting); err != nil {
		return
	}
	if cfg.sync.MetadataInterval, err = internal.GetPositiveDurationSetting(internal.MetadataIntervalSetting); err != nil {
		return
	}
	if cfg.sync.Source, err = sourceHost(cfg.sourceURL); err != nil {
		return
	}
	if cfg.statsLogInterval, err = internal.GetPositiveDurationSetting(internal.StatsLoggingIntervalSetting); err != nil {
		return
	}
	cfg.sync.Since = since
	return cfg, nil
}

func sourceHost(uri string) (models.HostAndPort, error) {
	cs, err := connstring.Parse(uri)
	if err != nil {
		return models.HostAndPort{}, err
	}
	if len(cs.Hosts) == 0 {
		return models.HostAndPort{}, errors.New("sync source uri has no hosts")
	}
	return models.ParseHostAndPort(cs.Hosts[0])
}

func runOplogSync(ctx context.Context, since models.Timestamp) error {
	cfg, err := loadOplogSyncConfig(since)
	if err != nil {
		return err
	}

	// set up sync source and target clients
	sourceClient, err := client.NewMongoClient(ctx, cfg.sourceURL)
	if err != nil {
		return err
	}
	defer func() { _ = sourceClient.Close(context.Background()) }()

	targetClient, err := client.NewMongoClient(ctx, cfg.mongodbURL)
	if err != nil {
		return err
	}
	defer func() { _ = targetClient.Close(context.Background()) }()

	applyStats, err := stats.NewApplyStats(ctx, internal.MetricsRegistry,
		stats.EnableLogReport(cfg.statsLogInterval, tracelog.InfoLogger.Printf))
	if err != nil {
		return err
	}
	defer internal.PushMetrics(internal.MetricsRegistry)
	if webserver.DefaultWebServer != nil {
		webserver.DefaultWebServer.HandleFunc(stats.DefaultOplogApplyStatsPrefix, applyStats.ServeHTTP)
	}

	var policy syncsource.StopPolicy = syncsource.NeverStop
	if cfg.stopIfBehind {
		policy = syncsource.BehindLocalPolicy(func() models.OpTime { return applyStats.Report().LastApplied })
	}

	var limiter *rate.Limiter
	if cfg.applyOpsLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.applyOpsLimit), cfg.applyOpsLimit)
	}
	applyFn := oplog.NewLimitedApplyFunc(oplog.NewDBApplyFunc(targetClient), limiter)

	exec := executor.NewSemaphoreExecutor(cfg.executorWorkers)
	defer exec.Shutdown()
	es := initsync.NewDefaultExternalState(
		exec,
		replstate.NewState(replstate.NewDriverConfigSource(sourceClient)),
		syncsource.NewEvaluator(policy, nil),
		oplog.NewBatcher(cfg.batchLimits),
		oplog.NewMultiApplier(oplog.NewWorkerPool(cfg.applyWorkers), applyFn),
		cfg.buffer)

	rsConfig, err := es.CurrentConfig(ctx)
	if err != nil {
		return err
	}
	if _, ok := rsConfig.FindMember(cfg.sync.Source); !ok {
		tracelog.WarningLogger.Printf("Sync source %s is not a member of replica set '%s'", cfg.sync.Source, rsConfig.ID)
	}

	cur, err := sourceClient.TailOplogFrom(ctx, since)
	if err != nil {
		return err
	}

	lastApplied, err := mongo.HandleOplogSync(ctx, es, cur, sourceClient, applyStats, cfg.sync)
	if errors.Is(err, mongo.ErrStopFetching) {
		tracelog.WarningLogger.Printf("Stopped fetching from %s, last applied %s", cfg.sync.Source, lastApplied)
		return nil
	}
	if errors.Is(err, context.Canceled) {
		tracelog.InfoLogger.Printf("Oplog sync is interrupted, last applied %s", lastApplied)
		return nil
	}
	return err
}

func init() {
	cmd.AddCommand(oplogSyncCmd)
}
