// remy-replay replays recorded ACK traces through a trained whisker table and
// saves the resulting window and pacing decisions.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/httpx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/go/warnonerror"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m-lab/remycc/logging"
	"github.com/m-lab/remycc/redis"
	"github.com/m-lab/remycc/remy"
	"github.com/m-lab/remycc/replay"
	"github.com/m-lab/remycc/results"
	"github.com/m-lab/remycc/trace"
	"github.com/m-lab/remycc/uuidx"
	"github.com/m-lab/remycc/whiskers"
)

// Flags that can be passed in on the command line or through the
// environment, e.g. WHISKERS=table.json.
var (
	whiskersPath = flag.String("whiskers", "", "Trained whisker table (.json or .yaml, optionally .gz).")
	dimsFlag     = flag.String("dims", "7", "Number of memory fields the table compares: 7 or 9.")
	tracePath    = flag.String("trace", "", "CSV trace of ACK events to replay.")
	dataDir      = flag.String("datadir", "", "Directory for JSON results; none are written when empty.")
	compress     = flag.Bool("compress", true, "Whether to gzip the JSON results.")
	recordsPath  = flag.String("records", "", "Write per-decision flow statistics as CSV to this file.")
	saveWhiskers = flag.String("save-whiskers", "", "Directory where the table is dumped with usage counts after the run.")
	segmentSize  = flag.Uint("segment-size", 1448, "Sender segment size in bytes.")
	relaxed      = flag.Bool("relaxed", false, "Accept overlapping whiskers; the first match wins.")
	failFast     = flag.Bool("fail-fast", false, "Stop at the first aborted flow.")
	parallelism  = flag.Int("parallelism", 0, "Maximum number of flows replayed at once; 0 means no limit.")
	redisAddr    = flag.String("redis", "", "Redis address for flow snapshots and usage; disabled when empty.")
	metricsAddr  = flag.String("metrics-addr", "", "Serve prometheus metrics on this address; disabled when empty.")
	logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error.")
)

var errMissingFlag = errors.New("both -whiskers and -trace are required")

// run performs one replay with the current flag values.
func run(ctx context.Context) (*replay.Result, error) {
	if *whiskersPath == "" || *tracePath == "" {
		return nil, errMissingFlag
	}
	if err := logging.SetLevel(*logLevel); err != nil {
		return nil, err
	}
	dims, err := remy.ParseDims(*dimsFlag)
	if err != nil {
		return nil, err
	}
	var opts []remy.TreeOption
	if *relaxed {
		opts = append(opts, remy.WithRelaxedCoverage())
	}
	tree, err := whiskers.Load(*whiskersPath, dims, opts...)
	if err != nil {
		return nil, err
	}
	events, err := trace.LoadEvents(*tracePath)
	if err != nil {
		return nil, err
	}
	runID := uuidx.New()
	cfg := replay.Config{
		SegmentSize: uint32(*segmentSize),
		FailFast:    *failFast,
		Parallelism: *parallelism,
		RunID:       runID,
	}
	if *redisAddr != "" {
		client := redis.NewClient(*redisAddr)
		defer warnonerror.Close(client, "Could not close redis client")
		if err := client.Ping(ctx); err != nil {
			return nil, err
		}
		cfg.Store = client
	}

	start := time.Now()
	res, err := replay.Run(ctx, tree, events, cfg)
	if err != nil {
		return nil, err
	}
	logging.Logger.WithFields(log.Fields{
		"run":       runID,
		"flows":     len(res.Flows),
		"records":   len(res.Records),
		"ambiguous": tree.Ambiguous(),
		"elapsed":   time.Since(start).String(),
	}).Info("replay done")

	if err := save(res, tree); err != nil {
		return nil, err
	}
	return res, nil
}

func save(res *replay.Result, tree *remy.WhiskerTree) error {
	if *dataDir != "" {
		if err := saveResults(res); err != nil {
			return err
		}
	}
	if *recordsPath != "" {
		f, err := os.Create(*recordsPath)
		if err != nil {
			return err
		}
		defer warnonerror.Close(f, "Could not close "+*recordsPath)
		if err := trace.NewRecordWriter(f).Write(res.Records); err != nil {
			return err
		}
	}
	if *saveWhiskers != "" {
		path := filepath.Join(*saveWhiskers, "whiskers-"+res.RunID+".txt")
		if err := whiskers.Save(path, tree); err != nil {
			return err
		}
	}
	return nil
}

func saveResults(res *replay.Result) error {
	for what, write := range map[string]func(*results.File) error{
		"flows": func(f *results.File) error {
			for _, fr := range res.Flows {
				if err := f.WriteResult(fr); err != nil {
					return err
				}
			}
			return nil
		},
		"records": func(f *results.File) error {
			for _, r := range res.Records {
				if err := f.WriteResult(r); err != nil {
					return err
				}
			}
			return nil
		},
	} {
		f, err := results.NewFile(res.RunID, *dataDir, what, *compress)
		if err != nil {
			return err
		}
		if err := write(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:    addr,
		Handler: logging.MakeAccessLogHandler(mux),
	}
	rtx.Must(httpx.ListenAndServeAsync(srv), "Could not start metrics server")
	return srv
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment")

	ctx := context.Background()
	if *metricsAddr != "" {
		srv := serveMetrics(*metricsAddr)
		defer srv.Close()
	}
	_, err := run(ctx)
	rtx.Must(err, "Replay failed")
}
