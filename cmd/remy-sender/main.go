// remy-sender accepts TCP connections and sends bulk data on each of them,
// pacing every connection with its own controller over a shared whisker
// table.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/httpx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/go/warnonerror"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m-lab/remycc/controller"
	"github.com/m-lab/remycc/logging"
	"github.com/m-lab/remycc/measurer"
	"github.com/m-lab/remycc/netx"
	"github.com/m-lab/remycc/platformx"
	"github.com/m-lab/remycc/remy"
	"github.com/m-lab/remycc/results"
	"github.com/m-lab/remycc/telemetry"
	"github.com/m-lab/remycc/whiskers"
)

var (
	listenAddr   = flag.String("addr", ":9090", "Address to accept connections on.")
	whiskersPath = flag.String("whiskers", "", "Trained whisker table (.json or .yaml, optionally .gz).")
	dimsFlag     = flag.String("dims", "7", "Number of memory fields the table compares: 7 or 9.")
	duration     = flag.Duration("duration", 10*time.Second, "How long to send on each connection.")
	dataDir      = flag.String("datadir", "", "Directory for per-connection JSON results; none are written when empty.")
	device       = flag.String("device", "", "Network device used as link telemetry; disabled when empty.")
	metricsAddr  = flag.String("metrics-addr", "", "Serve prometheus metrics on this address; disabled when empty.")
	logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error.")
)

const chunkSize = 1 << 16

type sender struct {
	tree     *remy.WhiskerTree
	link     measurer.LinkReader
	duration time.Duration
	dataDir  string
}

// serve sends data on conn for the configured duration while a measurer
// drives its pacing.
func (s *sender) serve(ctx context.Context, conn *net.TCPConn) error {
	defer warnonerror.Close(conn, "Could not close connection")
	sock, err := netx.FromTCPConn(conn)
	if err != nil {
		return err
	}
	defer warnonerror.Close(sock, "Could not close socket dup")

	ctx, cancel := context.WithTimeout(ctx, s.duration)
	defer cancel()
	ctl := controller.New(sock.ID(), s.tree, controller.Config{})
	m := measurer.New(sock, ctl, measurer.Config{Applier: sock, Link: s.link})
	samples := m.Start(ctx, s.duration)
	defer m.Stop(samples)

	var out *results.File
	if s.dataDir != "" {
		out, err = results.NewFile(sock.ID(), s.dataDir, "samples", true)
		if err != nil {
			return err
		}
		defer warnonerror.Close(out, "Could not close results file")
	}

	errs := make(chan error, 1)
	go func() {
		errs <- send(ctx, conn)
	}()
	for sample := range samples {
		if out != nil {
			if err := out.WriteResult(sample.Record); err != nil {
				logging.Flow(sock.ID()).WithError(err).Warn("Could not save sample")
			}
		}
	}
	cancel()
	return <-errs
}

// send writes zeros until ctx expires.
func send(ctx context.Context, conn net.Conn) error {
	buf := make([]byte, chunkSize)
	for ctx.Err() == nil {
		deadline, _ := ctx.Deadline()
		conn.SetWriteDeadline(deadline)
		if _, err := conn.Write(buf); err != nil {
			if ctx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *sender) acceptLoop(ctx context.Context, ln *net.TCPListener) {
	for {
		conn, err := ln.AcceptTCP()
		if err != nil {
			if ctx.Err() == nil {
				logging.Logger.WithError(err).Warn("Accept failed")
			}
			return
		}
		go func() {
			if err := s.serve(ctx, conn); err != nil {
				logging.Logger.WithError(err).Warn("Connection failed")
			}
		}()
	}
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment")
	rtx.Must(logging.SetLevel(*logLevel), "Bad log level")
	platformx.WarnIfNotFullySupported()

	dims, err := remy.ParseDims(*dimsFlag)
	rtx.Must(err, "Bad -dims")
	tree, err := whiskers.Load(*whiskersPath, dims)
	rtx.Must(err, "Could not load whiskers from %q", *whiskersPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &sender{tree: tree, duration: *duration, dataDir: *dataDir}
	if *device != "" {
		lw, err := telemetry.NewLinkWatcher(*device, time.Second)
		rtx.Must(err, "Could not watch %s", *device)
		go lw.Watch(ctx)
		s.link = lw
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: logging.MakeAccessLogHandler(mux)}
		rtx.Must(httpx.ListenAndServeAsync(srv), "Could not start metrics server")
		defer srv.Close()
	}

	addr, err := net.ResolveTCPAddr("tcp", *listenAddr)
	rtx.Must(err, "Could not resolve %s", *listenAddr)
	ln, err := net.ListenTCP("tcp", addr)
	rtx.Must(err, "Could not listen on %s", *listenAddr)
	logging.Logger.WithField("addr", ln.Addr().String()).Info("accepting connections")
	s.acceptLoop(ctx, ln)
}
