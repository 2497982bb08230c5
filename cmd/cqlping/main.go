// cqlping connects to a single node, performs the startup handshake,
// optionally runs one query, and can stay attached to stream cluster
// events. It is a diagnostic shell around the connection engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/cqlwire/cqlwire/conn"
	"github.com/cqlwire/cqlwire/message"
	"github.com/cqlwire/cqlwire/wire"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("cqlping", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "cqlping — probe a node over the native protocol\n\nUsage:\n  cqlping [flags] <addr>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	query := fs.String("query", "", "query to execute after the handshake")
	consistency := fs.String("consistency", "one", "consistency level for the query")
	compression := fs.String("compression", "", "compression algorithm: lz4, snappy, or empty")
	cqlVersion := fs.String("cql-version", "", "CQL_VERSION to send in STARTUP")
	dialTimeout := fs.Duration("dial-timeout", 10*time.Second, "total time budget for dialing (with retries)")
	events := fs.Bool("events", false, "register for cluster events and stream them until interrupted")
	verbose := fs.Bool("verbose", false, "debug logging")
	showVersion := fs.Bool("version", false, "show version and exit")

	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("cqlping %s\n", version)
		return
	}
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	err := run(fs.Arg(0), *query, *consistency, *compression, *cqlVersion, *dialTimeout, *events, log)
	if err != nil {
		log.Fatal(err)
	}
}

func run(addr, query, consistency, compression, cqlVersion string, dialTimeout time.Duration, events bool, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cons, err := wire.ParseConsistency(consistency)
	if err != nil {
		return err
	}

	transport, err := dial(ctx, addr, dialTimeout, log)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	session, err := conn.Connect(ctx, transport, conn.Config{
		CQLVersion:  cqlVersion,
		Compression: compression,
		Consistency: cons,
		Logger:      logrus.NewEntry(log),
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = session.Close() }()
	log.Printf("connected to %s (state=%s)", addr, session.State())

	if query != "" {
		if err := runQuery(ctx, session, query); err != nil {
			return err
		}
	}

	if events {
		return watchEvents(ctx, session, log)
	}
	return nil
}

// dial retries with exponential backoff until the node accepts or the
// time budget runs out.
func dial(ctx context.Context, addr string, timeout time.Duration, log *logrus.Logger) (net.Conn, error) {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(timeout)), ctx)
	var d net.Dialer
	return backoff.RetryWithData(func() (net.Conn, error) {
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			log.WithError(err).Debug("dial attempt failed")
			return nil, err
		}
		return c, nil
	}, policy)
}

func runQuery(ctx context.Context, session *conn.Session, query string) error {
	started := time.Now()
	result, err := session.Execute(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	elapsed := time.Since(started)

	switch {
	case result.Rows != nil:
		for _, c := range result.Rows.Columns {
			fmt.Printf("%s\t", c.Name)
		}
		fmt.Println()
		for i := 0; i < result.Rows.Len(); i++ {
			row := result.Rows.Row(i)
			for j := 0; j < row.Len(); j++ {
				fmt.Printf("%v\t", row.Get(j))
			}
			fmt.Println()
		}
		fmt.Printf("(%d rows, %s)\n", result.Rows.Len(), elapsed)
	case result.Keyspace != "":
		fmt.Printf("keyspace set to %s (%s)\n", result.Keyspace, elapsed)
	case result.Change != nil:
		fmt.Printf("schema %s on %s %s.%s (%s)\n", result.Change.ChangeType, result.Change.Target, result.Change.Keyspace, result.Change.Name, elapsed)
	default:
		fmt.Printf("ok (%s)\n", elapsed)
	}
	return nil
}

func watchEvents(ctx context.Context, session *conn.Session, log *logrus.Logger) error {
	stream, err := session.Register(ctx,
		message.EventTopologyChange, message.EventStatusChange, message.EventSchemaChange)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	log.Printf("registered for cluster events; ctrl-c to stop")

	for {
		ev, err := stream.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("event stream: %w", err)
		}
		switch {
		case ev.Topology != nil:
			log.Printf("topology: %s %s", ev.Topology.Change, ev.Topology.Address)
		case ev.Status != nil:
			log.Printf("status: %s %s", ev.Status.Change, ev.Status.Address)
		case ev.Schema != nil:
			log.Printf("schema: %s %s %s.%s", ev.Schema.ChangeType, ev.Schema.Target, ev.Schema.Keyspace, ev.Schema.Name)
		}
	}
}
