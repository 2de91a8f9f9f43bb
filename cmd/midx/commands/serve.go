package commands

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/marmos91/mailidx/internal/logger"
	"github.com/marmos91/mailidx/internal/telemetry"
	"github.com/marmos91/mailidx/pkg/config"
	"github.com/marmos91/mailidx/pkg/mailindex"
	"github.com/marmos91/mailidx/pkg/mailindex/datafile"
	"github.com/marmos91/mailidx/pkg/mailindex/hashfile"
	"github.com/marmos91/mailidx/pkg/mailindex/modifylog"
	"github.com/marmos91/mailidx/pkg/metrics"
	"github.com/spf13/cobra"

	// register the prometheus-backed index metrics constructor
	_ "github.com/marmos91/mailidx/pkg/metrics/prometheus"
)

var socketPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the mail index and accept connections on a UNIX socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:        cfg.Telemetry.Enabled,
			ServiceName:    "midx",
			ServiceVersion: Version,
			Endpoint:       cfg.Telemetry.Endpoint,
			Insecure:       cfg.Telemetry.Insecure,
			SampleRate:     cfg.Telemetry.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			if err := shutdownTelemetry(ctx); err != nil {
				logger.Error("telemetry shutdown error", "error", err)
			}
		}()

		if cfg.Metrics.Enabled {
			metrics.InitRegistry(nil)
		}

		idx, err := openIndex(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()

		if socketPath == "" {
			socketPath = cfg.Index.Dir + "/midx.sock"
		}
		os.Remove(socketPath)

		ln, err := net.Listen("unix", socketPath)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", socketPath, err)
		}
		defer ln.Close()

		logger.Info("midx listening", "socket", socketPath, "index_dir", cfg.Index.Dir)

		connDone := make(chan struct{})
		go acceptLoop(ctx, ln, idx, connDone)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigChan:
			logger.Info("shutdown signal received")
			cancel()
			ln.Close()
			<-connDone
		case <-connDone:
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&socketPath, "socket", "", "UNIX socket path (default: <index.dir>/midx.sock)")
}

func openIndex(ctx context.Context, cfg *config.Config) (*mailindex.Index, error) {
	return mailindex.OpenOrCreate(ctx, mailindex.Options{
		Dir:            cfg.Index.Dir,
		Prefix:         cfg.Index.Prefix,
		UpdateRecent:   true,
		MetricsEnabled: cfg.Metrics.Enabled,
		Collaborators: mailindex.Collaborators{
			OpenData: func(dir, prefix string) (mailindex.DataStore, error) {
				return datafile.Open(dir, prefix)
			},
			OpenHash: func(dir, prefix string) (mailindex.HashStore, error) {
				return hashfile.Open(cfg.Index.HashDir, prefix)
			},
			OpenModifyLog: func(dir, prefix string) (mailindex.ModifyLog, error) {
				return modifylog.Open(dir, prefix)
			},
		},
	})
}

func acceptLoop(ctx context.Context, ln net.Listener, idx *mailindex.Index, done chan<- struct{}) {
	defer close(done)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Error("accept error", "error", err)
				return
			}
		}
		go handleConn(ctx, conn, idx)
	}
}

// handleConn implements a minimal line protocol: one command per line,
// one reply line per command. This is a thin supervisor, not a wire
// protocol meant for interop. midxctl does not use this socket; it opens
// the index files directly.
func handleConn(ctx context.Context, conn net.Conn, idx *mailindex.Index) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply := dispatch(ctx, idx, line)
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			return
		}
	}
}

// dispatchMu serializes commands from all connections on the shared handle.
var dispatchMu sync.Mutex

func dispatch(ctx context.Context, idx *mailindex.Index, line string) string {
	dispatchMu.Lock()
	defer dispatchMu.Unlock()

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR empty command"
	}

	switch strings.ToUpper(fields[0]) {
	case "STATUS":
		return statusReply(idx)
	case "APPEND":
		return appendReply(ctx, idx, fields)
	case "EXPUNGE":
		return expungeReply(ctx, idx, fields)
	case "FLAGS":
		return flagsReply(ctx, idx, fields)
	case "LOOKUP":
		return lookupReply(ctx, idx, fields)
	default:
		return fmt.Sprintf("ERR unknown command %q", fields[0])
	}
}

func statusReply(idx *mailindex.Index) string {
	if idx.IsInconsistent() {
		return "ERR index inconsistent, rebuild required"
	}
	return "OK"
}

func appendReply(ctx context.Context, idx *mailindex.Index, fields []string) string {
	var flags uint32
	if len(fields) > 1 {
		v, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return fmt.Sprintf("ERR bad flags: %v", err)
		}
		flags = uint32(v)
	}

	if err := idx.SetLock(ctx, mailindex.Exclusive); err != nil {
		return fmt.Sprintf("ERR lock: %v", err)
	}
	defer idx.SetLock(ctx, mailindex.Unlocked)

	v, err := idx.Append(ctx, mailindex.Record{MsgFlags: flags})
	if err != nil {
		return fmt.Sprintf("ERR append: %v", err)
	}
	rec, err := v.Get()
	if err != nil {
		return fmt.Sprintf("ERR append: %v", err)
	}
	return fmt.Sprintf("OK seq=%d uid=%d", v.Seq(), rec.UID)
}

func expungeReply(ctx context.Context, idx *mailindex.Index, fields []string) string {
	if len(fields) < 2 {
		return "ERR usage: EXPUNGE <seq>"
	}
	seq, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return fmt.Sprintf("ERR bad seq: %v", err)
	}

	if err := idx.SetLock(ctx, mailindex.Exclusive); err != nil {
		return fmt.Sprintf("ERR lock: %v", err)
	}
	defer idx.SetLock(ctx, mailindex.Unlocked)

	v, err := idx.Lookup(ctx, uint32(seq))
	if err != nil {
		return fmt.Sprintf("ERR lookup: %v", err)
	}

	if err := idx.Expunge(ctx, v, false); err != nil {
		return fmt.Sprintf("ERR expunge: %v", err)
	}
	return "OK"
}

func flagsReply(ctx context.Context, idx *mailindex.Index, fields []string) string {
	if len(fields) < 3 {
		return "ERR usage: FLAGS <seq> <flags>"
	}
	seq, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return fmt.Sprintf("ERR bad seq: %v", err)
	}
	newFlags, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return fmt.Sprintf("ERR bad flags: %v", err)
	}

	if err := idx.SetLock(ctx, mailindex.Exclusive); err != nil {
		return fmt.Sprintf("ERR lock: %v", err)
	}
	defer idx.SetLock(ctx, mailindex.Unlocked)

	v, err := idx.Lookup(ctx, uint32(seq))
	if err != nil {
		return fmt.Sprintf("ERR lookup: %v", err)
	}
	if err := idx.UpdateFlags(ctx, v, uint32(newFlags), false); err != nil {
		return fmt.Sprintf("ERR update_flags: %v", err)
	}
	return "OK"
}

func lookupReply(ctx context.Context, idx *mailindex.Index, fields []string) string {
	if len(fields) < 2 {
		return "ERR usage: LOOKUP <seq>"
	}
	seq, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return fmt.Sprintf("ERR bad seq: %v", err)
	}

	if err := idx.SetLock(ctx, mailindex.Shared); err != nil {
		return fmt.Sprintf("ERR lock: %v", err)
	}
	defer idx.SetLock(ctx, mailindex.Unlocked)

	v, err := idx.Lookup(ctx, uint32(seq))
	if err != nil {
		return fmt.Sprintf("ERR lookup: %v", err)
	}
	rec, err := v.Get()
	if err != nil {
		return fmt.Sprintf("ERR lookup: %v", err)
	}
	return fmt.Sprintf("OK uid=%d flags=%d", rec.UID, rec.MsgFlags)
}
