package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"colonyevents.ai/internal/config"
	"colonyevents.ai/internal/overlay"
	"colonyevents.ai/internal/persistence/indexdb"
	persistlog "colonyevents.ai/internal/persistence/log"
	"colonyevents.ai/internal/persistence/snapshot"
	"colonyevents.ai/internal/sim/catalogs"
	"colonyevents.ai/internal/sim/host"
)

func main() {
	var (
		configDir   = flag.String("configs", "./configs", "catalog directory")
		configPath  = flag.String("config", "", "path to server.yaml (default: <configs>/server.yaml)")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		metricsAddr = flag.String("metrics_addr", ":9090", "metrics/health listen address (empty to disable)")
		enableAdmin = flag.Bool("admin_http", true, "serve loopback-only /admin/v1 endpoints on the metrics listener")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite audit/snapshot index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cp := strings.TrimSpace(*configPath)
	if cp == "" {
		cp = filepath.Join(*configDir, "server.yaml")
	}
	cfg, err := config.Load(cp)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	_ = os.MkdirAll(*dataDir, 0o755)

	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer auditLog.Close()
	auditors := overlay.MultiAuditor{auditLog}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "colony.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
		auditors = append(auditors, idx)
	}

	snapCh := make(chan snapshot.SnapshotV1, 2)
	h, err := host.New(host.Options{
		Config:    cfg,
		Catalogs:  cats,
		BackupDir: filepath.Join(*dataDir, cfg.Backup.Dir),
		Logger:    logger,
		Audit:     auditors,
		Snapshots: snapCh,
	})
	if err != nil {
		logger.Fatalf("host: %v", err)
	}

	snapDir := filepath.Join(*dataDir, "snapshots")
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(snapDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := h.Restore(snap); err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d overlays=%d", filepath.Base(snapshotToLoad), h.CurrentTick(), h.Overlays().Len())
	} else {
		logger.Printf("fresh colony %d (%s)", cfg.Colony.ID, cfg.Colony.Name)
	}

	ctx, cancel := signalContext()
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	writeSnap := func(snap snapshot.SnapshotV1) {
		path := snapshot.PathFor(snapDir, snap.Header.Tick)
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("snapshot write: %v", err)
			return
		}
		if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case snap := <-snapCh:
				writeSnap(snap)
			}
		}
	})

	g.Go(func() error {
		err := h.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if addr := strings.TrimSpace(*metricsAddr); addr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(200)
			_, _ = rw.Write([]byte("ok"))
		})
		mux.Handle("/metrics", promhttp.Handler())
		if *enableAdmin {
			registerAdmin(mux, h)
		} else {
			logger.Printf("admin endpoints disabled")
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			<-gctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			return srv.Shutdown(ctx2)
		})
		g.Go(func() error {
			logger.Printf("metrics listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}

	// The loop has exited, so the host can be read directly.
	snap, err := h.Snapshot()
	if err != nil {
		logger.Printf("final snapshot: %v", err)
		return
	}
	writeSnap(snap)
	logger.Printf("final snapshot tick=%d", snap.Header.Tick)
}

func registerAdmin(mux *http.ServeMux, h *host.Host) {
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		st, err := h.RequestState(ctx)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(st)
	})
	mux.HandleFunc("/admin/v1/raid", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		tpl := strings.TrimSpace(r.URL.Query().Get("template"))
		if tpl == "" {
			http.Error(rw, "missing template", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		res := h.RequestRaid(ctx, tpl)

		resp := map[string]any{"ok": res.Err == nil}
		if res.Event != nil {
			resp["event_id"] = res.Event.ID
		}
		if res.Spawn.OK {
			resp["anchor"] = res.Spawn.Anchor
			resp["placed"] = res.Spawn.Placed
		}
		rw.Header().Set("Content-Type", "application/json")
		if res.Err != nil {
			resp["error"] = res.Err.Error()
			rw.WriteHeader(http.StatusConflict)
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
