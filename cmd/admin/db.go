package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	event := fs.Int("event", 0, "event id filter (audits)")
	action := fs.String("action", "", "action filter (audits), e.g. OVERLAY_RESTORE")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "colony.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fatal(1, "open:", err)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,colony,dimension,chunks,state_bytes,world_digest FROM snapshots ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fatal(1, "query:", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick        int64  `json:"tick"`
				Path        string `json:"path"`
				Colony      int    `json:"colony"`
				Dimension   string `json:"dimension"`
				Chunks      int    `json:"chunks"`
				StateBytes  int    `json:"state_bytes"`
				WorldDigest string `json:"world_digest"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Colony, &r.Dimension, &r.Chunks, &r.StateBytes, &r.WorldDigest); err != nil {
				fatal(1, "scan:", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fatal(1, "rows:", err)
		}

	case "audits":
		where := []string{"1=1"}
		var qargs []any
		if *event > 0 {
			where = append(where, "event=?")
			qargs = append(qargs, *event)
		}
		if a := strings.TrimSpace(*action); a != "" {
			where = append(where, "action=?")
			qargs = append(qargs, a)
		}
		qargs = append(qargs, *limit)
		rows, err := db.Query(`SELECT tick,colony,event,action,x,y,z,COALESCE(artifact,''),COALESCE(scheme,''),COALESCE(reason,'') FROM overlay_audits WHERE `+strings.Join(where, " AND ")+` ORDER BY tick DESC, seq DESC LIMIT ?`, qargs...)
		if err != nil {
			fatal(1, "query:", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     int64  `json:"tick"`
				Colony   int    `json:"colony"`
				Event    int    `json:"event"`
				Action   string `json:"action"`
				Anchor   [3]int `json:"anchor"`
				Artifact string `json:"artifact,omitempty"`
				Scheme   string `json:"scheme,omitempty"`
				Reason   string `json:"reason,omitempty"`
			}
			if err := rows.Scan(&r.Tick, &r.Colony, &r.Event, &r.Action, &r.Anchor[0], &r.Anchor[1], &r.Anchor[2], &r.Artifact, &r.Scheme, &r.Reason); err != nil {
				fatal(1, "scan:", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fatal(1, "rows:", err)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want snapshots|audits)")
		os.Exit(2)
	}
}
