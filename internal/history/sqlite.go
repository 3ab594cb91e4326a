package history

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	requester_id TEXT NOT NULL,
	responder_id TEXT NOT NULL,
	language     TEXT NOT NULL,
	session_type TEXT NOT NULL,
	started_at   TIMESTAMP NOT NULL,
	ended_at     TIMESTAMP,
	outcome      TEXT
);`

type op struct {
	rec   Record
	ended bool
}

// SQLiteRecorder writes session records through a buffered channel drained
// by a single goroutine, keeping the signaling path free of database I/O.
// When the buffer is full the record is dropped, not queued.
type SQLiteRecorder struct {
	db   *sql.DB
	ops  chan op
	done chan struct{}
}

func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	r := &SQLiteRecorder{
		db:   db,
		ops:  make(chan op, 256),
		done: make(chan struct{}),
	}
	go r.run()
	return r, nil
}

func (r *SQLiteRecorder) run() {
	defer close(r.done)
	for o := range r.ops {
		var err error
		if o.ended {
			_, err = r.db.Exec(
				`UPDATE sessions SET ended_at = ?, outcome = ? WHERE id = ?`,
				o.rec.EndedAt, o.rec.Outcome, o.rec.SessionID,
			)
		} else {
			_, err = r.db.Exec(
				`INSERT OR IGNORE INTO sessions (id, requester_id, responder_id, language, session_type, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
				o.rec.SessionID, o.rec.RequesterID, o.rec.ResponderID, o.rec.Language, o.rec.SessionType, o.rec.StartedAt,
			)
		}
		if err != nil {
			log.Error().Err(err).Str("module", "history").Str("session", o.rec.SessionID).Msg("write session record")
		}
	}
}

func (r *SQLiteRecorder) enqueue(o op) {
	select {
	case r.ops <- o:
	default:
		log.Warn().Str("module", "history").Str("session", o.rec.SessionID).Msg("history buffer full, record dropped")
	}
}

func (r *SQLiteRecorder) SessionStarted(rec Record) {
	r.enqueue(op{rec: rec})
}

func (r *SQLiteRecorder) SessionEnded(rec Record) {
	r.enqueue(op{rec: rec, ended: true})
}

func (r *SQLiteRecorder) Close() {
	close(r.ops)
	<-r.done
	_ = r.db.Close()
}
