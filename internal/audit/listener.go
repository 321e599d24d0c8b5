// Package audit implements the replication daemon's audit-stream listener:
// a TCP server accepting connections from Vault's socket audit device,
// decoding newline-delimited JSON audit records, and turning relevant
// create/update events into SyncTasks on the matching pipeline's queue.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultsync/vaultsync/internal/observability"
	"github.com/vaultsync/vaultsync/internal/observability/logging"
	"github.com/vaultsync/vaultsync/internal/pathmodel"
	"github.com/vaultsync/vaultsync/internal/pipeline"
)

// maxLineSize bounds a single audit record line, guarding against an
// unbounded read if a client never sends a newline.
const maxLineSize = 1 << 20

// relevantOperations are the only request operations that can change a
// secret's current value. Everything else (read, list, delete) is ignored
// — delete is a deliberate non-goal (see DESIGN.md).
var relevantOperations = map[string]bool{
	"create": true,
	"update": true,
}

// record is the subset of a Vault audit log entry this listener cares
// about. Vault's actual schema has many more fields; unknown fields are
// ignored by encoding/json.
type record struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Request struct {
		Operation string `json:"operation"`
		Path      string `json:"path"`
	} `json:"request"`
}

// Listener accepts audit-stream connections on one address and
// demultiplexes relevant events across the pipelines registered with it.
type Listener struct {
	addr      string
	logger    *logging.Logger
	obs       *observability.Observability
	pipelines []*pipeline.Pipeline

	mu     sync.Mutex
	active int

	ln net.Listener
	wg sync.WaitGroup
}

// New creates a Listener bound to addr, demultiplexing across pipelines.
// Every pipeline passed must have the same Bind address; the caller groups
// pipelines by Bind before constructing a Listener.
func New(addr string, pipelines []*pipeline.Pipeline, logger *logging.Logger, obs *observability.Observability) *Listener {
	return &Listener{
		addr:      addr,
		logger:    logger.With(logging.Component("audit_listener"), logging.String("addr", addr)),
		obs:       obs,
		pipelines: pipelines,
	}
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed. It returns after the listening socket closes.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.ln = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	l.logger.Info("audit listener started")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				l.wg.Wait()
				l.logger.Info("audit listener stopped")
				return nil
			default:
				l.logger.Warn("accept failed", logging.Err(err))
				return err
			}
		}

		l.wg.Add(1)
		go l.handleConn(ctx, conn)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()
	defer conn.Close()

	l.trackConnection(1)
	defer l.trackConnection(-1)

	peer := conn.RemoteAddr().String()
	connID := uuid.NewString()
	connLogger := l.logger.With(logging.String("peer", peer), logging.String("conn_id", connID))
	connLogger.Info("audit connection accepted")
	for _, p := range l.pipelines {
		if l.obs != nil {
			l.obs.RecordAuditConnection(p.ID)
		}
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			connLogger.Info("audit connection closing on shutdown")
			return
		default:
		}
		l.handleLine(ctx, scanner.Bytes())
	}

	if err := scanner.Err(); err != nil {
		connLogger.Warn("audit connection read error", logging.Err(err))
	} else {
		connLogger.Info("audit connection closed")
	}
}

func (l *Listener) trackConnection(delta int) {
	l.mu.Lock()
	l.active += delta
	active := l.active
	l.mu.Unlock()

	if l.obs != nil {
		for _, p := range l.pipelines {
			l.obs.SetAuditConnectionsActive(p.ID, active)
		}
	}
}

// handleLine parses and dispatches one audit record line. Malformed JSON
// is logged and skipped, never fatal to the connection.
func (l *Listener) handleLine(ctx context.Context, line []byte) {
	if len(line) == 0 {
		return
	}

	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		l.recordOutcome("parse_error")
		l.logger.Warn("malformed audit record, skipping line", logging.Err(err))
		return
	}

	if rec.Type != "response" {
		l.recordOutcome("ignored")
		return
	}
	if rec.Error != "" {
		l.recordOutcome("ignored")
		return
	}
	if !relevantOperations[rec.Request.Operation] {
		l.recordOutcome("ignored")
		return
	}

	backend, rawRest := pathmodel.ParseAuditPath(rec.Request.Path)
	if backend == "" {
		l.recordOutcome("ignored")
		return
	}

	dispatched := false
	for _, p := range l.pipelines {
		logicalPath, ok := p.MatchesBackend(backend, rawRest)
		if !ok {
			continue
		}
		task := pipeline.SyncTask{SrcPath: logicalPath}
		if p.Enqueue(ctx, task) {
			dispatched = true
			if l.obs != nil {
				l.obs.RecordAuditRecord(p.ID, "dispatched")
			}
		}
	}

	if !dispatched {
		l.recordOutcome("unmatched")
	}
}

func (l *Listener) recordOutcome(result string) {
	if l.obs == nil {
		return
	}
	for _, p := range l.pipelines {
		l.obs.RecordAuditRecord(p.ID, result)
	}
}

// Close stops accepting new connections. Connections already accepted are
// not closed by it: each handler returns when its peer closes the
// connection, or, once ctx is cancelled, when the next line arrives.
func (l *Listener) Close() error {
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

// Wait blocks until every accepted connection's handler goroutine has
// returned, or the deadline elapses.
func (l *Listener) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
