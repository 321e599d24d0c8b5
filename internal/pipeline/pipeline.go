// Package pipeline holds the runtime state shared by the audit listener,
// full-sync walker, and sync worker pool for one (src_backend, dst_backend)
// replication pair: the two Vault clients, the prefix translation, and the
// bounded work queue connecting producers to consumers.
package pipeline

import (
	"context"
	"time"

	"github.com/vaultsync/vaultsync/internal/pathmodel"
	"github.com/vaultsync/vaultsync/internal/vault"
)

// DefaultQueueSize is the bounded work queue capacity per pipeline.
// Producers (walker, audit listener) block once it fills, applying
// backpressure rather than dropping tasks.
const DefaultQueueSize = 256

// SyncTask is a unit of replication work: a secret at SrcPath, under the
// pipeline's source backend, that should be mirrored to the destination
// backend at the equivalent destination path. It carries no data of its
// own — the worker re-reads the current value at execution time.
type SyncTask struct {
	// SrcPath is the logical path of the secret within the source
	// backend, already rooted at (including) the pipeline's SrcPrefix.
	SrcPath pathmodel.LogicalPath
}

// Pipeline is one live (src_backend, dst_backend) replication pair: two
// authenticated Vault clients, the logical prefixes translated between
// them, and the queue feeding its worker pool.
type Pipeline struct {
	ID string

	// DaemonID is the owning daemon's un-suffixed ID, shared by every
	// pipeline a multi-backend fan-out config resolves into. It is the
	// name checkAuditDevices expects on the source cluster's audit
	// device list, since that device is cluster-wide rather than
	// per-pipeline.
	DaemonID string

	SrcClient *vault.Client
	DstClient *vault.Client

	SrcPrefix pathmodel.LogicalPath
	DstPrefix pathmodel.LogicalPath

	FullSyncInterval time.Duration
	Bind             string
	WorkerPoolSize   int

	Queue chan SyncTask
}

// New builds a Pipeline with its work queue allocated. The caller is
// responsible for starting the walker, worker pool, and (if Bind is set)
// registering it with an audit listener.
func New(
	id, daemonID string,
	srcClient, dstClient *vault.Client,
	srcPrefix, dstPrefix pathmodel.LogicalPath,
	fullSyncInterval time.Duration,
	bind string,
	workerPoolSize int,
) *Pipeline {
	if workerPoolSize <= 0 {
		workerPoolSize = 1
	}
	if daemonID == "" {
		daemonID = id
	}
	return &Pipeline{
		ID:               id,
		DaemonID:         daemonID,
		SrcClient:        srcClient,
		DstClient:        dstClient,
		SrcPrefix:        srcPrefix,
		DstPrefix:        dstPrefix,
		FullSyncInterval: fullSyncInterval,
		Bind:             bind,
		WorkerPoolSize:   workerPoolSize,
		Queue:            make(chan SyncTask, DefaultQueueSize),
	}
}

// Enqueue places a task on the pipeline's queue, blocking until there is
// room or ctx is cancelled. This is the system's chosen backpressure
// policy: producers block rather than drop tasks when the destination is
// slow (see DESIGN.md's resolution of the queue-backpressure open
// question).
func (p *Pipeline) Enqueue(ctx context.Context, task SyncTask) bool {
	select {
	case p.Queue <- task:
		return true
	case <-ctx.Done():
		return false
	}
}

// MatchesBackend reports whether an audit event against srcBackend, whose
// path segments beneath the backend mount are rawRest (still carrying any
// KV v1/v2 envelope infix), falls within this pipeline's source backend,
// KV engine version, and prefix. The envelope is resolved here, not by the
// caller, because it depends on this pipeline's source KV version: a
// "metadata"-prefixed path is a metadata-only operation against a v2
// backend and is rejected as irrelevant, while the same literal "data"
// segment on a v1 backend is just part of the secret's own path.
func (p *Pipeline) MatchesBackend(srcBackend string, rawRest pathmodel.LogicalPath) (pathmodel.LogicalPath, bool) {
	if p.SrcClient.Backend() != srcBackend {
		return nil, false
	}
	logicalPath, ok := pathmodel.StripKVInfix(rawRest, int(p.SrcClient.Version()))
	if !ok {
		return nil, false
	}
	if !logicalPath.HasPrefix(p.SrcPrefix) {
		return nil, false
	}
	return logicalPath, true
}

// Translate maps a source-rooted logical path to its destination-rooted
// equivalent, or ok=false if it does not fall under this pipeline's source
// prefix.
func (p *Pipeline) Translate(srcPath pathmodel.LogicalPath) (pathmodel.LogicalPath, bool) {
	return pathmodel.TranslatePrefix(srcPath, p.SrcPrefix, p.DstPrefix)
}
