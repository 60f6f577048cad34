package taskchampion

import (
	"context"
	"log"
	"sort"

	"github.com/google/uuid"

	"github.com/timcase/taskchampion-go/internal/server"
	"github.com/timcase/taskchampion-go/internal/storage"
	"github.com/timcase/taskchampion-go/internal/taskdb"
	"github.com/timcase/taskchampion-go/internal/tcerror"
	"github.com/timcase/taskchampion-go/internal/threadbound"
)

// Replica is the local copy of the task database: the single point of
// contact for creating tasks, committing operation buffers, querying, and
// synchronizing with a server.
//
// A replica is confined to the goroutine that created it, like every handle
// derived from it. Create one replica per storage location; it outlives all
// handles derived from it.
type Replica struct {
	bound *threadbound.Bound[*replicaCore]
}

type replicaCore struct {
	db     *taskdb.TaskDB
	clock  *SequenceClock
	depmap *DependencyMap
}

// NewOnDisk opens a replica stored in the given directory. With
// createIfMissing false, a missing database is a *ConfigError. A ReadOnly
// replica rejects every mutating call.
func NewOnDisk(dir string, createIfMissing bool, mode AccessMode) (*Replica, error) {
	store, err := storage.New(storage.Config{
		TaskDBDir:       dir,
		CreateIfMissing: createIfMissing,
		AccessMode:      mode.storageMode(),
	})
	if err != nil {
		return nil, err
	}
	return newReplica(store), nil
}

// NewInMemory opens a replica with no persistence, for tests and
// experiments.
func NewInMemory() *Replica {
	return newReplica(storage.NewMemory())
}

func newReplica(store storage.Storage) *Replica {
	core := &replicaCore{
		db:    taskdb.New(store, nil),
		clock: &SequenceClock{},
	}
	return &Replica{bound: threadbound.New(core)}
}

// SetLogger routes the replica's log output. A nil logger restores the
// stderr default.
func (r *Replica) SetLogger(logger *log.Logger) error {
	core, err := r.bound.Get()
	if err != nil {
		return err
	}
	core.db.SetLogger(logger)
	return nil
}

// Close releases the backing store. The replica and all handles derived
// from it are unusable afterwards.
func (r *Replica) Close() error {
	core, err := r.bound.Get()
	if err != nil {
		return err
	}
	return core.db.Close()
}

// CreateTask records the creation of a new task and returns a handle on it.
// It fails with a *ValidationError if the UUID is already in use. The task
// exists in storage once the buffer is committed.
func (r *Replica) CreateTask(id uuid.UUID, ops *Operations) (*Task, error) {
	core, err := r.bound.Get()
	if err != nil {
		return nil, err
	}
	_, exists, err := core.db.GetTask(id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, tcerror.Validationf("task %s already exists", id)
	}
	if err := ops.Push(CreateOperation(id)); err != nil {
		return nil, err
	}
	return newTask(id, nil, core.clock), nil
}

// CommitOperations applies every operation in the buffer to storage as one
// atomic unit, in push order. If any operation fails to apply, none is
// durably applied. The buffer is not cleared; Clear it before reusing it
// for a disjoint batch.
func (r *Replica) CommitOperations(ops *Operations) error {
	core, err := r.bound.Get()
	if err != nil {
		return err
	}
	engineOps, err := ops.engineOps()
	if err != nil {
		return err
	}
	if err := core.db.Apply(engineOps); err != nil {
		return err
	}
	core.depmap = nil
	return nil
}

// Task returns a handle on one task, ok=false if it does not exist. The
// handle's snapshot is taken at call time and does not track later commits.
func (r *Replica) Task(id uuid.UUID) (*Task, bool, error) {
	core, err := r.bound.Get()
	if err != nil {
		return nil, false, err
	}
	taskmap, ok, err := core.db.GetTask(id)
	if err != nil || !ok {
		return nil, false, err
	}
	return newTask(id, taskmap, core.clock), true, nil
}

// TaskData returns a low-level handle on one task, ok=false if it does not
// exist.
func (r *Replica) TaskData(id uuid.UUID) (*TaskData, bool, error) {
	core, err := r.bound.Get()
	if err != nil {
		return nil, false, err
	}
	taskmap, ok, err := core.db.GetTask(id)
	if err != nil || !ok {
		return nil, false, err
	}
	return newTaskData(id, taskmap, core.clock), true, nil
}

// Tasks returns a handle on every task, sorted by UUID.
func (r *Replica) Tasks() ([]*Task, error) {
	core, err := r.bound.Get()
	if err != nil {
		return nil, err
	}
	all, err := core.db.AllTasks()
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	tasks := make([]*Task, len(ids))
	for i, id := range ids {
		tasks[i] = newTask(id, all[id], core.clock)
	}
	return tasks, nil
}

// TaskUUIDs returns the UUID of every task, sorted.
func (r *Replica) TaskUUIDs() ([]uuid.UUID, error) {
	core, err := r.bound.Get()
	if err != nil {
		return nil, err
	}
	ids, err := core.db.AllTaskUUIDs()
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// WorkingSet returns a snapshot of the pending-task numbering.
func (r *Replica) WorkingSet() (*WorkingSet, error) {
	core, err := r.bound.Get()
	if err != nil {
		return nil, err
	}
	ws, err := core.db.WorkingSet()
	if err != nil {
		return nil, err
	}
	return newWorkingSet(ws), nil
}

// DependencyMap returns a snapshot of the blocking relationships between
// pending tasks. The snapshot is cached until the next commit or sync;
// force discards the cache and recomputes.
func (r *Replica) DependencyMap(force bool) (*DependencyMap, error) {
	core, err := r.bound.Get()
	if err != nil {
		return nil, err
	}
	if core.depmap != nil && !force {
		return core.depmap, nil
	}
	all, err := core.db.AllTasks()
	if err != nil {
		return nil, err
	}
	core.depmap = newDependencyMap(all)
	return core.depmap, nil
}

// SyncToLocal synchronizes with a server stored in a local directory,
// creating it if missing. Blocking; returns when the exchange completes or
// fails.
func (r *Replica) SyncToLocal(ctx context.Context, serverDir string, avoidSnapshots bool) error {
	if serverDir == "" {
		return tcerror.Configf("server directory must not be empty")
	}
	return r.sync(ctx, server.LocalConfig{ServerDir: serverDir}, avoidSnapshots)
}

// SyncToRemote synchronizes with an HTTP sync server. Payloads are sealed
// with the encryption secret before upload. Blocking.
func (r *Replica) SyncToRemote(ctx context.Context, url string, clientID uuid.UUID, encryptionSecret string, avoidSnapshots bool) error {
	if url == "" {
		return tcerror.Configf("server url must not be empty")
	}
	if clientID == uuid.Nil {
		return tcerror.Configf("client id must not be nil")
	}
	if encryptionSecret == "" {
		return tcerror.Configf("encryption secret must not be empty")
	}
	return r.sync(ctx, server.RemoteConfig{
		URL:              url,
		ClientID:         clientID,
		EncryptionSecret: encryptionSecret,
	}, avoidSnapshots)
}

// SyncToGCP synchronizes through a Google Cloud Storage bucket. An empty
// credentialPath uses application default credentials. Blocking.
func (r *Replica) SyncToGCP(ctx context.Context, bucket, credentialPath, encryptionSecret string, avoidSnapshots bool) error {
	if bucket == "" {
		return tcerror.Configf("bucket must not be empty")
	}
	if encryptionSecret == "" {
		return tcerror.Configf("encryption secret must not be empty")
	}
	return r.sync(ctx, server.GCPConfig{
		Bucket:           bucket,
		CredentialPath:   credentialPath,
		EncryptionSecret: encryptionSecret,
	}, avoidSnapshots)
}

// SyncToAWS synchronizes through an S3 bucket, using the default AWS
// credential chain. endpoint is optional and selects an S3-compatible
// store. Blocking.
func (r *Replica) SyncToAWS(ctx context.Context, bucket, region, endpoint, encryptionSecret string, avoidSnapshots bool) error {
	if bucket == "" {
		return tcerror.Configf("bucket must not be empty")
	}
	if encryptionSecret == "" {
		return tcerror.Configf("encryption secret must not be empty")
	}
	return r.sync(ctx, server.AWSConfig{
		Bucket:           bucket,
		Region:           region,
		Endpoint:         endpoint,
		PathStyle:        endpoint != "",
		EncryptionSecret: encryptionSecret,
	}, avoidSnapshots)
}

func (r *Replica) sync(ctx context.Context, cfg server.Config, avoidSnapshots bool) error {
	core, err := r.bound.Get()
	if err != nil {
		return err
	}
	srv, err := cfg.NewServer(ctx, core.db.Logger())
	if err != nil {
		return tcerror.SyncWrap(err, "failed to set up sync server")
	}
	defer srv.Close() //nolint:errcheck

	if err := core.db.Sync(ctx, srv, avoidSnapshots); err != nil {
		return err
	}
	core.depmap = nil
	return nil
}

// RebuildWorkingSet recomputes the pending-task numbering from task status.
// With renumber, surviving tasks are packed into a dense 1..n range;
// without, existing numbers are preserved and only stale entries are
// dropped. All-or-nothing per call.
func (r *Replica) RebuildWorkingSet(renumber bool) error {
	core, err := r.bound.Get()
	if err != nil {
		return err
	}
	return core.db.RebuildWorkingSet(renumber)
}

// ExpireTasks purges deleted tasks whose modification time is more than 180
// days old. The purges are recorded as operations, so they propagate to
// other replicas on sync. All-or-nothing per call.
func (r *Replica) ExpireTasks() error {
	core, err := r.bound.Get()
	if err != nil {
		return err
	}
	return core.db.ExpireTasks()
}

// NumLocalOperations counts committed operations not yet synchronized to a
// server, not including undo points.
func (r *Replica) NumLocalOperations() (int, error) {
	core, err := r.bound.Get()
	if err != nil {
		return 0, err
	}
	return core.db.NumLocalOperations()
}

// NumUndoPoints counts undo boundaries in the local operation history.
func (r *Replica) NumUndoPoints() (int, error) {
	core, err := r.bound.Get()
	if err != nil {
		return 0, err
	}
	return core.db.NumUndoPoints()
}
