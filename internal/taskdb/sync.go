package taskdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/timcase/taskchampion-go/internal/op"
	"github.com/timcase/taskchampion-go/internal/server"
	"github.com/timcase/taskchampion-go/internal/storage"
	"github.com/timcase/taskchampion-go/internal/tcerror"
)

// How many times Sync retries after a version conflict before giving up.
const syncMaxRetries = 3

// Sync exchanges operations with a sync server.
//
// The replica first catches up: it walks the server's version chain forward
// from its base version, applying each remote segment. Remote updates lose
// to newer local unsynced updates of the same property (last write wins).
// It then publishes its own unsynced operations as one new version. If
// another replica published first, the publish fails with a version
// conflict and the whole exchange is retried.
//
// Undo points are local bookkeeping and are not sent to the server; after a
// successful sync the local operation history is empty and the tasks it
// described can no longer be undone.
func (db *TaskDB) Sync(ctx context.Context, srv server.Server, avoidSnapshots bool) error {
	for attempt := 0; attempt < syncMaxRetries; attempt++ {
		urgency, err := db.syncOnce(ctx, srv)
		if err == server.ErrVersionConflict {
			db.logger.Printf("Version conflict, retrying (attempt %d)", attempt+1)
			continue
		}
		if err != nil {
			return err
		}
		if urgency != server.UrgencyNone && !avoidSnapshots {
			if err := db.sendSnapshot(ctx, srv); err != nil {
				// Snapshots are a hint, not a correctness requirement.
				db.logger.Printf("Failed to send snapshot: %v", err)
			}
		}
		return nil
	}
	return tcerror.Syncf("sync failed: version conflict on every attempt")
}

// syncOnce performs one catch-up-then-publish exchange inside a single
// storage transaction, so a failed exchange leaves the replica untouched.
func (db *TaskDB) syncOnce(ctx context.Context, srv server.Server) (server.SnapshotUrgency, error) {
	txn, err := db.store.Begin(false)
	if err != nil {
		return server.UrgencyNone, err
	}
	defer txn.Rollback() //nolint:errcheck

	base, err := txn.BaseVersion()
	if err != nil {
		return server.UrgencyNone, err
	}

	local, err := txn.Operations()
	if err != nil {
		return server.UrgencyNone, err
	}

	touched := make(map[uuid.UUID]bool)
	if base == uuid.Nil {
		bootstrapped, snapBase, err := db.bootstrapFromSnapshot(ctx, srv, txn, local, touched)
		if err != nil {
			return server.UrgencyNone, err
		}
		if bootstrapped {
			base = snapBase
		}
	}
	for {
		child, segment, ok, err := srv.GetChildVersion(ctx, base)
		if err != nil {
			return server.UrgencyNone, tcerror.SyncWrap(err, "failed to fetch child version")
		}
		if !ok {
			break
		}
		remote, err := op.DecodeList(segment)
		if err != nil {
			return server.UrgencyNone, tcerror.SyncWrap(err, "failed to decode history segment")
		}
		db.logger.Printf("Applying version %s (%d operations)", child, len(remote))
		for _, o := range remote {
			if err := applyRemote(txn, o, local); err != nil {
				return server.UrgencyNone, err
			}
			if o.Kind != op.KindUndoPoint {
				touched[o.UUID] = true
			}
		}
		base = child
	}

	outgoing := make([]op.Operation, 0, len(local))
	for _, o := range local {
		if o.Kind != op.KindUndoPoint {
			outgoing = append(outgoing, o)
		}
	}

	urgency := server.UrgencyNone
	if len(outgoing) > 0 {
		segment, err := op.EncodeList(outgoing)
		if err != nil {
			return server.UrgencyNone, err
		}
		version, u, err := srv.AddVersion(ctx, base, segment)
		if err == server.ErrVersionConflict {
			return server.UrgencyNone, err
		}
		if err != nil {
			return server.UrgencyNone, tcerror.SyncWrap(err, "failed to publish version")
		}
		db.logger.Printf("Published version %s (%d operations)", version, len(outgoing))
		base = version
		urgency = u
	}

	if err := txn.RemoveOperations(len(local)); err != nil {
		return server.UrgencyNone, err
	}
	if err := txn.SetBaseVersion(base); err != nil {
		return server.UrgencyNone, err
	}
	if err := updateWorkingSet(txn, touched); err != nil {
		return server.UrgencyNone, err
	}
	if err := txn.Commit(); err != nil {
		return server.UrgencyNone, err
	}
	return urgency, nil
}

// applyRemote applies one operation received from the server. It differs
// from local application in two ways: the operation is not appended to the
// local history, and it tolerates tasks this replica has since deleted.
func applyRemote(txn storage.Txn, o op.Operation, local []op.Operation) error {
	switch o.Kind {
	case op.KindCreate, op.KindDelete:
		return applyOne(txn, o)
	case op.KindUpdate:
		task, ok, err := txn.GetTask(o.UUID)
		if err != nil {
			return err
		}
		if !ok {
			// Deleted locally; the local delete will win when published.
			return nil
		}
		if localUpdateWins(o, local) {
			return nil
		}
		if o.Value == nil {
			delete(task, o.Property)
		} else {
			task[o.Property] = *o.Value
		}
		return txn.SetTask(o.UUID, task)
	case op.KindUndoPoint:
		return nil
	}
	return tcerror.Storagef("unknown operation kind %d", o.Kind)
}

// localUpdateWins reports whether an unsynced local update to the same task
// property is newer than the remote update, in which case the local value is
// kept.
func localUpdateWins(remote op.Operation, local []op.Operation) bool {
	for _, o := range local {
		if o.Kind != op.KindUpdate || o.UUID != remote.UUID || o.Property != remote.Property {
			continue
		}
		if o.Timestamp.After(remote.Timestamp) {
			return true
		}
	}
	return false
}

// bootstrapFromSnapshot seeds a brand-new replica from the server's latest
// snapshot instead of replaying the whole version chain. Only an empty
// replica with no local history is eligible.
func (db *TaskDB) bootstrapFromSnapshot(ctx context.Context, srv server.Server, txn storage.Txn, local []op.Operation, touched map[uuid.UUID]bool) (bool, uuid.UUID, error) {
	if len(local) > 0 {
		return false, uuid.Nil, nil
	}
	ids, err := txn.AllTaskUUIDs()
	if err != nil {
		return false, uuid.Nil, err
	}
	if len(ids) > 0 {
		return false, uuid.Nil, nil
	}

	version, data, ok, err := srv.GetSnapshot(ctx)
	if err != nil {
		return false, uuid.Nil, tcerror.SyncWrap(err, "failed to fetch snapshot")
	}
	if !ok {
		return false, uuid.Nil, nil
	}

	var tasks map[uuid.UUID]map[string]string
	if err := json.Unmarshal(data, &tasks); err != nil {
		return false, uuid.Nil, tcerror.SyncWrap(err, "failed to decode snapshot")
	}
	for id, task := range tasks {
		if err := txn.SetTask(id, task); err != nil {
			return false, uuid.Nil, err
		}
		touched[id] = true
	}
	db.logger.Printf("Bootstrapped %d tasks from snapshot at version %s", len(tasks), version)
	return true, version, nil
}

// sendSnapshot publishes the replica's full task state as of its base
// version.
func (db *TaskDB) sendSnapshot(ctx context.Context, srv server.Server) error {
	txn, err := db.store.Begin(true)
	if err != nil {
		return err
	}
	defer txn.Rollback() //nolint:errcheck

	base, err := txn.BaseVersion()
	if err != nil {
		return err
	}
	tasks, err := txn.AllTasks()
	if err != nil {
		return err
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	db.logger.Printf("Sending snapshot of %d tasks at version %s", len(tasks), base)
	return srv.AddSnapshot(ctx, base, data)
}
