// Package taskchampion is a local, syncable task database.
//
// A Replica is the local copy of the database. Callers mutate it by
// collecting Operations in a caller-owned buffer and committing the buffer
// as one atomic unit:
//
//	rep := taskchampion.NewInMemory()
//	defer rep.Close()
//
//	ops := taskchampion.NewOperations()
//	task, err := rep.CreateTask(uuid.New(), ops)
//	if err != nil { ... }
//	if err := task.SetDescription("answer the door", ops); err != nil { ... }
//	if err := rep.CommitOperations(ops); err != nil { ... }
//
// Mutations are visible on the handle immediately but durable only after
// CommitOperations; a failed commit applies nothing. Committing does not
// clear the buffer.
//
// # Goroutine confinement
//
// Replica, Operations, Task, TaskData, WorkingSet, and DependencyMap are
// confined to the goroutine that created them. They are safe to hand to
// another goroutine but every access from one returns a *ThreadError; there
// is no cross-goroutine hand-off or locking at this layer.
//
// # Synchronization
//
// A replica exchanges operations with a sync server through the SyncTo*
// methods. Servers never see plaintext task data: history segments and
// snapshots are sealed with a key derived from the caller's encryption
// secret before upload.
package taskchampion
