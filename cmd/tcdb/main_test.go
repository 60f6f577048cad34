package main

import (
	"strings"
	"testing"

	"github.com/spf13/viper"

	taskchampion "github.com/timcase/taskchampion-go"
)

func TestDefaultDataDir(t *testing.T) {
	dir := defaultDataDir()
	if dir == "" {
		t.Fatal("defaultDataDir returned an empty path")
	}
	if !strings.HasSuffix(dir, ".tcdb") {
		t.Errorf("defaultDataDir = %q, want a .tcdb directory", dir)
	}
}

func TestNewLogger_StderrDefault(t *testing.T) {
	viper.Set("log_file", "")
	logger := newLogger()
	if got := logger.Prefix(); got != "[tcdb] " {
		t.Errorf("logger prefix = %q, want %q", got, "[tcdb] ")
	}
}

func TestOpenReplica_CreatesDataDir(t *testing.T) {
	viper.Set("data_dir", t.TempDir()+"/nested/tcdb")

	rep, err := openReplica()
	if err != nil {
		t.Fatalf("openReplica failed: %v", err)
	}
	defer rep.Close()

	if _, err := rep.TaskUUIDs(); err != nil {
		t.Errorf("fresh replica unusable: %v", err)
	}
}

func TestAddDone_EndToEnd(t *testing.T) {
	dataDir := t.TempDir()
	viper.Set("data_dir", dataDir)

	rootCmd.SetArgs([]string{"add", "file the report"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	// The task is durable and numbered in the working set.
	rep, err := taskchampion.NewOnDisk(dataDir, false, taskchampion.ReadWrite)
	if err != nil {
		t.Fatalf("NewOnDisk failed: %v", err)
	}
	uuids, err := rep.TaskUUIDs()
	if err != nil {
		t.Fatalf("TaskUUIDs failed: %v", err)
	}
	if len(uuids) != 1 {
		t.Fatalf("got %d tasks after add, want 1", len(uuids))
	}
	ws, err := rep.WorkingSet()
	if err != nil {
		t.Fatalf("WorkingSet failed: %v", err)
	}
	if _, ok, err := ws.ByIndex(1); err != nil || !ok {
		t.Fatalf("added task not in working set: (ok=%v, %v)", ok, err)
	}
	if err := rep.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rootCmd.SetArgs([]string{"done", "1"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("done failed: %v", err)
	}

	rep, err = taskchampion.NewOnDisk(dataDir, false, taskchampion.ReadWrite)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer rep.Close()
	task, ok, err := rep.Task(uuids[0])
	if err != nil || !ok {
		t.Fatalf("task missing after done: (ok=%v, %v)", ok, err)
	}
	completed, err := task.IsCompleted()
	if err != nil {
		t.Fatalf("IsCompleted failed: %v", err)
	}
	if !completed {
		t.Error("task still open after done")
	}
	ws, err = rep.WorkingSet()
	if err != nil {
		t.Fatalf("WorkingSet failed: %v", err)
	}
	if _, ok, err := ws.ByUUID(uuids[0]); err != nil || ok {
		t.Errorf("completed task still numbered: (ok=%v, %v)", ok, err)
	}
}
