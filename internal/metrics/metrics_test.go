package metrics

import "testing"

func TestRecordTaskRunUpdatesCounters(t *testing.T) {
	m := &Metrics{}
	m.RecordTaskRun("execute", "ok", 120, false)
	m.RecordTaskRun("execute", "error", 50, true)

	if m.TaskRunsStarted.Load() != 2 {
		t.Fatalf("expected 2 started, got %d", m.TaskRunsStarted.Load())
	}
	if m.TaskRunsOK.Load() != 1 {
		t.Fatalf("expected 1 ok, got %d", m.TaskRunsOK.Load())
	}
	if m.TaskRunsError.Load() != 1 {
		t.Fatalf("expected 1 error, got %d", m.TaskRunsError.Load())
	}
	if m.TaskRunsAborted.Load() != 1 {
		t.Fatalf("expected 1 aborted, got %d", m.TaskRunsAborted.Load())
	}
}

func TestRecordSyncCycle(t *testing.T) {
	m := &Metrics{}
	m.RecordSyncCycle(true)
	m.RecordSyncCycle(false)

	if m.SyncCyclesTotal.Load() != 2 || m.SyncCyclesOK.Load() != 1 || m.SyncCyclesFailed.Load() != 1 {
		t.Fatalf("unexpected counters: total=%d ok=%d failed=%d",
			m.SyncCyclesTotal.Load(), m.SyncCyclesOK.Load(), m.SyncCyclesFailed.Load())
	}
}

func TestSnapshotShape(t *testing.T) {
	m := &Metrics{}
	m.RecordRequestEnqueued()
	snap := m.Snapshot()
	requests, ok := snap["requests"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected requests section in snapshot, got %v", snap)
	}
	if requests["enqueued"].(int64) != 1 {
		t.Fatalf("expected enqueued=1, got %v", requests["enqueued"])
	}
}
