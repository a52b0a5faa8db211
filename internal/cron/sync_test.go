package cronrunner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"crmsync/internal/service"
)

type stubSyncer struct {
	runAllErr  error
	runAll     int
	origins    []string
	originErrs map[string]error
	auto       []bool
}

func (s *stubSyncer) RunAll(_ context.Context, opts service.RunOptions) ([]service.RunResult, error) {
	s.runAll++
	s.auto = append(s.auto, opts.AutoMode)
	if s.runAllErr != nil {
		return nil, s.runAllErr
	}
	return []service.RunResult{{Entity: service.EntityOrigins, Pages: 1, Complete: true}}, nil
}

func (s *stubSyncer) SyncOriginDeals(_ context.Context, originID string, opts service.RunOptions) (service.RunResult, error) {
	s.origins = append(s.origins, originID)
	s.auto = append(s.auto, opts.AutoMode)
	return service.RunResult{Entity: service.EntityDeals}, s.originErrs[originID]
}

type stubSwitches map[string]bool

func (s stubSwitches) IsEnabled(_ context.Context, key string, fallback bool) bool {
	v, ok := s[key]
	if !ok {
		return fallback
	}
	return v
}

func TestSyncTask_RunsAllThenOrigins(t *testing.T) {
	syncer := &stubSyncer{originErrs: map[string]error{"o-1": service.ErrSyncInProgress}}
	task := &SyncTask{Service: syncer, OriginIDs: []string{"o-1", " ", "o-2"}}

	task.Run(context.Background())

	if syncer.runAll != 1 {
		t.Fatalf("run_all=%d want=1", syncer.runAll)
	}
	if len(syncer.origins) != 2 || syncer.origins[0] != "o-1" || syncer.origins[1] != "o-2" {
		t.Fatalf("origins=%v", syncer.origins)
	}
	for i, auto := range syncer.auto {
		if !auto {
			t.Fatalf("call %d not in auto mode", i)
		}
	}
}

func TestSyncTask_StopsWhenRunAllFails(t *testing.T) {
	syncer := &stubSyncer{runAllErr: errors.New("boom")}
	task := &SyncTask{Service: syncer, OriginIDs: []string{"o-1"}}

	task.Run(context.Background())

	if len(syncer.origins) != 0 {
		t.Fatalf("origins=%v want none", syncer.origins)
	}
}

func TestSyncTask_SchedulerSwitchOff(t *testing.T) {
	syncer := &stubSyncer{}
	task := &SyncTask{
		Service:  syncer,
		Switches: stubSwitches{service.FeatureSyncScheduler: false},
	}

	task.Run(context.Background())

	if syncer.runAll != 0 {
		t.Fatalf("run_all=%d want=0", syncer.runAll)
	}
}

type ctxKey struct{}

func TestRunner_PassesBaseContext(t *testing.T) {
	base := context.WithValue(context.Background(), ctxKey{}, "base")
	r := New(nil, base)

	var got atomic.Value
	done := make(chan struct{}, 1)
	if _, err := r.Add("@every 1s", func(ctx context.Context) {
		got.Store(ctx.Value(ctxKey{}))
		select {
		case done <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	r.Start()
	defer r.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
	if v, _ := got.Load().(string); v != "base" {
		t.Fatalf("ctx value=%q want=base", v)
	}
}

func TestRunner_RejectsBadSpec(t *testing.T) {
	r := New(nil, nil)
	if _, err := r.Add("not a spec", func(context.Context) {}); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}
