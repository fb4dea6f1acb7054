package jobs

import (
	"errors"
	"sync"
	"testing"
)

func TestStartRunsAndRecordsResult(t *testing.T) {
	r := NewRegistry()
	job := r.Start("tune_all", func() (interface{}, error) { return 42, nil })
	if job.Wait() != Done {
		t.Fatalf("expected job to finish Done, got %v", job.Status())
	}
	if job.Result != 42 {
		t.Fatalf("expected result 42, got %v", job.Result)
	}
}

func TestStartRecordsFailure(t *testing.T) {
	r := NewRegistry()
	wantErr := errors.New("boom")
	job := r.Start("healing_scan", func() (interface{}, error) { return nil, wantErr })
	if job.Wait() != Failed {
		t.Fatalf("expected job to finish Failed, got %v", job.Status())
	}
	if job.Err != wantErr {
		t.Fatalf("expected recorded error %v, got %v", wantErr, job.Err)
	}
}

// TestStartConcurrentRenewOnlyOneRuns mirrors aistore's
// TestXactionRenewLRU: many goroutines ask to start the same kind at
// once, and only one underlying run should actually execute.
func TestStartConcurrentRenewOnlyOneRuns(t *testing.T) {
	r := NewRegistry()
	var calls int
	var mu sync.Mutex
	block := make(chan struct{})

	var wg sync.WaitGroup
	var jobs [10]*Job
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jobs[i] = r.Start("zone_tune", func() (interface{}, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				<-block
				return nil, nil
			})
		}(i)
	}
	wg.Wait()
	close(block)
	for _, j := range jobs {
		j.Wait()
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly one underlying run, got %d", calls)
	}
	for _, j := range jobs {
		if j.Kind != "zone_tune" {
			t.Fatalf("expected all returned jobs to share kind zone_tune, got %s", j.Kind)
		}
	}
}

func TestListIncludesFinishedJobs(t *testing.T) {
	r := NewRegistry()
	j1 := r.Start("a", func() (interface{}, error) { return nil, nil })
	j1.Wait()
	j2 := r.Start("b", func() (interface{}, error) { return nil, nil })
	j2.Wait()

	all := r.List()
	if len(all) != 2 {
		t.Fatalf("expected 2 tracked jobs, got %d", len(all))
	}
}

func TestGetFindsTrackedJob(t *testing.T) {
	r := NewRegistry()
	job := r.Start("migration", func() (interface{}, error) { return nil, nil })
	job.Wait()

	got, ok := r.Get(job.ID)
	if !ok || got.ID != job.ID {
		t.Fatalf("expected to find job %s", job.ID)
	}
	if _, ok := r.Get("no-such-id"); ok {
		t.Fatal("expected lookup of an unknown ID to fail")
	}
}
