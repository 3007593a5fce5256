package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestValidateCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "hourly", expr: "0 * * * *"},
		{name: "every fifteen minutes", expr: "*/15 * * * *"},
		{name: "descriptor", expr: "@daily"},
		{name: "empty", expr: "  ", wantErr: true},
		{name: "seconds field", expr: "0 0 * * * *", wantErr: true},
		{name: "garbage", expr: "every tuesday", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCron(tc.expr)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %q", tc.expr)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.expr, err)
			}
		})
	}
}

func TestAddJobValidation(t *testing.T) {
	var nilSvc *Service
	if _, err := nilSvc.AddJob("x", "* * * * *", func() {}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	svc := newTestService(t)
	if _, err := svc.AddJob(" ", "* * * * *", func() {}); !errors.Is(err, ErrEmptyJobName) {
		t.Fatalf("expected ErrEmptyJobName, got %v", err)
	}
	if _, err := svc.AddJob("job", "", func() {}); !errors.Is(err, ErrEmptyCronExpr) {
		t.Fatalf("expected ErrEmptyCronExpr, got %v", err)
	}
	if _, err := svc.AddJob("job", "not a cron", func() {}); err == nil {
		t.Fatal("expected invalid cron error")
	}

	job, err := svc.AddJob("job", "0 3 * * *", func() {})
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if job.Name() != "job" {
		t.Fatalf("expected job name %q, got %q", "job", job.Name())
	}
	if len(svc.Jobs()) != 1 {
		t.Fatalf("expected 1 registered job, got %d", len(svc.Jobs()))
	}
}

func TestStopIsIdempotent(t *testing.T) {
	svc, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	svc.Start()
	if err := svc.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	var nilSvc *Service
	if err := nilSvc.Stop(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

type fakeExpirer struct {
	calls atomic.Int32
	ttl   atomic.Int64
	done  chan struct{}
}

func (f *fakeExpirer) ExpireStalePending(_ context.Context, ttl time.Duration) (int, error) {
	f.calls.Add(1)
	f.ttl.Store(int64(ttl))
	select {
	case f.done <- struct{}{}:
	default:
	}
	return 2, nil
}

func TestRegisterMembershipExpiryJob(t *testing.T) {
	svc := newTestService(t)
	expirer := &fakeExpirer{done: make(chan struct{}, 1)}

	if _, err := RegisterMembershipExpiryJob(svc, nil, "0 * * * *", time.Hour); err == nil {
		t.Fatal("expected error for nil expirer")
	}
	if _, err := RegisterMembershipExpiryJob(svc, expirer, "0 * * * *", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}

	job, err := RegisterMembershipExpiryJob(svc, expirer, "0 * * * *", 72*time.Hour)
	if err != nil {
		t.Fatalf("RegisterMembershipExpiryJob: %v", err)
	}
	if job.Name() != MembershipExpiryJobName {
		t.Fatalf("expected job name %q, got %q", MembershipExpiryJobName, job.Name())
	}

	svc.Start()
	if err := job.RunNow(); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	select {
	case <-expirer.done:
	case <-time.After(5 * time.Second):
		t.Fatal("expiry job did not run")
	}
	if got := time.Duration(expirer.ttl.Load()); got != 72*time.Hour {
		t.Fatalf("expected ttl 72h, got %s", got)
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })
	return svc
}
