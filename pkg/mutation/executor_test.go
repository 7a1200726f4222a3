package mutation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/goleak"

	"github.com/agora-dev/agora/pkg/loop"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestExecutor(t *testing.T, opts ...ExecutorOption) (*Executor, *loop.Loop) {
	t.Helper()
	l := loop.New()
	l.Start()
	t.Cleanup(func() {
		l.Close()
		<-l.Stopped()
	})
	return NewExecutor(l, opts...), l
}

func waitHandle(t *testing.T, h *Handle) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return res
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{Pending, "pending"},
		{Succeeded, "succeeded"},
		{Failed, "failed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestExecuteSuccess(t *testing.T) {
	exec, l := newTestExecutor(t)

	var successes, failures atomic.Int32
	var got any
	h, err := exec.Execute("like:post:1",
		func(ctx context.Context) (any, error) { return 11, nil },
		OnSuccess(func(v any) {
			successes.Add(1)
			got = v
		}),
		OnError(func(error) { failures.Add(1) }),
	)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	res := waitHandle(t, h)
	if res.Err != nil || res.Value != 11 {
		t.Errorf("Result = %+v, want {11 <nil>}", res)
	}
	if err := l.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if successes.Load() != 1 || failures.Load() != 0 {
		t.Errorf("callbacks success=%d error=%d, want 1/0", successes.Load(), failures.Load())
	}
	if got != 11 {
		t.Errorf("OnSuccess value = %v, want 11", got)
	}
	if exec.State("like:post:1") != Succeeded {
		t.Errorf("State = %v, want succeeded", exec.State("like:post:1"))
	}
}

func TestExecuteError(t *testing.T) {
	exec, _ := newTestExecutor(t)

	boom := errors.New("boom")
	var gotErr error
	h, err := exec.Execute("k",
		func(ctx context.Context) (any, error) { return nil, boom },
		OnSuccess(func(any) { t.Error("OnSuccess should not run") }),
		OnError(func(err error) { gotErr = err }),
	)
	if err != nil {
		t.Fatal(err)
	}

	res := waitHandle(t, h)
	if !errors.Is(res.Err, boom) {
		t.Errorf("Result.Err = %v, want boom", res.Err)
	}
	// finish runs after the callback on the loop, so the callback is visible
	// once Wait returns.
	if !errors.Is(gotErr, boom) {
		t.Errorf("OnError got %v, want boom", gotErr)
	}
	if exec.State("k") != Failed {
		t.Errorf("State = %v, want failed", exec.State("k"))
	}
	if !errors.Is(exec.LastError("k"), boom) {
		t.Errorf("LastError = %v", exec.LastError("k"))
	}
}

func TestExecuteBusyWhilePending(t *testing.T) {
	exec, _ := newTestExecutor(t)

	release := make(chan struct{})
	var calls atomic.Int32
	work := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return nil, nil
	}

	h, err := exec.Execute("like:post:7", work)
	if err != nil {
		t.Fatal(err)
	}
	if exec.State("like:post:7") != Pending {
		t.Fatalf("State = %v, want pending", exec.State("like:post:7"))
	}

	h2, err := exec.Execute("like:post:7", work)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("second Execute error = %v, want ErrBusy", err)
	}
	if h2 != nil {
		t.Error("busy Execute should not return a handle")
	}

	// other keys are independent
	h3, err := exec.Execute("like:post:8", func(ctx context.Context) (any, error) { return nil, nil })
	if err != nil {
		t.Fatalf("Execute for another key error = %v", err)
	}

	close(release)
	waitHandle(t, h)
	waitHandle(t, h3)

	if calls.Load() != 1 {
		t.Errorf("work called %d times, want 1", calls.Load())
	}

	// settled keys accept new work
	h4, err := exec.Execute("like:post:7", work)
	if err != nil {
		t.Fatalf("Execute after settle error = %v", err)
	}
	waitHandle(t, h4)
	if calls.Load() != 2 {
		t.Errorf("work called %d times, want 2", calls.Load())
	}
}

func TestPanickingCallbackReleasesKey(t *testing.T) {
	exec, l := newTestExecutor(t)

	h, err := exec.Execute("like:post:3",
		func(ctx context.Context) (any, error) { return 1, nil },
		OnSuccess(func(any) { panic("toast sink exploded") }),
	)
	if err != nil {
		t.Fatal(err)
	}
	res := waitHandle(t, h)
	if res.Err != nil {
		t.Errorf("Result.Err = %v, want nil", res.Err)
	}
	if err := l.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if exec.State("like:post:3") != Succeeded {
		t.Errorf("State = %v, want succeeded", exec.State("like:post:3"))
	}

	var ran atomic.Bool
	h2, err := exec.Execute("like:post:3", func(ctx context.Context) (any, error) {
		ran.Store(true)
		return 2, nil
	})
	if err != nil {
		t.Fatalf("Execute after panicking callback error = %v", err)
	}
	if res := waitHandle(t, h2); res.Value != 2 {
		t.Errorf("Result.Value = %v, want 2", res.Value)
	}
	if !ran.Load() {
		t.Error("second mutation did not run")
	}
}

func TestCancelSuppressesCallbacks(t *testing.T) {
	exec, l := newTestExecutor(t)

	release := make(chan struct{})
	var called atomic.Bool
	h, err := exec.Execute("k",
		func(ctx context.Context) (any, error) {
			<-release
			return "done", nil
		},
		OnSuccess(func(any) { called.Store(true) }),
		OnError(func(error) { called.Store(true) }),
	)
	if err != nil {
		t.Fatal(err)
	}

	h.Cancel()
	if !h.Cancelled() {
		t.Error("Cancelled() = false after Cancel")
	}
	// advisory: the key is still pending
	if _, err := exec.Execute("k", func(ctx context.Context) (any, error) { return nil, nil }); !errors.Is(err, ErrBusy) {
		t.Errorf("Execute after Cancel error = %v, want ErrBusy", err)
	}

	close(release)
	res := waitHandle(t, h)
	if res.Value != "done" {
		t.Errorf("Result.Value = %v, want done", res.Value)
	}
	_ = l.Flush(context.Background())
	if called.Load() {
		t.Error("callbacks ran for a cancelled handle")
	}
	if exec.State("k") != Succeeded {
		t.Errorf("State = %v, want succeeded", exec.State("k"))
	}
}

func TestOnStartRunsSynchronously(t *testing.T) {
	exec, _ := newTestExecutor(t)

	var stateAtStart State
	h, err := exec.Execute("k",
		func(ctx context.Context) (any, error) { return nil, nil },
		OnStart(func() { stateAtStart = exec.State("k") }),
	)
	if err != nil {
		t.Fatal(err)
	}
	if stateAtStart != Pending {
		t.Errorf("state during OnStart = %v, want pending", stateAtStart)
	}
	waitHandle(t, h)
}

func TestRunTyped(t *testing.T) {
	exec, _ := newTestExecutor(t)

	type likeResult struct{ Count int }
	var got likeResult
	h, err := Run(exec, "like:post:3",
		func(ctx context.Context) (likeResult, error) { return likeResult{Count: 4}, nil },
		Callbacks[likeResult]{
			Name:      "post:like",
			OnSuccess: func(r likeResult) { got = r },
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	res := waitHandle(t, h)
	v, ok := Value[likeResult](res)
	if !ok || v.Count != 4 {
		t.Errorf("Value = %+v, %v", v, ok)
	}
	if got.Count != 4 {
		t.Errorf("OnSuccess got %+v", got)
	}
}

func TestSettleAfterLoopClosed(t *testing.T) {
	l := loop.New()
	l.Start()
	exec := NewExecutor(l)

	release := make(chan struct{})
	var called atomic.Bool
	h, err := exec.Execute("k",
		func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		},
		OnSuccess(func(any) { called.Store(true) }),
	)
	if err != nil {
		t.Fatal(err)
	}

	l.Close()
	<-l.Stopped()
	close(release)

	res := waitHandle(t, h)
	if res.Err == nil {
		t.Error("expected an error for a mutation settled after loop close")
	}
	if called.Load() {
		t.Error("OnSuccess ran after loop close")
	}
	if exec.State("k") != Failed {
		t.Errorf("State = %v, want failed", exec.State("k"))
	}
}

func TestReset(t *testing.T) {
	exec, _ := newTestExecutor(t)

	h, _ := exec.Execute("k", func(ctx context.Context) (any, error) { return nil, nil })
	waitHandle(t, h)
	exec.Reset("k")
	if exec.State("k") != Idle {
		t.Errorf("State after Reset = %v, want idle", exec.State("k"))
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")
	exec, _ := newTestExecutor(t, WithMetrics(metrics))

	release := make(chan struct{})
	h, _ := exec.Execute("k", func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}, Name("post:like"))
	_, _ = exec.Execute("k", func(ctx context.Context) (any, error) { return nil, nil }, Name("post:like"))
	close(release)
	waitHandle(t, h)

	if got := counterValue(t, metrics.total.WithLabelValues("post:like", "success")); got != 1 {
		t.Errorf("mutations_total(success) = %v, want 1", got)
	}
	if got := counterValue(t, metrics.total.WithLabelValues("post:like", "busy")); got != 1 {
		t.Errorf("mutations_total(busy) = %v, want 1", got)
	}
}
