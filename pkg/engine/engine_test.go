package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/browser/browsertest"
	"github.com/entrhq/webpilot/pkg/intent"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/memory"
	"github.com/entrhq/webpilot/pkg/retry"
	"github.com/entrhq/webpilot/pkg/step"
	"github.com/entrhq/webpilot/pkg/vision"
)

// fakeStore is an in-memory memory.Store that records every interaction.
type fakeStore struct {
	mu sync.Mutex

	lookupFn func(q memory.Query) (*memory.Record, error)

	failures  []memory.Failure
	learned   []memory.Learned
	succeeded []int64
	failedIDs []int64
}

func (s *fakeStore) Lookup(ctx context.Context, q memory.Query) (*memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupFn != nil {
		return s.lookupFn(q)
	}
	return nil, nil
}

func (s *fakeStore) RecordFailure(ctx context.Context, f memory.Failure) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
	return int64(len(s.failures)), nil
}

func (s *fakeStore) RecordSuccess(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded = append(s.succeeded, id)
	return nil
}

func (s *fakeStore) RecordSolutionFailed(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

func (s *fakeStore) LearnSolution(ctx context.Context, l memory.Learned) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learned = append(s.learned, l)
	return nil
}

func (s *fakeStore) Close() error { return nil }

// fakeVision returns canned verdicts and records invocations.
type fakeVision struct {
	mu      sync.Mutex
	reply   vision.Reply
	err     error
	calls   int
	prompts []string
}

func (v *fakeVision) VerifyScreenshot(ctx context.Context, prompt, imageBase64, system string) (*vision.Reply, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls += 1
	v.prompts = append(v.prompts, prompt)
	if v.err != nil {
		return nil, v.err
	}
	reply := v.reply
	return &reply, nil
}

func (v *fakeVision) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

// harness wires an engine around fakes with fast test timings.
type harness struct {
	store   *fakeStore
	drivers []*browsertest.Driver

	mu          sync.Mutex
	nextDriver  int
	factoryUses int

	actions    []step.Kind
	domains    []string
	maxActions int
	vision     vision.Provider
	cfg        Config
}

func newHarness(drivers ...*browsertest.Driver) *harness {
	if len(drivers) == 0 {
		drivers = []*browsertest.Driver{{URL: "https://shop.example.com"}}
	}
	return &harness{
		store:   &fakeStore{},
		drivers: drivers,
		actions: step.Kinds(),
		domains: []string{"*"},
		cfg: Config{
			TaskTimeout:   5 * time.Second,
			StepTimeout:   time.Second,
			SettleDelay:   time.Millisecond,
			SettleTimeout: 20 * time.Millisecond,
			Retry: retry.Policy{
				MaxRetries: 2,
				BaseDelay:  time.Millisecond,
				MaxDelay:   2 * time.Millisecond,
			},
		},
	}
}

func (h *harness) newDriver(ctx context.Context, storageState []byte) (browser.Driver, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.factoryUses++
	d := h.drivers[h.nextDriver]
	if h.nextDriver < len(h.drivers)-1 {
		h.nextDriver++
	}
	return d, nil
}

func (h *harness) factoryCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.factoryUses
}

func (h *harness) engine(t *testing.T) *Engine {
	t.Helper()

	li := intent.NewLockedIntent("user-1", "purchase", "buy the widget", h.actions, h.domains, 0, h.maxActions)
	validator, err := intent.NewValidator(li)
	require.NoError(t, err)

	log, err := logging.New("test", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	eng, err := New(Params{
		Validator: validator,
		Memory:    h.store,
		Vision:    h.vision,
		NewDriver: h.newDriver,
		Logger:    log,
		Config:    h.cfg,
	})
	require.NoError(t, err)
	require.NoError(t, eng.Initialize(context.Background(), "user-1", "shop.example.com"))
	t.Cleanup(eng.Cleanup)
	return eng
}
