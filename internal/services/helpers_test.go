package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"pairspace-backend/internal/lockout"
	"pairspace-backend/internal/repository/memory"
	"pairspace-backend/internal/security"
)

const testSecret = "test-secret"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) last() Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type testEnv struct {
	clock     *fakeClock
	couples   *memory.Couples
	devices   *memory.Devices
	quizzes   *memory.Quizzes
	spaces    *memory.Spaces
	publisher *recordingPublisher

	coupleSvc *CoupleService
	quizSvc   *QuizService
	spaceSvc  *SpaceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:     newFakeClock(),
		couples:   memory.NewCouples(),
		devices:   memory.NewDevices(),
		quizzes:   memory.NewQuizzes(),
		spaces:    memory.NewSpaces(),
		publisher: &recordingPublisher{},
	}

	hasher := security.NewPasswordHasher(security.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1})
	env.coupleSvc = NewCoupleService(env.couples, env.devices, hasher, testSecret)
	env.coupleSvc.now = env.clock.Now
	env.quizSvc = NewQuizService(env.quizzes, env.coupleSvc, lockout.DefaultPolicy(), env.publisher)
	env.quizSvc.now = env.clock.Now
	env.spaceSvc = NewSpaceService(env.spaces, env.couples, env.publisher)
	env.spaceSvc.now = env.clock.Now
	return env
}

// register creates a couple with partners Alice and Bob and returns its token
func (env *testEnv) register(t *testing.T, coupleID string) string {
	t.Helper()
	creds, err := env.coupleSvc.Register(context.Background(), RegisterInput{
		CoupleID:       coupleID,
		Password:       "secret123",
		PartnerOneName: "Alice",
		PartnerTwoName: "Bob",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return creds.Token
}
