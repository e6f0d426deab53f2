package session

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal/pkg/apperror"
	"multimodal/pkg/domain"
	"multimodal/pkg/logger"
	"multimodal/services/transit-svc/internal/advisor"
	"multimodal/services/transit-svc/internal/crisis"
	"multimodal/services/transit-svc/internal/repository"
	"multimodal/services/transit-svc/internal/simulator"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	data   []any
}

func (r *recorder) Publish(kind string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind)
	r.data = append(r.data, data)
}

func (r *recorder) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == kind {
			n++
		}
	}
	return n
}

// scriptedAdvisor отвечает по очереди; nil в ответе означает ожидание отмены
type scriptedAdvisor struct {
	mu      sync.Mutex
	replies []error
	calls   int
	started chan struct{}
}

func newScripted(replies ...error) *scriptedAdvisor {
	return &scriptedAdvisor{replies: replies, started: make(chan struct{}, 8)}
}

var errBlock = apperror.New(apperror.CodeInternal, "block until cancelled")

func (a *scriptedAdvisor) Name() string { return "scripted" }

func (a *scriptedAdvisor) Advise(ctx context.Context, req advisor.Request) (*advisor.Advice, error) {
	a.mu.Lock()
	var reply error
	if a.calls < len(a.replies) {
		reply = a.replies[a.calls]
	}
	a.calls++
	a.mu.Unlock()
	a.started <- struct{}{}

	switch reply {
	case nil:
		advice, err := advisor.NewHeuristic().Advise(ctx, req)
		if advice != nil {
			advice.Provider = a.Name()
		}
		return advice, err
	case errBlock:
		<-ctx.Done()
		return nil, ctx.Err()
	default:
		return nil, reply
	}
}

func (a *scriptedAdvisor) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func newSession(t *testing.T, opts ...Option) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{
		WithLogger(logger.Discard()),
		WithPublisher(rec),
		WithSimulatorConfig(simulator.Config{TickInterval: 0, Quantum: domain.DefaultTickQuantum}),
	}, opts...)
	s, err := New(domain.MustDefaultDataset(), Config{}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, rec
}

// applied проверяет результат команды: applied(t)(s.Stop())
func applied(t *testing.T) func(Result, error) {
	return func(res Result, err error) {
		t.Helper()
		require.NoError(t, err)
		require.True(t, res.Applied, "command not applied: %s", res.Message)
	}
}

func destroyCity(t *testing.T, s *Session, a, b, city string) Result {
	t.Helper()
	applied(t)(s.EnterCrisisMode())
	applied(t)(s.SelectProtectedEndpoint(a))
	applied(t)(s.SelectProtectedEndpoint(b))
	applied(t)(s.ChooseDestroyKind("city"))
	res, err := s.SelectDestroyTarget(Target{City: city})
	applied(t)(res, err)
	return res
}

func TestSession_SimulationGuards(t *testing.T) {
	s, _ := newSession(t)

	applied(t)(s.SimulateAll())
	assert.Equal(t, 15, s.Step())

	_, err := s.SimulateAll()
	assert.True(t, apperror.Is(err, apperror.CodeSimulationRunning))

	_, err = s.EnterCrisisMode()
	assert.True(t, apperror.Is(err, apperror.CodeSimulationRunning))

	_, err = s.RestoreAll()
	assert.True(t, apperror.Is(err, apperror.CodeSimulationRunning))

	applied(t)(s.Stop())
	_, err = s.Stop()
	assert.True(t, apperror.Is(err, apperror.CodeInvalidState))

	applied(t)(s.EnterCrisisMode())
	for _, cmd := range []func() (Result, error){s.SimulateAll, s.Stop, s.Restart, s.RestoreAll} {
		_, err := cmd()
		assert.True(t, apperror.Is(err, apperror.CodeCrisisActive))
	}

	applied(t)(s.CancelCrisis())
	applied(t)(s.Restart())
	assert.Empty(t, s.State().Simulation.Runs)
}

func TestSession_SetSpeed(t *testing.T) {
	s, _ := newSession(t)

	applied(t)(s.SetSpeed("air", 1000))
	assert.Equal(t, 1000.0, s.State().Simulation.Speeds["Air"])

	res, err := s.SetSpeed("Sea", 500)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.NotEmpty(t, res.Message)

	res, err = s.SetSpeed("Rail", 10)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	res, err = s.SetSpeed("Sea", math.NaN())
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, 30.0, s.State().Simulation.Speeds["Sea"])
}

func TestSession_DestroyCityRunsAnalysis(t *testing.T) {
	adv := newScripted()
	s, rec := newSession(t, WithAdvisor(adv))

	applied(t)(s.SimulateAll())
	s.Step()
	applied(t)(s.Stop())

	res := destroyCity(t, s, "Shanghai", "Singapore", "Hong Kong")
	assert.Equal(t, "Simulation of transport involving the city of Hong Kong is destroyed.", res.Message)
	s.Wait()

	view := s.State()
	assert.Equal(t, uint64(1), view.Generation)
	assert.False(t, view.Pending)
	require.NotNil(t, view.Advice)
	assert.Equal(t, "scripted", view.Advice.Provider)
	assert.Empty(t, view.AdviceMessage)
	assert.Equal(t, res.Message, view.DestroyMessage)
	assert.Equal(t, crisis.StateNormal, view.Crisis.State)
	assert.Len(t, view.Simulation.Runs, 8, "runs of removed routes are cancelled")

	stored, err := s.Analysis(context.Background(), view.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusAdvised, stored.Status)
	assert.Equal(t, []string{"Hong Kong"}, stored.Destroyed)
	for _, p := range stored.Paths {
		assert.NotContains(t, p.LocationSequence, "Hong Kong")
	}

	assert.Equal(t, 1, rec.count(EventAdvice))
	assert.GreaterOrEqual(t, rec.count(EventMessage), 1)
	assert.GreaterOrEqual(t, rec.count(EventSnapshot), 1)
}

func TestSession_ValidationIsNoop(t *testing.T) {
	s, _ := newSession(t)
	applied(t)(s.EnterCrisisMode())

	res, err := s.SelectProtectedEndpoint("Atlantis")
	require.NoError(t, err)
	assert.False(t, res.Applied)

	applied(t)(s.SelectProtectedEndpoint("Shanghai"))
	applied(t)(s.SelectProtectedEndpoint("Singapore"))
	applied(t)(s.ChooseDestroyKind("route"))

	res, err = s.SelectDestroyTarget(Target{Origin: "Dubai", Destination: "Tokyo", Mode: "Sea"})
	require.NoError(t, err)
	assert.False(t, res.Applied)

	_, err = s.SelectDestroyTarget(Target{City: "Tokyo"})
	assert.True(t, apperror.IsState(err), "kind mismatch is rejected")

	res, err = s.SelectDestroyTarget(Target{Origin: "Shanghai", Destination: "Tokyo", Mode: "Air"})
	applied(t)(res, err)
	assert.Equal(t, "Simulation of the Air transport between Shanghai and Tokyo is destroyed.", res.Message)
	s.Wait()
}

func TestSession_ProtectedCityRejected(t *testing.T) {
	s, _ := newSession(t)
	applied(t)(s.EnterCrisisMode())
	applied(t)(s.SelectProtectedEndpoint("Shanghai"))
	applied(t)(s.SelectProtectedEndpoint("Singapore"))
	applied(t)(s.ChooseDestroyKind("city"))

	_, err := s.SelectDestroyTarget(Target{City: "Singapore"})
	assert.True(t, apperror.Is(err, apperror.CodeProtectedLocation))
	assert.True(t, s.Network().HasLocation("Singapore"))
}

func TestSession_StaleAdviceDropped(t *testing.T) {
	adv := newScripted(errBlock, nil)
	s, _ := newSession(t, WithAdvisor(adv))

	destroyCity(t, s, "Shanghai", "Singapore", "Hong Kong")
	<-adv.started

	destroyCity(t, s, "Shanghai", "Singapore", "Tokyo")
	s.Wait()

	assert.Equal(t, 2, adv.callCount())
	view := s.State()
	assert.Equal(t, uint64(2), view.Generation)
	require.NotNil(t, view.Advice)
	assert.Empty(t, view.AdviceMessage, "cancelled first request must not surface")

	items, total, err := s.Analyses(context.Background(), repository.Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, uint64(2), items[0].Generation)
	assert.Len(t, items[0].Destroyed, 2)
}

func TestSession_RestoreDiscardsPendingAdvice(t *testing.T) {
	adv := newScripted(errBlock)
	s, _ := newSession(t, WithAdvisor(adv))

	destroyCity(t, s, "Shanghai", "Singapore", "Hong Kong")
	<-adv.started
	assert.True(t, s.State().Pending)

	applied(t)(s.RestoreAll())
	s.Wait()

	view := s.State()
	assert.False(t, view.Pending)
	assert.Nil(t, view.Advice)
	assert.Empty(t, view.DestroyMessage)
	assert.Empty(t, view.Crisis.Destroyed)
	assert.Equal(t, uint64(2), view.Generation)
	assert.True(t, s.Network().HasLocation("Hong Kong"))
	assert.Len(t, s.Snapshot().Routes, 15)

	_, total, err := s.Analyses(context.Background(), repository.Filter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSession_NoPathsSkipsAdvisor(t *testing.T) {
	adv := newScripted()
	s, _ := newSession(t, WithAdvisor(adv))

	destroyCity(t, s, "Singapore", "Dubai", "Mumbai")
	s.Wait()

	assert.Zero(t, adv.callCount())
	view := s.State()
	assert.Equal(t, advisor.MsgNoPaths, view.AdviceMessage)

	stored, err := s.Analysis(context.Background(), view.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusNoPaths, stored.Status)
}

func TestSession_AdvisorFailureBecomesMessage(t *testing.T) {
	adv := newScripted(apperror.ErrAdvisorUnavailable)
	s, rec := newSession(t, WithAdvisor(adv))

	destroyCity(t, s, "Shanghai", "Singapore", "Tokyo")
	s.Wait()

	view := s.State()
	assert.Nil(t, view.Advice)
	assert.Equal(t, advisor.MsgAnalysisFailed, view.AdviceMessage)
	assert.Len(t, s.Snapshot().Routes, 9, "network mutation stands")
	assert.Equal(t, 2, rec.count(EventMessage))
}

type fixedAdvisor struct{ advice *advisor.Advice }

func (fixedAdvisor) Name() string { return "fixed" }

func (a fixedAdvisor) Advise(context.Context, advisor.Request) (*advisor.Advice, error) {
	return a.advice, nil
}

func TestSession_EmptyAdviceBecomesMessage(t *testing.T) {
	tests := []struct {
		name   string
		advice *advisor.Advice
	}{
		{"nil advice", nil},
		{"no solutions", &advisor.Advice{Provider: "fixed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, rec := newSession(t, WithAdvisor(fixedAdvisor{advice: tt.advice}))

			destroyCity(t, s, "Shanghai", "Singapore", "Tokyo")
			s.Wait()

			view := s.State()
			assert.False(t, view.Pending)
			assert.Nil(t, view.Advice)
			assert.Equal(t, advisor.MsgNoAnalysis, view.AdviceMessage)
			assert.Equal(t, 2, rec.count(EventMessage))

			stored, err := s.Analysis(context.Background(), view.AnalysisID)
			require.NoError(t, err)
			assert.Equal(t, repository.StatusFailed, stored.Status)
			assert.Equal(t, advisor.MsgNoAnalysis, stored.Message)
		})
	}
}

func TestSession_FindPaths(t *testing.T) {
	s, _ := newSession(t)

	paths, err := s.FindPaths("Shanghai", "Hong Kong")
	require.NoError(t, err)
	assert.NotEmpty(t, paths)

	_, err = s.FindPaths("Shanghai", "Atlantis")
	assert.True(t, apperror.Is(err, apperror.CodeUnknownLocation))
}
