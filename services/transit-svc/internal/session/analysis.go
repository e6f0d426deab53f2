package session

import (
	"context"
	"errors"
	"time"

	"multimodal/pkg/apperror"
	"multimodal/pkg/telemetry"
	"multimodal/services/transit-svc/internal/advisor"
	"multimodal/services/transit-svc/internal/crisis"
	"multimodal/services/transit-svc/internal/repository"
	"multimodal/services/transit-svc/internal/simulator"
)

const saveTimeout = 5 * time.Second

// startAnalysis открывает новое поколение анализа и отменяет предыдущее.
// Советник вызывается в отдельной горутине.
func (s *Session) startAnalysis(a *crisis.Analysis) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	if s.cancelAdvice != nil {
		s.cancelAdvice()
	}
	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.AdviceTimeout)
	s.cancelAdvice = cancel
	s.pending = true
	s.advice = nil
	s.adviceMessage = ""
	s.mu.Unlock()

	if len(a.Paths) == 0 {
		cancel()
		s.finishAnalysis(gen, a, nil, nil)
		return
	}

	req := advisor.NewRequest(a.Origin, a.Destination, a.Paths)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		ctx, span := telemetry.StartSpan(ctx, "Session.Advise")
		defer span.End()
		s.traceAnalysis(ctx, gen, a)

		advice, err := s.advisor.Advise(ctx, req)
		if err != nil {
			telemetry.SetError(ctx, err)
		}
		s.finishAnalysis(gen, a, advice, err)
	}()
}

func (s *Session) traceAnalysis(ctx context.Context, gen uint64, a *crisis.Analysis) {
	telemetry.SetAttributes(ctx, telemetry.NetworkAttributes(a.NetworkVersion,
		len(s.network.Locations()), len(s.network.Routes()))...)
	telemetry.SetAttributes(ctx, telemetry.PathAttributes(a.Origin, a.Destination, len(a.Paths))...)
	telemetry.SetAttributes(ctx, telemetry.AdvisorAttributes(s.advisor.Name(), gen)...)
	for _, d := range a.Destroyed {
		telemetry.AddEvent(ctx, "crisis.destroyed", telemetry.DestroyAttributes(string(d.Kind), d.Label(), d.RoutesRemoved)...)
	}
}

// finishAnalysis применяет результат, только если поколение не устарело
func (s *Session) finishAnalysis(gen uint64, a *crisis.Analysis, advice *advisor.Advice, err error) {
	if s.baseCtx.Err() != nil {
		return
	}

	rec := &repository.AnalysisRecord{
		SessionID:      s.id,
		Origin:         a.Origin,
		Destination:    a.Destination,
		NetworkVersion: a.NetworkVersion,
		Generation:     gen,
		Paths:          advisor.NewRequest(a.Origin, a.Destination, a.Paths).Paths,
		Provider:       s.advisor.Name(),
	}
	for _, d := range a.Destroyed {
		rec.Destroyed = append(rec.Destroyed, d.Label())
	}

	switch {
	case len(a.Paths) == 0:
		rec.Status = repository.StatusNoPaths
		rec.Message = advisor.MsgNoPaths
	case err != nil:
		rec.Status = repository.StatusFailed
		rec.Message = advisor.FailureMessage(err)
	case advice == nil || len(advice.Solutions) == 0:
		// пустой ответ советника равносилен отсутствию анализа
		rec.Status = repository.StatusFailed
		rec.Message = advisor.MsgNoAnalysis
	default:
		rec.Status = repository.StatusAdvised
		rec.Advice = advice
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.log.Debug("stale analysis dropped", "generation", gen)
		return
	}
	s.pending = false
	s.cancelAdvice = nil
	s.advice = rec.Advice
	s.adviceMessage = rec.Message
	s.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("advisor failed", "generation", gen, "error", err, "code", apperror.Code(err))
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.repo.Save(saveCtx, rec); err != nil {
		s.log.Error("failed to save analysis", "error", err)
		rec.ID = ""
	}

	s.mu.Lock()
	if gen == s.generation {
		s.analysisID = rec.ID
	}
	s.mu.Unlock()

	if rec.Message != "" {
		s.pub.Publish(EventMessage, MessageEvent{Kind: "advisory", Text: rec.Message})
	}
	s.pub.Publish(EventAdvice, AdviceEvent{
		AnalysisID: rec.ID,
		Generation: gen,
		Advice:     rec.Advice,
		Message:    rec.Message,
	})
}

// SimulationView состояние симулятора
type SimulationView struct {
	Running bool               `json:"running"`
	Runs    []simulator.Update `json:"runs"`
	Speeds  map[string]float64 `json:"speeds"`
}

// View состояние сессии для отображения
type View struct {
	SessionID      string          `json:"sessionId"`
	NetworkVersion uint64          `json:"networkVersion"`
	Simulation     SimulationView  `json:"simulation"`
	Crisis         crisis.Snapshot `json:"crisis"`
	Generation     uint64          `json:"generation"`
	Pending        bool            `json:"pending"`
	AnalysisID     string          `json:"analysisId,omitempty"`
	Advice         *advisor.Advice `json:"advice,omitempty"`
	AdviceMessage  string          `json:"adviceMessage,omitempty"`
	DestroyMessage string          `json:"destroyMessage,omitempty"`
}

// State текущее состояние сессии
func (s *Session) State() View {
	speeds := make(map[string]float64)
	for m, v := range s.sim.Speeds().All() {
		speeds[string(m)] = v
	}

	v := View{
		SessionID:      s.id,
		NetworkVersion: s.network.Version(),
		Simulation: SimulationView{
			Running: s.sim.Running(),
			Runs:    s.sim.Runs(),
			Speeds:  speeds,
		},
		Crisis: s.crisis.Snapshot(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v.Generation = s.generation
	v.Pending = s.pending
	v.AnalysisID = s.analysisID
	v.Advice = s.advice
	v.AdviceMessage = s.adviceMessage
	v.DestroyMessage = s.destroyMessage
	return v
}

// Analyses история анализов
func (s *Session) Analyses(ctx context.Context, f repository.Filter) ([]*repository.AnalysisRecord, int64, error) {
	return s.repo.List(ctx, f)
}

// Analysis один анализ
func (s *Session) Analysis(ctx context.Context, id string) (*repository.AnalysisRecord, error) {
	return s.repo.Get(ctx, id)
}
