package infra

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"

	"github.com/robfig/cron/v3"
)

// reclaimParser aceita segundos opcionais e descritores como "@hourly".
var reclaimParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ReclaimScheduler roda Reclaim periodicamente nos ledgers que precisam de
// limpeza explícita. Um registro é apagado quando o seu dia terminou há mais
// de retention.
type ReclaimScheduler struct {
	cron       *cron.Cron
	expression string
	targets    []domain.Reclaimer
	retention  time.Duration
	timeout    time.Duration
	now        func() time.Time
	logger     *log.Logger

	mu      sync.Mutex
	started bool
}

type ReclaimOption func(*ReclaimScheduler)

func WithReclaimRetention(d time.Duration) ReclaimOption {
	return func(s *ReclaimScheduler) {
		if d >= 0 {
			s.retention = d
		}
	}
}

func WithReclaimTimeout(d time.Duration) ReclaimOption {
	return func(s *ReclaimScheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithReclaimLogger(logger *log.Logger) ReclaimOption {
	return func(s *ReclaimScheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithReclaimClock(now func() time.Time) ReclaimOption {
	return func(s *ReclaimScheduler) { s.now = now }
}

func NewReclaimScheduler(expression string, targets []domain.Reclaimer, opts ...ReclaimOption) (*ReclaimScheduler, error) {
	if expression == "" {
		return nil, errors.New("cron expression cannot be empty")
	}
	if _, err := reclaimParser.Parse(expression); err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	s := &ReclaimScheduler{
		cron:       cron.New(cron.WithParser(reclaimParser), cron.WithLocation(time.UTC)),
		expression: expression,
		targets:    targets,
		retention:  24 * time.Hour,
		timeout:    30 * time.Second,
		now:        time.Now,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Cutoff é o primeiro dia que ainda deve ser mantido.
func (s *ReclaimScheduler) Cutoff() domain.Day {
	// todo dia anterior a DayOf(now - retention) terminou há pelo menos retention
	return domain.DayOf(s.now().Add(-s.retention))
}

// Run executa uma limpeza imediatamente.
func (s *ReclaimScheduler) Run(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	before := s.Cutoff()
	var total int64
	var errs []error
	for _, t := range s.targets {
		n, err := t.Reclaim(ctx, before)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// Start agenda a limpeza. Pare cancelando o contexto ou chamando Stop.
func (s *ReclaimScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("reclaim scheduler already started")
	}
	if len(s.targets) == 0 {
		return nil
	}

	_, err := s.cron.AddFunc(s.expression, func() {
		n, err := s.Run(ctx)
		if err != nil {
			s.logger.Printf("quota reclaim failed: %v", err)
			return
		}
		if n > 0 {
			s.logger.Printf("quota reclaim: removed %d stale records", n)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reclaim: %w", err)
	}
	s.cron.Start()
	s.started = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop para o agendador e espera uma limpeza em andamento terminar.
func (s *ReclaimScheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	stopCtx := s.cron.Stop()
	s.started = false
	s.mu.Unlock()

	<-stopCtx.Done()
}

// ValidateSchedule confere uma expressão de agenda sem criar o agendador.
func ValidateSchedule(expression string) error {
	if expression == "" {
		return errors.New("cron expression cannot be empty")
	}
	_, err := reclaimParser.Parse(expression)
	return err
}
