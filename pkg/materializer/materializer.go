// Package materializer is the background driver that turns due recurrence
// occurrences into concrete task instances.
package materializer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/planfold/planfold/pkg/eventbus"
	"github.com/planfold/planfold/pkg/events"
	"github.com/planfold/planfold/pkg/models"
	"github.com/planfold/planfold/pkg/otelhelper"
	"github.com/planfold/planfold/pkg/persistence"
	"github.com/planfold/planfold/pkg/protocol"
	"github.com/planfold/planfold/pkg/recurrence"
	"github.com/planfold/planfold/pkg/template"
)

const defaultPollInterval = 5 * time.Minute
const defaultLookaheadDays = 7

// Materializer polls active generators and creates task instances for
// occurrences inside each generator's lookahead window. Generators are
// locked individually, so materializing one never blocks another.
type Materializer struct {
	recurring persistence.RecurringTaskRepository
	tasks     protocol.TaskStore
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time

	ticker  *time.Ticker
	done    chan bool
	started bool
	mu      sync.Mutex

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewMaterializer creates the driver. publisher and tracer may be nil; a
// zero interval falls back to the default poll cadence.
func NewMaterializer(
	recurring persistence.RecurringTaskRepository,
	tasks protocol.TaskStore,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
	interval time.Duration,
) *Materializer {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return &Materializer{
		recurring: recurring,
		tasks:     tasks,
		publisher: publisher,
		tracer:    tracer,
		logger:    logger.With("module", "materializer"),
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
		locks:     make(map[string]*sync.Mutex),
	}
}

// Start begins the periodic poll loop.
func (m *Materializer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	m.logger.InfoContext(ctx, "Starting materializer", "interval", m.interval)

	m.ticker = time.NewTicker(m.interval)
	m.done = make(chan bool)
	m.started = true

	go m.poll(ctx)

	return nil
}

// Stop shuts the poll loop down.
func (m *Materializer) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}

	m.logger.InfoContext(ctx, "Stopping materializer")

	if m.ticker != nil {
		m.ticker.Stop()
	}

	select {
	case m.done <- true:
	default:
	}

	m.started = false

	return nil
}

func (m *Materializer) poll(ctx context.Context) {
	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case <-m.ticker.C:
			created, err := m.RunOnce(ctx)
			if err != nil {
				m.logger.ErrorContext(ctx, "materialization run failed", "error", err)

				continue
			}

			if created > 0 {
				m.logger.InfoContext(ctx, "materialization run finished", "created", created)
			}
		}
	}
}

// RunOnce processes every active generator once and returns how many task
// instances were created. Also serves as the manual materialize-now
// trigger.
func (m *Materializer) RunOnce(ctx context.Context) (int, error) {
	if m.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, m.tracer, "materializer.run")
		defer span.End()
	}

	generators, err := m.recurring.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, generator := range generators {
		created += m.materialize(ctx, generator)
	}

	return created, nil
}

// MaterializeOne processes a single generator immediately.
func (m *Materializer) MaterializeOne(ctx context.Context, generatorID string) (int, error) {
	generator, err := m.recurring.GetByID(ctx, generatorID)
	if err != nil {
		return 0, err
	}

	return m.materialize(ctx, generator), nil
}

func (m *Materializer) generatorLock(id string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}

	return lock
}

// materialize creates instances for every due occurrence inside the
// generator's lookahead window. next_occurrence advances strictly past each
// handled occurrence, created or not, which makes repeated runs within one
// window idempotent. A failed instance creation is recorded and the cursor
// still advances so the generator never retries the same occurrence
// forever.
func (m *Materializer) materialize(ctx context.Context, generator *models.RecurringTask) int {
	lock := m.generatorLock(generator.ID)
	lock.Lock()
	defer lock.Unlock()

	logger := m.logger.With("generator_id", generator.ID)

	if m.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, m.tracer, "materializer.generator",
			attribute.String(otelhelper.GeneratorIDKey, generator.ID),
		)
		defer span.End()
	}

	now := m.now()

	lookahead := generator.AutoCreateDaysAhead
	if lookahead <= 0 {
		lookahead = defaultLookaheadDays
	}

	horizon := now.AddDate(0, 0, lookahead)

	if generator.NextOccurrence == nil {
		// Freshly created generator: seed the cursor at the first
		// occurrence on or after the pattern start.
		next, err := recurrence.NextOccurrence(generator.Pattern, generator.Pattern.StartDate.Add(-time.Second), generator.CreatedInstances)
		if err != nil {
			m.recordFailure(ctx, generator, err)

			return 0
		}

		generator.NextOccurrence = next
	}

	created := 0
	changed := false

	for generator.NextOccurrence != nil && !generator.NextOccurrence.After(horizon) {
		occurrence := *generator.NextOccurrence
		changed = true

		if !generator.Pattern.IsExcluded(occurrence) {
			taskID, err := m.createInstance(ctx, generator, occurrence)
			if err != nil {
				logger.ErrorContext(ctx, "failed to materialize occurrence",
					"occurrence", occurrence, "error", err)
				generator.LastError = err.Error()
			} else {
				created++
				generator.CreatedInstances++
				generator.LastError = ""

				event := events.RecurringMaterialized{
					BaseEvent:       events.NewBaseEvent(events.RecurringMaterializedEvent, "task", taskID),
					RecurringTaskID: generator.ID,
					CreatedTaskID:   taskID,
					Occurrence:      occurrence,
				}
				event.ProjectID = generator.ProjectID

				m.publish(ctx, generator.ID, event)
			}
		}

		next, err := recurrence.NextOccurrence(generator.Pattern, occurrence, generator.CreatedInstances)
		if err != nil {
			m.recordFailure(ctx, generator, err)

			return created
		}

		generator.NextOccurrence = next
	}

	if generator.NextOccurrence == nil {
		// End condition reached; the generator is done.
		generator.IsActive = false
		changed = true
	}

	if changed {
		if err := m.recurring.Save(ctx, generator); err != nil {
			logger.ErrorContext(ctx, "failed to save generator", "error", err)
		}
	}

	return created
}

func (m *Materializer) createInstance(ctx context.Context, generator *models.RecurringTask, occurrence time.Time) (string, error) {
	vars := template.OccurrenceVars(occurrence, generator.Template.Variables)
	due := occurrence

	return m.tasks.Create(ctx, &protocol.TaskRecord{
		ProjectID:   generator.ProjectID,
		Title:       template.Render(generator.Template.Title, vars),
		Description: template.Render(generator.Template.Description, vars),
		Tags:        generator.Template.Tags,
		AssigneeID:  generator.Template.AssigneeID,
		DueDate:     &due,
	})
}

func (m *Materializer) recordFailure(ctx context.Context, generator *models.RecurringTask, err error) {
	generator.LastError = err.Error()

	if saveErr := m.recurring.Save(ctx, generator); saveErr != nil {
		m.logger.ErrorContext(ctx, "failed to save generator failure",
			"generator_id", generator.ID, "error", saveErr)
	}
}

func (m *Materializer) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	err := m.publisher.Publish(ctx, key, event)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
