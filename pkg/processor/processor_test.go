package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerdesk/peony/pkg/models"
)

type fakeResolver struct {
	mu          sync.Mutex
	resolve     func(ctx context.Context, record models.SourceRecord) (*models.Resolution, error)
	calls       int
	inFlight    int
	maxInFlight int
}

func (f *fakeResolver) Resolve(ctx context.Context, record models.SourceRecord) (*models.Resolution, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	return f.resolve(ctx, record)
}

type fakeHistoryStore struct {
	mu   sync.Mutex
	rows []*models.MatchingHistory
}

func (f *fakeHistoryStore) Create(_ context.Context, history *models.MatchingHistory) (*models.MatchingHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, history)
	return history, nil
}

func newTestProcessor(resolver *fakeResolver, history *fakeHistoryStore, workers int) *BatchProcessor {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	config := DefaultConfig()
	config.WorkerCount = workers
	return NewBatchProcessor(logger, resolver, history, nil, config)
}

func record(sku, name string) models.SourceRecord {
	return models.SourceRecord{
		Source:      "ozon",
		ExternalSKU: sku,
		Name:        name,
	}
}

func TestProcessBatchCountsOutcomes(t *testing.T) {
	resolver := &fakeResolver{
		resolve: func(_ context.Context, r models.SourceRecord) (*models.Resolution, error) {
			switch r.ExternalSKU {
			case "OZ-1":
				return &models.Resolution{Decision: models.DecisionAutoMatched}, nil
			case "OZ-2":
				return &models.Resolution{Decision: models.DecisionManualPending}, nil
			case "OZ-3":
				return &models.Resolution{Decision: models.DecisionNewMaster}, nil
			case "OZ-4":
				return &models.Resolution{Decision: models.DecisionAutoMatched, AlreadyResolved: true}, nil
			default:
				return nil, errors.New("database unavailable")
			}
		},
	}
	history := &fakeHistoryStore{}
	processor := newTestProcessor(resolver, history, 2)

	records := []models.SourceRecord{
		record("OZ-1", "Кетчуп Heinz Томатный 570г"),
		record("OZ-2", "Макароны Спагетти 450г"),
		record("OZ-3", "Уникальный товар"),
		record("OZ-4", "Кетчуп Heinz Томатный 570г"),
		record("OZ-5", "Снова кетчуп"),
		record("OZ-6", ""), // fails validation, never reaches the resolver
	}

	report, err := processor.ProcessBatch(context.Background(), "ozon", records)
	require.NoError(t, err)

	assert.Equal(t, 6, report.Total)
	assert.Equal(t, 1, report.AutoMatched)
	assert.Equal(t, 1, report.ManualPending)
	assert.Equal(t, 1, report.NewMasters)
	assert.Equal(t, 1, report.AlreadyResolved)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, models.BatchStatusPartialSuccess, report.Status)

	// the invalid record still leaves an audit trail
	require.Len(t, history.rows, 1)
	assert.Equal(t, models.DecisionRejected, history.rows[0].Decision)
	assert.Equal(t, "OZ-6", history.rows[0].ExternalSKU)
	require.NotNil(t, history.rows[0].Reason)

	// only valid records reach the resolver
	assert.Equal(t, 5, resolver.calls)
}

func TestProcessBatchSuccessStatus(t *testing.T) {
	resolver := &fakeResolver{
		resolve: func(_ context.Context, _ models.SourceRecord) (*models.Resolution, error) {
			return &models.Resolution{Decision: models.DecisionAutoMatched}, nil
		},
	}
	processor := newTestProcessor(resolver, &fakeHistoryStore{}, 2)

	report, err := processor.ProcessBatch(context.Background(), "ozon", []models.SourceRecord{
		record("OZ-1", "Кетчуп Heinz Томатный 570г"),
		record("OZ-2", "Макароны Спагетти 450г"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.BatchStatusSuccess, report.Status)
	assert.Equal(t, 0, report.Failed)
	assert.False(t, report.StartedAt.IsZero())
}

func TestProcessBatchBoundsConcurrency(t *testing.T) {
	resolver := &fakeResolver{
		resolve: func(_ context.Context, _ models.SourceRecord) (*models.Resolution, error) {
			time.Sleep(5 * time.Millisecond)
			return &models.Resolution{Decision: models.DecisionNewMaster}, nil
		},
	}
	processor := newTestProcessor(resolver, &fakeHistoryStore{}, 4)

	records := make([]models.SourceRecord, 0, 20)
	for i := 0; i < 20; i++ {
		records = append(records, record("OZ-"+string(rune('a'+i)), "Товар"))
	}

	report, err := processor.ProcessBatch(context.Background(), "ozon", records)
	require.NoError(t, err)

	assert.Equal(t, 20, report.NewMasters)
	assert.Equal(t, 20, resolver.calls)
	assert.LessOrEqual(t, resolver.maxInFlight, 4)
}

func TestProcessBatchTimesOutSlowRecord(t *testing.T) {
	resolver := &fakeResolver{
		resolve: func(ctx context.Context, r models.SourceRecord) (*models.Resolution, error) {
			if r.ExternalSKU == "OZ-slow" {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return &models.Resolution{Decision: models.DecisionAutoMatched}, nil
		},
	}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	config := DefaultConfig()
	config.WorkerCount = 2
	config.ResolveTimeout = 10 * time.Millisecond
	processor := NewBatchProcessor(logger, resolver, &fakeHistoryStore{}, nil, config)

	report, err := processor.ProcessBatch(context.Background(), "ozon", []models.SourceRecord{
		record("OZ-slow", "Товар который висит"),
		record("OZ-fast", "Кетчуп Heinz Томатный 570г"),
	})
	require.NoError(t, err)

	// the stuck record fails on its own deadline, the rest of the batch is fine
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.AutoMatched)
	assert.Equal(t, models.BatchStatusPartialSuccess, report.Status)
}

func TestRefreshIntervalStaysAheadOfTTL(t *testing.T) {
	assert.Equal(t, 100*time.Second, refreshInterval(5*time.Minute))
	assert.Equal(t, time.Second, refreshInterval(0), "tiny TTLs must not spin the refresher")
	assert.Equal(t, time.Second, refreshInterval(2*time.Second))
}

func TestProcessBatchCancelledContext(t *testing.T) {
	resolver := &fakeResolver{
		resolve: func(_ context.Context, _ models.SourceRecord) (*models.Resolution, error) {
			time.Sleep(10 * time.Millisecond)
			return &models.Resolution{Decision: models.DecisionNewMaster}, nil
		},
	}
	processor := newTestProcessor(resolver, &fakeHistoryStore{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := make([]models.SourceRecord, 0, 10)
	for i := 0; i < 10; i++ {
		records = append(records, record("OZ-"+string(rune('a'+i)), "Товар"))
	}

	_, err := processor.ProcessBatch(ctx, "ozon", records)
	require.ErrorIs(t, err, context.Canceled)
}
