package workflow

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerdesk/peony/pkg/models"
)

type fakeMappingStore struct {
	mapping  *models.SkuMapping
	repoints []string
}

func (f *fakeMappingStore) GetBySourceSKU(_ context.Context, source, externalSKU string) (*models.SkuMapping, error) {
	if f.mapping == nil || f.mapping.Source != source || f.mapping.ExternalSKU != externalSKU {
		return nil, nil
	}
	copied := *f.mapping
	return &copied, nil
}

func (f *fakeMappingStore) UpdateVerification(_ context.Context, _, _, fromStatus, toStatus string, reviewer *string) error {
	if f.mapping == nil || f.mapping.VerificationStatus != fromStatus {
		return httperror.NewHTTPError(http.StatusConflict, "verification status changed")
	}
	now := time.Now().UTC()
	f.mapping.VerificationStatus = toStatus
	f.mapping.VerifiedBy = reviewer
	f.mapping.VerifiedAt = &now
	return nil
}

func (f *fakeMappingStore) Repoint(_ context.Context, _, _, newMasterID, status, method string, reviewer *string) error {
	f.repoints = append(f.repoints, newMasterID)
	now := time.Now().UTC()
	f.mapping.MasterID = newMasterID
	f.mapping.VerificationStatus = status
	f.mapping.MatchMethod = method
	f.mapping.VerifiedBy = reviewer
	f.mapping.VerifiedAt = &now
	return nil
}

type fakeMasterStore struct {
	inserted []*models.MasterProduct
}

func (f *fakeMasterStore) InsertOrGet(_ context.Context, master *models.MasterProduct) (*models.MasterProduct, bool, error) {
	master.ID = "master-" + master.CanonicalName
	f.inserted = append(f.inserted, master)
	return master, true, nil
}

type fakeHistoryStore struct {
	rows []*models.MatchingHistory
}

func (f *fakeHistoryStore) Create(_ context.Context, history *models.MatchingHistory) (*models.MatchingHistory, error) {
	f.rows = append(f.rows, history)
	return history, nil
}

func pendingMapping() *models.SkuMapping {
	score := 0.82
	return &models.SkuMapping{
		ID:                 "mapping-1",
		MasterID:           "master-original",
		Source:             "wildberries",
		ExternalSKU:        "WB-1001",
		SourceName:         "кетчуп хайнц томатный 570г",
		SourceBrand:        "хайнц",
		SourceCategory:     "соусы",
		ConfidenceScore:    &score,
		VerificationStatus: models.VerificationStatusPending,
		MatchMethod:        models.MatchMethodFuzzy,
	}
}

func newTestService(mappings *fakeMappingStore, masters *fakeMasterStore, history *fakeHistoryStore) *Service {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewService(logger, nil, mappings, masters, history)
}

func TestConfirmPendingMapping(t *testing.T) {
	mappings := &fakeMappingStore{mapping: pendingMapping()}
	service := newTestService(mappings, &fakeMasterStore{}, &fakeHistoryStore{})

	updated, err := service.Confirm(context.Background(), "wildberries", "WB-1001", "reviewer@sellerdesk.io")
	require.NoError(t, err)

	assert.Equal(t, models.VerificationStatusManual, updated.VerificationStatus)
	assert.Equal(t, "master-original", updated.MasterID)
	require.NotNil(t, updated.VerifiedBy)
	assert.Equal(t, "reviewer@sellerdesk.io", *updated.VerifiedBy)
	assert.NotNil(t, updated.VerifiedAt)
}

func TestConfirmRequiresReviewer(t *testing.T) {
	mappings := &fakeMappingStore{mapping: pendingMapping()}
	service := newTestService(mappings, &fakeMasterStore{}, &fakeHistoryStore{})

	_, err := service.Confirm(context.Background(), "wildberries", "WB-1001", "")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestConfirmUnknownMapping(t *testing.T) {
	service := newTestService(&fakeMappingStore{}, &fakeMasterStore{}, &fakeHistoryStore{})

	_, err := service.Confirm(context.Background(), "wildberries", "WB-9999", "reviewer@sellerdesk.io")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestConfirmRejectsNonPendingMapping(t *testing.T) {
	mapping := pendingMapping()
	mapping.VerificationStatus = models.VerificationStatusAuto
	mappings := &fakeMappingStore{mapping: mapping}
	service := newTestService(mappings, &fakeMasterStore{}, &fakeHistoryStore{})

	_, err := service.Confirm(context.Background(), "wildberries", "WB-1001", "reviewer@sellerdesk.io")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestRejectPendingMapping(t *testing.T) {
	mappings := &fakeMappingStore{mapping: pendingMapping()}
	service := newTestService(mappings, &fakeMasterStore{}, &fakeHistoryStore{})

	updated, err := service.Reject(context.Background(), "wildberries", "WB-1001", "reviewer@sellerdesk.io")
	require.NoError(t, err)

	assert.Equal(t, models.VerificationStatusRejected, updated.VerificationStatus)
	// The rejected link keeps the master id for audit.
	assert.Equal(t, "master-original", updated.MasterID)
}

func TestRejectedIsTerminal(t *testing.T) {
	mapping := pendingMapping()
	mapping.VerificationStatus = models.VerificationStatusRejected
	mappings := &fakeMappingStore{mapping: mapping}
	service := newTestService(mappings, &fakeMasterStore{}, &fakeHistoryStore{})

	_, err := service.Confirm(context.Background(), "wildberries", "WB-1001", "reviewer@sellerdesk.io")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	_, err = service.Reject(context.Background(), "wildberries", "WB-1001", "reviewer@sellerdesk.io")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestResolveRejectedCreatesMasterFromSourceFields(t *testing.T) {
	mapping := pendingMapping()
	mapping.VerificationStatus = models.VerificationStatusRejected
	mappings := &fakeMappingStore{mapping: mapping}
	masters := &fakeMasterStore{}
	history := &fakeHistoryStore{}
	service := newTestService(mappings, masters, history)

	resolution, err := service.ResolveRejected(context.Background(), "wildberries", "WB-1001", "reviewer@sellerdesk.io")
	require.NoError(t, err)

	assert.Equal(t, models.DecisionNewMaster, resolution.Decision)
	assert.True(t, resolution.CreatedMaster)

	require.Len(t, masters.inserted, 1)
	assert.Equal(t, "Кетчуп Heinz Томатный 570г", masters.inserted[0].CanonicalName)
	assert.Equal(t, "Heinz", masters.inserted[0].CanonicalBrand)

	require.Len(t, mappings.repoints, 1)
	assert.Equal(t, resolution.Master.ID, mappings.repoints[0])
	assert.Equal(t, models.VerificationStatusManual, resolution.Mapping.VerificationStatus)
	assert.Equal(t, models.MatchMethodManual, resolution.Mapping.MatchMethod)

	require.Len(t, history.rows, 1)
	assert.Equal(t, models.DecisionNewMaster, history.rows[0].Decision)
	require.NotNil(t, history.rows[0].MasterID)
	assert.Equal(t, resolution.Master.ID, *history.rows[0].MasterID)
}

func TestResolveRejectedRequiresRejectedStatus(t *testing.T) {
	mappings := &fakeMappingStore{mapping: pendingMapping()}
	service := newTestService(mappings, &fakeMasterStore{}, &fakeHistoryStore{})

	_, err := service.ResolveRejected(context.Background(), "wildberries", "WB-1001", "reviewer@sellerdesk.io")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}
