package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/events"
	"github.com/cryptodashboard/reportgen/pkg/mocks"
	"github.com/cryptodashboard/reportgen/pkg/models"
	"github.com/cryptodashboard/reportgen/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReports_ListReports(t *testing.T) {
	store := &mocks.MockPersistence{}
	now := time.Now()
	store.On("Reports", mock.Anything, DefaultPageLimit, 0).Return([]*models.ReportSummary{
		{ID: 2, CreatedAt: now, Size: 10},
		{ID: 1, CreatedAt: now.Add(-time.Hour), Size: 12},
	}, nil)
	store.On("CountReports", mock.Anything).Return(25, nil)

	service := NewReports(store, nil, slog.Default())

	resp, err := service.ListReports(context.Background(), ListReportsRequest{})
	require.NoError(t, err)

	assert.Len(t, resp.Reports, 2)
	assert.Equal(t, 25, resp.TotalCount)
	assert.True(t, resp.HasNextPage)
	store.AssertExpectations(t)
}

func TestReports_ListReportsValidation(t *testing.T) {
	service := NewReports(&mocks.MockPersistence{}, nil, slog.Default())

	tests := []struct {
		name    string
		req     ListReportsRequest
		wantErr error
	}{
		{name: "limit too high", req: ListReportsRequest{Limit: 500}, wantErr: ErrInvalidPageLimit},
		{name: "negative limit", req: ListReportsRequest{Limit: -1}, wantErr: ErrInvalidPageLimit},
		{name: "negative offset", req: ListReportsRequest{Limit: 10, Offset: -3}, wantErr: ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ListReports(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestReports_ReportNotFound(t *testing.T) {
	store := &mocks.MockPersistence{}
	store.On("ReportByID", mock.Anything, int64(4)).Return(nil, persistence.NewReportError("GetByID", 4, persistence.ErrReportNotFound))

	service := NewReports(store, nil, slog.Default())

	_, err := service.Report(context.Background(), 4)
	assert.ErrorIs(t, err, ErrReportNotFound)

	_, err = service.Report(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidReportID)
}

func TestReports_DeletePublishesEvent(t *testing.T) {
	store := &mocks.MockPersistence{}
	store.On("DeleteReport", mock.Anything, int64(8)).Return(nil)

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "8", mock.MatchedBy(func(e events.ReportDeleted) bool {
		return e.ReportID == 8
	})).Return(errors.New("broker down"))

	service := NewReports(store, bus, slog.Default())

	require.NoError(t, service.Delete(context.Background(), 8))

	store.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestReports_DeleteMissingReportSkipsEvent(t *testing.T) {
	store := &mocks.MockPersistence{}
	store.On("DeleteReport", mock.Anything, int64(9)).Return(persistence.NewReportError("Delete", 9, persistence.ErrReportNotFound))

	bus := &mocks.MockEventBus{}
	service := NewReports(store, bus, slog.Default())

	err := service.Delete(context.Background(), 9)
	require.ErrorIs(t, err, ErrReportNotFound)
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestReports_HealthCheck(t *testing.T) {
	store := &mocks.MockPersistence{}
	store.On("HealthCheck", mock.Anything).Return(errors.New("connection refused")).Once()
	store.On("HealthCheck", mock.Anything).Return(nil).Once()

	service := NewReports(store, nil, slog.Default())

	msg, ok := service.HealthCheck(context.Background())
	assert.False(t, ok)
	assert.Contains(t, msg, "connection refused")

	_, ok = service.HealthCheck(context.Background())
	assert.True(t, ok)
}
