package mocks

import (
	"context"

	"github.com/cryptodashboard/reportgen/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) SaveReport(ctx context.Context, report *models.Report) (int64, error) {
	args := m.Called(ctx, report)

	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPersistence) ReportByID(ctx context.Context, id int64) (*models.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Report), args.Error(1)
}

func (m *MockPersistence) LatestReport(ctx context.Context) (*models.Report, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Report), args.Error(1)
}

func (m *MockPersistence) Reports(ctx context.Context, limit, offset int) ([]*models.ReportSummary, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ReportSummary), args.Error(1)
}

func (m *MockPersistence) CountReports(ctx context.Context) (int, error) {
	args := m.Called(ctx)

	return args.Int(0), args.Error(1)
}

func (m *MockPersistence) DeleteReport(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
