package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockProvider records snapshot writes through testify's mock.Mock.
type MockProvider struct {
	mock.Mock
}

// ExpectSave registers an expected write of objectName that returns err.
func (m *MockProvider) ExpectSave(objectName string, err error) *mock.Call {
	return m.On("Save", mock.Anything, objectName, mock.Anything).Return(err)
}

// Save records the call and returns the configured error.
func (m *MockProvider) Save(ctx context.Context, objectName string, data []byte) error {
	return m.Called(ctx, objectName, data).Error(0)
}
