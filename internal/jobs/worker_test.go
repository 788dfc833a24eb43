package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/docsage/docsage/internal/vectorindex"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ProcessorError tests the loop keeps running after processor errors
func TestWorker_ProcessorError(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(errors.New("boom"))

	worker := NewWorker("test", mockProcessor, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(200 * time.Millisecond)
	worker.Stop()
	wg.Wait()

	calls := 0
	for _, call := range mockProcessor.Calls {
		if call.Method == "ProcessJobs" {
			calls++
		}
	}
	assert.GreaterOrEqual(t, calls, 2)
}

func TestSnapshotWorker_WritesWhenDirty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	idx, err := vectorindex.NewFlatIndex(3)
	require.NoError(t, err)
	_, err = idx.Insert([]float32{1, 2, 3})
	require.NoError(t, err)
	require.True(t, idx.Dirty())

	worker := NewSnapshotWorker(idx, path)
	require.NoError(t, worker.ProcessJobs(context.Background()))

	assert.False(t, idx.Dirty())
	assert.FileExists(t, path)
}

func TestSnapshotWorker_SkipsWhenClean(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	idx, err := vectorindex.NewFlatIndex(3)
	require.NoError(t, err)

	worker := NewSnapshotWorker(idx, path)
	require.NoError(t, worker.ProcessJobs(context.Background()))

	// No snapshot was written for an untouched index.
	assert.NoFileExists(t, path)
}

func TestSnapshotWorker_ContextCancelled(t *testing.T) {
	idx, err := vectorindex.NewFlatIndex(3)
	require.NoError(t, err)
	_, err = idx.Insert([]float32{1, 2, 3})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	worker := NewSnapshotWorker(idx, filepath.Join(t.TempDir(), "index.bin"))
	assert.Error(t, worker.ProcessJobs(ctx))
}
