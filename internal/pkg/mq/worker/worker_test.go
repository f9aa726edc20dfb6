package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/3Eeeecho/go-docspace/internal/config"
	"github.com/3Eeeecho/go-docspace/internal/models"
	"github.com/3Eeeecho/go-docspace/internal/pkg/logger"
	"github.com/3Eeeecho/go-docspace/internal/pkg/mq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

type fakeProcessor struct {
	mu        sync.Mutex
	processed []uint64
	sweeps    atomic.Int32
	fail      bool
}

func (p *fakeProcessor) Process(_ context.Context, jobID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, jobID)
	if p.fail {
		return errors.New("boom")
	}
	return nil
}

func (p *fakeProcessor) SweepStale(context.Context) (int, error) {
	p.sweeps.Add(1)
	return 0, nil
}

func (p *fakeProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processed)
}

func TestManager_ProcessesQueuedJobs(t *testing.T) {
	q := mq.NewMemoryQueue(16)
	p := &fakeProcessor{fail: true}
	ctx := context.Background()

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, q.Publish(ctx, models.ExportTask{JobID: i}))
	}

	m := StartAllWorkers(ctx, &config.ExportConfig{Workers: 3, SweepInterval: 10 * time.Millisecond}, q, p)
	assert.Eventually(t, func() bool { return p.count() == 5 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return p.sweeps.Load() > 0 }, time.Second, 5*time.Millisecond)
	m.Stop()

	assert.ElementsMatch(t, []uint64{1, 2, 3, 4, 5}, p.processed)
}

func TestExportWorker_StopsWhenQueueClosed(t *testing.T) {
	q := mq.NewMemoryQueue(1)
	w := NewExportWorker(1, q, &fakeProcessor{})

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	require.NoError(t, q.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}
