package redisclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockKey(t *testing.T) {
	id := uuid.MustParse("3f1c8a2e-6b1d-4c1e-9a7b-2d9f0e5c4b3a")
	assert.Equal(t, "lock:doctor:3f1c8a2e-6b1d-4c1e-9a7b-2d9f0e5c4b3a", lockKey(id))
}

func TestLocalLocker_SerializesSameDoctor(t *testing.T) {
	locker := NewLocalLocker()
	doctorID := uuid.New()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithDoctorLock(context.Background(), doctorID, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLocker_HonoursContext(t *testing.T) {
	locker := NewLocalLocker()
	doctorID := uuid.New()

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = locker.WithDoctorLock(context.Background(), doctorID, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := locker.WithDoctorLock(ctx, doctorID, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}
