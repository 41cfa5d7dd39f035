package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSerializesSameKey(t *testing.T) {
	l := NewLocal()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "user-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.size())
}

func TestLocalDifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocal()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalContextCancel(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.True(t, errors.Is(err, ErrNotAcquired))

	unlock()
	unlock() // idempotent
	assert.Equal(t, 0, l.size())
}

func TestRedisLockAndUnlock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRedis(db, "spendyze:lock:", 10*time.Second)
	r.token = func() string { return "tok" }

	mock.ExpectSetNX("spendyze:lock:u1", "tok", 10*time.Second).SetVal(true)
	mock.ExpectEval(unlockScript, []string{"spendyze:lock:u1"}, "tok").SetVal(int64(1))

	unlock, err := r.Lock(context.Background(), "u1")
	require.NoError(t, err)
	unlock()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLockRetriesUntilFree(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRedis(db, "", time.Second)
	r.token = func() string { return "tok" }
	r.retry = time.Millisecond

	mock.ExpectSetNX("u1", "tok", time.Second).SetVal(false)
	mock.ExpectSetNX("u1", "tok", time.Second).SetVal(true)

	_, err := r.Lock(context.Background(), "u1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLockError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRedis(db, "", time.Second)
	r.token = func() string { return "tok" }

	mock.ExpectSetNX("u1", "tok", time.Second).SetErr(errors.New("connection refused"))

	_, err := r.Lock(context.Background(), "u1")
	assert.Error(t, err)
}

func TestRedisLockContextDone(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRedis(db, "", time.Second)
	r.token = func() string { return "tok" }
	r.retry = 50 * time.Millisecond

	mock.ExpectSetNX("u1", "tok", time.Second).SetVal(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Lock(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotAcquired)
}
