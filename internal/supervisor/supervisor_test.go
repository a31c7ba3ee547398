package supervisor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeService struct {
	ready    chan struct{}
	startErr error
	neverUp  bool
	runs     int
	mu       sync.Mutex
}

func newFakeService() *fakeService {
	return &fakeService{ready: make(chan struct{})}
}

func (f *fakeService) Run(ctx context.Context) error {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if !f.neverUp {
		close(f.ready)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeService) Ready() <-chan struct{} { return f.ready }

type fakeFactory struct {
	mu       sync.Mutex
	built    []*fakeService
	prepare  func(*fakeService)
	optsSeen []Options
}

func (ff *fakeFactory) build(opts Options) (Service, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	svc := newFakeService()
	if ff.prepare != nil {
		ff.prepare(svc)
	}
	ff.built = append(ff.built, svc)
	ff.optsSeen = append(ff.optsSeen, opts)
	return svc, nil
}

func TestSpawn_StartsAndStops(t *testing.T) {
	ff := &fakeFactory{}
	s := New(ff.build, time.Second, zap.NewNop())
	opts := Options{Host: "127.0.0.1", Port: 3000, StorageLocator: "/tmp/x.db", ApplyMigrations: true}

	h, err := s.Spawn(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, opts, h.Options())
	assert.Same(t, h, s.Current())

	require.NoError(t, s.Stop(context.Background()))
	<-h.Done()
	assert.NoError(t, h.Err())
	assert.Nil(t, s.Current())
}

func TestSpawn_SameOptionsReusesHandle(t *testing.T) {
	ff := &fakeFactory{}
	s := New(ff.build, time.Second, zap.NewNop())
	opts := Options{Port: 3000}

	h1, err := s.Spawn(context.Background(), opts)
	require.NoError(t, err)
	h2, err := s.Spawn(context.Background(), opts)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Len(t, ff.built, 1)
	_ = s.Stop(context.Background())
}

func TestSpawn_DifferentOptionsReplaces(t *testing.T) {
	ff := &fakeFactory{}
	s := New(ff.build, time.Second, zap.NewNop())

	h1, err := s.Spawn(context.Background(), Options{Port: 3000})
	require.NoError(t, err)
	h2, err := s.Spawn(context.Background(), Options{Port: 3001})
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	select {
	case <-h1.Done():
	default:
		t.Fatal("previous service should have been stopped")
	}
	_ = s.Stop(context.Background())
}

func TestSpawn_StartupFailureIsReturned(t *testing.T) {
	bindErr := errors.New("bind 0.0.0.0:3000: address already in use")
	ff := &fakeFactory{prepare: func(f *fakeService) { f.startErr = bindErr }}
	s := New(ff.build, time.Second, zap.NewNop())

	h, err := s.Spawn(context.Background(), Options{Port: 3000})
	assert.ErrorIs(t, err, bindErr)
	assert.Nil(t, h)
	assert.Nil(t, s.Current())
}

func TestSpawn_Timeout(t *testing.T) {
	ff := &fakeFactory{prepare: func(f *fakeService) { f.neverUp = true }}
	s := New(ff.build, 50*time.Millisecond, zap.NewNop())

	_, err := s.Spawn(context.Background(), Options{Port: 3000})
	assert.ErrorIs(t, err, ErrStartupTimeout)
}

func TestSpawn_ContextCancelled(t *testing.T) {
	ff := &fakeFactory{prepare: func(f *fakeService) { f.neverUp = true }}
	s := New(ff.build, time.Minute, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Spawn(ctx, Options{Port: 3000})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSpawn_FactoryError(t *testing.T) {
	s := New(func(Options) (Service, error) { return nil, errors.New("no storage") }, time.Second, zap.NewNop())
	_, err := s.Spawn(context.Background(), Options{})
	assert.Error(t, err)
}

func TestStop_Idle(t *testing.T) {
	s := New((&fakeFactory{}).build, time.Second, zap.NewNop())
	assert.NoError(t, s.Stop(context.Background()))
}

func TestDataServiceFactory(t *testing.T) {
	factory := DataServiceFactory(nil, zap.NewNop())
	s := New(factory, 10*time.Second, zap.NewNop())

	h, err := s.Spawn(context.Background(), Options{
		Host:            "127.0.0.1",
		StorageLocator:  filepath.Join(t.TempDir(), "data", "openbio.db"),
		ApplyMigrations: true,
	})
	require.NoError(t, err)
	require.NoError(t, h.Stop(context.Background()))
}
