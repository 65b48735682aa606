package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	frames   chan []byte
	once     sync.Once
	releases atomic.Int32
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{frames: make(chan []byte, 16)}
}

func (d *fakeDevice) Frames() <-chan []byte { return d.frames }

func (d *fakeDevice) Release() error {
	d.releases.Add(1)
	d.once.Do(func() { close(d.frames) })
	return nil
}

type fakeSource struct {
	acquireErr error
	encodeErr  error
	devices    []*fakeDevice
	encoded    [][]byte
}

func (s *fakeSource) Acquire(context.Context) (Device, error) {
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	d := newFakeDevice()
	s.devices = append(s.devices, d)
	return d, nil
}

func (s *fakeSource) Encode(frames []byte) ([]byte, string, error) {
	if s.encodeErr != nil {
		return nil, "", s.encodeErr
	}
	s.encoded = append(s.encoded, frames)
	return append([]byte("HDR"), frames...), "audio/wav", nil
}

func TestRecorderStopAssemblesChunks(t *testing.T) {
	source := &fakeSource{}
	rec := NewRecorder(nil, source, 5*time.Millisecond)

	require.NoError(t, rec.Start(context.Background()))
	require.True(t, rec.Recording())

	device := source.devices[0]
	device.frames <- []byte{1, 2}
	time.Sleep(20 * time.Millisecond)
	device.frames <- []byte{3, 4}

	blob, err := rec.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, blob)
	require.Equal(t, []byte("HDR\x01\x02\x03\x04"), blob.Data)
	require.Equal(t, "audio/wav", blob.MimeType)
	require.Equal(t, int64(7), blob.Size())
	require.GreaterOrEqual(t, blob.Chunks, 1)
	require.False(t, rec.Recording())
	require.Equal(t, int32(1), device.releases.Load())
}

func TestRecorderStopWithoutDataYieldsNoBlob(t *testing.T) {
	source := &fakeSource{}
	rec := NewRecorder(nil, source, time.Millisecond)

	require.NoError(t, rec.Start(context.Background()))
	blob, err := rec.Stop(context.Background())
	require.NoError(t, err)
	require.Nil(t, blob)
	require.Empty(t, source.encoded)
	require.Equal(t, int32(1), source.devices[0].releases.Load())
}

func TestRecorderStopWhenIdle(t *testing.T) {
	rec := NewRecorder(nil, &fakeSource{}, 0)
	blob, err := rec.Stop(context.Background())
	require.NoError(t, err)
	require.Nil(t, blob)
}

func TestRecorderAcquireFailureLeavesIdle(t *testing.T) {
	rec := NewRecorder(nil, &fakeSource{acquireErr: errors.New("permission denied")}, 0)

	err := rec.Start(context.Background())
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	require.Contains(t, err.Error(), "permission denied")
	require.False(t, rec.Recording())
	require.Zero(t, rec.Elapsed())
}

func TestRecorderBusyWhileRecording(t *testing.T) {
	source := &fakeSource{}
	rec := NewRecorder(nil, source, 0)

	require.NoError(t, rec.Start(context.Background()))
	require.ErrorIs(t, rec.Start(context.Background()), ErrBusy)
	require.Len(t, source.devices, 1)

	rec.Release()
}

func TestRecorderReleaseDiscardsData(t *testing.T) {
	source := &fakeSource{}
	rec := NewRecorder(nil, source, time.Millisecond)

	require.NoError(t, rec.Start(context.Background()))
	source.devices[0].frames <- []byte{9, 9, 9}
	rec.Release()

	require.False(t, rec.Recording())
	require.Equal(t, int32(1), source.devices[0].releases.Load())

	blob, err := rec.Stop(context.Background())
	require.NoError(t, err)
	require.Nil(t, blob)
	require.Empty(t, source.encoded)
}

func TestRecorderEncodeFailureReleasesDevice(t *testing.T) {
	source := &fakeSource{encodeErr: errors.New("bad header")}
	rec := NewRecorder(nil, source, time.Millisecond)

	require.NoError(t, rec.Start(context.Background()))
	source.devices[0].frames <- []byte{1}

	blob, err := rec.Stop(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "encode recording")
	require.Nil(t, blob)
	require.False(t, rec.Recording())
	require.Equal(t, int32(1), source.devices[0].releases.Load())
}

func TestRecorderElapsedAndLevel(t *testing.T) {
	source := &fakeSource{}
	rec := NewRecorder(nil, source, time.Millisecond)
	base := time.Unix(100, 0)
	var ticks atomic.Int64
	rec.now = func() time.Time { return base.Add(time.Duration(ticks.Load()) * time.Second) }

	require.NoError(t, rec.Start(context.Background()))
	ticks.Store(3)
	require.Equal(t, 3*time.Second, rec.Elapsed())

	source.devices[0].frames <- []byte{1, 2, 3}
	require.Eventually(t, func() bool { return rec.Level() == 3 }, time.Second, 5*time.Millisecond)

	blob, err := rec.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, blob.Duration)
	require.Zero(t, rec.Level())
}

func TestRecorderRestartsAfterStop(t *testing.T) {
	source := &fakeSource{}
	rec := NewRecorder(nil, source, time.Millisecond)

	require.NoError(t, rec.Start(context.Background()))
	_, err := rec.Stop(context.Background())
	require.NoError(t, err)

	require.NoError(t, rec.Start(context.Background()))
	require.Len(t, source.devices, 2)
	rec.Release()
}

type blockingSource struct {
	fakeSource
	entered chan struct{}
	gate    chan struct{}
}

func (s *blockingSource) Acquire(ctx context.Context) (Device, error) {
	close(s.entered)
	<-s.gate
	return s.fakeSource.Acquire(ctx)
}

func TestRecorderReleaseDuringAcquireFreesDevice(t *testing.T) {
	source := &blockingSource{entered: make(chan struct{}), gate: make(chan struct{})}
	rec := NewRecorder(nil, source, time.Millisecond)

	startErr := make(chan error, 1)
	go func() { startErr <- rec.Start(context.Background()) }()

	<-source.entered
	rec.Release()
	close(source.gate)

	require.ErrorIs(t, <-startErr, ErrReleased)
	require.False(t, rec.Recording())
	require.Len(t, source.devices, 1)
	require.Equal(t, int32(1), source.devices[0].releases.Load())

	source.entered = make(chan struct{})
	source.gate = make(chan struct{})
	close(source.gate)
	require.NoError(t, rec.Start(context.Background()))
	require.True(t, rec.Recording())
	rec.Release()
}
