package speech

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	startErr error

	mu       sync.Mutex
	receiver Receiver
	stream   *fakeStream
	starts   atomic.Int32
}

func (f *fakeRecognizer) Start(_ context.Context, r Receiver) (Stream, error) {
	f.starts.Add(1)
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiver = r
	f.stream = &fakeStream{receiver: r}
	return f.stream, nil
}

func (f *fakeRecognizer) current() (Receiver, *fakeStream) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receiver, f.stream
}

type fakeStream struct {
	receiver Receiver
	pending  []string
	stopErr  error
	stops    atomic.Int32
}

func (s *fakeStream) Stop(context.Context) error {
	s.stops.Add(1)
	for _, text := range s.pending {
		s.receiver.OnResult(text, true)
	}
	s.pending = nil
	return s.stopErr
}

type recordingHandler struct {
	mu      sync.Mutex
	interim []string
	finals  []string
	ends    []error
}

func (h *recordingHandler) OnInterim(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interim = append(h.interim, text)
}

func (h *recordingHandler) OnFinal(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finals = append(h.finals, text)
}

func (h *recordingHandler) OnEnd(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ends = append(h.ends, err)
}

func TestEngineDeliversInterimAndFinal(t *testing.T) {
	rec := &fakeRecognizer{}
	engine := NewEngine(nil, rec)
	h := &recordingHandler{}

	require.NoError(t, engine.Start(context.Background(), h))
	require.True(t, engine.Active())

	r, _ := rec.current()
	r.OnResult("hel", false)
	r.OnResult("hello", true)

	require.NoError(t, engine.Stop(context.Background()))
	require.False(t, engine.Active())
	require.Equal(t, []string{"hel"}, h.interim)
	require.Equal(t, []string{"hello"}, h.finals)
	require.Equal(t, []error{nil}, h.ends)
}

func TestEngineStartWhileActive(t *testing.T) {
	engine := NewEngine(nil, &fakeRecognizer{})
	require.NoError(t, engine.Start(context.Background(), nil))
	require.ErrorIs(t, engine.Start(context.Background(), nil), ErrAlreadyActive)
}

func TestEngineStopTwiceIsNoop(t *testing.T) {
	rec := &fakeRecognizer{}
	engine := NewEngine(nil, rec)
	h := &recordingHandler{}

	require.NoError(t, engine.Start(context.Background(), h))
	require.NoError(t, engine.Stop(context.Background()))
	require.NoError(t, engine.Stop(context.Background()))

	_, stream := rec.current()
	require.Equal(t, int32(1), stream.stops.Load())
	require.Len(t, h.ends, 1)
}

func TestEngineStopFlushesPendingFinals(t *testing.T) {
	rec := &fakeRecognizer{}
	engine := NewEngine(nil, rec)
	h := &recordingHandler{}

	require.NoError(t, engine.Start(context.Background(), h))
	_, stream := rec.current()
	stream.pending = []string{"last words"}

	require.NoError(t, engine.Stop(context.Background()))
	require.Equal(t, []string{"last words"}, h.finals)
}

func TestEngineDropsResultsAfterStop(t *testing.T) {
	rec := &fakeRecognizer{}
	engine := NewEngine(nil, rec)
	h := &recordingHandler{}

	require.NoError(t, engine.Start(context.Background(), h))
	r, _ := rec.current()
	require.NoError(t, engine.Stop(context.Background()))

	r.OnResult("late", true)
	r.OnError(errors.New("late failure"))

	require.Empty(t, h.finals)
	require.Len(t, h.ends, 1)
}

func TestEngineStartFailureIsUnavailable(t *testing.T) {
	engine := NewEngine(nil, &fakeRecognizer{startErr: errors.New("permission denied")})

	err := engine.Start(context.Background(), nil)
	require.ErrorIs(t, err, ErrUnavailable)
	require.False(t, engine.Active())

	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, CodeUnavailable, se.Code)
}

func TestEngineRuntimeErrorStopsCapture(t *testing.T) {
	rec := &fakeRecognizer{}
	engine := NewEngine(nil, rec)
	h := &recordingHandler{}

	require.NoError(t, engine.Start(context.Background(), h))
	r, _ := rec.current()
	r.OnError(errors.New("stream reset"))

	require.False(t, engine.Active())
	require.Len(t, h.ends, 1)
	require.ErrorIs(t, h.ends[0], ErrInterrupted)

	// A new capture may start after the failure.
	require.NoError(t, engine.Start(context.Background(), h))
}

func TestEngineKeepsRecognizerErrorCode(t *testing.T) {
	rec := &fakeRecognizer{}
	engine := NewEngine(nil, rec)
	h := &recordingHandler{}

	require.NoError(t, engine.Start(context.Background(), h))
	r, _ := rec.current()
	r.OnError(Unavailablef("credentials revoked"))

	require.ErrorIs(t, h.ends[0], ErrUnavailable)
	require.NotErrorIs(t, h.ends[0], ErrInterrupted)
}

func TestEngineNilRecognizerIsUnavailable(t *testing.T) {
	engine := NewEngine(nil, nil)
	err := engine.Start(context.Background(), nil)
	require.ErrorIs(t, err, ErrUnavailable)
	require.Contains(t, err.Error(), "speech input disabled")
}

func TestEngineIgnoresPreviousCaptureReceiver(t *testing.T) {
	rec := &fakeRecognizer{}
	engine := NewEngine(nil, rec)
	h := &recordingHandler{}

	require.NoError(t, engine.Start(context.Background(), h))
	first, _ := rec.current()
	require.NoError(t, engine.Stop(context.Background()))

	require.NoError(t, engine.Start(context.Background(), h))
	first.OnResult("stale", true)
	second, _ := rec.current()
	second.OnResult("fresh", true)

	require.Equal(t, []string{"fresh"}, h.finals)
}
