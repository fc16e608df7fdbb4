package core

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// memChunkStore is a map-backed ChunkStore for engine tests.
type memChunkStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{data: make(map[string][]byte)}
}

func (m *memChunkStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memChunkStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, errors.New("key not found: " + key)
	}
	return append([]byte(nil), data...), nil
}

func (m *memChunkStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *memChunkStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memChunkStore) DeleteAll(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
		}
	}
	return nil
}

func (m *memChunkStore) Size(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return 0, errors.New("key not found: " + key)
	}
	return int64(len(data)), nil
}

func (m *memChunkStore) keyCount(prefix string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}

func newTestEngine() (*UploadEngine, *memChunkStore) {
	chunks := newMemChunkStore()
	return NewUploadEngine(NewMemorySessionStore(), chunks), chunks
}

func initSession(t *testing.T, e *UploadEngine, totalChunks int, size int64) *UploadSession {
	t.Helper()
	sess, err := e.Initialize(context.Background(), InitRequest{
		Filename:    "photo.jpg",
		TotalSize:   size,
		MimeType:    "image/jpeg",
		TotalChunks: totalChunks,
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return sess
}

func sendChunk(t *testing.T, e *UploadEngine, token string, index int, data []byte) ChunkResult {
	t.Helper()
	result, err := e.AcceptChunk(context.Background(), token, index, data, Checksum(data))
	if err != nil {
		t.Fatalf("AcceptChunk(%d) failed: %v", index, err)
	}
	return result
}

func TestUploadEngine_InitializeValidation(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, InitRequest{Filename: "a", TotalSize: 0, TotalChunks: 1}); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := e.Initialize(ctx, InitRequest{Filename: "a", TotalSize: 10, TotalChunks: 0}); err == nil {
		t.Error("expected error for zero chunks")
	}
}

func TestUploadEngine_Initialize(t *testing.T) {
	e, _ := newTestEngine()
	sess := initSession(t, e, 3, 30)

	if sess.Token == "" {
		t.Error("token should be generated")
	}
	if sess.Status != UploadPending {
		t.Errorf("Status = %s, want %s", sess.Status, UploadPending)
	}
	if sess.Filename == sess.OriginalName {
		t.Error("internal storage name should differ from the original name")
	}
	if !strings.HasSuffix(sess.Filename, ".jpg") {
		t.Errorf("storage name %q should keep the extension", sess.Filename)
	}
}

func TestUploadEngine_OutOfOrderAssembly(t *testing.T) {
	e, chunks := newTestEngine()

	a, b, c := []byte("aaaa"), []byte("bbbb"), []byte("cc")
	whole := []byte("aaaabbbbcc")
	sess := initSession(t, e, 3, int64(len(whole)))

	// Deliver out of order: 2, 0, 1.
	sendChunk(t, e, sess.Token, 2, c)
	sendChunk(t, e, sess.Token, 0, a)
	result := sendChunk(t, e, sess.Token, 1, b)

	if result.UploadedChunks != 3 {
		t.Errorf("UploadedChunks = %d, want 3", result.UploadedChunks)
	}
	if !result.IsComplete {
		t.Error("IsComplete should be true after the last chunk")
	}

	done, err := e.Complete(context.Background(), sess.Token, Checksum(whole))
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.Status != UploadCompleted {
		t.Errorf("Status = %s, want %s", done.Status, UploadCompleted)
	}
	if done.Checksum != Checksum(whole) {
		t.Errorf("Checksum = %s, want %s", done.Checksum, Checksum(whole))
	}

	// Assembled bytes must be in index order regardless of arrival order.
	stored, err := chunks.Get(context.Background(), done.Path)
	if err != nil {
		t.Fatalf("reading assembled object: %v", err)
	}
	if string(stored) != string(whole) {
		t.Errorf("assembled = %q, want %q", stored, whole)
	}

	// Chunk remnants are removed after completion.
	if n := chunks.keyCount(ChunkPrefix(sess.Token)); n != 0 {
		t.Errorf("%d chunk remnants left after completion", n)
	}
}

func TestUploadEngine_ReacceptIsNoOp(t *testing.T) {
	e, _ := newTestEngine()
	sess := initSession(t, e, 2, 8)

	data := []byte("data")
	sendChunk(t, e, sess.Token, 0, data)
	result := sendChunk(t, e, sess.Token, 0, data)

	if result.UploadedChunks != 1 {
		t.Errorf("UploadedChunks after re-accept = %d, want 1", result.UploadedChunks)
	}
	if !result.Accepted {
		t.Error("re-accepted chunk should still report accepted")
	}
}

func TestUploadEngine_ChunkChecksumMismatch(t *testing.T) {
	e, chunks := newTestEngine()
	sess := initSession(t, e, 2, 8)

	result, err := e.AcceptChunk(context.Background(), sess.Token, 0, []byte("data"), "badsum")
	if !errors.Is(err, ErrChunkChecksum) {
		t.Fatalf("err = %v, want ErrChunkChecksum", err)
	}
	if result.Accepted {
		t.Error("rejected chunk should not report accepted")
	}
	if result.UploadedChunks != 0 {
		t.Errorf("UploadedChunks = %d, want 0", result.UploadedChunks)
	}

	// Nothing was persisted and the session is untouched.
	if n := chunks.keyCount(ChunkPrefix(sess.Token)); n != 0 {
		t.Errorf("%d chunks persisted despite rejection", n)
	}
	status, err := e.Status(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Status != UploadPending {
		t.Errorf("Status = %s, want %s", status.Status, UploadPending)
	}
}

func TestUploadEngine_ChunkOutOfRange(t *testing.T) {
	e, _ := newTestEngine()
	sess := initSession(t, e, 2, 8)

	data := []byte("x")
	if _, err := e.AcceptChunk(context.Background(), sess.Token, 2, data, Checksum(data)); !errors.Is(err, ErrChunkOutOfRange) {
		t.Errorf("index 2 of 2: err = %v, want ErrChunkOutOfRange", err)
	}
	if _, err := e.AcceptChunk(context.Background(), sess.Token, -1, data, Checksum(data)); !errors.Is(err, ErrChunkOutOfRange) {
		t.Errorf("index -1: err = %v, want ErrChunkOutOfRange", err)
	}
}

func TestUploadEngine_UnknownToken(t *testing.T) {
	e, _ := newTestEngine()

	data := []byte("x")
	if _, err := e.AcceptChunk(context.Background(), "no-such-token", 0, data, Checksum(data)); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
	if _, err := e.Complete(context.Background(), "no-such-token", "sum"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Complete err = %v, want ErrSessionNotFound", err)
	}
}

func TestUploadEngine_PrematureComplete(t *testing.T) {
	e, _ := newTestEngine()
	sess := initSession(t, e, 3, 12)

	sendChunk(t, e, sess.Token, 0, []byte("aaaa"))

	_, err := e.Complete(context.Background(), sess.Token, "whatever")
	if !errors.Is(err, ErrChunksMissing) {
		t.Fatalf("err = %v, want ErrChunksMissing", err)
	}

	// Session stays resumable.
	status, _ := e.Status(context.Background(), sess.Token)
	if status.Status != UploadInProgress {
		t.Errorf("Status = %s, want %s", status.Status, UploadInProgress)
	}
}

func TestUploadEngine_FinalChecksumMismatch(t *testing.T) {
	e, chunks := newTestEngine()

	a, b := []byte("aaaa"), []byte("bbbb")
	whole := []byte("aaaabbbb")
	sess := initSession(t, e, 2, int64(len(whole)))

	sendChunk(t, e, sess.Token, 0, a)
	sendChunk(t, e, sess.Token, 1, b)

	_, err := e.Complete(context.Background(), sess.Token, Checksum([]byte("something else")))
	if !errors.Is(err, ErrFinalChecksum) {
		t.Fatalf("err = %v, want ErrFinalChecksum", err)
	}

	// The assembled object and chunk remnants are gone, but the session
	// stays in the uploading state so the transfer can be retried.
	status, _ := e.Status(context.Background(), sess.Token)
	if status.Status != UploadInProgress {
		t.Errorf("Status = %s, want %s", status.Status, UploadInProgress)
	}
	if ok, _ := chunks.Exists(context.Background(), FinalKey(sess.Filename)); ok {
		t.Error("mismatched assembled object should be deleted")
	}
	if n := chunks.keyCount(ChunkPrefix(sess.Token)); n != 0 {
		t.Errorf("%d chunk remnants left after mismatch", n)
	}

	// Resending the chunks and completing with the right checksum works.
	sendChunk(t, e, sess.Token, 0, a)
	sendChunk(t, e, sess.Token, 1, b)
	done, err := e.Complete(context.Background(), sess.Token, Checksum(whole))
	if err != nil {
		t.Fatalf("retry Complete failed: %v", err)
	}
	if done.Status != UploadCompleted {
		t.Errorf("Status = %s, want %s", done.Status, UploadCompleted)
	}
}

func TestUploadEngine_DoubleComplete(t *testing.T) {
	e, _ := newTestEngine()

	whole := []byte("payload")
	sess := initSession(t, e, 1, int64(len(whole)))
	sendChunk(t, e, sess.Token, 0, whole)

	first, err := e.Complete(context.Background(), sess.Token, Checksum(whole))
	if err != nil {
		t.Fatalf("first Complete failed: %v", err)
	}

	// Same checksum: idempotent, returns the session unchanged.
	second, err := e.Complete(context.Background(), sess.Token, Checksum(whole))
	if err != nil {
		t.Fatalf("second Complete failed: %v", err)
	}
	if second.Path != first.Path || second.Checksum != first.Checksum {
		t.Error("second Complete should return the unchanged session")
	}

	// Different checksum: conflict.
	if _, err := e.Complete(context.Background(), sess.Token, "other"); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("err = %v, want ErrAlreadyCompleted", err)
	}
}

func TestUploadEngine_ChunkAfterCompletion(t *testing.T) {
	e, chunks := newTestEngine()

	whole := []byte("payload")
	sess := initSession(t, e, 1, int64(len(whole)))
	sendChunk(t, e, sess.Token, 0, whole)
	if _, err := e.Complete(context.Background(), sess.Token, Checksum(whole)); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	// Completed sessions are terminal: no chunk is accepted or stored.
	result, err := e.AcceptChunk(context.Background(), sess.Token, 0, whole, Checksum(whole))
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("err = %v, want ErrAlreadyCompleted", err)
	}
	if result.Accepted {
		t.Error("chunk for a completed session should not report accepted")
	}
	if n := chunks.keyCount(ChunkPrefix(sess.Token)); n != 0 {
		t.Errorf("%d chunks persisted for a completed session", n)
	}
}

func TestUploadEngine_ChunkAfterFailure(t *testing.T) {
	e, chunks := newTestEngine()

	a, b := []byte("aaaa"), []byte("bbbb")
	sess := initSession(t, e, 2, 8)
	sendChunk(t, e, sess.Token, 0, a)
	sendChunk(t, e, sess.Token, 1, b)

	// Remove a chunk behind the engine's back so assembly fails and the
	// session goes terminal.
	if err := chunks.Delete(context.Background(), ChunkKey(sess.Token, 1)); err != nil {
		t.Fatalf("deleting chunk: %v", err)
	}
	if _, err := e.Complete(context.Background(), sess.Token, Checksum([]byte("aaaabbbb"))); err == nil {
		t.Fatal("Complete should fail when a chunk is missing")
	}
	status, _ := e.Status(context.Background(), sess.Token)
	if status.Status != UploadFailed {
		t.Fatalf("Status = %s, want %s", status.Status, UploadFailed)
	}

	// Resending the chunk must be rejected, not silently persisted: the
	// session can never complete, so reporting progress would mislead
	// the client.
	uploaded := status.UploadedChunks
	result, err := e.AcceptChunk(context.Background(), sess.Token, 1, b, Checksum(b))
	if !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("err = %v, want ErrSessionFailed", err)
	}
	if result.Accepted {
		t.Error("chunk for a failed session should not report accepted")
	}
	if ok, _ := chunks.Exists(context.Background(), ChunkKey(sess.Token, 1)); ok {
		t.Error("rejected chunk was persisted")
	}
	status, _ = e.Status(context.Background(), sess.Token)
	if status.UploadedChunks != uploaded {
		t.Errorf("UploadedChunks = %d, want %d unchanged", status.UploadedChunks, uploaded)
	}
}

// turningSessionStore reports the session as completed from the second
// read on, reproducing a Complete that finishes between a chunk's
// pre-write status check and its locked state update.
type turningSessionStore struct {
	*MemorySessionStore
	reads int
}

func (s *turningSessionStore) SessionByToken(ctx context.Context, token string) (*UploadSession, error) {
	sess, err := s.MemorySessionStore.SessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	s.reads++
	if s.reads > 1 {
		sess.Status = UploadCompleted
	}
	return sess, nil
}

func TestUploadEngine_ChunkRacingCompletion(t *testing.T) {
	sessions := &turningSessionStore{MemorySessionStore: NewMemorySessionStore()}
	chunks := newMemChunkStore()
	e := NewUploadEngine(sessions, chunks)

	sess, err := e.Initialize(context.Background(), InitRequest{
		Filename:    "photo.jpg",
		TotalSize:   4,
		TotalChunks: 1,
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	data := []byte("data")
	if _, err := e.AcceptChunk(context.Background(), sess.Token, 0, data, Checksum(data)); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("err = %v, want ErrAlreadyCompleted", err)
	}

	// The bytes written before the session turned terminal must not be
	// left behind as an orphan.
	if n := chunks.keyCount(ChunkPrefix(sess.Token)); n != 0 {
		t.Errorf("%d orphan chunks left after racing completion", n)
	}
}

func TestUploadEngine_Resume(t *testing.T) {
	e, _ := newTestEngine()
	sess := initSession(t, e, 4, 16)

	sendChunk(t, e, sess.Token, 3, []byte("dddd"))
	sendChunk(t, e, sess.Token, 1, []byte("bbbb"))

	info, err := e.Resume(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if info.UploadedChunks != 2 {
		t.Errorf("UploadedChunks = %d, want 2", info.UploadedChunks)
	}
	if info.TotalChunks != 4 {
		t.Errorf("TotalChunks = %d, want 4", info.TotalChunks)
	}
	if len(info.ChunkIndices) != 2 || info.ChunkIndices[0] != 1 || info.ChunkIndices[1] != 3 {
		t.Errorf("ChunkIndices = %v, want [1 3]", info.ChunkIndices)
	}
	if info.Status != UploadInProgress {
		t.Errorf("Status = %s, want %s", info.Status, UploadInProgress)
	}
}

func TestUploadEngine_ConcurrentChunks(t *testing.T) {
	e, _ := newTestEngine()

	const n = 16
	sess := initSession(t, e, n, n*4)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			data := []byte{byte(index), byte(index), byte(index), byte(index)}
			if _, err := e.AcceptChunk(context.Background(), sess.Token, index, data, Checksum(data)); err != nil {
				t.Errorf("AcceptChunk(%d) failed: %v", index, err)
			}
		}(i)
	}
	wg.Wait()

	status, err := e.Status(context.Background(), sess.Token)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.UploadedChunks != n {
		t.Errorf("UploadedChunks = %d, want %d", status.UploadedChunks, n)
	}
}

func TestUploadEngine_RandomRoundTrip(t *testing.T) {
	e, chunks := newTestEngine()

	const chunkSize = 1024
	const totalChunks = 5
	whole := make([]byte, chunkSize*totalChunks)
	if _, err := rand.Read(whole); err != nil {
		t.Fatalf("generating payload: %v", err)
	}

	sess := initSession(t, e, totalChunks, int64(len(whole)))
	for i := 0; i < totalChunks; i++ {
		sendChunk(t, e, sess.Token, i, whole[i*chunkSize:(i+1)*chunkSize])
	}

	done, err := e.Complete(context.Background(), sess.Token, Checksum(whole))
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	stored, err := chunks.Get(context.Background(), done.Path)
	if err != nil {
		t.Fatalf("reading assembled object: %v", err)
	}
	if Checksum(stored) != Checksum(whole) {
		t.Error("assembled bytes do not match the original payload")
	}
}

func TestUploadEngine_Cleanup(t *testing.T) {
	e, chunks := newTestEngine()
	sess := initSession(t, e, 1, 4)
	sendChunk(t, e, sess.Token, 0, []byte("data"))

	// Too new to reclaim.
	if err := e.Cleanup(context.Background(), sess.Token, time.Hour); err == nil {
		t.Error("Cleanup should refuse sessions newer than the window")
	}

	// Zero window reclaims immediately.
	if err := e.Cleanup(context.Background(), sess.Token, 0); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if _, err := e.Status(context.Background(), sess.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound after cleanup", err)
	}
	if n := chunks.keyCount(ChunkPrefix(sess.Token)); n != 0 {
		t.Errorf("%d chunks left after cleanup", n)
	}
}
