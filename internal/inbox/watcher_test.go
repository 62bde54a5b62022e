package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
)

type recordingIngester struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (r *recordingIngester) AddDocument(_ context.Context, text string) (knowledge.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	if r.err != nil {
		return knowledge.Document{}, r.err
	}
	return knowledge.Document{ID: "doc-1", Title: "title", Status: knowledge.StatusDone}, nil
}

func (r *recordingIngester) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func startWatcher(t *testing.T, dir string, ing Ingester) *Watcher {
	t.Helper()
	w, err := New(dir, ing, Options{Settle: 20 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func archived(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestAccepts(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/inbox/notes.txt", true},
		{"/inbox/chat.MD", true},
		{"/inbox/image.png", false},
		{"/inbox/.draft.md", false},
		{"/inbox/noext", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Accepts(tt.path), tt.path)
	}
}

func TestNew_CreatesDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	_, err := New(dir, &recordingIngester{}, Options{})
	require.NoError(t, err)

	for _, sub := range []string{ProcessedDir, FailedDir} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestNew_RequiresIngester(t *testing.T) {
	_, err := New(t.TempDir(), nil, Options{})
	assert.Error(t, err)
}

func TestWatcher_IngestsNewFiles(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	startWatcher(t, dir, ing)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# RAG 정리"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.png"), []byte("binary"), 0600))

	assert.Eventually(t, func() bool {
		return len(ing.received()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"# RAG 정리"}, ing.received())

	assert.Eventually(t, func() bool {
		return len(archived(t, filepath.Join(dir, ProcessedDir))) == 1
	}, 2*time.Second, 10*time.Millisecond)
	_, err := os.Stat(filepath.Join(dir, "notes.md"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "ignored.png"))
	assert.NoError(t, err)
}

func TestWatcher_IngestsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backlog.txt"), []byte("older notes"), 0600))

	ing := &recordingIngester{}
	startWatcher(t, dir, ing)

	assert.Eventually(t, func() bool {
		return len(ing.received()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_FailedIngestionIsArchived(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{err: errors.New("analysis failed")}
	startWatcher(t, dir, ing)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.txt"), []byte("text"), 0600))

	assert.Eventually(t, func() bool {
		return len(archived(t, filepath.Join(dir, FailedDir))) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, archived(t, filepath.Join(dir, ProcessedDir)))
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), &recordingIngester{}, Options{})
	require.NoError(t, err)
	w.Stop()
	w.Stop()
}

func TestWatcher_CancelledContextReleasesSettledFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, &recordingIngester{}, Options{Settle: 10 * time.Millisecond})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	t.Cleanup(w.Stop)

	cancel()
	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not exit after cancel")
	}

	delivered := make(chan struct{})
	go func() {
		for i := 0; i <= readyQueueSize; i++ {
			w.deliver(filepath.Join(dir, "late.md"))
		}
		close(delivered)
	}()
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("settled file blocked after the run loop exited")
	}
}
