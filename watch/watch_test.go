package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBagArchive(t *testing.T) {
	var table = []struct {
		name string
		want bool
	}{
		{"bag.zip", true},
		{"/in/bag.ZIP", true},
		{"bag.tar.gz", true},
		{"bag.tgz", true},
		{"bag.tar", true},
		{"bag.7z", false},
		{"notes.txt", false},
		{".bag.zip", false},
		{"zip", false},
	}
	for _, row := range table {
		if got := IsBagArchive(row.name); got != row.want {
			t.Errorf("IsBagArchive(%q) = %v, expected %v", row.name, got, row.want)
		}
	}
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "old.zip")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))

	handled := make(chan string, 10)
	w := &Watcher{
		Dir:      dir,
		Settle:   100 * time.Millisecond,
		Workers:  2,
		Existing: true,
		Handle: func(ctx context.Context, p string) {
			assert.NoError(t, ctx.Err())
			handled <- p
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to start
	time.Sleep(100 * time.Millisecond)
	fresh := filepath.Join(dir, "new.tar.gz")
	f, err := os.Create(fresh)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		f.Write([]byte("chunk"))
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("no"), 0644))

	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case p := <-handled:
			got = append(got, p)
		case <-timeout:
			t.Fatalf("Received %v, expected two bags", got)
		}
	}
	sort.Strings(got)
	assert.Equal(t, []string{fresh, existing}, got)

	// nothing else arrives: the burst of writes counted once
	select {
	case p := <-handled:
		t.Errorf("Received extra %s", p)
	case <-time.After(400 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcherMissingDir(t *testing.T) {
	w := &Watcher{Dir: filepath.Join(t.TempDir(), "absent"), Handle: func(context.Context, string) {}}
	assert.Error(t, w.Run(context.Background()))
}
