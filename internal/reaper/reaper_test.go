package reaper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Resonant-Jones/WhisperBoard/internal/rendezvous"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, store *rendezvous.Store, subdir rendezvous.Subdir, name string, age time.Duration) {
	t.Helper()
	require.NoError(t, store.WriteAtomic(subdir, name, []byte("x")))
	old := time.Now().Add(-age)
	path := filepath.Join(store.Root(), string(subdir), name)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestStartupSweepDeletesOldEntriesAcrossAllSubdirs(t *testing.T) {
	t.Parallel()
	store, err := rendezvous.Open(t.TempDir())
	require.NoError(t, err)

	touch(t, store, rendezvous.Audio, "stale.pcm", 2*time.Hour)
	touch(t, store, rendezvous.Transcripts, "stale.json", 2*time.Hour)
	touch(t, store, rendezvous.Control, "stale.json", 2*time.Hour)
	touch(t, store, rendezvous.Audio, "fresh.pcm", time.Minute)

	r := New(store, Config{StartupSweepAge: time.Hour}, nil)
	r.StartupSweep()

	assert.False(t, store.Exists(rendezvous.Audio, "stale.pcm"))
	assert.False(t, store.Exists(rendezvous.Transcripts, "stale.json"))
	assert.False(t, store.Exists(rendezvous.Control, "stale.json"))
	assert.True(t, store.Exists(rendezvous.Audio, "fresh.pcm"))
}

func TestRunOnceDeletesAgedPartialsAndAudio(t *testing.T) {
	t.Parallel()
	store, err := rendezvous.Open(t.TempDir())
	require.NoError(t, err)

	touch(t, store, rendezvous.Transcripts, "token_update_0001.json", 10*time.Minute)
	touch(t, store, rendezvous.Transcripts, "token_update_0002.json", time.Minute)
	touch(t, store, rendezvous.Transcripts, "latest_transcription.json", time.Hour)
	touch(t, store, rendezvous.Audio, "chunk_old.pcm", 90*time.Second)
	touch(t, store, rendezvous.Audio, "chunk_new.pcm", 10*time.Second)

	r := New(store, Config{PartialMaxAge: 5 * time.Minute, AudioMaxAge: 60 * time.Second}, nil)
	r.RunOnce()

	assert.False(t, store.Exists(rendezvous.Transcripts, "token_update_0001.json"))
	assert.True(t, store.Exists(rendezvous.Transcripts, "token_update_0002.json"))
	assert.True(t, store.Exists(rendezvous.Transcripts, "latest_transcription.json"),
		"the final transcript record is not subject to partial-age cleanup")
	assert.False(t, store.Exists(rendezvous.Audio, "chunk_old.pcm"))
	assert.True(t, store.Exists(rendezvous.Audio, "chunk_new.pcm"))
}

func TestRotateArchivesRemovesOnlyExpiredLogArchives(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "consumer.log")
	require.NoError(t, os.WriteFile(logPath, []byte("active"), 0o644))

	oldArchive := filepath.Join(dir, "consumer-1000000000.log")
	newArchive := filepath.Join(dir, "consumer-9999999999.log")
	require.NoError(t, os.WriteFile(oldArchive, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(newArchive, []byte("new"), 0o644))

	oldTime := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(oldArchive, oldTime, oldTime))

	store, err := rendezvous.Open(t.TempDir())
	require.NoError(t, err)
	r := New(store, Config{ArchiveMaxAge: 7 * 24 * time.Hour, LogPath: logPath}, nil)
	r.RunOnce()

	_, err = os.Stat(oldArchive)
	assert.True(t, os.IsNotExist(err), "archive older than ArchiveMaxAge should be removed")
	_, err = os.Stat(newArchive)
	assert.NoError(t, err, "recent archive should survive")
	_, err = os.Stat(logPath)
	assert.NoError(t, err, "active log file itself is never touched by the reaper")
}

func TestCheckDiskPressurePurgesAudioRegardlessOfAgeWhenCritical(t *testing.T) {
	t.Parallel()
	store, err := rendezvous.Open(t.TempDir())
	require.NoError(t, err)
	touch(t, store, rendezvous.Audio, "fresh.pcm", time.Second)

	// A real filesystem is virtually certain to be above 1% used, so this
	// threshold exercises the purge branch without mocking gopsutil.
	r := New(store, Config{DiskCriticalPercent: 1.0}, nil)
	r.checkDiskPressure(time.Now())

	assert.False(t, store.Exists(rendezvous.Audio, "fresh.pcm"))
}

func TestCheckDiskPressureDisabledByDefault(t *testing.T) {
	t.Parallel()
	store, err := rendezvous.Open(t.TempDir())
	require.NoError(t, err)
	touch(t, store, rendezvous.Audio, "fresh.pcm", time.Second)

	r := New(store, Config{}, nil)
	r.checkDiskPressure(time.Now())

	assert.True(t, store.Exists(rendezvous.Audio, "fresh.pcm"))
}

func TestStopTerminatesLoopCleanly(t *testing.T) {
	t.Parallel()
	store, err := rendezvous.Open(t.TempDir())
	require.NoError(t, err)

	r := New(store, Config{Interval: time.Millisecond, StartupSweepAge: time.Hour}, nil)
	r.Start()
	time.Sleep(5 * time.Millisecond)
	r.Stop()
}
