// Package reaper implements the Consumer's orphan-cleanup and log-rotation
// discipline: a startup sweep, a periodic age-bounded cleanup, and archive
// pruning for the audit log lumberjack rotates.
package reaper

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Resonant-Jones/WhisperBoard/internal/rendezvous"
	"github.com/shirou/gopsutil/v3/disk"
)

// Config bounds the Reaper's cleanup policy.
type Config struct {
	Interval        time.Duration
	StartupSweepAge time.Duration
	PartialMaxAge   time.Duration
	AudioMaxAge     time.Duration
	ArchiveMaxAge   time.Duration
	LogPath         string

	// DiskCriticalPercent triggers an emergency sweep of every audio/
	// entry, regardless of age, when the rendezvous root's filesystem
	// usage reaches or exceeds it. 0 disables the check.
	DiskCriticalPercent float64
}

// Reaper periodically reclaims orphaned rendezvous files and rotates the
// audit log's archives.
type Reaper struct {
	store  *rendezvous.Store
	config Config
	log    *slog.Logger

	wg   sync.WaitGroup
	quit chan struct{}
}

// New constructs a Reaper bound to store.
func New(store *rendezvous.Store, config Config, log *slog.Logger) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{store: store, config: config, log: log, quit: make(chan struct{})}
}

// StartupSweep deletes every rendezvous entry older than StartupSweepAge,
// run once at Consumer startup.
func (r *Reaper) StartupSweep() {
	now := time.Now()
	for _, sd := range []rendezvous.Subdir{rendezvous.Audio, rendezvous.Transcripts, rendezvous.Control} {
		r.sweepOlderThan(sd, now, r.config.StartupSweepAge)
	}
}

// Start begins the periodic cleanup loop.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.loop()
}

// Stop terminates the periodic cleanup loop.
func (r *Reaper) Stop() {
	close(r.quit)
	r.wg.Wait()
}

func (r *Reaper) loop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce()
		case <-r.quit:
			return
		}
	}
}

// RunOnce performs one periodic pass: age-bounded partial/audio cleanup
// plus log archive rotation.
func (r *Reaper) RunOnce() {
	now := time.Now()
	r.sweepPartials(now)
	r.sweepAudio(now)
	r.checkDiskPressure(now)
	r.rotateArchives(now)
}

// checkDiskPressure inspects the rendezvous root's filesystem usage and,
// past DiskCriticalPercent, sweeps every audio/ entry regardless of age:
// a full disk blocks every lane (chunk writes, transcript writes, status
// publishing) so audio is the cheapest thing to discard under pressure.
func (r *Reaper) checkDiskPressure(now time.Time) {
	if r.config.DiskCriticalPercent <= 0 {
		return
	}
	usage, err := disk.Usage(r.store.Root())
	if err != nil {
		r.log.Warn("reaper: failed to read disk usage", "error", err)
		return
	}
	if usage.UsedPercent < r.config.DiskCriticalPercent {
		return
	}
	r.log.Warn("reaper: disk usage critical, purging all buffered audio",
		"used_percent", usage.UsedPercent, "threshold", r.config.DiskCriticalPercent)
	r.sweepOlderThan(rendezvous.Audio, now, 0)
}

func (r *Reaper) sweepOlderThan(subdir rendezvous.Subdir, now time.Time, maxAge time.Duration) {
	entries, err := r.store.List(subdir)
	if err != nil {
		r.log.Warn("reaper: failed to list subdir for startup sweep", "subdir", subdir, "error", err)
		return
	}
	for _, e := range entries {
		if now.Sub(e.MTime) > maxAge {
			if err := r.store.Delete(subdir, e.Name); err != nil {
				r.log.Warn("reaper: failed to delete stale entry", "subdir", subdir, "name", e.Name, "error", err)
			}
		}
	}
}

func (r *Reaper) sweepPartials(now time.Time) {
	entries, err := r.store.List(rendezvous.Transcripts)
	if err != nil {
		r.log.Warn("reaper: failed to list transcripts", "error", err)
		return
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name, "token_update_") {
			continue // never sweep latest_transcription.json this way
		}
		if now.Sub(e.MTime) > r.config.PartialMaxAge {
			if err := r.store.Delete(rendezvous.Transcripts, e.Name); err != nil {
				r.log.Warn("reaper: failed to delete stale partial", "name", e.Name, "error", err)
			}
		}
	}
}

func (r *Reaper) sweepAudio(now time.Time) {
	r.sweepOlderThan(rendezvous.Audio, now, r.config.AudioMaxAge)
}

// rotateArchives deletes lumberjack-produced archive files for the audit
// log older than ArchiveMaxAge. lumberjack itself rolls the active log
// once it exceeds its size bound; the Reaper only prunes the resulting
// archive tail.
func (r *Reaper) rotateArchives(now time.Time) {
	if r.config.LogPath == "" {
		return
	}
	dir := filepath.Dir(r.config.LogPath)
	base := filepath.Base(r.config.LogPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	des, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var archives []string
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if name == base {
			continue
		}
		if strings.HasPrefix(name, stem+"-") {
			archives = append(archives, name)
		}
	}
	sort.Strings(archives)

	for _, name := range archives {
		full := filepath.Join(dir, name)
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > r.config.ArchiveMaxAge {
			if err := os.Remove(full); err != nil {
				r.log.Warn("reaper: failed to remove expired log archive", "name", name, "error", err)
			}
		}
	}
}
