// Package cache keeps exported slide images and notes on disk, keyed by content.
//
// A Store is one directory per presentation fingerprint holding <n>.jpg,
// optional <n>.txt and a manifest of "slideNumber;fingerprint" lines. The
// Orchestrator drives cache passes over a presentation and regenerates only
// the slides whose fingerprint changed.
package cache

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/smorand/slides-mirror/internal/fingerprint"
)

// Sentinel errors for the cache store.
var (
	ErrCreateDirectory = errors.New("failed to create cache directory")
	ErrInvalidSlide    = errors.New("invalid slide number")
	ErrWriteArtifact   = errors.New("failed to write cache artifact")
)

const (
	manifestFile  = "manifest"
	imageExt      = ".jpg"
	notesExt      = ".txt"
	fieldSep      = ";"
	filePerm      = 0o644
	directoryPerm = 0o755
)

var imageName = regexp.MustCompile(`^[0-9]+\` + imageExt + `$`)

// StoreOptions configures a Store.
type StoreOptions struct {
	// TrackFingerprints selects manifest-based validity. When false the store
	// runs in existence-only mode: a slide is cached iff its image file exists.
	TrackFingerprints bool
	Logger            *slog.Logger
}

// Store is the on-disk cache of one presentation fingerprint.
type Store struct {
	dir     string
	opts    StoreOptions
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[int]fingerprint.Slide
}

// Open ensures dir exists and loads its manifest. Entries whose image is
// missing on disk are discarded; malformed manifest lines are skipped.
func Open(dir string, opts StoreOptions) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(dir, directoryPerm); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCreateDirectory, dir, err)
	}

	s := &Store{
		dir:     dir,
		opts:    opts,
		logger:  opts.Logger,
		entries: make(map[int]fingerprint.Slide),
	}
	if err := s.loadManifest(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadManifest() error {
	data, err := os.ReadFile(filepath.Join(s.dir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, fp, ok := parseManifestLine(line)
		if !ok {
			s.logger.Debug("skipping malformed manifest line",
				slog.String("dir", s.dir),
				slog.Int("line", lineNo),
			)
			continue
		}
		if !s.imageExists(n) {
			s.logger.Debug("dropping manifest entry without image",
				slog.String("dir", s.dir),
				slog.Int("slide", n),
			)
			continue
		}
		s.entries[n] = fp
	}
	return scanner.Err()
}

func parseManifestLine(line string) (int, fingerprint.Slide, bool) {
	num, fp, found := strings.Cut(line, fieldSep)
	if !found {
		return 0, "", false
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n < 1 {
		return 0, "", false
	}
	fp = strings.TrimSpace(fp)
	if fp == "" || strings.Contains(fp, fieldSep) {
		return 0, "", false
	}
	return n, fingerprint.Slide(fp), true
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// TracksFingerprints reports whether the store validates by content hash.
func (s *Store) TracksFingerprints() bool {
	return s.opts.TrackFingerprints
}

// ImagePath returns the path of slide n's image artifact.
func (s *Store) ImagePath(n int) string {
	return filepath.Join(s.dir, strconv.Itoa(n)+imageExt)
}

// NotesPath returns the path of slide n's notes artifact.
func (s *Store) NotesPath(n int) string {
	return filepath.Join(s.dir, strconv.Itoa(n)+notesExt)
}

func (s *Store) imageExists(n int) bool {
	info, err := os.Stat(s.ImagePath(n))
	return err == nil && info.Mode().IsRegular()
}

// IsSlideCached reports whether slide n has a usable image.
func (s *Store) IsSlideCached(n int) bool {
	if !s.opts.TrackFingerprints {
		return s.imageExists(n)
	}
	s.mu.RLock()
	_, ok := s.entries[n]
	s.mu.RUnlock()
	return ok && s.imageExists(n)
}

// IsSlideValid reports whether the manifest holds fp for slide n and its
// image is still on disk.
func (s *Store) IsSlideValid(n int, fp fingerprint.Slide) bool {
	s.mu.RLock()
	cached, ok := s.entries[n]
	s.mu.RUnlock()
	return ok && cached == fp && s.imageExists(n)
}

// Fingerprint returns the recorded fingerprint of slide n.
func (s *Store) Fingerprint(n int) (fingerprint.Slide, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.entries[n]
	return fp, ok
}

// StoreImage writes slide n's image in a single rename so readers never see
// a partial file.
func (s *Store) StoreImage(n int, data []byte) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidSlide, n)
	}
	if err := writeFileAtomic(s.ImagePath(n), data); err != nil {
		return fmt.Errorf("%w: slide %d image: %v", ErrWriteArtifact, n, err)
	}
	return nil
}

// StoreNotes writes slide n's notes, newline-normalized. present=false means
// the slide has no notes: any previous notes file is removed rather than
// replaced by an empty placeholder.
func (s *Store) StoreNotes(n int, text string, present bool) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidSlide, n)
	}
	path := s.NotesPath(n)
	if !present {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: slide %d notes: %v", ErrWriteArtifact, n, err)
		}
		return nil
	}
	if err := writeFileAtomic(path, []byte(normalizeNewlines(text, lineSeparator))); err != nil {
		return fmt.Errorf("%w: slide %d notes: %v", ErrWriteArtifact, n, err)
	}
	return nil
}

// Notes returns slide n's cached notes and whether a notes file exists.
func (s *Store) Notes(n int) (string, bool, error) {
	data, err := os.ReadFile(s.NotesPath(n))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read notes for slide %d: %w", n, err)
	}
	return string(data), true, nil
}

// HasNotes reports whether slide n has a notes artifact.
func (s *Store) HasNotes(n int) bool {
	_, err := os.Stat(s.NotesPath(n))
	return err == nil
}

// RecordFingerprint updates the in-memory manifest. Call Flush to persist.
func (s *Store) RecordFingerprint(n int, fp fingerprint.Slide) {
	s.mu.Lock()
	s.entries[n] = fp
	s.mu.Unlock()
}

// Truncate forgets manifest entries above total and removes their artifacts.
// In existence-only mode the directory is scanned for numbered artifacts.
func (s *Store) Truncate(total int) {
	s.mu.Lock()
	var stale []int
	for n := range s.entries {
		if n > total {
			stale = append(stale, n)
			delete(s.entries, n)
		}
	}
	s.mu.Unlock()

	if !s.opts.TrackFingerprints {
		stale = s.artifactsAbove(total)
	}

	for _, n := range stale {
		os.Remove(s.ImagePath(n))
		os.Remove(s.NotesPath(n))
	}
}

// Len returns the number of manifest entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Flush writes the manifest to disk, one "slideNumber;fingerprint" line per
// cached slide in ascending order.
func (s *Store) Flush() error {
	if !s.opts.TrackFingerprints {
		return nil
	}

	s.mu.RLock()
	numbers := make([]int, 0, len(s.entries))
	for n := range s.entries {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	var buf bytes.Buffer
	for _, n := range numbers {
		buf.WriteString(strconv.Itoa(n))
		buf.WriteString(fieldSep)
		buf.WriteString(string(s.entries[n]))
		buf.WriteByte('\n')
	}
	s.mu.RUnlock()

	if err := writeFileAtomic(filepath.Join(s.dir, manifestFile), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	s.logger.Debug("manifest flushed",
		slog.String("dir", s.dir),
		slog.Int("entries", len(numbers)),
	)
	return nil
}

// IsComplete reports whether exactly totalSlides slides are cached.
func (s *Store) IsComplete(totalSlides int) bool {
	if !s.opts.TrackFingerprints {
		return s.countImages() == totalSlides
	}

	s.mu.RLock()
	numbers := make([]int, 0, len(s.entries))
	for n := range s.entries {
		numbers = append(numbers, n)
	}
	s.mu.RUnlock()

	if len(numbers) != totalSlides {
		return false
	}
	for _, n := range numbers {
		if !s.imageExists(n) {
			return false
		}
	}
	return true
}

// artifactsAbove returns the slide numbers above total that have an image or
// notes file on disk.
func (s *Store) artifactsAbove(total int) []int {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	seen := make(map[int]bool)
	var numbers []int
	for _, e := range dirEntries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext != imageExt && ext != notesExt {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ext))
		if err != nil || n <= total || seen[n] {
			continue
		}
		seen[n] = true
		numbers = append(numbers, n)
	}
	return numbers
}

func (s *Store) countImages() int {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range dirEntries {
		if e.Type().IsRegular() && imageName.MatchString(e.Name()) {
			count++
		}
	}
	return count
}

// reset drops the in-memory manifest after the directory has been removed.
func (s *Store) reset() {
	s.mu.Lock()
	s.entries = make(map[int]fingerprint.Slide)
	s.mu.Unlock()
}

// writeFileAtomic writes data to a temp file next to path and renames it into
// place. The parent directory is recreated if a full clear removed it.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, directoryPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
