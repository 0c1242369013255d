package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mfpget/pkg/config"
	apperrors "mfpget/pkg/errors"
	"mfpget/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Initialize(&config.LoggingConfig{Level: "disabled"})
	os.Exit(m.Run())
}

// mockSite serves an index page, one subpage per episode and the mp3 files
// themselves, mirroring the layout of the real site
type mockSite struct {
	server *httptest.Server

	// episode ref -> mp3 filename
	episodes map[string]string
	// mp3 filename -> content
	files map[string][]byte
	// mp3 filename for the latest link on the index page
	latest string

	indexStatus int
	noEpisodes  bool

	pageRequests    atomic.Int32
	inFlightFiles   atomic.Int32
	maxInFlight     atomic.Int32
	transferDelay   time.Duration
	brokenFilenames map[string]bool
}

func newMockSite(t *testing.T) *mockSite {
	t.Helper()

	site := &mockSite{
		latest: "music_for_programming_3.mp3",
		episodes: map[string]string{
			"episode-two": "music_for_programming_2.mp3",
			"episode-one": "music_for_programming_1.mp3",
		},
		files: map[string][]byte{
			"music_for_programming_3.mp3": []byte("latest-mp3"),
			"music_for_programming_2.mp3": []byte("second-mp3"),
			"music_for_programming_1.mp3": []byte("first-mp3!"),
		},
		indexStatus:     http.StatusOK,
		brokenFilenames: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", site.handleIndex)
	mux.HandleFunc("/episode-one", site.handleEpisode)
	mux.HandleFunc("/episode-two", site.handleEpisode)
	mux.HandleFunc("/files/", site.handleFile)

	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)
	return site
}

func (s *mockSite) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.indexStatus != http.StatusOK {
		http.Error(w, "index unavailable", s.indexStatus)
		return
	}

	var b strings.Builder
	b.WriteString(`<html><body><div><div class="pad">`)
	fmt.Fprintf(&b, `<a href="/files/%s">latest</a>`, s.latest)
	b.WriteString(`</div></div>`)
	if !s.noEpisodes {
		b.WriteString(`<div id="episodes">`)
		// Stable order keeps assertions simple
		for _, ref := range []string{"episode-two", "episode-one"} {
			if _, ok := s.episodes[ref]; ok {
				fmt.Fprintf(&b, `<a href="%s">%s</a>`, ref, ref)
			}
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</body></html>`)
	io.WriteString(w, b.String())
}

func (s *mockSite) handleEpisode(w http.ResponseWriter, r *http.Request) {
	s.pageRequests.Add(1)
	filename := s.episodes[strings.TrimPrefix(r.URL.Path, "/")]
	fmt.Fprintf(w, `<html><body><div><div class="pad"><a href="/files/%s">download</a></div></div></body></html>`, filename)
}

func (s *mockSite) handleFile(w http.ResponseWriter, r *http.Request) {
	filename := strings.TrimPrefix(r.URL.Path, "/files/")
	if s.brokenFilenames[filename] {
		http.NotFound(w, r)
		return
	}
	content, ok := s.files[filename]
	if !ok {
		http.NotFound(w, r)
		return
	}

	n := s.inFlightFiles.Add(1)
	for {
		old := s.maxInFlight.Load()
		if n <= old || s.maxInFlight.CompareAndSwap(old, n) {
			break
		}
	}
	if s.transferDelay > 0 {
		time.Sleep(s.transferDelay)
	}
	s.inFlightFiles.Add(-1)

	w.Header().Set("Content-Length", fmt.Sprint(len(content)))
	w.Write(content)
}

func testConfig(site *mockSite, outputDir string, jobs int, latestOnly bool) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Site.BaseURL = site.server.URL
	cfg.Output.Directory = outputDir
	cfg.Download.Jobs = jobs
	cfg.Download.LatestOnly = latestOnly
	cfg.Logging.Level = "disabled"
	return cfg
}

func newTestScraper(t *testing.T, cfg *config.Config) *Scraper {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	s.SetProgressOutput(io.Discard)
	return s
}

func TestRunDownloadsAllEpisodes(t *testing.T) {
	site := newMockSite(t)
	dir := t.TempDir()

	s := newTestScraper(t, testConfig(site, dir, 2, false))
	require.NoError(t, s.Run(context.Background()))

	// Two listed episodes plus the latest alias
	for filename, content := range site.files {
		got, err := os.ReadFile(filepath.Join(dir, filename))
		require.NoError(t, err, filename)
		assert.Equal(t, content, got, filename)
	}
	assert.Equal(t, 3, s.Completed())
	assert.Equal(t, 0, s.Skipped())
}

func TestRunSkipsExistingFile(t *testing.T) {
	site := newMockSite(t)
	dir := t.TempDir()

	// 0-byte placeholder for one of the targets
	existing := filepath.Join(dir, "music_for_programming_1.mp3")
	require.NoError(t, os.WriteFile(existing, nil, 0644))

	s := newTestScraper(t, testConfig(site, dir, 2, false))
	require.NoError(t, s.Run(context.Background()))

	info, err := os.Stat(existing)
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "pre-existing file must stay untouched")

	for _, filename := range []string{"music_for_programming_2.mp3", "music_for_programming_3.mp3"} {
		got, err := os.ReadFile(filepath.Join(dir, filename))
		require.NoError(t, err)
		assert.Equal(t, site.files[filename], got)
	}

	assert.Equal(t, 2, s.Completed())
	assert.Equal(t, 1, s.Skipped())
}

func TestRunLatestOnly(t *testing.T) {
	site := newMockSite(t)
	dir := t.TempDir()

	s := newTestScraper(t, testConfig(site, dir, 2, true))
	require.NoError(t, s.Run(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "music_for_programming_3.mp3", entries[0].Name())

	assert.Zero(t, site.pageRequests.Load(), "latest-only mode must not touch episode subpages")
	assert.Equal(t, 1, s.Completed())
}

func TestRunFailsFastOnBrokenDownload(t *testing.T) {
	site := newMockSite(t)
	site.brokenFilenames["music_for_programming_1.mp3"] = true
	dir := t.TempDir()

	s := newTestScraper(t, testConfig(site, dir, 2, false))
	err := s.Run(context.Background())
	require.Error(t, err)

	var apperr *apperrors.Error
	require.ErrorAs(t, err, &apperr)
	assert.Equal(t, apperrors.ErrorTypeFetch, apperr.Type)
	assert.Equal(t, http.StatusNotFound, apperr.Code)
}

func TestRunFailsOnIndexError(t *testing.T) {
	site := newMockSite(t)
	site.indexStatus = http.StatusInternalServerError
	dir := t.TempDir()

	s := newTestScraper(t, testConfig(site, dir, 2, false))
	err := s.Run(context.Background())
	require.Error(t, err)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "a failed index fetch must not produce any files")
	assert.Zero(t, s.Completed())
}

func TestRunFailsWhenEpisodeListMissing(t *testing.T) {
	site := newMockSite(t)
	site.noEpisodes = true
	dir := t.TempDir()

	s := newTestScraper(t, testConfig(site, dir, 2, false))
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestRunCapsConcurrentTransfers(t *testing.T) {
	site := newMockSite(t)
	site.transferDelay = 30 * time.Millisecond
	// The spec scenario: capacity 2, three 10-byte files
	for filename, content := range site.files {
		require.Len(t, content, 10, filename)
	}
	dir := t.TempDir()

	s := newTestScraper(t, testConfig(site, dir, 2, false))
	require.NoError(t, s.Run(context.Background()))

	for filename := range site.files {
		info, err := os.Stat(filepath.Join(dir, filename))
		require.NoError(t, err)
		assert.EqualValues(t, 10, info.Size())
	}

	assert.LessOrEqual(t, site.maxInFlight.Load(), int32(2),
		"no more than two transfers may be in flight at once")
	assert.Equal(t, 3, s.Completed())
}

func TestNewRejectsInvalidJobs(t *testing.T) {
	site := newMockSite(t)
	cfg := testConfig(site, t.TempDir(), 0, false)

	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, apperrors.IsConfig(err))
}

func TestNewRejectsFileAsOutputDir(t *testing.T) {
	site := newMockSite(t)
	path := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := New(testConfig(site, path, 2, false))
	require.Error(t, err)
	assert.True(t, apperrors.IsConfig(err))
}
