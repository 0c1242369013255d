package scraper

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"mfpget/internal/downloader"
	"mfpget/pkg/config"
	"mfpget/pkg/logger"
	"mfpget/pkg/mfp"
	"mfpget/pkg/resolver"
	"mfpget/pkg/storage"
	"mfpget/pkg/ui"
)

// Scraper orchestrates the episode download pipeline: fetch the index,
// resolve the latest episode's file URL plus every listed episode's subpage,
// then run one download task per episode through the slot pool.
type Scraper struct {
	client   *mfp.Client
	resolver *resolver.Resolver
	store    *storage.Manager
	pool     *downloader.SlotPool
	config   *config.Config
	logger   logger.Logger

	progressOut io.Writer

	completed atomic.Int64
	skipped   atomic.Int64
}

// New creates a Scraper. All configuration failures surface here, before any
// network activity.
func New(cfg *config.Config) (*Scraper, error) {
	log := logger.GetLogger()

	client, err := mfp.NewClient(cfg.Site.BaseURL, cfg.Site.UserAgent, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewManager(cfg.Output.Directory)
	if err != nil {
		return nil, err
	}

	pool, err := downloader.NewSlotPool(cfg.Download.Jobs)
	if err != nil {
		return nil, err
	}

	return &Scraper{
		client:      client,
		resolver:    resolver.New(),
		store:       store,
		pool:        pool,
		config:      cfg,
		logger:      log,
		progressOut: os.Stdout,
	}, nil
}

// SetProgressOutput redirects the progress display, primarily for tests
func (s *Scraper) SetProgressOutput(w io.Writer) {
	s.progressOut = w
}

// Completed returns how many transfers finished with a full write
func (s *Scraper) Completed() int {
	return int(s.completed.Load())
}

// Skipped returns how many transfers were skipped over existing files
func (s *Scraper) Skipped() int {
	return int(s.skipped.Load())
}

// Run executes the whole pipeline. The first task failure decides the run's
// result; remaining tasks see the group context cancelled and unwind through
// their deferred slot releases.
func (s *Scraper) Run(ctx context.Context) error {
	s.logger.WithField("url", s.client.BaseURL()).Info("fetching index page")

	index, err := s.client.FetchPage(ctx, s.client.BaseURL())
	if err != nil {
		return err
	}

	latestURL, err := s.resolver.FileURL(index)
	if err != nil {
		return err
	}

	var refs []string
	if !s.config.Download.LatestOnly {
		refs, err = s.resolver.EpisodeLinks(index)
		if err != nil {
			return err
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"episodes": len(refs),
		"jobs":     s.pool.Capacity(),
	}).Info("starting downloads")

	display := ui.NewDisplay(s.pool, s.progressOut)
	display.Start()
	defer display.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.download(gctx, latestURL)
	})

	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			return s.fetchEpisode(gctx, ref)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"completed": s.Completed(),
		"skipped":   s.Skipped(),
	}).Info("all downloads finished")

	return nil
}

// fetchEpisode resolves one listed episode's subpage to its file URL and
// downloads it. Resolution is not gated by the slot pool; only the transfer
// phase is.
func (s *Scraper) fetchEpisode(ctx context.Context, ref string) error {
	pageURL := s.client.ResolveURL(ref)

	page, err := s.client.FetchPage(ctx, pageURL)
	if err != nil {
		return err
	}

	fileURL, err := s.resolver.FileURL(page)
	if err != nil {
		s.logger.WithError(err).WithField("page", pageURL).Error("no file link on episode page")
		return err
	}

	return s.download(ctx, fileURL)
}

// download runs one transfer under a pool slot. The lease is released on
// every exit path by the deferred call.
func (s *Scraper) download(ctx context.Context, fileURL string) error {
	fileURL = s.client.ResolveURL(fileURL)

	dest, err := s.store.PathFor(fileURL)
	if err != nil {
		return err
	}

	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	resp, err := s.client.Get(ctx, fileURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	outcome, err := downloader.Transfer(resp.Body, resp.ContentLength, dest, lease)

	log := s.logger.WithFields(map[string]interface{}{
		"file": dest,
		"slot": lease.Index(),
	})
	switch outcome {
	case downloader.OutcomeCompleted:
		s.completed.Add(1)
		log.WithField("bytes", resp.ContentLength).Info("download completed")
	case downloader.OutcomeSkipped:
		s.skipped.Add(1)
		log.Info("file already exists, skipping")
	case downloader.OutcomeFailed:
		log.WithError(err).Error("download failed")
	}

	return err
}
