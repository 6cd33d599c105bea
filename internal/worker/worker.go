package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"article-desk/internal/model"
	"article-desk/internal/outcome"
	"article-desk/internal/session"

	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Scraper defines the interface for downloading web pages.
// This allows us to mock the "Download" step in tests.
type Scraper interface {
	Scrape(url string, timeout time.Duration) (*readability.Article, error)
}

// DefaultScraper is the real implementation that uses the internet
type DefaultScraper struct{}

func (s *DefaultScraper) Scrape(url string, timeout time.Duration) (*readability.Article, error) {
	art, err := readability.FromURL(url, timeout)
	return &art, err
}

// Creator is the slice of the orchestrator the worker needs.
type Creator interface {
	CreateArticle(ctx context.Context, d model.Draft) outcome.Outcome
	SessionState() session.State
}

// Job is one article to create. When URL is set and Text is empty, the
// text (and a missing title) are drafted from the page.
type Job struct {
	Title string `yaml:"title"`
	Text  string `yaml:"text"`
	Topic string `yaml:"topic"`
	URL   string `yaml:"url"`
}

// Failure records a job that did not produce an article.
type Failure struct {
	Index   int
	Title   string
	Message string
}

type Report struct {
	Created []model.Article
	Failed  []Failure
	// Stopped is set when the session ended before the queue drained.
	Stopped bool
}

// LoadJobs reads a YAML list of jobs.
func LoadJobs(r io.Reader) ([]Job, error) {
	var jobs []Job
	if err := yaml.NewDecoder(r).Decode(&jobs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	for i, j := range jobs {
		if strings.TrimSpace(j.Text) == "" && strings.TrimSpace(j.URL) == "" {
			return nil, fmt.Errorf("job %d: either text or url is required", i+1)
		}
	}
	return jobs, nil
}

// Enqueue returns a closed channel holding jobs, ready for Start.
func Enqueue(jobs []Job) <-chan Job {
	ch := make(chan Job, len(jobs))
	for _, j := range jobs {
		ch <- j
	}
	close(ch)
	return ch
}

type Worker struct {
	creator Creator
	logger  *zap.Logger
	scraper Scraper
	timeout time.Duration
}

// NewWorker initializes the worker with the DefaultScraper
func NewWorker(creator Creator, logger *zap.Logger) *Worker {
	return &Worker{
		creator: creator,
		logger:  logger,
		scraper: &DefaultScraper{},
		timeout: 30 * time.Second,
	}
}

// Start processes jobs one at a time until the channel is closed, ctx is
// done, or the session ends.
func (w *Worker) Start(ctx context.Context, jobs <-chan Job) Report {
	w.logger.Info("Worker started. Waiting for jobs...")

	var report Report
	for i := 1; ; i++ {
		var job Job
		var ok bool
		select {
		case <-ctx.Done():
			w.logger.Info("Worker shutting down")
			report.Stopped = true
			return report
		case job, ok = <-jobs:
		}
		if !ok {
			return report
		}

		if w.creator.SessionState() != session.Authenticated {
			w.logger.Warn("Session ended, leaving remaining jobs", zap.Int("next_job", i))
			report.Stopped = true
			return report
		}

		w.processJob(ctx, i, job, &report)
	}
}

func (w *Worker) processJob(ctx context.Context, index int, job Job, report *Report) {
	logger := w.logger.With(zap.Int("job", index))
	logger.Info("Processing started")

	draft, err := w.draft(job)
	if err != nil {
		logger.Error("Drafting failed", zap.Error(err))
		report.Failed = append(report.Failed, Failure{Index: index, Title: job.Title, Message: err.Error()})
		return
	}

	out := w.creator.CreateArticle(ctx, draft)
	if !out.OK() {
		logger.Warn("Create failed", zap.Stringer("outcome", out.Kind), zap.String("message", out.Message))
		report.Failed = append(report.Failed, Failure{Index: index, Title: draft.Title, Message: out.Message})
		return
	}

	report.Created = append(report.Created, *out.Data.Article)
	logger.Info("Article created", zap.Int("article_id", out.Data.Article.ID), zap.String("title", draft.Title))
}

func (w *Worker) draft(job Job) (model.Draft, error) {
	d := model.Draft{Title: job.Title, Text: job.Text, Topic: job.Topic}
	if d.Text != "" || job.URL == "" {
		return d, nil
	}

	w.logger.Info("Downloading", zap.String("url", job.URL))
	page, err := w.scraper.Scrape(job.URL, w.timeout)
	if err != nil {
		return d, fmt.Errorf("scrape %s: %w", job.URL, err)
	}

	d.Text = strings.TrimSpace(page.Excerpt)
	if d.Text == "" {
		return d, fmt.Errorf("scrape %s: page has no readable summary", job.URL)
	}
	if d.Title == "" {
		d.Title = strings.TrimSpace(page.Title)
	}
	return d, nil
}
