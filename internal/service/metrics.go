package service

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jjenkins/lawarchive/internal/store"
)

var (
	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lawarchive_ingest_total",
		Help: "Documents ingested, by outcome.",
	}, []string{"outcome"})

	ingestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lawarchive_ingest_duration_seconds",
		Help:    "Time to parse and store one document.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	ingestSections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lawarchive_ingest_sections_total",
		Help: "Sections stored by ingestion.",
	})

	ingestCitations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lawarchive_ingest_citations_total",
		Help: "Citations extracted by ingestion, by resolution.",
	}, []string{"resolved"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lawarchive_query_duration_seconds",
		Help:    "Archive query latency by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	queryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lawarchive_query_errors_total",
		Help: "Archive query failures by operation.",
	}, []string{"op"})

	fetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lawarchive_fetch_retries_total",
		Help: "HTTP fetch attempts that were retried.",
	})
)

// StatsService calculates archive-wide figures
type StatsService struct {
	backend store.Backend
}

// NewStatsService creates a new StatsService
func NewStatsService(backend store.Backend) *StatsService {
	return &StatsService{backend: backend}
}

// SystemStats represents calculated archive-wide figures
type SystemStats struct {
	TotalTitles          int     `json:"total_titles"`
	TotalSections        int     `json:"total_sections"`
	AverageSections      float64 `json:"average_sections"`
	LargestTitle         string  `json:"largest_title"`
	LargestTitleSections int     `json:"largest_title_sections"`
}

// Calculate summarises the current versions of every title
func (m *StatsService) Calculate(ctx context.Context) (*SystemStats, error) {
	titles, err := m.backend.ListTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate title stats: %w", err)
	}

	stats := &SystemStats{TotalTitles: len(titles)}
	for _, t := range titles {
		stats.TotalSections += t.SectionCount
		if t.SectionCount > stats.LargestTitleSections {
			stats.LargestTitleSections = t.SectionCount
			stats.LargestTitle = titleLabel(t.Number, t.Name)
		}
	}

	if stats.TotalTitles > 0 {
		stats.AverageSections = float64(stats.TotalSections) / float64(stats.TotalTitles)
	}

	return stats, nil
}

func titleLabel(number int, name string) string {
	if name == "" {
		return fmt.Sprintf("Title %d", number)
	}
	return fmt.Sprintf("Title %d: %s", number, name)
}
