// Package analytics aggregates daily outreach counters. Recomputing a
// day overwrites the stored values, so a re-run after late data is
// deterministic rather than additive.
package analytics

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Metric names persisted per day.
const (
	MetricCompaniesScraped  = "companies_scraped"
	MetricCompaniesEnriched = "companies_enriched"
	MetricEmailsSent        = "emails_sent"
	MetricResponsesReceived = "responses_received"
)

// Report holds the computed counters for one UTC day. ResponsesReceived
// counts responses among threads sent that day, so ResponseRate is a
// per-cohort rate, not a same-day-reply rate.
type Report struct {
	Day               time.Time `json:"day"`
	CompaniesScraped  int       `json:"companies_scraped"`
	CompaniesEnriched int       `json:"companies_enriched"`
	EmailsSent        int       `json:"emails_sent"`
	ResponsesReceived int       `json:"responses_received"`
	ResponseRate      float64   `json:"response_rate"`
}

// Aggregator computes and persists daily metrics.
type Aggregator struct {
	store store.Store
	log   *zap.Logger
}

func New(st store.Store) *Aggregator {
	return &Aggregator{store: st, log: zap.L().Named("analytics")}
}

// ComputeDay runs the counters for one day without persisting.
func (a *Aggregator) ComputeDay(ctx context.Context, day time.Time) (*Report, error) {
	day = day.UTC()

	scraped, err := a.store.CountCompaniesScrapedOn(ctx, day)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: count scraped")
	}
	enriched, err := a.store.CountCompaniesEnrichedOn(ctx, day)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: count enriched")
	}
	sent, err := a.store.CountThreadsSentOn(ctx, day)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: count sent")
	}
	responses, err := a.store.CountResponsesForThreadsSentOn(ctx, day)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: count responses")
	}

	report := &Report{
		Day:               day,
		CompaniesScraped:  scraped,
		CompaniesEnriched: enriched,
		EmailsSent:        sent,
		ResponsesReceived: responses,
	}
	if sent > 0 {
		report.ResponseRate = float64(responses) / float64(sent)
	}
	return report, nil
}

// PersistDay computes one day's counters and upserts them. Running it
// again for the same day replaces the stored values.
func (a *Aggregator) PersistDay(ctx context.Context, day time.Time) (*Report, error) {
	report, err := a.ComputeDay(ctx, day)
	if err != nil {
		return nil, err
	}

	metrics := []model.DailyMetric{
		{Day: report.Day, Name: MetricCompaniesScraped, Value: report.CompaniesScraped},
		{Day: report.Day, Name: MetricCompaniesEnriched, Value: report.CompaniesEnriched},
		{Day: report.Day, Name: MetricEmailsSent, Value: report.EmailsSent},
		{Day: report.Day, Name: MetricResponsesReceived, Value: report.ResponsesReceived},
	}
	for _, m := range metrics {
		if err := a.store.UpsertDailyMetric(ctx, m); err != nil {
			return nil, eris.Wrapf(err, "analytics: upsert %s", m.Name)
		}
	}

	a.log.Info("daily metrics persisted",
		zap.Time("day", report.Day),
		zap.Int("scraped", report.CompaniesScraped),
		zap.Int("enriched", report.CompaniesEnriched),
		zap.Int("sent", report.EmailsSent),
		zap.Int("responses", report.ResponsesReceived))
	return report, nil
}

// LoadDay returns the persisted metrics for one day.
func (a *Aggregator) LoadDay(ctx context.Context, day time.Time) ([]model.DailyMetric, error) {
	return a.store.ListDailyMetrics(ctx, day.UTC())
}
