package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/ports"
)

// Reporter summarizes a day's terminal run outcomes.
type Reporter struct {
	ledger   ports.OutcomeLedger
	notifier ports.Notifier
	loc      *time.Location
	logger   *slog.Logger
}

// NewReporter wires the outcome ledger and an optional notifier.
func NewReporter(ledger ports.OutcomeLedger, notifier ports.Notifier, loc *time.Location, logger *slog.Logger) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{ledger: ledger, notifier: notifier, loc: loc, logger: logger.With("component", "reporter")}
}

// Build aggregates the outcomes of day per site.
func (r *Reporter) Build(ctx context.Context, day domain.DayKey) (domain.DailyReport, error) {
	outcomes, err := r.ledger.OutcomesForDay(ctx, day)
	if err != nil {
		return domain.DailyReport{}, fmt.Errorf("load outcomes %s: %w", day, err)
	}

	bySite := map[string]*domain.SiteReport{}
	for _, o := range outcomes {
		sr, ok := bySite[o.Site]
		if !ok {
			sr = &domain.SiteReport{Site: o.Site}
			bySite[o.Site] = sr
		}
		sr.Total++
		switch {
		case o.State == domain.RunSuccess:
			sr.Success++
			if o.URL != "" {
				sr.URLs = append(sr.URLs, o.URL)
			}
		case o.State.Skipped():
			sr.Skipped++
		default:
			sr.Failed++
		}
	}

	report := domain.DailyReport{Day: day}
	for _, sr := range bySite {
		report.Sites = append(report.Sites, *sr)
	}
	sort.Slice(report.Sites, func(i, j int) bool { return report.Sites[i].Site < report.Sites[j].Site })
	return report, nil
}

// Report builds the report for the day containing now, logs it, and sends the digest.
func (r *Reporter) Report(ctx context.Context, now time.Time) (domain.DailyReport, error) {
	report, err := r.Build(ctx, domain.DayKeyOf(now, r.loc))
	if err != nil {
		return report, err
	}

	for _, s := range report.Sites {
		r.logger.Info("daily report", "day", report.Day.String(), "site", s.Site,
			"total", s.Total, "success", s.Success, "failed", s.Failed, "skipped", s.Skipped)
	}

	if r.notifier == nil || len(report.Sites) == 0 {
		return report, nil
	}
	if err := r.notifier.PublishDigest(ctx, FormatReport(report)); err != nil {
		return report, fmt.Errorf("send report: %w", err)
	}
	return report, nil
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// FormatReport renders a Telegram Markdown digest. Site keys and URLs are
// escaped so underscores do not open italics.
func FormatReport(report domain.DailyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Daily report %s*\n\n", report.Day)
	for _, s := range report.Sites {
		fmt.Fprintf(&b, "*%s*: %d runs, %d published, %d failed, %d skipped\n",
			markdownEscaper.Replace(s.Site), s.Total, s.Success, s.Failed, s.Skipped)
		for _, url := range s.URLs {
			fmt.Fprintf(&b, "- %s\n", markdownEscaper.Replace(url))
		}
	}
	t := report.Totals()
	fmt.Fprintf(&b, "\nTotal: %d published / %d runs", t.Success, t.Total)
	return b.String()
}
