// Package reportsync implements the Report Synchronizer (C7): syncing a
// validated IncrementalMechanismV1's reports into an external document
// database (Notion), keyed by the natural key (dimension, period), with a
// CJK-title-preferring keeper selection among duplicates and a quality gate
// stricter than the Contract Validator's structural check (§4.1, §4.6.3).
package reportsync

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mechanismctl/diagnose/internal/mechanism"
	"github.com/mechanismctl/diagnose/internal/notiondb"
)

var cjkPattern = regexp.MustCompile(`[\x{4e00}-\x{9fff}]`)

func containsCJK(text string) bool {
	return cjkPattern.MatchString(text)
}

// naturalKey is the (dimension, period) pair a report upserts against.
type naturalKey struct {
	dimension string
	period    string
}

func reportKey(r mechanism.Report, env mechanism.IncrementalMechanism) naturalKey {
	return naturalKey{dimension: r.Dimension, period: env.EffectivePeriod(r)}
}

// indexedPage is one Notion page grouped under a natural key while
// selecting the keeper.
type indexedPage struct {
	id          string
	title       string
	keyInsights string
	sortKey     string
	isCJK       bool
}

// Duplicate is a page slated for archival because a newer/CJK-preferred
// page already occupies its natural key.
type Duplicate struct {
	PageID string
	Key    string
	Title  string
}

// BuildIndexAndDuplicates queries dbID's existing pages and groups them by
// (Dimension, Period) property values, keeping one "keeper" per key and
// flagging the rest for archival (§4.6.3 dedup rule): among pages sharing a
// key, a page whose title or key insights contains CJK text is preferred;
// ties (and the no-CJK case) break on most-recently-edited.
func BuildIndexAndDuplicates(ctx context.Context, client *notiondb.Client, dbID string) (map[string]string, []Duplicate, error) {
	pages, err := client.QueryDatabase(ctx, dbID, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("query analysis reports database: %w", err)
	}

	grouped := make(map[naturalKey][]indexedPage)
	for _, page := range pages {
		dim := selectName(page.Properties["Dimension"])
		period := selectName(page.Properties["Period"])
		if dim == "" || period == "" {
			continue
		}
		if page.ID == "" {
			continue
		}
		title := notiondb.PlainTextProperty(asMap(page.Properties["Title"]))
		insights := notiondb.PlainTextProperty(asMap(page.Properties["Key Insights"]))
		key := naturalKey{dimension: dim, period: period}
		grouped[key] = append(grouped[key], indexedPage{
			id:          page.ID,
			title:       title,
			keyInsights: insights,
			sortKey:     pageSortKey(page),
			isCJK:       containsCJK(title) || containsCJK(insights),
		})
	}

	index := make(map[string]string, len(grouped))
	var duplicates []Duplicate
	for key, items := range grouped {
		pool := items
		var cjkItems []indexedPage
		for _, item := range items {
			if item.isCJK {
				cjkItems = append(cjkItems, item)
			}
		}
		if len(cjkItems) > 0 {
			pool = cjkItems
		}
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].sortKey > pool[j].sortKey })
		keeper := pool[0]
		index[naturalKeyString(key)] = keeper.id

		for _, item := range items {
			if item.id != keeper.id {
				duplicates = append(duplicates, Duplicate{
					PageID: item.id,
					Key:    naturalKeyString(key),
					Title:  item.title,
				})
			}
		}
	}
	return index, duplicates, nil
}

func naturalKeyString(k naturalKey) string {
	return k.dimension + "|" + k.period
}

func selectName(prop any) string {
	m, ok := prop.(map[string]any)
	if !ok {
		return ""
	}
	sel, ok := m["select"].(map[string]any)
	if !ok {
		return ""
	}
	name, _ := sel["name"].(string)
	return strings.TrimSpace(name)
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func pageSortKey(page notiondb.Page) string {
	if page.LastEditedTime != "" {
		return page.LastEditedTime
	}
	return page.CreatedTime
}

// ArchiveDuplicates archives every duplicate page, returning the count
// archived and failed; a failed archive is reported but does not stop
// processing the rest.
func ArchiveDuplicates(ctx context.Context, client *notiondb.Client, duplicates []Duplicate, logger *slog.Logger) (archived, failed int) {
	for _, dup := range duplicates {
		if err := client.ArchivePage(ctx, dup.PageID); err != nil {
			failed++
			logger.Error("failed to archive duplicate report page", "page_id", dup.PageID, "key", dup.Key, "error", err)
			continue
		}
		archived++
	}
	return archived, failed
}

// WriteReport upserts one report into db via the existing natural-key
// index, clearing and rewriting the page body on update so stale detail
// lines never survive alongside fresh ones.
func WriteReport(ctx context.Context, client *notiondb.Client, dbID string, report mechanism.Report, env mechanism.IncrementalMechanism, index map[string]string) error {
	props := map[string]any{
		"Title":                  notiondb.TitleProperty(report.Title),
		"Dimension":              notiondb.SelectProperty(report.Dimension),
		"Layer":                  notiondb.SelectProperty(report.Layer),
		"Period":                 notiondb.SelectProperty(env.EffectivePeriod(report)),
		"Key Insights":           notiondb.RichTextProperty(report.KeyInsights),
		"Conversations Analyzed": notiondb.NumberProperty(float64(env.Coverage.SessionsWithMechanism)),
	}
	if report.Date != "" {
		props["Date"] = notiondb.DateProperty(report.Date)
	}

	children := buildReportChildren(report)
	key := naturalKeyString(reportKey(report, env))

	if existingID, ok := index[key]; ok && existingID != "" {
		if _, err := client.UpdatePage(ctx, existingID, props); err != nil {
			return fmt.Errorf("update report page %s: %w", existingID, err)
		}
		if err := client.ClearPage(ctx, existingID); err != nil {
			return fmt.Errorf("clear report page %s: %w", existingID, err)
		}
		if len(children) > 0 {
			if err := client.AppendBlocks(ctx, existingID, children); err != nil {
				return fmt.Errorf("append report body %s: %w", existingID, err)
			}
		}
		return nil
	}

	created, err := client.CreatePage(ctx, dbID, props, children)
	if err != nil {
		return fmt.Errorf("create report page: %w", err)
	}
	if created.ID != "" {
		index[key] = created.ID
	}
	return nil
}

// buildReportChildren lays out a report's body: an H3 "摘要" (summary)
// section, a divider, then an H3 "详细洞察" (detailed insight) section
// rendered as a bulleted list (or a single paragraph when no detail_lines
// survived normalization) (§4.6.3).
func buildReportChildren(report mechanism.Report) []map[string]any {
	var blocks []map[string]any
	if report.KeyInsights != "" {
		blocks = append(blocks, notiondb.Heading("摘要", 3))
		blocks = append(blocks, notiondb.Paragraph(report.KeyInsights))
	}
	blocks = append(blocks, notiondb.Divider())
	blocks = append(blocks, notiondb.Heading("详细洞察", 3))

	if len(report.DetailLines) > 0 {
		for _, line := range report.DetailLines {
			if strings.TrimSpace(line) != "" {
				blocks = append(blocks, notiondb.BulletedListItem(line))
			}
		}
	} else if report.DetailText != "" {
		blocks = append(blocks, notiondb.Paragraph(report.DetailText))
	} else {
		blocks = append(blocks, notiondb.Paragraph("暂无可展开的详细洞察。"))
	}
	return blocks
}

// Result summarizes one SyncReports run.
type Result struct {
	ExitCode           int
	Written            int
	Total              int
	DuplicatesArchived int
	DuplicatesFailed   int
	QualityReasons     []string
}

// SyncReports validates env's contract and quality gate, archives
// superseded duplicate pages, and upserts every report (§4.6.3). A quality
// gate failure or an archive failure both cause a non-zero exit without
// attempting the upsert pass.
func SyncReports(ctx context.Context, client *notiondb.Client, dbID string, raw mechanism.RawObject, env mechanism.IncrementalMechanism, dryRun bool, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if errs := mechanism.ValidateIncrementalMechanism(raw); len(errs) > 0 {
		return Result{ExitCode: 1, QualityReasons: errs}, nil
	}

	ok, reasons := EvaluateQuality(env)
	if !ok {
		return Result{ExitCode: 1, QualityReasons: reasons}, nil
	}

	if dryRun {
		logger.Info("sync-reports dry run", "reports", len(env.Reports))
		return Result{ExitCode: 0, Total: len(env.Reports)}, nil
	}

	index, duplicates, err := BuildIndexAndDuplicates(ctx, client, dbID)
	if err != nil {
		return Result{ExitCode: 1}, err
	}

	result := Result{Total: len(env.Reports)}
	if len(duplicates) > 0 {
		archived, failed := ArchiveDuplicates(ctx, client, duplicates, logger)
		result.DuplicatesArchived = archived
		result.DuplicatesFailed = failed
		logger.Info("sync-reports archived duplicate pages", "archived", archived, "failed", failed)
		if failed > 0 {
			result.ExitCode = 1
			return result, nil
		}
	}

	for _, report := range env.Reports {
		if err := WriteReport(ctx, client, dbID, report, env, index); err != nil {
			logger.Error("failed to write report", "title", report.Title, "error", err)
			continue
		}
		result.Written++
	}

	if result.Written != result.Total {
		result.ExitCode = 1
	}
	return result, nil
}

// EvaluateQuality re-checks env's reports against the stricter C7 bar: no
// placeholder title/insights, at least one non-placeholder detail line, and
// each report's key_insights plus its first 8 non-placeholder detail lines
// must carry mechanism language (hypothesis/trigger/action/validation
// vocabulary), not just a statistics dump.
func EvaluateQuality(env mechanism.IncrementalMechanism) (bool, []string) {
	var reasons []string
	if len(env.Reports) == 0 {
		return false, []string{"no valid skill-authored reports found"}
	}

	for idx, report := range env.Reports {
		if mechanism.HasPlaceholderToken(report.Title) {
			reasons = append(reasons, "reports["+strconv.Itoa(idx)+"] title looks placeholder")
		}
		if mechanism.HasPlaceholderToken(report.KeyInsights) {
			reasons = append(reasons, "reports["+strconv.Itoa(idx)+"] key_insights looks placeholder")
		}

		var nonPlaceholder []string
		for _, line := range report.DetailLines {
			if !mechanism.HasPlaceholderToken(line) {
				nonPlaceholder = append(nonPlaceholder, line)
			}
		}
		if len(nonPlaceholder) == 0 {
			reasons = append(reasons, "reports["+strconv.Itoa(idx)+"] detail lines are empty or placeholder-only")
			continue
		}

		probeLines := nonPlaceholder
		if len(probeLines) > 8 {
			probeLines = probeLines[:8]
		}
		probe := report.KeyInsights + " " + strings.Join(probeLines, " ")
		if !mechanism.HasMechanismLanguage(probe) {
			reasons = append(reasons, "reports["+strconv.Itoa(idx)+"] lacks mechanism/action language; avoid statistics-only summary")
		}
	}

	return len(reasons) == 0, reasons
}
