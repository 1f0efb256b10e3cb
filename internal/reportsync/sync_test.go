package reportsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mechanismctl/diagnose/internal/mechanism"
	"github.com/mechanismctl/diagnose/internal/notiondb"
)

func validEnv() mechanism.IncrementalMechanism {
	return mechanism.IncrementalMechanism{
		SchemaVersion: mechanism.IncrementalMechanismSchemaVersion,
		PeriodID:      "2026-W30",
		Coverage:      mechanism.Coverage{SessionsTotal: 10, SessionsWithMechanism: 8},
		Reports: []mechanism.Report{
			{
				Dimension:   "incremental-root-causes",
				Layer:       "L3",
				Title:       "cache invalidation root cause",
				KeyInsights: "stale cache entries trigger repeated build failures",
				DetailLines: []string{"hypothesis: trigger is a missed invalidation", "action: add a validation step after cache writes"},
			},
		},
	}
}

func TestEvaluateQuality_AcceptsMechanisticReport(t *testing.T) {
	ok, reasons := EvaluateQuality(validEnv())
	if !ok {
		t.Fatalf("expected quality gate to pass, got reasons: %v", reasons)
	}
}

func TestEvaluateQuality_RejectsPlaceholderTitle(t *testing.T) {
	env := validEnv()
	env.Reports[0].Title = "placeholder"
	ok, reasons := EvaluateQuality(env)
	if ok {
		t.Fatalf("expected quality gate to reject a placeholder title")
	}
	if len(reasons) == 0 {
		t.Fatalf("expected a reason for the rejection")
	}
}

func TestEvaluateQuality_RejectsStatisticsOnlyDetail(t *testing.T) {
	env := validEnv()
	env.Reports[0].KeyInsights = "12 sessions this week"
	env.Reports[0].DetailLines = []string{"12 sessions observed", "3 of them failed"}
	ok, _ := EvaluateQuality(env)
	if ok {
		t.Fatalf("expected quality gate to reject detail lines without mechanism language")
	}
}

func TestEvaluateQuality_RejectsEmptyReports(t *testing.T) {
	ok, reasons := EvaluateQuality(mechanism.IncrementalMechanism{})
	if ok {
		t.Fatalf("expected quality gate to reject an empty report set")
	}
	if len(reasons) != 1 {
		t.Fatalf("expected exactly one reason, got %v", reasons)
	}
}

func TestBuildIndexAndDuplicates_PrefersCJKTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"has_more": false,
			"results": []map[string]any{
				{
					"id": "page-en",
					"properties": map[string]any{
						"Dimension": map[string]any{"select": map[string]any{"name": "incremental-root-causes"}},
						"Period":    map[string]any{"select": map[string]any{"name": "2026-W30"}},
						"Title":     map[string]any{"title": []map[string]any{{"plain_text": "root cause english"}}},
					},
					"last_edited_time": "2026-07-01T00:00:00Z",
				},
				{
					"id": "page-zh",
					"properties": map[string]any{
						"Dimension": map[string]any{"select": map[string]any{"name": "incremental-root-causes"}},
						"Period":    map[string]any{"select": map[string]any{"name": "2026-W30"}},
						"Title":     map[string]any{"title": []map[string]any{{"plain_text": "根因分析"}}},
					},
					"last_edited_time": "2026-06-01T00:00:00Z",
				},
			},
		})
	}))
	defer server.Close()

	client := notiondb.NewClient("secret", server.URL)
	index, duplicates, err := BuildIndexAndDuplicates(context.Background(), client, "db-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keeper, ok := index["incremental-root-causes|2026-W30"]
	if !ok {
		t.Fatalf("expected an index entry for the natural key")
	}
	if keeper != "page-zh" {
		t.Fatalf("expected the CJK-titled page to win despite being older, got %q", keeper)
	}
	if len(duplicates) != 1 || duplicates[0].PageID != "page-en" {
		t.Fatalf("expected page-en to be flagged as a duplicate, got %+v", duplicates)
	}
}

func TestSyncReports_DryRunSkipsNotionCalls(t *testing.T) {
	env := validEnv()
	raw := mechanism.RawObject{
		"schema_version": mechanism.IncrementalMechanismSchemaVersion,
		"period_id":      "2026-W30",
		"coverage":       map[string]any{"sessions_total": 10, "sessions_with_mechanism": 8},
		"reports": []any{
			map[string]any{
				"dimension": "incremental-root-causes", "layer": "L3",
				"title": "cache invalidation root cause", "key_insights": "stale cache entries trigger repeated build failures",
				"detail_lines": []any{"hypothesis: trigger is a missed invalidation", "action: add a validation step after cache writes"},
			},
		},
	}

	result, err := SyncReports(context.Background(), nil, "db-1", raw, env, true, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit code 0 for a dry run, got %d", result.ExitCode)
	}
	if result.Total != 1 {
		t.Fatalf("expected total of 1 report, got %d", result.Total)
	}
}

func TestSyncReports_QualityGateBlocksWrite(t *testing.T) {
	env := validEnv()
	env.Reports[0].Title = "placeholder"
	raw := mechanism.RawObject{
		"schema_version": mechanism.IncrementalMechanismSchemaVersion,
		"period_id":      "2026-W30",
		"coverage":       map[string]any{"sessions_total": 10, "sessions_with_mechanism": 8},
		"reports": []any{
			map[string]any{
				"dimension": "incremental-root-causes", "layer": "L3",
				"title": "placeholder", "key_insights": "stale cache entries trigger repeated build failures",
				"detail_lines": []any{"hypothesis: trigger is a missed invalidation"},
			},
		},
	}

	result, err := SyncReports(context.Background(), nil, "db-1", raw, env, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 1 {
		t.Fatalf("expected exit code 1 when the quality gate fails, got %d", result.ExitCode)
	}
	if len(result.QualityReasons) == 0 {
		t.Fatalf("expected quality reasons to be reported")
	}
}

func TestWriteReport_CreatesNewPageWhenNoIndexEntry(t *testing.T) {
	var createdProps map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost && r.URL.Path == "/pages" {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			createdProps, _ = body["properties"].(map[string]any)
			json.NewEncoder(w).Encode(map[string]any{"id": "page-new"})
			return
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	defer server.Close()

	client := notiondb.NewClient("secret", server.URL)
	env := validEnv()
	index := map[string]string{}
	if err := WriteReport(context.Background(), client, "db-1", env.Reports[0], env, index); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if index["incremental-root-causes|2026-W30"] != "page-new" {
		t.Fatalf("expected the new page id to be recorded in the index, got %v", index)
	}
	if createdProps == nil {
		t.Fatalf("expected create_page properties to be captured")
	}
}
