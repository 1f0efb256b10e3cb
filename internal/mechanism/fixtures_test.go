package mechanism

func validSessionMechanism() RawObject {
	return RawObject{
		"schema_version": SessionMechanismSchemaVersion,
		"session_id":     "s-1",
		"created_at":     "2026-02-06T10:00:00Z",
		"what_happened":  []any{"user asked for a refactor"},
		"why": []any{
			RawObject{
				"hypothesis": "missing test coverage caused regressions",
				"confidence": 0.8,
				"evidence": []any{
					RawObject{
						"session_id": "s-1",
						"turn_id":    3,
						"snippet":    "test failed after refactor",
						"tier":       "primary",
					},
				},
			},
		},
		"how_to_improve": []any{
			RawObject{
				"trigger":           "refactor touches shared utility",
				"action":            "run full test suite before merge",
				"expected_gain":     "fewer regressions",
				"validation_window": "next 2 weeks",
			},
		},
		"summary": "refactor introduced a regression caught late",
		"generated_by": RawObject{
			"engine":       "skill-runtime",
			"provider":     "httpAPI-B",
			"model":        "claude-3-5-sonnet",
			"run_id":       "run-123",
			"generated_at": "2026-02-06T10:05:00Z",
		},
	}
}
