package types

import (
	"testing"
)

func TestIssueValidate(t *testing.T) {
	tests := []struct {
		name    string
		issue   Issue
		wantErr bool
	}{
		{
			name: "valid issue",
			issue: Issue{
				JudgeID:    BucketTokenConsistency,
				Area:       "brand token",
				Severity:   SeverityHigh,
				ScoreDelta: 12,
			},
		},
		{
			name:    "unknown judge",
			issue:   Issue{JudgeID: "layout", Area: "x", Severity: SeverityLow},
			wantErr: true,
		},
		{
			name:    "missing area",
			issue:   Issue{JudgeID: BucketVisualHierarchy, Area: "  ", Severity: SeverityLow},
			wantErr: true,
		},
		{
			name:    "invalid severity",
			issue:   Issue{JudgeID: BucketVisualHierarchy, Area: "x", Severity: "blocker"},
			wantErr: true,
		},
		{
			name:    "negative delta",
			issue:   Issue{JudgeID: BucketVisualHierarchy, Area: "x", Severity: SeverityLow, ScoreDelta: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.issue.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSeverityRank(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityHigh) {
		t.Error("critical should be at least high")
	}
	if SeverityMedium.AtLeast(SeverityHigh) {
		t.Error("medium should not be at least high")
	}
	if Severity("bogus").Rank() >= SeverityLow.Rank() {
		t.Error("unknown severity should rank below low")
	}
	for i := 1; i < len(AllSeverities); i++ {
		if AllSeverities[i-1].Rank() <= AllSeverities[i].Rank() {
			t.Errorf("AllSeverities not ordered most to least severe at %d", i)
		}
	}
}

func TestRouteMatrixValidate(t *testing.T) {
	valid := RouteMatrix{
		BaseURL: "http://localhost:5173",
		Routes:  []RouteMatrixEntry{{Path: "/a"}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid matrix, got %v", err)
	}

	noBase := RouteMatrix{Routes: valid.Routes}
	if err := noBase.Validate(); err == nil {
		t.Error("expected error for missing baseUrl")
	}

	badPath := RouteMatrix{BaseURL: "http://x", Routes: []RouteMatrixEntry{{Path: "a"}}}
	if err := badPath.Validate(); err == nil {
		t.Error("expected error for relative path")
	}

	badVia := RouteMatrix{BaseURL: "http://x", Routes: []RouteMatrixEntry{{Path: "/doc/1", Via: &NavigationPlan{From: "/docs"}}}}
	if err := badVia.Validate(); err == nil {
		t.Error("expected error for via without name")
	}
}

func TestStatesOrDefault(t *testing.T) {
	e := RouteMatrixEntry{Path: "/a"}
	got := e.StatesOrDefault()
	if len(got) != 1 || got[0] != DefaultState {
		t.Errorf("expected [default], got %v", got)
	}

	e.States = []string{"default", "open"}
	if got := e.StatesOrDefault(); len(got) != 2 {
		t.Errorf("expected configured states, got %v", got)
	}
}

func TestCaptureRequestKey(t *testing.T) {
	a := CaptureRequest{Route: "/a", State: "open", ViewportID: "desktop", PassID: 1}
	b := a
	b.State = "default"
	if a.Key() == b.Key() {
		t.Errorf("keys should differ by state: %s", a.Key())
	}
}
