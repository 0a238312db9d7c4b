package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/momentumcms/recurring/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"ScheduleID", id.NewScheduleID, "sched_"},
		{"JobID", id.NewJobID, "job_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixSchedule)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixSchedule {
		t.Errorf("expected prefix %q, got %q", id.PrefixSchedule, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := id.NewScheduleID()

	parsed, err := id.ParseScheduleID(orig.String())
	if err != nil {
		t.Fatalf("ParseScheduleID(%q): %v", orig.String(), err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip mismatch: %q != %q", parsed.String(), orig.String())
	}
}

func TestParseWrongPrefix(t *testing.T) {
	jobID := id.NewJobID()

	if _, err := id.ParseScheduleID(jobID.String()); err == nil {
		t.Error("expected error parsing job ID as schedule ID")
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "not-a-typeid", "sched_!!!"} {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("Parse(%q): expected error", s)
		}
	}
}

func TestNilID(t *testing.T) {
	var nilID id.ID

	if !nilID.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil ID String() = %q, want empty", nilID.String())
	}
	if nilID.Prefix() != "" {
		t.Errorf("nil ID Prefix() = %q, want empty", nilID.Prefix())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := id.NewScheduleID()

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var parsed id.ID
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("JSON round trip mismatch: %q != %q", parsed.String(), orig.String())
	}
}

func TestScanValue(t *testing.T) {
	orig := id.NewScheduleID()

	v, err := orig.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scanned.String() != orig.String() {
		t.Errorf("Scan round trip mismatch: %q != %q", scanned.String(), orig.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("Scan(nil) should produce the nil ID")
	}
}
