package types

import (
	"errors"
	"testing"
)

func TestScheduleIdString(t *testing.T) {
	id := ScheduleId{
		Namespace:    "ns",
		Application:  "app",
		ProgramType:  "workflow",
		ProgramName:  "etl",
		ScheduleName: "daily",
	}
	want := "ns:app:workflow:etl:daily"
	if got := id.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestScheduleIdLessNaturalOrder(t *testing.T) {
	a := ScheduleId{Namespace: "ns", Application: "app", ProgramType: "t", ProgramName: "p", ScheduleName: "a"}
	b := ScheduleId{Namespace: "ns", Application: "app", ProgramType: "t", ProgramName: "p", ScheduleName: "b"}
	if !a.Less(b) {
		t.Errorf("expected %q < %q", a, b)
	}
	if b.Less(a) {
		t.Errorf("expected %q not < %q", b, a)
	}
}

func TestPrefixSuccessorBoundsRangeScan(t *testing.T) {
	prefix := ProgramPrefix("ns", "app", "workflow", "etl")
	succ := PrefixSuccessor(prefix)

	inRange := prefix + "daily"
	outOfRange := succ

	if !(prefix <= inRange && inRange < succ) {
		t.Errorf("expected %q in [%q, %q)", inRange, prefix, succ)
	}
	if !(outOfRange >= succ) {
		t.Errorf("expected successor to bound the range")
	}

	otherProgram := ProgramPrefix("ns", "app", "workflow", "etm") + "daily"
	if otherProgram < succ {
		t.Errorf("successor %q does not exclude sibling program id %q", succ, otherProgram)
	}
}

func TestScheduleSpecValidate(t *testing.T) {
	cases := []struct {
		name    string
		spec    ScheduleSpec
		wantErr bool
	}{
		{"valid", ScheduleSpec{ScheduleName: "s", StreamName: "stream", DataTriggerMB: 1}, false},
		{"zero trigger", ScheduleSpec{ScheduleName: "s", StreamName: "stream", DataTriggerMB: 0}, true},
		{"negative trigger", ScheduleSpec{ScheduleName: "s", StreamName: "stream", DataTriggerMB: -1}, true},
		{"empty stream", ScheduleSpec{ScheduleName: "s", StreamName: "", DataTriggerMB: 1}, true},
		{"empty schedule name", ScheduleSpec{ScheduleName: "", StreamName: "stream", DataTriggerMB: 1}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if tc.wantErr && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestScheduleSpecThresholdBytes(t *testing.T) {
	s := ScheduleSpec{DataTriggerMB: 3}
	want := int64(3 * 1024 * 1024)
	if got := s.ThresholdBytes(); got != want {
		t.Errorf("ThresholdBytes() = %d, want %d", got, want)
	}
}
