package verifyreport

import (
	"testing"
)

func TestFinalize_NonStrictIgnoresWarnings(t *testing.T) {
	out := New(Tool{Name: "spineverify"}, ModeNonStrict, Target{Kind: TargetDir, Path: "/tmp/bundle"})
	out.AddWarning("REPORT_MISSING", "verify/verification_report.json", "no report present")
	out.Finalize()

	if !out.OK {
		t.Errorf("expected ok under non-strict mode despite a warning")
	}
	if !out.VerificationOK {
		t.Errorf("expected verificationOk true with no errors")
	}
}

func TestFinalize_FailOnWarningsPromotesWarnings(t *testing.T) {
	out := New(Tool{Name: "spineverify"}, ModeFailOnWarnings, Target{Kind: TargetDir, Path: "/tmp/bundle"})
	out.AddWarning("REPORT_MISSING", "verify/verification_report.json", "no report present")
	out.Finalize()

	if out.OK {
		t.Errorf("expected fail-on-warnings mode to fail on a warning")
	}
	if !out.VerificationOK {
		t.Errorf("expected verificationOk true since there were no errors")
	}
}

func TestFinalize_ErrorsAlwaysFail(t *testing.T) {
	for _, mode := range []Mode{ModeNonStrict, ModeStrict, ModeFailOnWarnings} {
		out := New(Tool{Name: "spineverify"}, mode, Target{Kind: TargetDir, Path: "/tmp/bundle"})
		out.AddError("FILE_HASH_MISMATCH", "events/events.jsonl", "hash mismatch")
		out.Finalize()
		if out.OK {
			t.Errorf("mode %s: expected not ok with an error present", mode)
		}
		if out.VerificationOK {
			t.Errorf("mode %s: expected verificationOk false with an error present", mode)
		}
	}
}

func TestFinalize_SortsDiagnostics(t *testing.T) {
	out := New(Tool{Name: "spineverify"}, ModeNonStrict, Target{Kind: TargetDir, Path: "/tmp/bundle"})
	out.AddError("FILE_HASH_MISMATCH", "zzz.json", "z")
	out.AddError("ARTIFACT_HASH_MISMATCH", "aaa.json", "a")
	out.Finalize()

	if out.Errors[0].Path != "aaa.json" {
		t.Errorf("expected diagnostics sorted by path, got %+v", out.Errors)
	}
}

func TestStable_DropsToolVersionAndPath(t *testing.T) {
	out := New(Tool{Name: "spineverify", Version: "9.9.9", Commit: "deadbeef"}, ModeStrict, Target{Kind: TargetZip, Path: "/home/alice/bundle.zip"})
	out.Finalize()
	stable := out.Stable()

	if stable.ToolName != "spineverify" {
		t.Errorf("expected tool name to survive projection, got %q", stable.ToolName)
	}
	if stable.TargetKind != TargetZip {
		t.Errorf("expected target kind to survive projection, got %q", stable.TargetKind)
	}
}

func TestCanonicalJSON_Deterministic(t *testing.T) {
	build := func() []byte {
		out := New(Tool{Name: "spineverify", Version: "1.2.3"}, ModeStrict, Target{Kind: TargetDir, Path: "/tmp/b"})
		out.AddError("FILE_HASH_MISMATCH", "a.json", "bad")
		out.Finalize()
		raw, err := out.CanonicalJSON()
		if err != nil {
			t.Fatalf("canonical json: %v", err)
		}
		return raw
	}
	a := build()
	b := build()
	if string(a) != string(b) {
		t.Errorf("expected canonical JSON to be deterministic:\n%s\nvs\n%s", a, b)
	}
}
