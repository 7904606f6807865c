package scanner

import "testing"

func policyConfig() *Snapshot {
	cfg := testConfig()
	cfg.ExcludedFields = []string{"tracker_id", "status_id"}
	cfg.ExcludedProjects = []string{"sandbox", "internal-tools"}
	return NewSnapshot(cfg)
}

func TestShouldSkipRecord(t *testing.T) {
	t.Run("DisabledSkipsEverything", func(t *testing.T) {
		cfg := testConfig()
		cfg.EnableSensitiveDataDetection = false
		cfg.EnablePersonalDataDetection = false
		snap := NewSnapshot(cfg)

		if !snap.ShouldSkipRecord(nil) {
			t.Error("Disabled detection should skip all records")
		}
	})

	t.Run("ExcludedProject", func(t *testing.T) {
		snap := policyConfig()

		project := "sandbox"
		if !snap.ShouldSkipRecord(&project) {
			t.Error("Excluded project should be skipped")
		}

		other := "production"
		if snap.ShouldSkipRecord(&other) {
			t.Error("Non-excluded project should not be skipped")
		}
	})

	t.Run("NoProjectNeverSkips", func(t *testing.T) {
		if policyConfig().ShouldSkipRecord(nil) {
			t.Error("Record without a project should not be skipped")
		}
	})
}

func TestShouldSkipField(t *testing.T) {
	t.Run("ExcludedField", func(t *testing.T) {
		snap := policyConfig()

		if !snap.ShouldSkipField("tracker_id") {
			t.Error("Excluded field should be skipped")
		}
		if snap.ShouldSkipField("description") {
			t.Error("Non-excluded field should not be skipped")
		}
	})

	t.Run("DisabledReturnsFalse", func(t *testing.T) {
		cfg := testConfig()
		cfg.EnableSensitiveDataDetection = false
		cfg.EnablePersonalDataDetection = false
		cfg.ExcludedFields = []string{"tracker_id"}
		snap := NewSnapshot(cfg)

		// Callers gate on ShouldSkipRecord; field exclusion is irrelevant
		// when nothing is scanned
		if snap.ShouldSkipField("tracker_id") {
			t.Error("ShouldSkipField should return false when detection is disabled")
		}
	})
}

func TestShouldBlock(t *testing.T) {
	violation := Violation{Category: CategorySensitive, Pattern: "x", MatchedText: "y", Severity: SeverityHigh}

	t.Run("BlockingEnabled", func(t *testing.T) {
		snap := NewSnapshot(testConfig())

		if snap.ShouldBlock(nil) {
			t.Error("No violations should never block")
		}
		if !snap.ShouldBlock([]Violation{violation}) {
			t.Error("Violations with blocking enabled should block")
		}
	})

	t.Run("BlockingDisabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.BlockSubmission = false
		snap := NewSnapshot(cfg)

		if snap.ShouldBlock([]Violation{violation}) {
			t.Error("Violations with blocking disabled should not block")
		}
	})
}
