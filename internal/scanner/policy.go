package scanner

// ShouldSkipRecord reports whether scanning must be skipped entirely for a
// record: detection disabled overall, or the record's owning project is
// excluded. A record without a project is never skipped on project grounds.
func (s *Snapshot) ShouldSkipRecord(ownerProjectID *string) bool {
	if !s.Enabled() {
		return true
	}

	if ownerProjectID != nil {
		if _, excluded := s.excludedProjects[*ownerProjectID]; excluded {
			return true
		}
	}

	return false
}

// ShouldSkipField reports whether a single field is excluded from scanning.
// When detection is disabled overall this returns false: callers gate on
// ShouldSkipRecord first, and field exclusion is irrelevant when nothing is
// scanned.
func (s *Snapshot) ShouldSkipField(fieldName string) bool {
	if !s.Enabled() {
		return false
	}

	_, excluded := s.excludedFields[fieldName]
	return excluded
}

// ShouldBlock reports whether the violations must block the caller's write
func (s *Snapshot) ShouldBlock(violations []Violation) bool {
	return s.blockSubmission && len(violations) > 0
}
