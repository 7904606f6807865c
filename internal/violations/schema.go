package violations

// Schema for the violation table. Indexes mirror the supported query filters:
// by user, by type, by creation time, and the composite user+time used by the
// per-user report views.
const schema = `
CREATE TABLE IF NOT EXISTS data_protection_violations (
	id             BIGSERIAL PRIMARY KEY,
	user_id        BIGINT,
	violation_type VARCHAR(64) NOT NULL,
	pattern        VARCHAR(512) NOT NULL,
	match_content  TEXT NOT NULL,
	severity       VARCHAR(16) NOT NULL DEFAULT 'medium',
	context        TEXT,
	ip_address     VARCHAR(64),
	user_agent     VARCHAR(512),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_violations_user_id
	ON data_protection_violations (user_id);
CREATE INDEX IF NOT EXISTS idx_violations_type
	ON data_protection_violations (violation_type);
CREATE INDEX IF NOT EXISTS idx_violations_created_at
	ON data_protection_violations (created_at);
CREATE INDEX IF NOT EXISTS idx_violations_user_created_at
	ON data_protection_violations (user_id, created_at);
`
