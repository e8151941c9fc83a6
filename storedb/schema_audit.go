package storedb

// AuditSchema is the bootstrap payload for the audit store: a single
// append-only log written by audit.Logger. No seeds.
var AuditSchema = &Schema{
	Store: StoreAudit,
	Objects: []Object{
		{
			Name: "audit_log",
			Kind: "table",
			SQL: `
CREATE TABLE IF NOT EXISTS audit_log (
    entry_id      TEXT PRIMARY KEY,
    timestamp     INTEGER NOT NULL,
    component     TEXT NOT NULL,
    operation     TEXT NOT NULL,
    actor         TEXT,
    register_id   TEXT,
    request_id    TEXT,
    parameters    TEXT NOT NULL DEFAULT '{}',
    result        TEXT,
    error_message TEXT,
    duration_ms   INTEGER,
    status        TEXT NOT NULL DEFAULT 'success',
    metadata      TEXT
)`,
		},
		{
			Name:      "idx_audit_log_time",
			Kind:      "index",
			DependsOn: []string{"audit_log"},
			SQL:       `CREATE INDEX IF NOT EXISTS idx_audit_log_time ON audit_log(timestamp DESC)`,
		},
		{
			Name:      "idx_audit_log_component",
			Kind:      "index",
			DependsOn: []string{"audit_log"},
			SQL:       `CREATE INDEX IF NOT EXISTS idx_audit_log_component ON audit_log(component, operation)`,
		},
		{
			Name:      "idx_audit_log_status",
			Kind:      "index",
			DependsOn: []string{"audit_log"},
			SQL:       `CREATE INDEX IF NOT EXISTS idx_audit_log_status ON audit_log(status)`,
		},
	},
}
