package storedb

// SecuritySchema is the bootstrap payload for the security store: access
// groups, staff accounts, and the browser origins the BO accepts. The
// admin account is the credential seed — its password goes through the
// injected hasher, and it is the only seed allowed to skip on failure.
var SecuritySchema = &Schema{
	Store: StoreSecurity,
	Objects: []Object{
		{
			Name: "access_groups",
			Kind: "table",
			SQL: `
CREATE TABLE IF NOT EXISTS access_groups (
    name       TEXT PRIMARY KEY,
    label      TEXT NOT NULL DEFAULT '',
    rights     TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
)`,
		},
		{
			Name:      "accounts",
			Kind:      "table",
			DependsOn: []string{"access_groups"},
			SQL: `
CREATE TABLE IF NOT EXISTS accounts (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    display_name  TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    group_name    TEXT NOT NULL REFERENCES access_groups(name),
    status        TEXT NOT NULL DEFAULT 'active',
    created_at    INTEGER NOT NULL
)`,
		},
		{
			Name:      "idx_accounts_group",
			Kind:      "index",
			DependsOn: []string{"accounts"},
			SQL:       `CREATE INDEX IF NOT EXISTS idx_accounts_group ON accounts(group_name)`,
		},
		{
			Name: "permitted_origins",
			Kind: "table",
			SQL: `
-- Browser origins allowed to call the BO API, read by shield.Origins.
CREATE TABLE IF NOT EXISTS permitted_origins (
    origin   TEXT PRIMARY KEY,
    note     TEXT NOT NULL DEFAULT '',
    added_at INTEGER NOT NULL
)`,
		},
	},
	Seeds: []Seed{
		{
			Name: "default access groups",
			SQL: `INSERT OR IGNORE INTO access_groups (name, label, rights, created_at) VALUES
('administrateurs', 'Administrateurs', 'all', strftime('%s','now')),
('caissiers', 'Caissiers', 'pos', strftime('%s','now'))`,
		},
		{
			Name: "dev origins",
			SQL: `INSERT OR IGNORE INTO permitted_origins (origin, note, added_at) VALUES
('http://localhost:5173', 'BO frontend (dev)', strftime('%s','now')),
('http://localhost:8085', 'BO server (dev)', strftime('%s','now'))`,
		},
	},
	Credential: &CredentialSeed{
		Name:     "default admin account",
		Username: "admin",
		Password: "admin123!!!",
		SQL: `INSERT OR IGNORE INTO accounts (id, username, display_name, password_hash, group_name, status, created_at)
VALUES ('acc_admin', ?, 'Administrateur', ?, 'administrateurs', 'active', strftime('%s','now'))`,
	},
}
