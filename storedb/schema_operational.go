package storedb

// OperationalSchema is the bootstrap payload for the operational store:
// the retail tables behind the tills plus the middleware tables (rate
// limits, maintenance flag). Order matters — referencing tables come after
// their referents — and Validate proves it from the DependsOn metadata.
var OperationalSchema = &Schema{
	Store: StoreOperational,
	Objects: []Object{
		{
			Name: "registers",
			Kind: "table",
			SQL: `
-- Tills. One row per physical register; the default register is seeded.
CREATE TABLE IF NOT EXISTS registers (
    id         TEXT PRIMARY KEY,
    label      TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'active',
    created_at INTEGER NOT NULL
)`,
		},
		{
			Name: "product_categories",
			Kind: "table",
			SQL: `
CREATE TABLE IF NOT EXISTS product_categories (
    id       TEXT PRIMARY KEY,
    name     TEXT NOT NULL UNIQUE,
    position INTEGER NOT NULL DEFAULT 0
)`,
		},
		{
			Name:      "products",
			Kind:      "table",
			DependsOn: []string{"product_categories"},
			SQL: `
CREATE TABLE IF NOT EXISTS products (
    id          TEXT PRIMARY KEY,
    sku         TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL,
    category_id TEXT REFERENCES product_categories(id) ON DELETE SET NULL,
    price_cents INTEGER NOT NULL DEFAULT 0,
    vat_rate    REAL NOT NULL DEFAULT 20.0,
    stock       INTEGER NOT NULL DEFAULT 0,
    active      INTEGER NOT NULL DEFAULT 1,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
)`,
		},
		{
			Name:      "idx_products_category",
			Kind:      "index",
			DependsOn: []string{"products"},
			SQL:       `CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id)`,
		},
		{
			Name:      "orders",
			Kind:      "table",
			DependsOn: []string{"registers"},
			SQL: `
-- Orders reference their register; the cashier is a security-store account
-- id carried by value (stores are separate files, no cross-store FK).
CREATE TABLE IF NOT EXISTS orders (
    id          TEXT PRIMARY KEY,
    register_id TEXT NOT NULL REFERENCES registers(id),
    cashier_id  TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'open',
    total_cents INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL,
    closed_at   INTEGER
)`,
		},
		{
			Name:      "idx_orders_created",
			Kind:      "index",
			DependsOn: []string{"orders"},
			SQL:       `CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at DESC)`,
		},
		{
			Name:      "order_lines",
			Kind:      "table",
			DependsOn: []string{"orders", "products"},
			SQL: `
CREATE TABLE IF NOT EXISTS order_lines (
    id               TEXT PRIMARY KEY,
    order_id         TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    product_id       TEXT NOT NULL REFERENCES products(id),
    quantity         INTEGER NOT NULL DEFAULT 1,
    unit_price_cents INTEGER NOT NULL,
    total_cents      INTEGER NOT NULL
)`,
		},
		{
			Name:      "idx_order_lines_order",
			Kind:      "index",
			DependsOn: []string{"order_lines"},
			SQL:       `CREATE INDEX IF NOT EXISTS idx_order_lines_order ON order_lines(order_id)`,
		},
		{
			Name:      "cash_sessions",
			Kind:      "table",
			DependsOn: []string{"registers"},
			SQL: `
CREATE TABLE IF NOT EXISTS cash_sessions (
    id                    TEXT PRIMARY KEY,
    register_id           TEXT NOT NULL REFERENCES registers(id),
    cashier_id            TEXT NOT NULL DEFAULT '',
    opened_at             INTEGER NOT NULL,
    closed_at             INTEGER,
    opening_float_cents   INTEGER NOT NULL DEFAULT 0,
    closing_counted_cents INTEGER,
    status                TEXT NOT NULL DEFAULT 'open'
)`,
		},
		{
			Name:      "idx_cash_sessions_register",
			Kind:      "index",
			DependsOn: []string{"cash_sessions"},
			SQL:       `CREATE INDEX IF NOT EXISTS idx_cash_sessions_register ON cash_sessions(register_id, opened_at DESC)`,
		},
		{
			Name:      "cash_movements",
			Kind:      "table",
			DependsOn: []string{"cash_sessions", "orders"},
			SQL: `
CREATE TABLE IF NOT EXISTS cash_movements (
    id           TEXT PRIMARY KEY,
    session_id   TEXT NOT NULL REFERENCES cash_sessions(id) ON DELETE CASCADE,
    order_id     TEXT REFERENCES orders(id),
    kind         TEXT NOT NULL,
    amount_cents INTEGER NOT NULL,
    note         TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL
)`,
		},
		{
			Name:      "idx_cash_movements_session",
			Kind:      "index",
			DependsOn: []string{"cash_movements"},
			SQL:       `CREATE INDEX IF NOT EXISTS idx_cash_movements_session ON cash_movements(session_id)`,
		},
		{
			Name: "coupons",
			Kind: "table",
			SQL: `
CREATE TABLE IF NOT EXISTS coupons (
    code       TEXT PRIMARY KEY,
    kind       TEXT NOT NULL DEFAULT 'percent',
    value      INTEGER NOT NULL,
    starts_at  INTEGER,
    expires_at INTEGER,
    max_uses   INTEGER NOT NULL DEFAULT 0,
    active     INTEGER NOT NULL DEFAULT 1
)`,
		},
		{
			Name:      "coupon_redemptions",
			Kind:      "table",
			DependsOn: []string{"coupons", "orders"},
			SQL: `
CREATE TABLE IF NOT EXISTS coupon_redemptions (
    id           TEXT PRIMARY KEY,
    coupon_code  TEXT NOT NULL REFERENCES coupons(code) ON DELETE CASCADE,
    order_id     TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    amount_cents INTEGER NOT NULL,
    redeemed_at  INTEGER NOT NULL,
    UNIQUE (coupon_code, order_id)
)`,
		},
		{
			Name:      "idx_coupon_redemptions_coupon",
			Kind:      "index",
			DependsOn: []string{"coupon_redemptions"},
			SQL:       `CREATE INDEX IF NOT EXISTS idx_coupon_redemptions_coupon ON coupon_redemptions(coupon_code)`,
		},
		{
			Name: "rate_limits",
			Kind: "table",
			SQL: `
-- Per-endpoint rate limiting rules, read by shield.RateLimiter.
CREATE TABLE IF NOT EXISTS rate_limits (
    endpoint       TEXT PRIMARY KEY,
    max_requests   INTEGER NOT NULL DEFAULT 60,
    window_seconds INTEGER NOT NULL DEFAULT 60,
    enabled        INTEGER NOT NULL DEFAULT 1
)`,
		},
		{
			Name: "maintenance",
			Kind: "table",
			SQL: `
-- Global maintenance mode flag, read by shield.Maintenance.
CREATE TABLE IF NOT EXISTS maintenance (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    active  INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT 'Maintenance en cours, veuillez patienter.'
)`,
		},
	},
	Seeds: []Seed{
		{
			Name: "default register",
			SQL: `INSERT OR IGNORE INTO registers (id, label, status, created_at)
VALUES ('reg_principal', 'Caisse principale', 'active', strftime('%s','now'))`,
		},
		{
			Name: "maintenance flag",
			SQL: `INSERT OR IGNORE INTO maintenance (id, active, message)
VALUES (1, 0, 'Maintenance en cours, veuillez patienter.')`,
		},
		{
			Name: "login rate limit",
			SQL: `INSERT OR IGNORE INTO rate_limits (endpoint, max_requests, window_seconds, enabled)
VALUES ('/api/auth/login', 20, 60, 1)`,
		},
	},
}
