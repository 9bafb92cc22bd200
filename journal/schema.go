package journal

const Schema = `
CREATE TABLE IF NOT EXISTS position_events (
	time DATETIME NOT NULL,
	position_id TEXT NOT NULL,
	instrument TEXT NOT NULL,
	status TEXT NOT NULL,
	direction TEXT NOT NULL,
	qty REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	stop_loss REAL NOT NULL,
	take_profit REAL NOT NULL,
	realized_pl REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS denials (
	time DATETIME NOT NULL,
	instrument TEXT NOT NULL,
	code TEXT NOT NULL,
	reason TEXT NOT NULL,
	halted INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS account (
	time DATETIME NOT NULL,
	equity REAL NOT NULL,
	starting_equity REAL NOT NULL,
	day_start_equity REAL NOT NULL,
	daily_realized_pl REAL NOT NULL,
	consecutive_losses INTEGER NOT NULL,
	day_start DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS halts (
	halted_at DATETIME NOT NULL,
	reason TEXT NOT NULL,
	cleared_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_position_events_id ON position_events(position_id);
CREATE INDEX IF NOT EXISTS idx_position_events_time ON position_events(time);
CREATE INDEX IF NOT EXISTS idx_account_time ON account(time);
`
