package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL DEFAULT '',
	trade_id TEXT NOT NULL,
	instrument TEXT NOT NULL,
	side TEXT NOT NULL,
	lots REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	realized_pl REAL NOT NULL,
	reason TEXT NOT NULL,
	comment TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, trade_id)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL DEFAULT '',
	time DATETIME NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	margin_used REAL NOT NULL,
	free_margin REAL NOT NULL,
	margin_level REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(run_id, time);

CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	created DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	data_file TEXT NOT NULL,
	algorithm TEXT NOT NULL,
	mode TEXT NOT NULL,
	seed INTEGER NOT NULL,
	trials INTEGER NOT NULL,
	years INTEGER NOT NULL,
	drawdown_limit REAL NOT NULL,
	feasible_found INTEGER NOT NULL,
	best_score REAL NOT NULL,
	best_params TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trials (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	phase TEXT NOT NULL,
	score REAL NOT NULL,
	feasible INTEGER NOT NULL,
	fingerprint TEXT NOT NULL,
	sum_net REAL NOT NULL,
	min_year_net REAL NOT NULL,
	worst_dd REAL NOT NULL,
	blowup_years INTEGER NOT NULL,
	years_ran INTEGER NOT NULL,
	params TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`
