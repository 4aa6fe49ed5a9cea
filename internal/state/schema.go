package state

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    id           TEXT NOT NULL UNIQUE,
    command      TEXT NOT NULL,
    dir          TEXT,
    exit_code    INTEGER NOT NULL,
    finished     INTEGER NOT NULL,
    stdout       TEXT NOT NULL,
    stderr       TEXT NOT NULL,
    started_at   INTEGER NOT NULL,
    finished_at  INTEGER,
    detail       TEXT
);

CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
`

// MySQL refuses multi-statement Exec by default, so the index is inline.
const mysqlSchema = "CREATE TABLE IF NOT EXISTS runs (" +
	"seq BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, " +
	"id VARCHAR(64) NOT NULL UNIQUE, " +
	"command TEXT NOT NULL, " +
	"dir TEXT, " +
	"exit_code INT NOT NULL, " +
	"finished TINYINT(1) NOT NULL, " +
	"stdout LONGTEXT NOT NULL, " +
	"stderr LONGTEXT NOT NULL, " +
	"started_at BIGINT NOT NULL, " +
	"finished_at BIGINT NULL, " +
	"detail TEXT, " +
	"INDEX runs_started_at (started_at)" +
	") CHARACTER SET utf8mb4"
