package state

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

var validDatabase = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_]*$`)

// MySQLParams locates a MariaDB/MySQL history database.
type MySQLParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// ValidateDatabaseName checks that a name is safe to use as a schema identifier.
func ValidateDatabaseName(name string) error {
	if !validDatabase.MatchString(name) {
		return fmt.Errorf("invalid database name %q: must match %s", name, validDatabase.String())
	}
	return nil
}

// DSN returns the driver connection string for p.
func (p MySQLParams) DSN() string {
	return p.driverConfig().FormatDSN()
}

func (p MySQLParams) driverConfig() *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	cfg.DBName = p.Database
	cfg.Timeout = 5 * time.Second
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg
}

// OpenMySQL connects to MariaDB/MySQL, verifies the connection and creates
// the runs table if needed. The database itself must already exist.
func OpenMySQL(ctx context.Context, p MySQLParams) (*Store, error) {
	if err := ValidateDatabaseName(p.Database); err != nil {
		return nil, err
	}

	connector, err := mysql.NewConnector(p.driverConfig())
	if err != nil {
		return nil, fmt.Errorf("configuring mysql connection: %w", err)
	}
	db := sql.OpenDB(connector)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql connection to %s failed: %w; check that the server is running and credentials are correct", p.Host, err)
	}

	if _, err := db.ExecContext(ctx, mysqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}
