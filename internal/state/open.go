package state

import (
	"context"
	"fmt"

	"github.com/ecairns22/shellrun/internal/config"
)

// OpenFromConfig opens the history store selected by the tool configuration.
func OpenFromConfig(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.History.Driver {
	case config.DriverSQLite:
		return Open(cfg.History.Path)
	case config.DriverMySQL:
		m := cfg.History.MySQL
		return OpenMySQL(ctx, MySQLParams{
			Host:     m.Host,
			Port:     m.Port,
			User:     m.User,
			Password: m.Password,
			Database: m.Database,
		})
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.History.Driver)
	}
}
