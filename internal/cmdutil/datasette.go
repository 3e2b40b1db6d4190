package cmdutil

import (
	"fmt"
	"log/slog"

	"github.com/lepinkainen/libsearch/internal/datastore"
	"github.com/spf13/viper"
)

// DatasetteDatabase is the database name used for remote inserts.
const DatasetteDatabase = "libsearch"

// newDatastore returns the export target configured under datasette.*.
// It is a variable so tests can substitute a fake.
var newDatastore = func() (datastore.Store, error) {
	switch mode := viper.GetString("datasette.mode"); mode {
	case "", "local":
		return datastore.NewSQLiteStore(viper.GetString("datasette.dbfile")), nil
	case "remote":
		remoteURL := viper.GetString("datasette.remote_url")
		if remoteURL == "" {
			return nil, fmt.Errorf("datasette.remote_url is required in remote mode")
		}
		return datastore.NewDatasetteClient(remoteURL, viper.GetString("datasette.api_token")), nil
	default:
		return nil, fmt.Errorf("unknown datasette mode %q", mode)
	}
}

// WriteToDatastore exports items when datasette.enabled is set. Each item
// is converted to a row with toMap.
func WriteToDatastore[T any](items []T, schema, table, description string, toMap func(T) map[string]any) error {
	if !viper.GetBool("datasette.enabled") {
		return nil
	}
	if len(items) == 0 {
		slog.Debug("Nothing to export", "table", table)
		return nil
	}

	store, err := newDatastore()
	if err != nil {
		return err
	}
	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to datastore: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.CreateTable(schema); err != nil {
		return fmt.Errorf("failed to create %s table: %w", table, err)
	}

	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		records = append(records, toMap(item))
	}

	if err := store.BatchInsert(DatasetteDatabase, table, records); err != nil {
		return fmt.Errorf("failed to insert %s: %w", description, err)
	}

	slog.Info("Exported to Datasette", "table", table, "rows", len(records), "what", description)
	return nil
}
