package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/creatorpay-backend/pkg/config"
	"github.com/angelmondragon/creatorpay-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client owns the BigQuery handle for the analytics dataset.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	table   string
}

// NewClient dials BigQuery and checks that the dataset and ledger table exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	table := strings.TrimSpace(cfg.LedgerEventsTable)
	if table == "" {
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{client: bq, dataset: bq.Dataset(datasetID), table: table}
	if err := c.checkSchema(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": datasetID, "table": table}), "bigquery.client.ready")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

func (c *Client) checkSchema(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}
	if _, err := c.dataset.Table(c.table).Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("table %q does not exist", c.table)
		}
		return fmt.Errorf("checking table %q: %w", c.table, err)
	}
	return nil
}

// Ping re-checks dataset and table visibility.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errClientNotInitialized
	}
	return c.checkSchema(ctx)
}

// LedgerEventsTable is the configured table name.
func (c *Client) LedgerEventsTable() string {
	if c == nil {
		return ""
	}
	return c.table
}

// InsertRows streams rows into table. Rows that implement bigquery.ValueSaver
// control their own insert ids.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
