// Package state implements the durable single-file deployment-record
// store: one SQLite database under the configured state directory, opened
// and closed per operation rather than held as a long-lived pool, matching
// the connection-per-operation idiom of the system it replaces.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crosslogic/tuna-orchestrator/internal/models"
)

// ErrNotFound is returned by Load when no record exists for the given
// service name.
var ErrNotFound = errors.New("state: deployment not found")

const schema = `
CREATE TABLE IF NOT EXISTS deployments (
	service_name TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	model_name TEXT,
	gpu TEXT,
	gpu_count INTEGER,
	serverless_provider TEXT,
	spots_cloud TEXT,
	region TEXT,
	request_json TEXT,
	router_endpoint TEXT,
	router_metadata_json TEXT,
	serverless_provider_name TEXT,
	serverless_endpoint TEXT,
	serverless_metadata_json TEXT,
	spot_provider_name TEXT,
	spot_endpoint TEXT,
	spot_metadata_json TEXT,
	router_url TEXT
);
`

// Store is a handle to the deployments database file. It holds no open
// connection; every method opens, operates, and closes.
type Store struct {
	path string
}

// Open resolves the database file path under dir (creating dir if needed)
// and returns a Store. It does not keep a connection open — each
// operation below connects for its own lifetime, enables WAL, ensures the
// schema exists, and closes before returning.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("state: empty state dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state: creating state dir: %w", err)
	}
	return &Store{path: filepath.Join(dir, "deployments.db")}, nil
}

func (s *Store) connect(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("state: opening db: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: enabling WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ensuring schema: %w", err)
	}
	return db, nil
}

// Save upserts the deployment record for request's service name, folding
// in whatever the deploy attempt produced. Provider names are always taken
// from the request (not the result) so a deploy that failed partway
// through is still destroyable: serverless_provider_name is always set,
// and spot_provider_name is set to "skyserve" whenever the request wasn't
// serverless-only, even if result.Spot is nil.
func (s *Store) Save(ctx context.Context, req *models.DeployRequest, result *models.HybridDeployment) error {
	db, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	now := time.Now().UTC().Format(time.RFC3339)

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("state: marshaling request: %w", err)
	}

	rec := recordFromRequestAndResult(req, result)
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.RequestJSON = string(reqJSON)

	routerMeta, err := marshalMeta(rec.RouterMetadata)
	if err != nil {
		return err
	}
	serverlessMeta, err := marshalMeta(rec.ServerlessMetadata)
	if err != nil {
		return err
	}
	spotMeta, err := marshalMeta(rec.SpotMetadata)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO deployments (
			service_name, status, created_at, updated_at,
			model_name, gpu, gpu_count, serverless_provider, spots_cloud, region,
			request_json,
			router_endpoint, router_metadata_json,
			serverless_provider_name, serverless_endpoint, serverless_metadata_json,
			spot_provider_name, spot_endpoint, spot_metadata_json,
			router_url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service_name) DO UPDATE SET
			status=excluded.status,
			updated_at=excluded.updated_at,
			model_name=excluded.model_name,
			gpu=excluded.gpu,
			gpu_count=excluded.gpu_count,
			serverless_provider=excluded.serverless_provider,
			spots_cloud=excluded.spots_cloud,
			region=excluded.region,
			request_json=excluded.request_json,
			router_endpoint=excluded.router_endpoint,
			router_metadata_json=excluded.router_metadata_json,
			serverless_provider_name=excluded.serverless_provider_name,
			serverless_endpoint=excluded.serverless_endpoint,
			serverless_metadata_json=excluded.serverless_metadata_json,
			spot_provider_name=excluded.spot_provider_name,
			spot_endpoint=excluded.spot_endpoint,
			spot_metadata_json=excluded.spot_metadata_json,
			router_url=excluded.router_url
	`,
		rec.ServiceName, rec.Status, rec.CreatedAt, rec.UpdatedAt,
		rec.ModelName, rec.GPU, rec.GPUCount, rec.ServerlessProvider, rec.SpotsCloud, rec.Region,
		rec.RequestJSON,
		rec.RouterEndpoint, routerMeta,
		rec.ServerlessProviderName, rec.ServerlessEndpoint, serverlessMeta,
		rec.SpotProviderName, rec.SpotEndpoint, spotMeta,
		rec.RouterURL,
	)
	if err != nil {
		return fmt.Errorf("state: upserting deployment %q: %w", rec.ServiceName, err)
	}
	return nil
}

// Load fetches the record for serviceName, returning ErrNotFound if absent.
func (s *Store) Load(ctx context.Context, serviceName string) (*models.DeploymentRecord, error) {
	db, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	row := db.QueryRowContext(ctx, `
		SELECT service_name, status, created_at, updated_at,
			model_name, gpu, gpu_count, serverless_provider, spots_cloud, region,
			request_json,
			router_endpoint, router_metadata_json,
			serverless_provider_name, serverless_endpoint, serverless_metadata_json,
			spot_provider_name, spot_endpoint, spot_metadata_json,
			router_url
		FROM deployments WHERE service_name = ?
	`, serviceName)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("state: loading deployment %q: %w", serviceName, err)
	}
	return rec, nil
}

// UpdateStatus sets a record's status and updated_at without touching any
// other field.
func (s *Store) UpdateStatus(ctx context.Context, serviceName, status string) error {
	db, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := db.ExecContext(ctx,
		`UPDATE deployments SET status = ?, updated_at = ? WHERE service_name = ?`,
		status, time.Now().UTC().Format(time.RFC3339), serviceName,
	)
	if err != nil {
		return fmt.Errorf("state: updating status for %q: %w", serviceName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("state: checking rows affected for %q: %w", serviceName, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns deployment records ordered by created_at descending,
// optionally filtered to a single status.
func (s *Store) List(ctx context.Context, statusFilter string) ([]*models.DeploymentRecord, error) {
	db, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query := `
		SELECT service_name, status, created_at, updated_at,
			model_name, gpu, gpu_count, serverless_provider, spots_cloud, region,
			request_json,
			router_endpoint, router_metadata_json,
			serverless_provider_name, serverless_endpoint, serverless_metadata_json,
			spot_provider_name, spot_endpoint, spot_metadata_json,
			router_url
		FROM deployments
	`
	var rows *sql.Rows
	if statusFilter != "" {
		query += " WHERE status = ? ORDER BY created_at DESC"
		rows, err = db.QueryContext(ctx, query, statusFilter)
	} else {
		query += " ORDER BY created_at DESC"
		rows, err = db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("state: listing deployments: %w", err)
	}
	defer rows.Close()

	var out []*models.DeploymentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("state: scanning deployment row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.DeploymentRecord, error) {
	var rec models.DeploymentRecord
	var routerMeta, serverlessMeta, spotMeta sql.NullString
	var modelName, gpu, serverlessProvider, spotsCloud, region sql.NullString
	var gpuCount sql.NullInt64
	var requestJSON, routerEndpoint, serverlessProviderName, serverlessEndpoint sql.NullString
	var spotProviderName, spotEndpoint, routerURL sql.NullString

	err := row.Scan(
		&rec.ServiceName, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
		&modelName, &gpu, &gpuCount, &serverlessProvider, &spotsCloud, &region,
		&requestJSON,
		&routerEndpoint, &routerMeta,
		&serverlessProviderName, &serverlessEndpoint, &serverlessMeta,
		&spotProviderName, &spotEndpoint, &spotMeta,
		&routerURL,
	)
	if err != nil {
		return nil, err
	}

	rec.ModelName = modelName.String
	rec.GPU = gpu.String
	rec.GPUCount = int(gpuCount.Int64)
	rec.ServerlessProvider = serverlessProvider.String
	rec.SpotsCloud = spotsCloud.String
	rec.Region = region.String
	rec.RequestJSON = requestJSON.String
	rec.RouterEndpoint = routerEndpoint.String
	rec.ServerlessProviderName = serverlessProviderName.String
	rec.ServerlessEndpoint = serverlessEndpoint.String
	rec.SpotProviderName = spotProviderName.String
	rec.SpotEndpoint = spotEndpoint.String
	rec.RouterURL = routerURL.String

	rec.RouterMetadata, err = unmarshalMeta(routerMeta.String)
	if err != nil {
		return nil, err
	}
	rec.ServerlessMetadata, err = unmarshalMeta(serverlessMeta.String)
	if err != nil {
		return nil, err
	}
	rec.SpotMetadata, err = unmarshalMeta(spotMeta.String)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func marshalMeta(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("state: marshaling metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMeta(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("state: unmarshaling metadata: %w", err)
	}
	return meta, nil
}

func recordFromRequestAndResult(req *models.DeployRequest, result *models.HybridDeployment) *models.DeploymentRecord {
	rec := &models.DeploymentRecord{
		ServiceName:        req.ServiceName,
		Status:             models.StatusActive,
		ModelName:          req.ModelName,
		GPU:                req.GPU,
		GPUCount:           req.GPUCount,
		ServerlessProvider: req.ServerlessProvider,
		SpotsCloud:         req.SpotsCloud,
		Region:             req.Region,
		// Provider names always come from the request, not the result, so
		// an interrupted deploy is still destroyable.
		ServerlessProviderName: req.ServerlessProvider,
	}
	if !req.ServerlessOnly {
		rec.SpotProviderName = "skyserve"
	}
	if result == nil {
		return rec
	}
	if result.RouterURL != "" {
		rec.RouterURL = result.RouterURL
	}
	if result.Router != nil {
		rec.RouterEndpoint = result.Router.EndpointURL
		rec.RouterMetadata = result.Router.Metadata
		if !result.Router.OK() {
			rec.Status = models.StatusFailed
		}
	}
	if result.Serverless != nil {
		rec.ServerlessEndpoint = result.Serverless.EndpointURL
		rec.ServerlessMetadata = result.Serverless.Metadata
		if !result.Serverless.OK() {
			rec.Status = models.StatusFailed
		}
	}
	if result.Spot != nil {
		rec.SpotEndpoint = result.Spot.EndpointURL
		rec.SpotMetadata = result.Spot.Metadata
		if !result.Spot.OK() {
			rec.Status = models.StatusFailed
		}
	}
	return rec
}
