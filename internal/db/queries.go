package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// --- users ---

type CreateUserParams struct {
	ID          string
	Email       string
	Password    string
	DisplayName string
}

const createUser = `INSERT INTO users (id, email, password, display_name)
VALUES ($1, $2, $3, $4)
RETURNING id, email, password, display_name, created_at`

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser, arg.ID, arg.Email, arg.Password, arg.DisplayName)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.DisplayName, &u.CreatedAt)
	return u, err
}

const getUserByEmail = `SELECT id, email, password, display_name, created_at FROM users WHERE email = $1`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, getUserByEmail, email).Scan(&u.ID, &u.Email, &u.Password, &u.DisplayName, &u.CreatedAt)
	return u, err
}

const getUserByID = `SELECT id, email, password, display_name, created_at FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, getUserByID, id).Scan(&u.ID, &u.Email, &u.Password, &u.DisplayName, &u.CreatedAt)
	return u, err
}

// --- scenes ---

type CreateSceneParams struct {
	ID      string
	Name    string
	OwnerID string
	Width   int32
	Height  int32
	Public  bool
}

const sceneColumns = `id, name, owner_id, width, height, public, created_at, updated_at`

func scanScene(row pgx.Row) (Scene, error) {
	var s Scene
	err := row.Scan(&s.ID, &s.Name, &s.OwnerID, &s.Width, &s.Height, &s.Public, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

const createScene = `INSERT INTO scenes (id, name, owner_id, width, height, public)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + sceneColumns

func (q *Queries) CreateScene(ctx context.Context, arg CreateSceneParams) (Scene, error) {
	return scanScene(q.db.QueryRow(ctx, createScene, arg.ID, arg.Name, arg.OwnerID, arg.Width, arg.Height, arg.Public))
}

const getScene = `SELECT ` + sceneColumns + ` FROM scenes WHERE id = $1`

func (q *Queries) GetScene(ctx context.Context, id string) (Scene, error) {
	return scanScene(q.db.QueryRow(ctx, getScene, id))
}

const listScenesForOwner = `SELECT ` + sceneColumns + ` FROM scenes WHERE owner_id = $1 ORDER BY updated_at DESC`

func (q *Queries) ListScenesForOwner(ctx context.Context, ownerID string) ([]Scene, error) {
	rows, err := q.db.Query(ctx, listScenesForOwner, ownerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (Scene, error) { return scanScene(r) })
}

const deleteScene = `DELETE FROM scenes WHERE id = $1`

func (q *Queries) DeleteScene(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, deleteScene, id)
	return err
}

const touchScene = `UPDATE scenes SET updated_at = now() WHERE id = $1`

func (q *Queries) TouchScene(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, touchScene, id)
	return err
}

// --- snapshots ---

type CreateSnapshotParams struct {
	ID       string
	SceneID  string
	Version  int32
	Document []byte
}

const createSnapshot = `INSERT INTO snapshots (id, scene_id, version, document)
VALUES ($1, $2, $3, $4)
RETURNING id, scene_id, version, document, created_at`

func (q *Queries) CreateSnapshot(ctx context.Context, arg CreateSnapshotParams) (Snapshot, error) {
	var s Snapshot
	err := q.db.QueryRow(ctx, createSnapshot, arg.ID, arg.SceneID, arg.Version, arg.Document).
		Scan(&s.ID, &s.SceneID, &s.Version, &s.Document, &s.CreatedAt)
	return s, err
}

const getLatestSnapshot = `SELECT id, scene_id, version, document, created_at
FROM snapshots WHERE scene_id = $1 ORDER BY version DESC LIMIT 1`

func (q *Queries) GetLatestSnapshot(ctx context.Context, sceneID string) (Snapshot, error) {
	var s Snapshot
	err := q.db.QueryRow(ctx, getLatestSnapshot, sceneID).
		Scan(&s.ID, &s.SceneID, &s.Version, &s.Document, &s.CreatedAt)
	return s, err
}

// --- pulse stats ---

type InsertPulseStatParams struct {
	SceneID    string
	Pulse      int64
	Visited    int32
	Culled     int32
	Regions    int32
	Status     string
	RootDepth  int32
	DurationUs int64
}

const insertPulseStat = `INSERT INTO pulse_stats (scene_id, pulse, visited, culled, regions, status, root_depth, duration_us)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (q *Queries) InsertPulseStat(ctx context.Context, arg InsertPulseStatParams) error {
	_, err := q.db.Exec(ctx, insertPulseStat,
		arg.SceneID, arg.Pulse, arg.Visited, arg.Culled, arg.Regions, arg.Status, arg.RootDepth, arg.DurationUs)
	return err
}

const listPulseStats = `SELECT scene_id, pulse, visited, culled, regions, status, root_depth, duration_us, recorded_at
FROM pulse_stats WHERE scene_id = $1 ORDER BY recorded_at DESC LIMIT $2`

func (q *Queries) ListPulseStats(ctx context.Context, sceneID string, limit int32) ([]PulseStat, error) {
	rows, err := q.db.Query(ctx, listPulseStats, sceneID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (PulseStat, error) {
		var s PulseStat
		err := r.Scan(&s.SceneID, &s.Pulse, &s.Visited, &s.Culled, &s.Regions, &s.Status, &s.RootDepth, &s.DurationUs, &s.RecordedAt)
		return s, err
	})
}
