// Package scene manages stored scenes: ownership, document snapshots and
// the pulse statistics recorded while they play.
package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/inamate/compositor/internal/db"
	"github.com/inamate/compositor/internal/document"
	"github.com/inamate/compositor/internal/typeid"
)

var (
	ErrNotFound  = errors.New("scene not found")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid document")
)

// Store is the subset of db.Queries the service needs.
type Store interface {
	CreateScene(ctx context.Context, arg db.CreateSceneParams) (db.Scene, error)
	GetScene(ctx context.Context, id string) (db.Scene, error)
	ListScenesForOwner(ctx context.Context, ownerID string) ([]db.Scene, error)
	DeleteScene(ctx context.Context, id string) error
	TouchScene(ctx context.Context, id string) error
	CreateSnapshot(ctx context.Context, arg db.CreateSnapshotParams) (db.Snapshot, error)
	GetLatestSnapshot(ctx context.Context, sceneID string) (db.Snapshot, error)
	ListPulseStats(ctx context.Context, sceneID string, limit int32) ([]db.PulseStat, error)
}

// SnapshotListener is told about every document saved through the API, so
// a running session can pick it up.
type SnapshotListener interface {
	DocumentSaved(sceneID string, doc *document.InDocument)
}

type Service struct {
	store    Store
	listener SnapshotListener
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// SetListener registers l for saved documents.
func (s *Service) SetListener(l SnapshotListener) {
	s.listener = l
}

type Scene struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerID   string `json:"ownerId"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Public    bool   `json:"public"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type CreateParams struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Public bool   `json:"public"`
	// Sample seeds the scene with the built-in demo document.
	Sample bool `json:"sample"`
}

// Create stores a scene and its first snapshot.
func (s *Service) Create(ctx context.Context, ownerID string, p CreateParams) (*Scene, error) {
	sceneID := typeid.Scene.New()

	var doc *document.InDocument
	if p.Sample {
		doc = document.NewSampleDocument(sceneID)
		doc.Project.Name = p.Name
		if sc, err := doc.Scene(""); err == nil {
			p.Width, p.Height = sc.Width, sc.Height
		}
	} else {
		if p.Width <= 0 || p.Height <= 0 {
			p.Width, p.Height = 1280, 720
		}
		doc = document.NewEmptyDocument(sceneID, p.Name, typeid.Scene.New(), typeid.Node.New(), p.Width, p.Height)
	}

	dbScene, err := s.store.CreateScene(ctx, db.CreateSceneParams{
		ID:      sceneID,
		Name:    p.Name,
		OwnerID: ownerID,
		Width:   int32(p.Width),
		Height:  int32(p.Height),
		Public:  p.Public,
	})
	if err != nil {
		return nil, fmt.Errorf("create scene: %w", err)
	}

	if _, err := s.writeSnapshot(ctx, sceneID, 1, doc); err != nil {
		return nil, fmt.Errorf("create initial snapshot: %w", err)
	}
	return toScene(dbScene), nil
}

// Get returns a scene its owner can see, or any public scene.
func (s *Service) Get(ctx context.Context, sceneID, userID string) (*Scene, error) {
	dbScene, err := s.lookup(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if !dbScene.Public && dbScene.OwnerID != userID {
		return nil, ErrForbidden
	}
	return toScene(dbScene), nil
}

// Authorize reports whether userID may watch sceneID. An empty userID is an
// anonymous viewer.
func (s *Service) Authorize(ctx context.Context, sceneID, userID string) error {
	_, err := s.Get(ctx, sceneID, userID)
	return err
}

func (s *Service) List(ctx context.Context, userID string) ([]Scene, error) {
	dbScenes, err := s.store.ListScenesForOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	scenes := make([]Scene, len(dbScenes))
	for i, sc := range dbScenes {
		scenes[i] = *toScene(sc)
	}
	return scenes, nil
}

func (s *Service) Delete(ctx context.Context, sceneID, userID string) error {
	dbScene, err := s.lookup(ctx, sceneID)
	if err != nil {
		return err
	}
	if dbScene.OwnerID != userID {
		return ErrForbidden
	}
	return s.store.DeleteScene(ctx, sceneID)
}

// GetLatestSnapshot returns the newest stored document as raw JSON.
func (s *Service) GetLatestSnapshot(ctx context.Context, sceneID, userID string) (json.RawMessage, error) {
	if _, err := s.Get(ctx, sceneID, userID); err != nil {
		return nil, err
	}
	snap, err := s.latest(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	return snap.Document, nil
}

// SaveSnapshot validates a document submitted by the scene's owner and
// stores it as the next version.
func (s *Service) SaveSnapshot(ctx context.Context, sceneID, userID string, data []byte) (int, error) {
	dbScene, err := s.lookup(ctx, sceneID)
	if err != nil {
		return 0, err
	}
	if dbScene.OwnerID != userID {
		return 0, ErrForbidden
	}
	doc, err := document.Parse(data, document.FormatJSON)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	version, err := s.Save(ctx, sceneID, doc)
	if err != nil {
		return 0, err
	}
	if s.listener != nil {
		s.listener.DocumentSaved(sceneID, doc)
	}
	return version, nil
}

// Load returns the latest document of a scene without access checks. It is
// meant for the render sessions.
func (s *Service) Load(ctx context.Context, sceneID string) (*document.InDocument, error) {
	snap, err := s.latest(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	doc, err := document.Parse(snap.Document, document.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	doc.Project.Version = int(snap.Version)
	return doc, nil
}

// Save stores doc as the next snapshot version of a scene.
func (s *Service) Save(ctx context.Context, sceneID string, doc *document.InDocument) (int, error) {
	version := 1
	snap, err := s.store.GetLatestSnapshot(ctx, sceneID)
	switch {
	case err == nil:
		version = int(snap.Version) + 1
	case !errors.Is(err, pgx.ErrNoRows):
		return 0, fmt.Errorf("get snapshot: %w", err)
	}
	if _, err := s.writeSnapshot(ctx, sceneID, version, doc); err != nil {
		return 0, err
	}
	if err := s.store.TouchScene(ctx, sceneID); err != nil {
		return 0, fmt.Errorf("touch scene: %w", err)
	}
	return version, nil
}

// PulseStat is one sampled engine pulse.
type PulseStat struct {
	Pulse      int64   `json:"pulse"`
	Visited    int     `json:"visited"`
	Culled     int     `json:"culled"`
	Regions    int     `json:"regions"`
	Status     string  `json:"status"`
	RootDepth  int     `json:"rootDepth"`
	DurationMs float64 `json:"durationMs"`
	RecordedAt string  `json:"recordedAt"`
}

// Stats returns up to limit of the most recent pulse statistics.
func (s *Service) Stats(ctx context.Context, sceneID, userID string, limit int) ([]PulseStat, error) {
	if _, err := s.Get(ctx, sceneID, userID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListPulseStats(ctx, sceneID, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("list pulse stats: %w", err)
	}
	out := make([]PulseStat, len(rows))
	for i, r := range rows {
		out[i] = PulseStat{
			Pulse:      r.Pulse,
			Visited:    int(r.Visited),
			Culled:     int(r.Culled),
			Regions:    int(r.Regions),
			Status:     r.Status,
			RootDepth:  int(r.RootDepth),
			DurationMs: float64(r.DurationUs) / 1000,
			RecordedAt: r.RecordedAt.Time.Format(time.RFC3339),
		}
	}
	return out, nil
}

func (s *Service) writeSnapshot(ctx context.Context, sceneID string, version int, doc *document.InDocument) (db.Snapshot, error) {
	doc.Project.Version = version
	data, err := json.Marshal(doc)
	if err != nil {
		return db.Snapshot{}, fmt.Errorf("marshal document: %w", err)
	}
	snap, err := s.store.CreateSnapshot(ctx, db.CreateSnapshotParams{
		ID:       typeid.Snapshot.New(),
		SceneID:  sceneID,
		Version:  int32(version),
		Document: data,
	})
	if err != nil {
		return db.Snapshot{}, fmt.Errorf("create snapshot: %w", err)
	}
	return snap, nil
}

func (s *Service) lookup(ctx context.Context, sceneID string) (db.Scene, error) {
	dbScene, err := s.store.GetScene(ctx, sceneID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Scene{}, ErrNotFound
		}
		return db.Scene{}, fmt.Errorf("get scene: %w", err)
	}
	return dbScene, nil
}

func (s *Service) latest(ctx context.Context, sceneID string) (db.Snapshot, error) {
	snap, err := s.store.GetLatestSnapshot(ctx, sceneID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Snapshot{}, ErrNotFound
		}
		return db.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

func toScene(s db.Scene) *Scene {
	return &Scene{
		ID:        s.ID,
		Name:      s.Name,
		OwnerID:   s.OwnerID,
		Width:     int(s.Width),
		Height:    int(s.Height),
		Public:    s.Public,
		CreatedAt: s.CreatedAt.Time.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: s.UpdatedAt.Time.Format("2006-01-02T15:04:05Z"),
	}
}
