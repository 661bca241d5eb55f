package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/inamate/compositor/internal/document"
	"github.com/inamate/compositor/internal/scene"
)

// fixtures serves read-only scenes from SCENE_DIR in front of the database.
// Anyone may watch them and edits made by viewers are never persisted.
type fixtures struct {
	docs  map[string][]byte
	scene *scene.Service
}

func loadFixtures(dir string, svc *scene.Service) (*fixtures, error) {
	f := &fixtures{docs: make(map[string][]byte), scene: svc}
	if dir == "" {
		return f, nil
	}
	docs, err := document.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		data, err := document.Marshal(doc, document.FormatJSON)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", doc.Project.ID, err)
		}
		f.docs[doc.Project.ID] = data
		slog.Info("loaded fixture scene", "scene", doc.Project.ID, "name", doc.Project.Name)
	}
	return f, nil
}

// Load returns a fresh copy of a fixture, or the stored document.
func (f *fixtures) Load(ctx context.Context, sceneID string) (*document.InDocument, error) {
	if data, ok := f.docs[sceneID]; ok {
		return document.Parse(data, document.FormatJSON)
	}
	return f.scene.Load(ctx, sceneID)
}

func (f *fixtures) Save(ctx context.Context, sceneID string, doc *document.InDocument) (int, error) {
	if _, ok := f.docs[sceneID]; ok {
		return 0, nil
	}
	return f.scene.Save(ctx, sceneID, doc)
}

func (f *fixtures) Authorize(ctx context.Context, sceneID, userID string) error {
	if _, ok := f.docs[sceneID]; ok {
		return nil
	}
	return f.scene.Authorize(ctx, sceneID, userID)
}
