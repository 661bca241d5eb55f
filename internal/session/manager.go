package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/inamate/compositor/internal/document"
	"github.com/inamate/compositor/internal/raster"
)

var ErrNotRunning = errors.New("scene is not running")

// saveTimeout bounds the snapshot written when a session stops.
const saveTimeout = 10 * time.Second

// Loader fetches the current document of a scene.
type Loader func(ctx context.Context, sceneID string) (*document.InDocument, error)

// Saver stores a document as the next snapshot of a scene.
type Saver func(ctx context.Context, sceneID string, doc *document.InDocument) (int, error)

// Option configures a Manager.
type Option func(*Manager)

func WithSaver(s Saver) Option { return func(m *Manager) { m.save = s } }

func WithStats(s StatsStore) Option { return func(m *Manager) { m.deps.stats = s } }

func WithPublisher(p FramePublisher) Option { return func(m *Manager) { m.deps.pub = p } }

func WithAssets(a raster.AssetSource) Option { return func(m *Manager) { m.deps.assets = a } }

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

type running struct {
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}
	viewers int
}

// Manager starts a session when the first viewer joins a scene and stops it
// when the last one leaves.
type Manager struct {
	cfg    Config
	load   Loader
	save   Saver
	deps   deps
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*running
}

func NewManager(cfg Config, load Loader, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		load:     load,
		logger:   slog.New(slog.DiscardHandler),
		sessions: make(map[string]*running),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.deps.logger = m.logger
	return m
}

// Join registers a viewer of sceneID, starting its session if needed.
func (m *Manager) Join(ctx context.Context, sceneID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.sessions[sceneID]; ok {
		r.viewers++
		return nil
	}
	doc, err := m.load(ctx, sceneID)
	if err != nil {
		return fmt.Errorf("load scene %s: %w", sceneID, err)
	}
	s, err := newSession(sceneID, doc, m.cfg, m.deps)
	if err != nil {
		return fmt.Errorf("start scene %s: %w", sceneID, err)
	}
	r := m.start(s)
	r.viewers = 1
	m.sessions[sceneID] = r
	return nil
}

// Leave unregisters a viewer. The session stops, and its document is
// saved, once nobody watches.
func (m *Manager) Leave(sceneID string) {
	m.mu.Lock()
	r, ok := m.sessions[sceneID]
	if !ok {
		m.mu.Unlock()
		return
	}
	r.viewers--
	if r.viewers > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, sceneID)
	m.mu.Unlock()

	m.stop(r)
}

// Close stops every session.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*running, 0, len(m.sessions))
	for id, r := range m.sessions {
		all = append(all, r)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, r := range all {
		m.stop(r)
	}
}

// Running reports whether sceneID has a live session.
func (m *Manager) Running(sceneID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sceneID]
	return ok
}

// Apply queues a viewer operation on a running scene.
func (m *Manager) Apply(sceneID string, op Operation) (int64, error) {
	s, err := m.session(sceneID)
	if err != nil {
		return 0, err
	}
	return s.Apply(op)
}

// Document returns the JSON document of a running scene and the operation
// sequence it reflects.
func (m *Manager) Document(sceneID string) ([]byte, int64, error) {
	s, err := m.session(sceneID)
	if err != nil {
		return nil, 0, err
	}
	return s.state.Encode()
}

// Frame returns the current picture of a scene. A running scene answers
// from its canvas; otherwise the scene is loaded and painted once.
func (m *Manager) Frame(ctx context.Context, sceneID string) (*image.RGBA, error) {
	if s, err := m.session(sceneID); err == nil {
		return s.Snapshot(), nil
	}
	doc, err := m.load(ctx, sceneID)
	if err != nil {
		return nil, fmt.Errorf("load scene %s: %w", sceneID, err)
	}
	d := m.deps
	d.pub, d.stats = nil, nil
	s, err := newSession(sceneID, doc, m.cfg, d)
	if err != nil {
		return nil, err
	}
	if _, err := s.Step(ctx); err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// DocumentSaved picks up a document stored outside the session. Content
// changes are swapped in place; a different size, background or root
// restarts the session.
func (m *Manager) DocumentSaved(sceneID string, doc *document.InDocument) {
	m.mu.Lock()
	r, ok := m.sessions[sceneID]
	if !ok {
		m.mu.Unlock()
		return
	}
	sc, err := doc.Scene("")
	if err == nil && sc.ID == r.session.scene.ID && sc.Root == r.session.scene.Root &&
		sc.Width == r.session.scene.Width && sc.Height == r.session.scene.Height &&
		sc.Background == r.session.scene.Background {
		m.mu.Unlock()
		if err := r.session.replace(doc); err != nil {
			m.logger.Warn("replace scene document", "scene", sceneID, "error", err)
		}
		return
	}

	next, err := newSession(sceneID, doc, m.cfg, m.deps)
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("restart scene", "scene", sceneID, "error", err)
		return
	}
	viewers := r.viewers
	nr := m.start(next)
	nr.viewers = viewers
	m.sessions[sceneID] = nr
	m.mu.Unlock()

	// The saved document supersedes unsaved operations of the old session.
	r.session.state.Replace(doc)
	m.stop(r)
}

func (m *Manager) session(sceneID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.sessions[sceneID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", sceneID, ErrNotRunning)
	}
	return r.session, nil
}

func (m *Manager) start(s *Session) *running {
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{session: s, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		s.Run(ctx)
	}()
	return r
}

func (m *Manager) stop(r *running) {
	r.cancel()
	<-r.done
	m.persist(r.session)
}

func (m *Manager) persist(s *Session) {
	if m.save == nil || !s.state.Dirty() {
		return
	}
	doc, seq, err := s.state.Clone()
	if err != nil {
		m.logger.Error("copy scene document", "scene", s.id, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	version, err := m.save(ctx, s.id, doc)
	if err != nil {
		m.logger.Error("save scene snapshot", "scene", s.id, "error", err)
		return
	}
	s.state.MarkSaved(seq)
	m.logger.Info("scene snapshot saved", "scene", s.id, "version", version, "seq", seq)
}
