package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID          string
	Email       string
	Password    string
	DisplayName string
	CreatedAt   pgtype.Timestamptz
}

type Scene struct {
	ID        string
	Name      string
	OwnerID   string
	Width     int32
	Height    int32
	Public    bool
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

type Snapshot struct {
	ID        string
	SceneID   string
	Version   int32
	Document  []byte
	CreatedAt pgtype.Timestamptz
}

type PulseStat struct {
	SceneID    string
	Pulse      int64
	Visited    int32
	Culled     int32
	Regions    int32
	Status     string
	RootDepth  int32
	DurationUs int64
	RecordedAt pgtype.Timestamptz
}
