package database

import (
	"database/sql"
)

type PgWatchRoomRepository struct {
	conn *sql.DB
}

func NewPgWatchRoomRepository(dsn string) (*PgWatchRoomRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgWatchRoomRepository{conn: db}, nil
}

func (db *PgWatchRoomRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgWatchRoomRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
