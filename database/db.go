package database

import (
	_ "embed"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// InitDB opens the SQLite database at path and initializes the schema.
// Foreign keys are enabled so card_tags cascades ride on the engine.
func InitDB(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Println("Database initialized successfully")
	return db, nil
}

// DataService handles all persistence for boards, columns, cards, tags,
// members, activities and profiles. It also evaluates row-level
// authorization: every read and write takes the acting user's id.
type DataService struct {
	db *sqlx.DB
}

func NewDataService(db *sqlx.DB) *DataService {
	return &DataService{db: db}
}
