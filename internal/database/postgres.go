package database

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/devikshitij/classjournal-backend/pkg/utils"
)

var PostgresDB *sql.DB

// ConnectPostgres connects to PostgreSQL database
func ConnectPostgres(postgresURI string) error {
	var err error

	PostgresDB, err = sql.Open("postgres", postgresURI)
	if err != nil {
		return err
	}

	// Set connection pool settings
	PostgresDB.SetMaxOpenConns(25)
	PostgresDB.SetMaxIdleConns(5)
	PostgresDB.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err = PostgresDB.Ping(); err != nil {
		return err
	}

	log.Println("✅ Connected to PostgreSQL")

	// Initialize tables
	if err = InitPostgresTables(); err != nil {
		return err
	}

	return nil
}

// InitPostgresTables creates the enum types and tables if they don't exist.
// Foreign-key integrity lives here: tags and journals cannot reference
// missing users, and deleting a journal cascades to its tags.
func InitPostgresTables() error {
	queries := []string{
		`DO $$ BEGIN CREATE TYPE user_role AS ENUM ('student', 'teacher'); EXCEPTION WHEN duplicate_object THEN null; END $$;`,
		`DO $$ BEGIN CREATE TYPE attachment_kind AS ENUM ('image', 'video', 'url', 'pdf'); EXCEPTION WHEN duplicate_object THEN null; END $$;`,

		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			password VARCHAR(255) NOT NULL,
			user_type user_role NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS journals (
			id SERIAL PRIMARY KEY,
			description TEXT NOT NULL,
			published_at TIMESTAMP NOT NULL,
			attachment_type attachment_kind,
			attachment_url TEXT,
			teacher_id INT NOT NULL REFERENCES users(id)
		)`,

		`CREATE TABLE IF NOT EXISTS tags (
			id SERIAL PRIMARY KEY,
			student_id INT NOT NULL REFERENCES users(id),
			journal_id INT NOT NULL REFERENCES journals(id) ON DELETE CASCADE,
			UNIQUE(student_id, journal_id)
		)`,

		// Create indexes for better performance
		`CREATE INDEX IF NOT EXISTS idx_journals_teacher_id ON journals(teacher_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tags_journal_id ON tags(journal_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tags_student_id ON tags(student_id)`,
	}

	for _, query := range queries {
		if _, err := PostgresDB.Exec(query); err != nil {
			return err
		}
	}

	log.Println("✅ PostgreSQL tables initialized")
	return nil
}

// SeedUsers provisions the demo accounts (three students, three teachers)
// when the users table is empty. Passwords are stored hashed, never plain.
func SeedUsers() error {
	var count int
	if err := PostgresDB.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seed := []struct {
		username string
		password string
		role     string
	}{
		{"student1", "password1", "student"},
		{"student2", "password2", "student"},
		{"student3", "password3", "student"},
		{"teacher1", "password4", "teacher"},
		{"teacher2", "password5", "teacher"},
		{"teacher3", "password6", "teacher"},
	}

	for _, u := range seed {
		hash, err := utils.HashPassword(u.password)
		if err != nil {
			return err
		}
		_, err = PostgresDB.Exec(`
			INSERT INTO users (username, password, user_type)
			VALUES ($1, $2, $3)
			ON CONFLICT (username) DO NOTHING
		`, u.username, hash, u.role)
		if err != nil {
			return err
		}
	}

	log.Println("✅ Seed users inserted")
	return nil
}

// DisconnectPostgres closes the PostgreSQL connection
func DisconnectPostgres() error {
	if PostgresDB != nil {
		return PostgresDB.Close()
	}
	return nil
}
