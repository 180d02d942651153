package database

import (
	"bufio"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "github.com/lib/pq"
)

// NewDB opens the snapshot database. An explicit URL from configuration
// wins; otherwise DATABASE_URL is taken from the environment or from a
// local .env file.
func NewDB(configURL string) (*sql.DB, error) {
	dbURL := strings.TrimSpace(configURL)
	if dbURL == "" {
		var err error
		dbURL, err = resolveDatabaseURL()
		if err != nil {
			return nil, fmt.Errorf("failed to get database URL: %w", err)
		}
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return db, nil
}

func resolveDatabaseURL() (string, error) {
	if direct := strings.TrimSpace(os.Getenv("DATABASE_URL")); direct != "" {
		return direct, nil
	}
	if v, ok := readEnvFile(".env", "DATABASE_URL"); ok {
		return v, nil
	}
	return "", errors.New("DATABASE_URL not found in environment or .env")
}

// readEnvFile scans a dotenv-style file for one key. Quotes around the
// value are stripped; comments and malformed lines are skipped.
func readEnvFile(path, key string) (string, bool) {
	file, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, found := strings.Cut(line, "=")
		if !found || strings.TrimSpace(k) != key {
			continue
		}
		v = strings.Trim(strings.TrimSpace(v), "\"'")
		if v == "" {
			return "", false
		}
		return v, true
	}
	return "", false
}
