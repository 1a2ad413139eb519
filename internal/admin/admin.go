package admin

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/playmatatu/pairrooms/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrDisabled is returned when no database is configured
	ErrDisabled = errors.New("admin features disabled")

	// ErrInvalidCredentials covers unknown usernames and wrong passwords alike
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// GetAdminAccount retrieves an admin account by username
func GetAdminAccount(db *sqlx.DB, username string) (*models.AdminAccount, error) {
	if db == nil {
		return nil, ErrDisabled
	}
	var acc models.AdminAccount
	err := db.Get(&acc, `SELECT username, display_name, password_hash, roles, created_at, updated_at FROM admin_accounts WHERE username=$1`, username)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// CreateAdminAccount creates or updates an admin account
func CreateAdminAccount(db *sqlx.DB, username, displayName, password string, roles []string) error {
	if db == nil {
		return ErrDisabled
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO admin_accounts (username, display_name, password_hash, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (username) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			password_hash = EXCLUDED.password_hash,
			roles = EXCLUDED.roles,
			updated_at = NOW()
	`, username, displayName, string(hash), pq.Array(roles))
	return err
}

// ValidateAdminCredentials checks a username/password pair
func ValidateAdminCredentials(db *sqlx.DB, username, password string) (*models.AdminAccount, error) {
	acc, err := GetAdminAccount(db, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return acc, nil
}

// LogAdminAction records an admin action in the audit log. Without a
// database the action only goes to the process log.
func LogAdminAction(db *sqlx.DB, username, ip, route, action string, details map[string]interface{}, success bool) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	log.Info().Str("module", "admin").Str("admin", username).Str("ip", ip).Str("route", route).
		Str("action", action).Bool("success", success).RawJSON("details", detailsJSON).Msg("admin action")

	if db == nil {
		return nil
	}
	_, err = db.Exec(`
		INSERT INTO admin_audit (admin_username, ip, route, action, details, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, username, ip, route, action, string(detailsJSON), success)
	if err != nil {
		log.Error().Str("module", "admin").Err(err).Msg("failed to write audit row")
	}
	return err
}

// GetAdminAuditLogs retrieves recent audit rows, newest first. An empty
// username returns every admin's rows.
func GetAdminAuditLogs(db *sqlx.DB, username string, limit, offset int) ([]models.AdminAudit, int, error) {
	if db == nil {
		return nil, 0, ErrDisabled
	}
	type row struct {
		models.AdminAudit
		TotalCount int `db:"total_count"`
	}
	var rows []row
	err := db.Select(&rows, `
		SELECT id, admin_username, ip, route, action, details, success, created_at,
			COUNT(*) OVER() AS total_count
		FROM admin_audit
		WHERE ($1 = '' OR admin_username = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, username, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	logs := make([]models.AdminAudit, 0, len(rows))
	total := 0
	for _, r := range rows {
		logs = append(logs, r.AdminAudit)
		total = r.TotalCount
	}
	return logs, total, nil
}
