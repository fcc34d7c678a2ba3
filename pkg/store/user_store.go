package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/models"
)

const userColumns = `id, email, username, display_name, avatar_url, password_hash,
	online, last_seen, created_at, updated_at, notifications, show_online, read_receipts`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.DisplayName, &user.AvatarURL,
		&user.PasswordHash, &user.Online, &user.LastSeen, &user.CreatedAt, &user.UpdatedAt,
		&user.Settings.Notifications, &user.Settings.ShowOnline, &user.Settings.ReadReceipts,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) CreateUser(user *models.User) error {
	s.logger.Info("Creating user", "email", user.Email, "username", user.Username)

	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	user.LastSeen = user.CreatedAt

	query := `
		INSERT INTO users (id, email, username, username_lower, display_name, avatar_url,
			password_hash, online, last_seen, created_at, updated_at,
			notifications, show_online, read_receipts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	err := s.DB.QueryRow(
		query,
		user.ID, user.Email, user.Username, strings.ToLower(user.Username),
		user.DisplayName, user.AvatarURL, user.PasswordHash,
		user.Online, user.LastSeen, user.CreatedAt, user.UpdatedAt,
		user.Settings.Notifications, user.Settings.ShowOnline, user.Settings.ReadReceipts,
	).Scan(&user.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			switch {
			case strings.Contains(pqErr.Constraint, "email"):
				return apperrors.New(apperrors.CodeEmailInUse, "email is already registered")
			case strings.Contains(pqErr.Constraint, "username"):
				return apperrors.New(apperrors.CodeUsernameTaken, "username is already taken")
			}
		}
		s.logger.Error("Failed to create user", "error", err, "email", user.Email)
		return apperrors.StoreUnavailable(err)
	}

	s.logger.Info("User created successfully", "user_id", user.ID, "username", user.Username)
	return nil
}

func (s *Store) GetUserByID(userID string) (*models.User, error) {
	user, err := scanUser(s.DB.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to get user by ID", "error", err, "user_id", userID)
		return nil, err
	}
	return user, nil
}

func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	user, err := scanUser(s.DB.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to get user by email", "error", err)
		return nil, err
	}
	return user, nil
}

// GetUserByUsername looks up a user by case-folded username.
func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	user, err := scanUser(s.DB.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE username_lower = $1`,
		strings.ToLower(username)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to get user by username", "error", err, "username", username)
		return nil, err
	}
	return user, nil
}

func (s *Store) GetUsersByIDs(userIDs []string) ([]models.User, error) {
	if len(userIDs) == 0 {
		return []models.User{}, nil
	}

	rows, err := s.DB.Query(
		`SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Array(userIDs))
	if err != nil {
		s.logger.Error("Failed to get users by IDs", "error", err, "user_count", len(userIDs))
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserSettings(userID string, updates *models.SettingsUpdateRequest) error {
	s.logger.Info("Updating user settings", "user_id", userID)

	query := `
		UPDATE users
		SET display_name = COALESCE($2, display_name),
			avatar_url = COALESCE($3, avatar_url),
			notifications = COALESCE($4, notifications),
			show_online = COALESCE($5, show_online),
			read_receipts = COALESCE($6, read_receipts),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING id`

	err := s.DB.QueryRow(query, userID,
		updates.DisplayName, updates.AvatarURL,
		updates.Notifications, updates.ShowOnline, updates.ReadReceipts,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("user not found")
	}
	if err != nil {
		s.logger.Error("Failed to update user settings", "error", err, "user_id", userID)
		return apperrors.StoreUnavailable(err)
	}
	return nil
}

// SetUserPresence writes the online flag and last-seen timestamp. This is the
// compensating write the hub applies on connect and disconnect; advisory class.
func (s *Store) SetUserPresence(userID string, online bool, lastSeen time.Time) {
	_, err := s.DB.Exec(
		`UPDATE users SET online = $1, last_seen = $2 WHERE id = $3`,
		online, lastSeen, userID)
	s.advisory("presence.db", err)

	s.CachePresence(models.UserPresence{UserID: userID, Online: online, LastSeen: lastSeen})
}

func (s *Store) CreateUserSession(userID, sessionID, deviceInfo, ipAddress string) error {
	query := `
		INSERT INTO user_sessions (user_id, session_id, device_info, ip_address)
		VALUES ($1, $2, $3, $4)`

	_, err := s.DB.Exec(query, userID, sessionID, deviceInfo, ipAddress)
	if err != nil {
		s.logger.Error("Failed to create user session",
			"error", err, "user_id", userID, "session_id", sessionID)
		return apperrors.StoreUnavailable(err)
	}
	return nil
}

func (s *Store) GetUserSession(sessionID string) (*models.UserSession, error) {
	query := `
		SELECT user_id, session_id, device_info, ip_address, last_active, created_at, is_active
		FROM user_sessions WHERE session_id = $1`

	session := &models.UserSession{}
	err := s.DB.QueryRow(query, sessionID).Scan(
		&session.UserID, &session.SessionID, &session.DeviceInfo,
		&session.IPAddress, &session.LastActive, &session.CreatedAt, &session.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to get user session", "error", err, "session_id", sessionID)
		return nil, err
	}
	return session, nil
}

func (s *Store) DeleteSession(sessionID string) error {
	_, err := s.DB.Exec(`DELETE FROM user_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		s.logger.Error("Failed to delete session", "error", err, "session_id", sessionID)
		return apperrors.StoreUnavailable(err)
	}
	s.logger.Info("Session deleted", "session_id", sessionID)
	return nil
}
