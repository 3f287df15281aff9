package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazem-soussi-HA/hazoom/internal/llm"
)

// Preferences returns the user's preferences, creating the defaults on first use.
func (s *Store) Preferences(ctx context.Context, userID string) (*Preferences, error) {
	now := s.now().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`, userID, now, now)
	if err != nil {
		return nil, fmt.Errorf("create preferences: %w", err)
	}

	var (
		p                         Preferences
		style                     string
		sysInfo, notify, ui, priv string
		created, updated          int64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT user_id, default_level, response_style, system_info_settings, notification_settings,
			ui_settings, privacy_settings, created_at, updated_at
		FROM preferences WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.DefaultLevel, &style, &sysInfo, &notify, &ui, &priv, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	p.ResponseStyle = ResponseStyle(style)
	p.SystemInfoSettings = decodeSettings(sysInfo)
	p.NotificationSettings = decodeSettings(notify)
	p.UISettings = decodeSettings(ui)
	p.PrivacySettings = decodeSettings(priv)
	p.CreatedAt = time.Unix(0, created)
	p.UpdatedAt = time.Unix(0, updated)
	return &p, nil
}

// UpdatePreferences applies patch. Level and style are validated; settings
// maps replace the stored ones wholesale.
func (s *Store) UpdatePreferences(ctx context.Context, userID string, patch PreferencesPatch) (*Preferences, error) {
	p, err := s.Preferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	if patch.DefaultLevel != nil {
		level, err := llm.ParseLevel(*patch.DefaultLevel)
		if err != nil {
			return nil, err
		}
		p.DefaultLevel = string(level)
	}
	if patch.ResponseStyle != nil {
		style := ResponseStyle(*patch.ResponseStyle)
		if !style.Valid() {
			return nil, fmt.Errorf("invalid response style %q", *patch.ResponseStyle)
		}
		p.ResponseStyle = style
	}
	if patch.SystemInfoSettings != nil {
		p.SystemInfoSettings = patch.SystemInfoSettings
	}
	if patch.NotificationSettings != nil {
		p.NotificationSettings = patch.NotificationSettings
	}
	if patch.UISettings != nil {
		p.UISettings = patch.UISettings
	}
	if patch.PrivacySettings != nil {
		p.PrivacySettings = patch.PrivacySettings
	}

	cols := make([]string, 4)
	for i, m := range []map[string]any{p.SystemInfoSettings, p.NotificationSettings, p.UISettings, p.PrivacySettings} {
		if cols[i], err = marshalJSON(m, "{}"); err != nil {
			return nil, err
		}
	}

	p.UpdatedAt = s.now()
	_, err = s.db.ExecContext(ctx, `
		UPDATE preferences SET default_level = ?, response_style = ?, system_info_settings = ?,
			notification_settings = ?, ui_settings = ?, privacy_settings = ?, updated_at = ?
		WHERE user_id = ?`,
		p.DefaultLevel, string(p.ResponseStyle), cols[0], cols[1], cols[2], cols[3], p.UpdatedAt.UnixNano(), userID)
	if err != nil {
		return nil, fmt.Errorf("update preferences: %w", err)
	}
	return p, nil
}

func decodeSettings(raw string) map[string]any {
	m := map[string]any{}
	_ = json.Unmarshal([]byte(raw), &m)
	if m == nil {
		m = map[string]any{}
	}
	return m
}
