package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/logger"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/model"

	"github.com/rs/zerolog"
)

// SessionManager holds the Service Layer session cookie. A session is
// considered valid for the configured lifetime (30 minutes by default) from
// issuance; ensureSession re-logs in when the cached one is absent or past
// its expiry. There is no mid-flight re-login: a 401 inside a posting
// surfaces as a posting error.
type SessionManager struct {
	cfg       *config.Config
	client    *http.Client
	sessionID string
	issuedAt  time.Time
	mu        sync.RWMutex
	log       zerolog.Logger
}

func NewSessionManager(cfg *config.Config) *SessionManager {
	return &SessionManager{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.ERP.Timeout,
		},
		log: logger.Get(),
	}
}

func (s *SessionManager) GetSession(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.sessionID != "" && time.Since(s.issuedAt) < s.cfg.ERP.SessionLifetime {
		sessionID := s.sessionID
		s.mu.RUnlock()
		return sessionID, nil
	}
	s.mu.RUnlock()

	return s.login(ctx)
}

// Invalidate drops the cached session so the next call logs in again.
func (s *SessionManager) Invalidate() {
	s.mu.Lock()
	s.sessionID = ""
	s.mu.Unlock()
}

func (s *SessionManager) login(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double check after acquiring write lock
	if s.sessionID != "" && time.Since(s.issuedAt) < s.cfg.ERP.SessionLifetime {
		return s.sessionID, nil
	}

	s.log.Debug().Msg("Logging in to ERP Service Layer")

	loginReq := model.ERPLoginRequest{
		CompanyDB: s.cfg.ERP.CompanyDB,
		UserName:  s.cfg.ERP.Username,
		Password:  s.cfg.ERP.Password,
	}

	jsonData, err := json.Marshal(loginReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal login request: %w", err)
	}

	url := s.cfg.ERP.BaseURL + "/Login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status: %d", resp.StatusCode)
	}

	var loginResp model.ERPLoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}

	sessionID := loginResp.SessionID
	if sessionID == "" {
		// Some Service Layer versions only return the session as a cookie.
		for _, cookie := range resp.Cookies() {
			if cookie.Name == "B1SESSION" {
				sessionID = cookie.Value
				break
			}
		}
	}

	if sessionID == "" {
		return "", fmt.Errorf("login response carried no session id")
	}

	s.sessionID = sessionID
	s.issuedAt = time.Now()

	s.log.Debug().Time("issued_at", s.issuedAt).Msg("ERP session established")

	return s.sessionID, nil
}
