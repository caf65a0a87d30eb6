package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-auth/internal/models"
	appErrors "github.com/noah-isme/sma-adp-auth/pkg/errors"
)

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthService provides the login, refresh and logout use cases.
type AuthService struct {
	credentials *CredentialService
	ledger      *LedgerService
	tokens      *TokenService
	audit       auditRecorder
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthService constructs an AuthService instance. audit and metrics may be nil.
func NewAuthService(credentials *CredentialService, ledger *LedgerService, tokens *TokenService, audit auditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		credentials: credentials,
		ledger:      ledger,
		tokens:      tokens,
		audit:       audit,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type tokenPair struct {
	access    string
	refresh   string
	expiresIn int64
	issuedAt  time.Time
}

// Login authenticates a user and returns a fresh token pair. Other sessions
// of the user are left untouched.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	res, err := s.login(ctx, req)
	s.metrics.ObserveLogin(outcome(err))
	return res, err
}

func (s *AuthService) login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.credentials.FindByLoginIdentifier(ctx, req.Email)
	if err != nil {
		if errors.Is(err, appErrors.ErrRecordNotFound) {
			s.credentials.VerifyDummy(req.Password)
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, err
	}

	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}

	if !s.credentials.VerifySecret(req.Password, user.PasswordHash) {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if err := s.credentials.RecordLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	pair, err := s.issuePair(ctx, user, req.UserAgent, req.IP)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, user.ID, models.AuditActionLogin, `{"status":"success"}`, req.IP, req.UserAgent)

	return &models.LoginResponse{
		AccessToken:  pair.access,
		RefreshToken: pair.refresh,
		ExpiresIn:    pair.expiresIn,
		IssuedAt:     pair.issuedAt,
		User:         user.Summary(),
	}, nil
}

// Refresh validates a presented refresh token against the ledger, revokes it
// and returns a replacement pair. Each refresh token is single-use.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	res, err := s.refresh(ctx, req)
	s.metrics.ObserveRefresh(outcome(err))
	return res, err
}

func (s *AuthService) refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	presented := strings.TrimSpace(req.RefreshToken)
	if presented == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
	}

	claims, err := s.tokens.VerifyRefreshToken(presented)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRefreshToken.Code, appErrors.ErrInvalidRefreshToken.Status, appErrors.ErrInvalidRefreshToken.Message)
	}
	tokenID := claims.TokenID()

	record, err := s.ledger.Fetch(ctx, tokenID)
	if err != nil {
		if errors.Is(err, appErrors.ErrRecordNotFound) {
			return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
		}
		return nil, err
	}

	if record.UserID != claims.Subject {
		s.logger.Error("refresh token subject does not match ledger owner",
			zap.String("token_id", shortID(tokenID)),
			zap.String("subject", claims.Subject),
			zap.String("owner", record.UserID))
		return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
	}

	if record.Revoked() {
		s.reportReplay(ctx, record, req)
		return nil, appErrors.Clone(appErrors.ErrRefreshTokenRevoked, "")
	}

	if record.Expired(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrRefreshTokenExpired, "")
	}

	user, err := s.credentials.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, appErrors.ErrRecordNotFound) {
			return nil, appErrors.Clone(appErrors.ErrUserUnavailable, "")
		}
		return nil, err
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrUserUnavailable, "")
	}

	if err := s.ledger.RevokeIfActive(ctx, tokenID); err != nil {
		switch {
		case errors.Is(err, appErrors.ErrAlreadyRevoked):
			s.reportReplay(ctx, record, req)
			return nil, appErrors.Clone(appErrors.ErrRefreshTokenRevoked, "")
		case errors.Is(err, appErrors.ErrRecordNotFound):
			return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
		default:
			return nil, err
		}
	}

	pair, err := s.issuePair(ctx, user, req.UserAgent, req.IP)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, user.ID, models.AuditActionRefresh, `{"refresh":"rotated"}`, req.IP, req.UserAgent)

	return &models.RefreshTokenResponse{
		AccessToken:  pair.access,
		RefreshToken: pair.refresh,
		ExpiresIn:    pair.expiresIn,
		IssuedAt:     pair.issuedAt,
	}, nil
}

// Logout revokes one refresh token owned by userID. Unknown or already
// revoked tokens are accepted silently.
func (s *AuthService) Logout(ctx context.Context, userID string, req models.LogoutRequest) error {
	presented := strings.TrimSpace(req.RefreshToken)
	if presented == "" {
		return appErrors.Clone(appErrors.ErrValidation, "refresh token required")
	}

	claims, err := s.tokens.VerifyRefreshToken(presented)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInvalidRefreshToken.Code, appErrors.ErrInvalidRefreshToken.Status, appErrors.ErrInvalidRefreshToken.Message)
	}
	if claims.Subject != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}

	if err := s.ledger.Revoke(ctx, claims.TokenID()); err != nil {
		return err
	}

	s.recordAudit(ctx, userID, models.AuditActionLogout, `{"status":"logout"}`, req.IP, req.UserAgent)
	return nil
}

// LogoutAll revokes every live refresh token of userID.
func (s *AuthService) LogoutAll(ctx context.Context, userID string, meta models.LogoutRequest) (int64, error) {
	revoked, err := s.ledger.RevokeAllForUser(ctx, userID)
	if err != nil {
		return revoked, err
	}

	s.recordAudit(ctx, userID, models.AuditActionLogoutAll, fmt.Sprintf(`{"revoked":%d}`, revoked), meta.IP, meta.UserAgent)
	return revoked, nil
}

// ValidateToken verifies an access token and returns its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims, err := s.tokens.VerifyAccessToken(tokenString)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	return claims, nil
}

// AccessTTL is the lifetime hint returned to clients.
func (s *AuthService) AccessTTL() time.Duration {
	return s.tokens.AccessTTL()
}

// RefreshTTL is the lifetime of refresh tokens, used for cookie Max-Age.
func (s *AuthService) RefreshTTL() time.Duration {
	return s.tokens.RefreshTTL()
}

func (s *AuthService) issuePair(ctx context.Context, user *models.User, userAgent, clientAddress string) (*tokenPair, error) {
	tokenID, err := NewTokenID()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	access, _, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	refresh, refreshExpiresAt, err := s.tokens.IssueRefreshToken(user, tokenID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}

	if err := s.ledger.Create(ctx, user.ID, tokenID, refreshExpiresAt, userAgent, clientAddress); err != nil {
		return nil, err
	}

	return &tokenPair{
		access:    access,
		refresh:   refresh,
		expiresIn: int64(s.tokens.AccessTTL().Seconds()),
		issuedAt:  s.now(),
	}, nil
}

func (s *AuthService) reportReplay(ctx context.Context, record *models.RefreshRecord, req models.RefreshTokenRequest) {
	s.metrics.ObserveReplay()
	s.logger.Warn("revoked refresh token presented",
		zap.String("user_id", record.UserID),
		zap.String("token_id", shortID(record.TokenID)),
		zap.String("ip", req.IP))
	s.recordAudit(ctx, record.UserID, models.AuditActionReplayBlocked, `{"refresh":"revoked_token_presented"}`, req.IP, req.UserAgent)
}

func (s *AuthService) recordAudit(ctx context.Context, userID, action, payload, ip, userAgent string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  []byte(payload),
		IPAddress:  ip,
		UserAgent:  userAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func outcome(err error) string {
	if err == nil {
		return outcomeSuccess
	}
	return strings.ToLower(appErrors.FromError(err).Code)
}

// shortID truncates a token identifier for log correlation.
func shortID(tokenID string) string {
	if len(tokenID) <= 8 {
		return tokenID
	}
	return tokenID[:8]
}
