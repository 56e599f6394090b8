package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailvault/config"
	"github.com/customeros/mailvault/dto"
	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/enum"
	mverrors "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/metrics"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/internal/utils"
	"github.com/customeros/mailvault/services/imap"
	"github.com/customeros/mailvault/services/ratelimit"
	"github.com/customeros/mailvault/services/tokens"
)

type accountsService struct {
	cfg          *config.Config
	log          logger.Logger
	repositories *repository.Repositories
	secrets      interfaces.SecretStore
	tokens       interfaces.TokenProvider
	recorder     metrics.Recorder
	trackers     *ratelimit.Coordinator
}

func NewAccountsService(
	cfg *config.Config,
	log logger.Logger,
	repos *repository.Repositories,
	secrets interfaces.SecretStore,
	tokenProvider interfaces.TokenProvider,
	recorder metrics.Recorder,
) interfaces.AccountsService {
	if recorder == nil {
		recorder = &metrics.NoopRecorder{}
	}
	return &accountsService{
		cfg:          cfg,
		log:          log,
		repositories: repos,
		secrets:      secrets,
		tokens:       tokenProvider,
		recorder:     recorder,
		trackers:     ratelimit.NewCoordinator(),
	}
}

func (s *accountsService) CreateAccount(ctx context.Context, input *dto.AccountInput) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountsService.CreateAccount")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := validateAccountInput(input, true); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	existing, err := s.repositories.AccountRepository.GetAccountByEmail(ctx, input.Email)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if existing != nil {
		return nil, mverrors.ErrAccountExists
	}

	account := &models.Account{
		Email:            input.Email,
		DisplayName:      input.DisplayName,
		Host:             input.Host,
		Port:             input.Port,
		TLS:              utils.GetOrDefault(input.TLS, true),
		Username:         utils.FirstNonEmpty(input.Username, input.Email),
		AuthMethod:       enum.GetAuthMethod(input.AuthMethod),
		OAuthProvider:    input.OAuthProvider,
		Enabled:          utils.GetOrDefault(input.Enabled, true),
		RateLimitProfile: input.RateLimitProfile,
	}
	if account.Port == 0 {
		account.Port = 993
	}

	if err := s.repositories.AccountRepository.SaveAccount(ctx, account); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := s.storeSecrets(account, input); err != nil {
		// roll the row back, the credentials never made it to the keychain
		if deleteErr := s.repositories.AccountRepository.DeleteAccount(ctx, account.ID); deleteErr != nil {
			s.log.Errorf("[%s] failed to remove account after secret store failure: %v", account.Email, deleteErr)
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.log.Infof("[%s] account enrolled (%s)", account.Email, account.ID)
	return account, nil
}

func (s *accountsService) UpdateAccount(ctx context.Context, id string, input *dto.AccountInput) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountsService.UpdateAccount")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, id)

	account, err := s.getAccount(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := validateAccountInput(input, false); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	// the archive tree is keyed by address, a rename would orphan it
	if input.Email != "" && input.Email != account.Email {
		err := fmt.Errorf("%w: email address cannot change, enrol a new account instead", mverrors.ErrValidation)
		tracing.TraceErr(span, err)
		return nil, err
	}

	if input.DisplayName != "" {
		account.DisplayName = input.DisplayName
	}
	if input.Host != "" {
		account.Host = input.Host
	}
	if input.Port != 0 {
		account.Port = input.Port
	}
	if input.TLS != nil {
		account.TLS = *input.TLS
	}
	if input.Username != "" {
		account.Username = input.Username
	}
	if input.AuthMethod != "" {
		account.AuthMethod = enum.GetAuthMethod(input.AuthMethod)
	}
	if input.OAuthProvider != "" {
		account.OAuthProvider = input.OAuthProvider
	}
	if input.RateLimitProfile != "" {
		account.RateLimitProfile = input.RateLimitProfile
	}
	if input.Enabled != nil {
		account.Enabled = *input.Enabled
	}

	if err := s.storeSecrets(account, input); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := s.repositories.AccountRepository.SaveAccount(ctx, account); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return account, nil
}

func (s *accountsService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountsService.GetAccount")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, id)

	return s.getAccount(ctx, id)
}

func (s *accountsService) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountsService.ListAccounts")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.repositories.AccountRepository.GetAccounts(ctx)
}

func (s *accountsService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountsService.SetEnabled")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, id)
	span.SetTag("enabled", enabled)

	account, err := s.getAccount(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	account.Enabled = enabled
	if err := s.repositories.AccountRepository.SaveAccount(ctx, account); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	s.log.Infof("[%s] account %s", account.Email, state)
	return nil
}

// DeleteAccount forgets the endpoint, its credentials and its run history.
// Archived mail stays on disk.
func (s *accountsService) DeleteAccount(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountsService.DeleteAccount")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, id)

	account, err := s.getAccount(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if err := s.repositories.AccountRepository.DeleteAccount(ctx, id); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := s.repositories.BackupRunRepository.DeleteRunsForAccount(ctx, id); err != nil {
		s.log.Warnf("[%s] failed to delete run history: %v", account.Email, err)
	}
	if err := s.secrets.DeleteAccountSecrets(id); err != nil {
		s.log.Warnf("[%s] failed to delete keychain entries: %v", account.Email, err)
	}
	s.tokens.Invalidate(id)

	s.log.Infof("[%s] account deleted", account.Email)
	return nil
}

func (s *accountsService) TestConnection(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountsService.TestConnection")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, id)

	account, err := s.getAccount(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	client, err := s.buildClient(account)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return client.Logout(ctx)
}

func (s *accountsService) getAccount(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.repositories.AccountRepository.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, mverrors.ErrAccountNotFound
	}
	return account, nil
}

func (s *accountsService) buildClient(account *models.Account) (interfaces.IMAPClient, error) {
	clientConfig := imap.ClientConfig{
		Host:          account.Host,
		Port:          account.Port,
		TLS:           account.TLS,
		Username:      account.Username,
		Email:         account.Email,
		AuthMethod:    account.AuthMethod,
		SocksProxyURL: s.cfg.BackupConfig.SocksProxyURL,
	}
	switch account.AuthMethod {
	case enum.AuthOAuth2:
		accountCopy := *account
		clientConfig.AccessToken = func(ctx context.Context) (string, error) {
			return s.tokens.AccessToken(ctx, &accountCopy)
		}
	default:
		password, err := s.secrets.Password(account.ID)
		if err != nil {
			return nil, &imap.AuthError{Reason: "password unavailable: " + err.Error()}
		}
		clientConfig.Password = password
	}

	preset := enum.GetRateLimitProfile(utils.FirstNonEmpty(account.RateLimitProfile, s.cfg.BackupConfig.RateLimitProfile))
	tracker := s.trackers.TrackerFor(account.Host, ratelimit.ProfileFor(preset))
	return imap.NewClient(clientConfig, tracker, s.log, s.recorder), nil
}

// storeSecrets writes whichever credential the input carries. Empty fields
// mean "unchanged" on update.
func (s *accountsService) storeSecrets(account *models.Account, input *dto.AccountInput) error {
	switch account.AuthMethod {
	case enum.AuthOAuth2:
		if input.RefreshToken == "" {
			return nil
		}
		if err := s.secrets.SetRefreshToken(account.ID, input.RefreshToken); err != nil {
			return fmt.Errorf("failed to store refresh token: %w", err)
		}
		s.tokens.Invalidate(account.ID)
	default:
		if input.Password == "" {
			return nil
		}
		if err := s.secrets.SetPassword(account.ID, input.Password); err != nil {
			return fmt.Errorf("failed to store password: %w", err)
		}
	}
	return nil
}

func validateAccountInput(input *dto.AccountInput, creating bool) error {
	var validationErrors []string

	if input == nil {
		return errors.New("account input cannot be nil")
	}

	if creating || input.Email != "" {
		validation := mailvalidate.ValidateEmailSyntax(input.Email)
		if !validation.IsValid {
			validationErrors = append(validationErrors, "Email address is not valid")
		} else {
			input.Email = validation.CleanEmail
		}
	}

	if creating && input.Host == "" {
		validationErrors = append(validationErrors, "IMAP host is required")
	}
	if input.Port < 0 || input.Port > 65535 {
		validationErrors = append(validationErrors, "IMAP port is out of range")
	}

	switch input.AuthMethod {
	case "", enum.AuthPassword.String():
		if creating && input.Password == "" {
			validationErrors = append(validationErrors, "Password is required")
		}
	case enum.AuthOAuth2.String():
		switch input.OAuthProvider {
		case tokens.ProviderGoogle, tokens.ProviderMicrosoft, tokens.ProviderCustom:
		default:
			validationErrors = append(validationErrors, "OAuth provider must be google, microsoft or custom")
		}
		if creating && input.RefreshToken == "" {
			validationErrors = append(validationErrors, "Refresh token is required")
		}
	default:
		validationErrors = append(validationErrors, "Auth method must be password or oauth2")
	}

	switch input.RateLimitProfile {
	case "", enum.RateLimitBalanced.String(), enum.RateLimitConservative.String(), enum.RateLimitAggressive.String():
	default:
		validationErrors = append(validationErrors, "Rate limit profile must be balanced, conservative or aggressive")
	}

	if len(validationErrors) > 0 {
		return fmt.Errorf("%w: %s", mverrors.ErrValidation, strings.Join(validationErrors, ", "))
	}

	return nil
}
