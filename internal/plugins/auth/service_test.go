package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/talentbridge/hrplatform/internal/apperror"
	"github.com/talentbridge/hrplatform/internal/plugins/audit"
)

const testPassword = "Str0ng!Pass"

// --- In-memory collaborators ---

// memStore implements CredentialStore over maps. Accounts are copied on the
// way in and out so the service cannot mutate stored state in place.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	tokens   map[string]RefreshToken

	// failWith, when set, is returned by every method.
	failWith error
	// failureWrites counts UpdateFailureState calls.
	failureWrites int
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]Account),
		tokens:   make(map[string]RefreshToken),
	}
}

func (m *memStore) find(match func(a *Account) bool) *Account {
	for _, a := range m.accounts {
		if match(&a) {
			out := a
			return &out
		}
	}
	return nil
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.find(func(a *Account) bool { return a.Email == email }), nil
}

func (m *memStore) FindByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.find(func(a *Account) bool { return a.ID == id }), nil
}

func (m *memStore) FindByVerificationToken(_ context.Context, token string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.find(func(a *Account) bool {
		return a.EmailVerificationToken != nil && *a.EmailVerificationToken == token
	}), nil
}

func (m *memStore) FindByRefreshToken(_ context.Context, token string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	rt, ok := m.tokens[token]
	if !ok {
		return nil, nil
	}
	if a, ok := m.accounts[rt.UserID]; ok {
		rt.Account = &a
	}
	return &rt, nil
}

func (m *memStore) CreateAccount(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, existing := range m.accounts {
		if existing.Email == a.Email {
			return ErrEmailTaken
		}
	}
	m.accounts[a.ID] = *a
	return nil
}

func (m *memStore) UpdateFailureState(_ context.Context, id string, attempts int, lockoutUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.failureWrites++
	a := m.accounts[id]
	a.FailedLoginAttempts = attempts
	a.LockoutUntil = lockoutUntil
	m.accounts[id] = a
	return nil
}

func (m *memStore) MarkVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	a := m.accounts[id]
	a.EmailVerified = true
	a.EmailVerificationToken = nil
	a.EmailVerificationExpires = nil
	m.accounts[id] = a
	return nil
}

func (m *memStore) SetVerificationToken(_ context.Context, id, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	a := m.accounts[id]
	a.EmailVerificationToken = &token
	a.EmailVerificationExpires = &expiresAt
	m.accounts[id] = a
	return nil
}

func (m *memStore) CreateRefreshToken(_ context.Context, rt *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.tokens[rt.Token] = *rt
	return nil
}

func (m *memStore) DeleteRefreshToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for k, rt := range m.tokens {
		if rt.ID == id {
			delete(m.tokens, k)
		}
	}
	return nil
}

func (m *memStore) DeleteAllRefreshTokens(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for k, rt := range m.tokens {
		if rt.UserID == userID {
			delete(m.tokens, k)
		}
	}
	return nil
}

func (m *memStore) account(t *testing.T, email string) Account {
	t.Helper()
	a, _ := m.FindByEmail(context.Background(), email)
	if a == nil {
		t.Fatalf("no account stored for %s", email)
	}
	return *a
}

func (m *memStore) refreshCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rt := range m.tokens {
		if rt.UserID == userID {
			n++
		}
	}
	return n
}

type mapClients map[string]string

func (c mapClients) FindClient(_ context.Context, id string) (*ClientSummary, error) {
	name, ok := c[id]
	if !ok {
		return nil, nil
	}
	return &ClientSummary{ID: id, Name: name}, nil
}

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Log(_ context.Context, e audit.Entry) {
	r.entries = append(r.entries, e)
}

func (r *recordingAudit) last(t *testing.T) audit.Entry {
	t.Helper()
	if len(r.entries) == 0 {
		t.Fatal("expected an audit entry, got none")
	}
	return r.entries[len(r.entries)-1]
}

type sentEmail struct {
	email, token, firstName string
}

type recordingMailer struct {
	sent []sentEmail
}

func (r *recordingMailer) SendVerificationEmail(_ context.Context, email, token, firstName string) {
	r.sent = append(r.sent, sentEmail{email: email, token: token, firstName: firstName})
}

// --- Test environment ---

type testEnv struct {
	svc     *authService
	store   *memStore
	clients mapClients
	audit   *recordingAudit
	mailer  *recordingMailer
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   newMemStore(),
		clients: mapClients{"client-1": "Acme Staffing"},
		audit:   &recordingAudit{},
		mailer:  &recordingMailer{},
		now:     testNow,
	}
	secrets := newTestSecrets()
	tokens := NewTokenIssuer("test-secret", 0, env.store, secrets)
	env.svc = NewAuthService(env.store, env.clients, secrets, tokens, DefaultLockoutPolicy(), env.audit, env.mailer).(*authService)
	env.svc.now = func() time.Time { return env.now }
	return env
}

// seed stores an account whose password is testPassword.
func (e *testEnv) seed(t *testing.T, a Account) Account {
	t.Helper()
	hash, err := e.svc.secrets.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	a.PasswordHash = hash
	if a.ID == "" {
		a.ID = "user-" + a.Email
	}
	if a.Role == "" {
		a.Role = RoleRecruiter
	}
	a.CreatedAt, a.UpdatedAt = e.now, e.now
	if err := e.store.CreateAccount(context.Background(), &a); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	return a
}

var testMeta = RequestMeta{IP: "198.51.100.7", UserAgent: "test-agent"}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

func assertReason(t *testing.T, err error, reason string) {
	t.Helper()
	if got := apperror.ReasonOf(err); got != reason {
		t.Errorf("expected reason %q, got %q", reason, got)
	}
}

// --- Register ---

func validRegister() RegisterRequest {
	return RegisterRequest{
		Email:     "new.hire@example.com",
		Password:  testPassword,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Role:      RoleRecruiter,
	}
}

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.Register(context.Background(), validRegister(), "admin-1", testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.User.Email != "new.hire@example.com" || result.User.Role != RoleRecruiter {
		t.Errorf("unexpected user view: %+v", result.User)
	}
	if result.User.CreatedAt == nil {
		t.Error("expected createdAt on register response")
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected a token pair")
	}

	stored := env.store.account(t, "new.hire@example.com")
	if !stored.EmailVerified {
		t.Error("admin-created accounts are pre-verified")
	}
	if stored.PasswordHash == testPassword || !env.svc.secrets.VerifyPassword(testPassword, stored.PasswordHash) {
		t.Error("expected a bcrypt hash of the password")
	}
	if env.store.refreshCount(stored.ID) != 1 {
		t.Error("expected one persisted refresh token")
	}

	entry := env.audit.last(t)
	if entry.Action != audit.ActionRegister || !entry.Success || entry.UserID != stored.ID {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
	if entry.Metadata["createdBy"] != "admin-1" || entry.Metadata["role"] != "RECRUITER" {
		t.Errorf("unexpected audit metadata: %v", entry.Metadata)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, Account{Email: "new.hire@example.com"})

	_, err := env.svc.Register(context.Background(), validRegister(), "admin-1", testMeta)
	assertAppError(t, err, 409)
	assertReason(t, err, apperror.ReasonEmailExists)

	entry := env.audit.last(t)
	if entry.Success || entry.FailureReason != audit.ReasonEmailExists || entry.UserID != "admin-1" {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
}

func TestRegister_ClientValidation(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		clientID *string
		code     int
		reason   string
	}{
		{"unknown client", RoleRecruiter, ptrString("missing"), 400, apperror.ReasonInvalidClient},
		{"client role without client", RoleClient, nil, 400, apperror.ReasonMissingClientID},
		{"unknown client wins over missing", RoleClient, ptrString("missing"), 400, apperror.ReasonInvalidClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := validRegister()
			req.Role = tt.role
			req.ClientID = tt.clientID

			_, err := env.svc.Register(context.Background(), req, "admin-1", testMeta)
			assertAppError(t, err, tt.code)
			assertReason(t, err, tt.reason)
			if len(env.store.accounts) != 0 {
				t.Error("no account should be created")
			}
		})
	}
}

func TestRegister_ClientRoleWithClient(t *testing.T) {
	env := newTestEnv(t)
	req := validRegister()
	req.Role = RoleClient
	req.ClientID = ptrString("client-1")

	result, err := env.svc.Register(context.Background(), req, "admin-1", testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.User.ClientID == nil || *result.User.ClientID != "client-1" {
		t.Errorf("expected clientId client-1, got %v", result.User.ClientID)
	}
}

func TestRegister_StoreError(t *testing.T) {
	env := newTestEnv(t)
	env.store.failWith = errors.New("db connection lost")

	_, err := env.svc.Register(context.Background(), validRegister(), "admin-1", testMeta)
	assertAppError(t, err, 500)
	if strings.Contains(apperror.SafeMessage(err), "db connection lost") {
		t.Error("internal error details must not be exposed")
	}
}

// --- Signup ---

func validSignup() SignupRequest {
	return SignupRequest{
		Email:       "candidate@example.com",
		Password:    testPassword,
		FirstName:   "Grace",
		LastName:    "Hopper",
		AcceptTerms: true,
	}
}

func TestSignup_Success(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.Signup(context.Background(), validSignup(), testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message != msgSignupCreated {
		t.Errorf("unexpected message %q", result.Message)
	}

	stored := env.store.account(t, "candidate@example.com")
	if stored.Role != RoleClient || stored.EmailVerified || stored.ClientID != nil {
		t.Errorf("unexpected stored account: %+v", stored)
	}
	if stored.TermsAcceptedAt == nil || !stored.TermsAcceptedAt.Equal(testNow) {
		t.Error("expected termsAcceptedAt to be recorded")
	}
	if stored.EmailVerificationToken == nil || len(*stored.EmailVerificationToken) != 64 {
		t.Fatal("expected a 64-character verification token")
	}
	if !stored.EmailVerificationExpires.Equal(testNow.Add(24 * time.Hour)) {
		t.Errorf("expected 24h token expiry, got %v", stored.EmailVerificationExpires)
	}
	if env.store.refreshCount(stored.ID) != 0 {
		t.Error("signup must not issue tokens")
	}

	if len(env.mailer.sent) != 1 {
		t.Fatalf("expected one verification email, got %d", len(env.mailer.sent))
	}
	sent := env.mailer.sent[0]
	if sent.email != stored.Email || sent.token != *stored.EmailVerificationToken || sent.firstName != "Grace" {
		t.Errorf("unexpected email: %+v", sent)
	}

	if entry := env.audit.last(t); entry.Action != audit.ActionSignup || !entry.Success {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
}

func TestSignup_TermsNotAccepted(t *testing.T) {
	env := newTestEnv(t)
	req := validSignup()
	req.AcceptTerms = false

	_, err := env.svc.Signup(context.Background(), req, testMeta)
	assertAppError(t, err, 400)
	assertReason(t, err, apperror.ReasonTermsNotAccepted)

	if len(env.store.accounts) != 0 || len(env.mailer.sent) != 0 {
		t.Error("nothing should be created or sent")
	}
	if entry := env.audit.last(t); entry.FailureReason != audit.ReasonTermsNotAccepted {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
}

func TestSignup_DuplicateEmailIsGeneric(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, Account{Email: "candidate@example.com"})

	_, err := env.svc.Signup(context.Background(), validSignup(), testMeta)
	assertAppError(t, err, 409)
	assertReason(t, err, "")
	if apperror.SafeMessage(err) != msgSignupConflict {
		t.Errorf("unexpected message %q", apperror.SafeMessage(err))
	}
	if len(env.mailer.sent) != 0 {
		t.Error("no email should be sent")
	}
	if entry := env.audit.last(t); entry.FailureReason != audit.ReasonEmailExists {
		t.Errorf("audit should keep the precise reason, got %+v", entry)
	}
}

func TestSignup_ConcurrentDuplicateMapsToConflict(t *testing.T) {
	env := newTestEnv(t)
	// Another request inserts between the existence check and the insert.
	racing := &racingStore{memStore: env.store}
	env.svc.store = racing

	_, err := env.svc.Signup(context.Background(), validSignup(), testMeta)
	assertAppError(t, err, 409)
}

// racingStore hides accounts from FindByEmail so CreateAccount hits the
// unique constraint.
type racingStore struct {
	*memStore
}

func (r *racingStore) FindByEmail(context.Context, string) (*Account, error) {
	r.memStore.accounts["other"] = Account{ID: "other", Email: "candidate@example.com"}
	return nil, nil
}

// --- VerifyEmail ---

func TestVerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, Account{
		Email:                    "candidate@example.com",
		Role:                     RoleClient,
		EmailVerificationToken:   ptrString("tok-123"),
		EmailVerificationExpires: ptrTime(testNow.Add(time.Hour)),
	})

	result, err := env.svc.VerifyEmail(context.Background(), "tok-123", testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message != msgEmailVerified {
		t.Errorf("unexpected message %q", result.Message)
	}

	stored := env.store.account(t, "candidate@example.com")
	if !stored.EmailVerified || stored.EmailVerificationToken != nil || stored.EmailVerificationExpires != nil {
		t.Errorf("expected verified with cleared token, got %+v", stored)
	}
	if entry := env.audit.last(t); entry.Action != audit.ActionVerifyEmail || entry.IPAddress != testMeta.IP {
		t.Errorf("unexpected audit entry: %+v", entry)
	}

	// A consumed token cannot be reused.
	_, err = env.svc.VerifyEmail(context.Background(), "tok-123", testMeta)
	assertAppError(t, err, 400)
	assertReason(t, err, apperror.ReasonInvalidToken)
}

func TestVerifyEmail_Expired(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, Account{
		Email:                    "candidate@example.com",
		Role:                     RoleClient,
		EmailVerificationToken:   ptrString("tok-123"),
		EmailVerificationExpires: ptrTime(testNow.Add(-time.Second)),
	})

	_, err := env.svc.VerifyEmail(context.Background(), "tok-123", testMeta)
	assertAppError(t, err, 400)
	assertReason(t, err, apperror.ReasonTokenExpired)

	if env.store.account(t, "candidate@example.com").EmailVerified {
		t.Error("expired token must not verify the account")
	}
}

func TestVerifyEmail_UnknownToken(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.VerifyEmail(context.Background(), "nope", testMeta)
	assertAppError(t, err, 400)
	assertReason(t, err, apperror.ReasonInvalidToken)
	if len(env.audit.entries) != 0 {
		t.Error("failed verification is not audited")
	}
}

// --- ResendVerification ---

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, Account{
		Email:                    "candidate@example.com",
		FirstName:                "Grace",
		Role:                     RoleClient,
		EmailVerificationToken:   ptrString("old-token"),
		EmailVerificationExpires: ptrTime(testNow.Add(-time.Hour)),
	})
	env.now = testNow.Add(2 * time.Hour)

	result, err := env.svc.ResendVerification(context.Background(), "candidate@example.com", testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message != msgVerificationSent {
		t.Errorf("unexpected message %q", result.Message)
	}

	stored := env.store.account(t, "candidate@example.com")
	if stored.EmailVerificationToken == nil || *stored.EmailVerificationToken == "old-token" {
		t.Fatal("expected the token to be rotated")
	}
	if !stored.EmailVerificationExpires.Equal(env.now.Add(24 * time.Hour)) {
		t.Errorf("expected expiry 24h from now, got %v", stored.EmailVerificationExpires)
	}
	if len(env.mailer.sent) != 1 || env.mailer.sent[0].token != *stored.EmailVerificationToken {
		t.Errorf("expected the new token to be emailed, got %+v", env.mailer.sent)
	}

	// The old token no longer works.
	_, err = env.svc.VerifyEmail(context.Background(), "old-token", testMeta)
	assertReason(t, err, apperror.ReasonInvalidToken)
}

func TestResendVerification_UnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.ResendVerification(context.Background(), "ghost@example.com", testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message != msgVerificationSent {
		t.Errorf("expected the generic message, got %q", result.Message)
	}
	if len(env.mailer.sent) != 0 || len(env.audit.entries) != 0 {
		t.Error("unknown email must not send or audit")
	}
}

func TestResendVerification_AlreadyVerified(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, Account{Email: "candidate@example.com", EmailVerified: true})

	result, err := env.svc.ResendVerification(context.Background(), "candidate@example.com", testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message != msgAlreadyVerified {
		t.Errorf("unexpected message %q", result.Message)
	}
	if len(env.mailer.sent) != 0 {
		t.Error("no email for verified accounts")
	}
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, Account{Email: "recruiter@example.com", EmailVerified: true})

	result, err := env.svc.Login(context.Background(), LoginRequest{Email: a.Email, Password: testPassword}, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.User.ID != a.ID || result.User.CreatedAt != nil {
		t.Errorf("unexpected user view: %+v", result.User)
	}

	claims, err := env.svc.ParseAccessToken(result.AccessToken)
	if err != nil {
		t.Fatalf("access token should verify: %v", err)
	}
	if claims.UserID() != a.ID || claims.Email != a.Email || claims.Role != RoleRecruiter {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if env.store.refreshCount(a.ID) != 1 {
		t.Error("expected a persisted refresh token")
	}
	if entry := env.audit.last(t); entry.Action != audit.ActionLoginSuccess || !entry.Success {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
	if env.store.failureWrites != 0 {
		t.Error("clean counters should not be rewritten")
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: testPassword}, testMeta)
	assertAppError(t, err, 401)
	assertReason(t, err, apperror.ReasonInvalidCredentials)

	entry := env.audit.last(t)
	if entry.Action != audit.ActionLoginFailed || entry.FailureReason != audit.ReasonUserNotFound || entry.UserID != "" {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
}

func TestLogin_WrongPasswordMatchesUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, Account{Email: "recruiter@example.com", EmailVerified: true})

	_, wrongPw := env.svc.Login(context.Background(), LoginRequest{Email: a.Email, Password: "Wr0ng!Pass"}, testMeta)
	_, unknown := env.svc.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "Wr0ng!Pass"}, testMeta)

	if apperror.SafeMessage(wrongPw) != apperror.SafeMessage(unknown) ||
		apperror.ReasonOf(wrongPw) != apperror.ReasonOf(unknown) ||
		apperror.SafeCode(wrongPw) != apperror.SafeCode(unknown) {
		t.Errorf("responses differ: %v vs %v", wrongPw, unknown)
	}
}

func TestLogin_LockoutAfterFiveFailures(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, Account{Email: "recruiter@example.com", EmailVerified: true})
	wrong := LoginRequest{Email: a.Email, Password: "Wr0ng!Pass"}

	for i := 1; i <= 4; i++ {
		_, err := env.svc.Login(context.Background(), wrong, testMeta)
		assertReason(t, err, apperror.ReasonInvalidCredentials)
		if got := env.store.account(t, a.Email).FailedLoginAttempts; got != i {
			t.Fatalf("attempt %d: expected counter %d, got %d", i, i, got)
		}
	}

	_, err := env.svc.Login(context.Background(), wrong, testMeta)
	assertAppError(t, err, 401)
	assertReason(t, err, apperror.ReasonAccountLocked)
	if want := "Account locked due to too many failed attempts. Try again in 15 minutes."; apperror.SafeMessage(err) != want {
		t.Errorf("unexpected message %q", apperror.SafeMessage(err))
	}

	stored := env.store.account(t, a.Email)
	if stored.LockoutUntil == nil || !stored.LockoutUntil.Equal(testNow.Add(15*time.Minute)) {
		t.Errorf("expected lockout until +15m, got %v", stored.LockoutUntil)
	}
	entry := env.audit.last(t)
	if entry.FailureReason != audit.ReasonInvalidPassword || entry.Metadata["failedAttempts"] != 5 {
		t.Errorf("unexpected audit entry: %+v", entry)
	}

	// The correct password is refused while locked, without touching counters.
	env.now = testNow.Add(5 * time.Minute)
	writes := env.store.failureWrites
	_, err = env.svc.Login(context.Background(), LoginRequest{Email: a.Email, Password: testPassword}, testMeta)
	assertReason(t, err, apperror.ReasonAccountLocked)
	if want := "Account is locked. Try again in 10 minutes."; apperror.SafeMessage(err) != want {
		t.Errorf("unexpected message %q", apperror.SafeMessage(err))
	}
	if env.store.failureWrites != writes {
		t.Error("a locked attempt must not change the counters")
	}
	if entry := env.audit.last(t); entry.FailureReason != audit.ReasonAccountLocked {
		t.Errorf("unexpected audit entry: %+v", entry)
	}

	// After the window the correct password succeeds and resets state.
	env.now = testNow.Add(15*time.Minute + time.Second)
	if _, err := env.svc.Login(context.Background(), LoginRequest{Email: a.Email, Password: testPassword}, testMeta); err != nil {
		t.Fatalf("expected login after lockout, got %v", err)
	}
	stored = env.store.account(t, a.Email)
	if stored.FailedLoginAttempts != 0 || stored.LockoutUntil != nil {
		t.Errorf("expected counters reset, got %d / %v", stored.FailedLoginAttempts, stored.LockoutUntil)
	}
}

func TestLogin_FailureAfterExpiredLockoutRelocks(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, Account{
		Email:               "recruiter@example.com",
		EmailVerified:       true,
		FailedLoginAttempts: 5,
		LockoutUntil:        ptrTime(testNow.Add(-time.Minute)),
	})

	_, err := env.svc.Login(context.Background(), LoginRequest{Email: a.Email, Password: "Wr0ng!Pass"}, testMeta)
	assertReason(t, err, apperror.ReasonAccountLocked)

	stored := env.store.account(t, a.Email)
	if stored.FailedLoginAttempts != 6 {
		t.Errorf("expected counter 6, got %d", stored.FailedLoginAttempts)
	}
	if stored.LockoutUntil == nil || !stored.LockoutUntil.After(testNow) {
		t.Error("expected a fresh lockout")
	}
}

func TestLogin_UnverifiedClient(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, Account{
		Email:               "candidate@example.com",
		Role:                RoleClient,
		FailedLoginAttempts: 3,
	})

	_, err := env.svc.Login(context.Background(), LoginRequest{Email: a.Email, Password: testPassword}, testMeta)
	assertAppError(t, err, 401)
	assertReason(t, err, apperror.ReasonEmailNotVerified)

	if got := env.store.account(t, a.Email).FailedLoginAttempts; got != 0 {
		t.Errorf("a correct password resets counters even when refused, got %d", got)
	}
	if env.store.refreshCount(a.ID) != 0 {
		t.Error("no tokens for unverified clients")
	}
	if entry := env.audit.last(t); entry.FailureReason != audit.ReasonEmailNotVerified {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
}

func TestLogin_UnverifiedStaffAllowed(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, Account{Email: "admin@example.com", Role: RoleAdmin})

	if _, err := env.svc.Login(context.Background(), LoginRequest{Email: a.Email, Password: testPassword}, testMeta); err != nil {
		t.Fatalf("only CLIENT accounts require verification, got %v", err)
	}
}

func TestLogin_StoreError(t *testing.T) {
	env := newTestEnv(t)
	env.store.failWith = errors.New("db down")

	_, err := env.svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: testPassword}, testMeta)
	assertAppError(t, err, 500)
}

// --- Refresh ---

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, Account{Email: "recruiter@example.com", EmailVerified: true})
	login, err := env.svc.Login(context.Background(), LoginRequest{Email: a.Email, Password: testPassword}, testMeta)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	env.now = testNow.Add(time.Hour)
	for i := 0; i < 2; i++ {
		result, err := env.svc.Refresh(context.Background(), login.RefreshToken)
		if err != nil {
			t.Fatalf("refresh %d: unexpected error: %v", i, err)
		}
		claims, err := env.svc.ParseAccessToken(result.AccessToken)
		if err != nil {
			t.Fatalf("refresh %d: new access token should verify: %v", i, err)
		}
		if claims.UserID() != a.ID || !claims.IssuedAt.Time.Equal(env.now) {
			t.Errorf("unexpected claims: %+v", claims)
		}
	}
	if env.store.refreshCount(a.ID) != 1 {
		t.Error("refresh tokens are not rotated")
	}
}

func TestRefresh_Unknown(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Refresh(context.Background(), "does-not-exist")
	assertAppError(t, err, 401)
	assertReason(t, err, apperror.ReasonInvalidRefreshToken)
}

func TestRefresh_ExpiredIsDeleted(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, Account{Email: "recruiter@example.com", EmailVerified: true})
	login, _ := env.svc.Login(context.Background(), LoginRequest{Email: a.Email, Password: testPassword}, testMeta)

	env.now = testNow.Add(7*24*time.Hour + time.Second)
	_, err := env.svc.Refresh(context.Background(), login.RefreshToken)
	assertAppError(t, err, 401)
	assertReason(t, err, apperror.ReasonRefreshTokenExpired)

	if env.store.refreshCount(a.ID) != 0 {
		t.Error("expired refresh token should be deleted")
	}
	_, err = env.svc.Refresh(context.Background(), login.RefreshToken)
	assertReason(t, err, apperror.ReasonInvalidRefreshToken)
}

// --- Logout ---

func TestLogout_RevokesAllSessions(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, Account{Email: "recruiter@example.com", EmailVerified: true})
	req := LoginRequest{Email: a.Email, Password: testPassword}
	first, _ := env.svc.Login(context.Background(), req, testMeta)
	second, _ := env.svc.Login(context.Background(), req, testMeta)

	result, err := env.svc.Logout(context.Background(), a.ID, testMeta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message != msgLoggedOut {
		t.Errorf("unexpected message %q", result.Message)
	}

	for _, tok := range []string{first.RefreshToken, second.RefreshToken} {
		_, err := env.svc.Refresh(context.Background(), tok)
		assertReason(t, err, apperror.ReasonInvalidRefreshToken)
	}
	if entry := env.audit.last(t); entry.Action != audit.ActionLogout || entry.Email != a.Email {
		t.Errorf("unexpected audit entry: %+v", entry)
	}
}

func TestLogout_MissingAccount(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.svc.Logout(context.Background(), "gone", testMeta); err != nil {
		t.Fatalf("logout should succeed for a deleted account, got %v", err)
	}
	if len(env.audit.entries) != 0 {
		t.Error("nothing to audit for a missing account")
	}
}

// --- GetCurrentUser ---

func TestGetCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, Account{
		Email:         "client@example.com",
		Role:          RoleClient,
		ClientID:      ptrString("client-1"),
		EmailVerified: true,
	})

	me, err := env.svc.GetCurrentUser(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if me.Email != a.Email || !me.EmailVerified {
		t.Errorf("unexpected projection: %+v", me)
	}
	if me.Client == nil || me.Client.Name != "Acme Staffing" {
		t.Errorf("expected client summary, got %+v", me.Client)
	}
}

func TestGetCurrentUser_NoClient(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, Account{Email: "recruiter@example.com"})

	me, err := env.svc.GetCurrentUser(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if me.Client != nil {
		t.Errorf("expected no client, got %+v", me.Client)
	}
}

func TestGetCurrentUser_Deleted(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.GetCurrentUser(context.Background(), "gone")
	assertAppError(t, err, 401)
}

// --- End to end ---

func TestSignupToLogoutLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.Signup(ctx, validSignup(), testMeta); err != nil {
		t.Fatalf("signup: %v", err)
	}

	_, err := env.svc.Login(ctx, LoginRequest{Email: "candidate@example.com", Password: testPassword}, testMeta)
	assertReason(t, err, apperror.ReasonEmailNotVerified)

	env.now = testNow.Add(time.Hour)
	if _, err := env.svc.VerifyEmail(ctx, env.mailer.sent[0].token, testMeta); err != nil {
		t.Fatalf("verify: %v", err)
	}

	login, err := env.svc.Login(ctx, LoginRequest{Email: "candidate@example.com", Password: testPassword}, testMeta)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := env.svc.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := env.svc.Logout(ctx, login.User.ID, testMeta); err != nil {
		t.Fatalf("logout: %v", err)
	}
	_, err = env.svc.Refresh(ctx, login.RefreshToken)
	assertReason(t, err, apperror.ReasonInvalidRefreshToken)

	var actions []audit.Action
	for _, e := range env.audit.entries {
		actions = append(actions, e.Action)
	}
	want := []audit.Action{
		audit.ActionSignup,
		audit.ActionLoginFailed,
		audit.ActionVerifyEmail,
		audit.ActionLoginSuccess,
		audit.ActionLogout,
	}
	if len(actions) != len(want) {
		t.Fatalf("expected audit trail %v, got %v", want, actions)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("audit[%d]: expected %s, got %s", i, want[i], actions[i])
		}
	}
}
