package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// memUsers is an in-memory Users implementation used across the flow
// tests. Semantics mirror the mongo repository: FindByEmail and
// FindByAuthProviderID skip deleted accounts, Delete anonymizes.
type memUsers struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]*User{}}
}

var _ Users = (*memUsers)(nil)

func (m *memUsers) add(user *User) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}
	m.users[user.ID.Hex()] = user
	return user
}

func (m *memUsers) GetByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.Hex()]
	if !ok {
		return nil, NewRecordNotFound()
	}
	clone := *user
	return &clone, nil
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Status == UserStatusDeleted {
			continue
		}
		for _, rec := range user.Emails {
			if rec.Address == email {
				clone := *user
				return &clone, nil
			}
		}
	}
	return nil, NewRecordNotFound()
}

func (m *memUsers) FindByAuthProviderID(ctx context.Context, provider, providerID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Status == UserStatusDeleted {
			continue
		}
		if method, ok := user.AuthMethods[provider]; ok && method.ID == providerID {
			clone := *user
			return &clone, nil
		}
	}
	return nil, NewRecordNotFound()
}

func (m *memUsers) HandleExists(ctx context.Context, handle string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Handle == handle {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) Create(ctx context.Context, user *User) (*User, error) {
	prepareUserDefaults(user)
	return m.add(user), nil
}

func (m *memUsers) MarkEmailVerified(ctx context.Context, id bson.ObjectID, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.Hex()]
	if !ok {
		return false, nil
	}
	for i, rec := range user.Emails {
		if rec.Address == email && !rec.Verified {
			user.Emails[i].Verified = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) SetPasswordHash(ctx context.Context, id bson.ObjectID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.Hex()]
	if !ok || user.Status == UserStatusDeleted {
		return NewRecordNotFound()
	}
	if user.AuthMethods == nil {
		user.AuthMethods = map[string]AuthMethod{}
	}
	method := user.AuthMethods[AuthMethodPassword]
	method.Hash = hash
	user.AuthMethods[AuthMethodPassword] = method
	return nil
}

func (m *memUsers) AttachAuthMethod(ctx context.Context, id bson.ObjectID, provider string, method AuthMethod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.Hex()]
	if !ok {
		return NewRecordNotFound()
	}
	if user.AuthMethods == nil {
		user.AuthMethods = map[string]AuthMethod{}
	}
	user.AuthMethods[provider] = method
	return nil
}

func (m *memUsers) Disable(ctx context.Context, id bson.ObjectID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.Hex()]
	if !ok || user.Status != UserStatusActive {
		return nil, NewRecordNotFound()
	}
	now := time.Now()
	user.Status = UserStatusDisabled
	user.DisabledAt = &now
	clone := *user
	return &clone, nil
}

func (m *memUsers) Delete(ctx context.Context, id bson.ObjectID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id.Hex()]
	if !ok || user.Status == UserStatusDeleted {
		return nil, NewRecordNotFound()
	}
	now := time.Now()
	user.Status = UserStatusDeleted
	user.Handle = AnonymizedHandle(id)
	user.DeletedAt = &now
	user.AuthMethods = nil
	user.Emails = nil
	user.Phone = ""
	clone := *user
	return &clone, nil
}

// memSessions is an in-memory Sessions store
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]*Session{}}
}

var _ Sessions = (*memSessions)(nil)

func (m *memSessions) Insert(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID.IsZero() {
		session.ID = bson.NewObjectID()
	}
	clone := *session
	m.sessions[session.AuthToken] = &clone
	return nil
}

func (m *memSessions) FindByToken(ctx context.Context, authToken string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[authToken]
	if !ok {
		return nil, NewRecordNotFound()
	}
	clone := *session
	return &clone, nil
}

func (m *memSessions) SetUser(ctx context.Context, authToken string, userID bson.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[authToken]
	if !ok {
		return NewRecordNotFound()
	}
	session.UserID = &userID
	return nil
}

func (m *memSessions) ClearUser(ctx context.Context, authToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[authToken]
	if !ok {
		return NewRecordNotFound()
	}
	session.UserID = nil
	return nil
}

func (m *memSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for token, session := range m.sessions {
		if session.ExpiresAt.Before(now) {
			delete(m.sessions, token)
			removed++
		}
	}
	return removed, nil
}

// memTokens is an in-memory Tokens store for both token kinds
type memVerificationTokens struct {
	mu      sync.Mutex
	records map[string]*VerificationToken
	findErr error
}

func newMemVerificationTokens() *memVerificationTokens {
	return &memVerificationTokens{records: map[string]*VerificationToken{}}
}

var _ Tokens[*VerificationToken] = (*memVerificationTokens)(nil)

func (m *memVerificationTokens) Create(ctx context.Context, userID bson.ObjectID, email string, ttl time.Duration) (*VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	record := &VerificationToken{
		ID:        bson.NewObjectID(),
		Token:     NewAuthToken(),
		UserID:    userID,
		Email:     email,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	m.records[record.Token] = record
	return record, nil
}

func (m *memVerificationTokens) FindLive(ctx context.Context, token string, now time.Time) (*VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	record, ok := m.records[token]
	if !ok || !record.ExpiresAt.After(now) {
		return nil, NewRecordNotFound()
	}
	clone := *record
	return &clone, nil
}

func (m *memVerificationTokens) LatestForUser(ctx context.Context, userID bson.ObjectID) (*VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *VerificationToken
	for _, record := range m.records {
		if record.UserID != userID {
			continue
		}
		if latest == nil || record.CreatedAt.After(latest.CreatedAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, NewRecordNotFound()
	}
	clone := *latest
	return &clone, nil
}

func (m *memVerificationTokens) Consume(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[token]; !ok {
		return false, nil
	}
	delete(m.records, token)
	return true, nil
}

func (m *memVerificationTokens) DeleteForUser(ctx context.Context, userID bson.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for token, record := range m.records {
		if record.UserID == userID {
			delete(m.records, token)
			removed++
		}
	}
	return removed, nil
}

type memPasswordResets struct {
	mu      sync.Mutex
	records map[string]*PasswordResetToken
}

func newMemPasswordResets() *memPasswordResets {
	return &memPasswordResets{records: map[string]*PasswordResetToken{}}
}

var _ Tokens[*PasswordResetToken] = (*memPasswordResets)(nil)

func (m *memPasswordResets) Create(ctx context.Context, userID bson.ObjectID, email string, ttl time.Duration) (*PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	record := &PasswordResetToken{
		ID:        bson.NewObjectID(),
		Token:     NewAuthToken(),
		UserID:    userID,
		Email:     email,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	m.records[record.Token] = record
	return record, nil
}

func (m *memPasswordResets) FindLive(ctx context.Context, token string, now time.Time) (*PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[token]
	if !ok || !record.ExpiresAt.After(now) {
		return nil, NewRecordNotFound()
	}
	clone := *record
	return &clone, nil
}

func (m *memPasswordResets) LatestForUser(ctx context.Context, userID bson.ObjectID) (*PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *PasswordResetToken
	for _, record := range m.records {
		if record.UserID != userID {
			continue
		}
		if latest == nil || record.CreatedAt.After(latest.CreatedAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, NewRecordNotFound()
	}
	clone := *latest
	return &clone, nil
}

func (m *memPasswordResets) Consume(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[token]; !ok {
		return false, nil
	}
	delete(m.records, token)
	return true, nil
}

func (m *memPasswordResets) DeleteForUser(ctx context.Context, userID bson.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for token, record := range m.records {
		if record.UserID == userID {
			delete(m.records, token)
			removed++
		}
	}
	return removed, nil
}

// memRepo bundles the in-memory stores behind RepositoryManager
type memRepo struct {
	users         *memUsers
	sessions      *memSessions
	verifications *memVerificationTokens
	resets        *memPasswordResets
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:         newMemUsers(),
		sessions:      newMemSessions(),
		verifications: newMemVerificationTokens(),
		resets:        newMemPasswordResets(),
	}
}

var _ RepositoryManager = (*memRepo)(nil)

func (m *memRepo) Users() Users                               { return m.users }
func (m *memRepo) Sessions() Sessions                         { return m.sessions }
func (m *memRepo) VerificationTokens() Tokens[*VerificationToken] { return m.verifications }
func (m *memRepo) PasswordResets() Tokens[*PasswordResetToken]    { return m.resets }
func (m *memRepo) Validate() error                            { return nil }
func (m *memRepo) MustValidate()                              {}

// recordingLimiter tracks Consume calls and rejects named buckets
type recordingLimiter struct {
	mu      sync.Mutex
	calls   []string
	rejects map[string]error
}

func newRecordingLimiter() *recordingLimiter {
	return &recordingLimiter{rejects: map[string]error{}}
}

var _ RateLimiter = (*recordingLimiter)(nil)

func (r *recordingLimiter) Consume(ctx context.Context, bucket, keyType, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, strings.Join([]string{bucket, keyType, value}, "|"))
	if err, ok := r.rejects[bucket]; ok {
		return err
	}
	return nil
}

func (r *recordingLimiter) callCount(bucket string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, call := range r.calls {
		if strings.HasPrefix(call, bucket+"|") {
			count++
		}
	}
	return count
}

// recordingSender captures outgoing email
type recordingSender struct {
	mu         sync.Mutex
	configured bool
	sent       []EmailMessage
	sendErr    error
}

var _ EmailSender = (*recordingSender)(nil)

func (r *recordingSender) SendEmail(ctx context.Context, msg EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) Configured() bool { return r.configured }

func (r *recordingSender) sentTo() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, msg := range r.sent {
		out = append(out, msg.To)
	}
	return out
}
