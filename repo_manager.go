package identity

import (
	"errors"
	"log"

	goerrors "github.com/goliatone/go-errors"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Collection names used by the mongo-backed repositories
const (
	CollectionUsers              = "users"
	CollectionSessions           = "sessions"
	CollectionVerificationTokens = "verification_tokens"
	CollectionPasswordResets     = "password_reset_tokens"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Users() Users
	Sessions() Sessions
	VerificationTokens() Tokens[*VerificationToken]
	PasswordResets() Tokens[*PasswordResetToken]
	Validate() error
	MustValidate()
}

type mngr struct {
	db             *mongo.Database
	users          Users
	sessions       Sessions
	verifications  Tokens[*VerificationToken]
	passwordResets Tokens[*PasswordResetToken]
}

func NewRepositoryManager(db *mongo.Database) RepositoryManager {
	return &mngr{
		db:             db,
		users:          NewUsersRepository(db),
		sessions:       NewSessionsRepository(db),
		verifications:  NewVerificationTokensRepository(db),
		passwordResets: NewPasswordResetsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.sessions == nil {
		return errors.New("repository sessions should be initialized")
	}

	if m.verifications == nil {
		return errors.New("repository verifications should be initialized")
	}

	if m.passwordResets == nil {
		return errors.New("repository passwordResets should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Sessions() Sessions {
	return m.sessions
}

func (m mngr) VerificationTokens() Tokens[*VerificationToken] {
	return m.verifications
}

func (m mngr) PasswordResets() Tokens[*PasswordResetToken] {
	return m.passwordResets
}

// NewRecordNotFound builds the structured not-found error shared by
// every repository in this package.
func NewRecordNotFound() *goerrors.Error {
	return goerrors.New("record not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound)
}

// IsRecordNotFound matches both the raw driver sentinel and the
// structured error the repositories return.
func IsRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryNotFound
	}
	return false
}
