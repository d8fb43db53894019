package account

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
)

// UserRole is the role a profile holds inside its tenant
type UserRole = string

const (
	// RoleGuest is a guest role (ie. view)
	RoleGuest UserRole = "guest"
	// RoleMember is a member (i.e. view, edit)
	RoleMember UserRole = "member"
	// RoleAdmin is an admin role (i.e. view, edit, create)
	RoleAdmin UserRole = "admin"
	// RoleOwner is the workspace owner (i.e. view, edit, create, delete)
	RoleOwner UserRole = "owner"
)

// Identity is the identity provider's representation of a user. It is
// created once per signup and never recreated; its ID is owned by the
// provider and used verbatim as the profile primary key.
type Identity struct {
	ID              string         `json:"id"`
	Email           string         `json:"email"`
	FullName        string         `json:"full_name,omitempty"`
	EmailVerifiedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	Metadata        map[string]any `json:"user_metadata,omitempty"`
}

// UUID parses the provider-issued identifier.
func (i *Identity) UUID() (uuid.UUID, error) {
	if i == nil {
		return uuid.Nil, errors.New("identity is nil")
	}
	return uuid.Parse(i.ID)
}

// Tenant is an isolated workspace, the unit of multi-tenant partitioning.
type Tenant struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// TenantCreate is the payload for the tenant write. IdempotencyKey is
// deterministic for a given email+slug so a failed run can be retried
// without minting a second workspace.
type TenantCreate struct {
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	IdempotencyKey string `json:"-"`
}

// Profile binds one identity to one tenant with a role. A profile must not
// exist without its tenant, and its ID equals the owning identity's ID.
type Profile struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Email       string         `json:"email"`
	FullName    string         `json:"full_name"`
	Role        UserRole       `json:"role"`
	Preferences map[string]any `json:"preferences"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
}

// ProfileCreate is the payload for the profile write.
type ProfileCreate struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Email       string         `json:"email"`
	FullName    string         `json:"full_name"`
	Role        UserRole       `json:"role"`
	Preferences map[string]any `json:"preferences"`
}

// Credentials is an ephemeral sign-in input, never stored.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks presence only. Shape checks stay out so a mistyped
// email surfaces as an invalid-credentials failure from the provider,
// the same way a wrong password does.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

// SignupRequest is the pre-validated signup input. Validation runs before
// any network call so obviously invalid input never costs a round trip.
type SignupRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FullName        string `json:"full_name"`
}

func (r SignupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// Credentials returns the password-grant input for the token steps.
func (r SignupRequest) Credentials() Credentials {
	return Credentials{Email: r.Email, Password: r.Password}
}

// WorkspaceName derives the default tenant name for a signup.
func (r SignupRequest) WorkspaceName() string {
	return r.FullName + "'s Workspace"
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
