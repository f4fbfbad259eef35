package profilecache

import "context"

// Role discriminates the kind of account a profile represents. It is an
// explicit tag resolved once at load time; callers branch on Role instead
// of probing for role-specific fields.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// ClassRef names the class a student profile belongs to.
type ClassRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Subject is one class/subject pairing a teacher profile teaches.
type Subject struct {
	ClassID   string `json:"classId"`
	ClassName string `json:"className"`
	Name      string `json:"name"`
}

// Profile is a role-scoped identity linked to an authenticated user. A
// user may have several (a parent with two enrolled children, a teacher
// who is also a student elsewhere); exactly one is active at a time.
type Profile struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Name        string    `json:"name"`
	PhotoURL    string    `json:"photoURL,omitempty"`
	Email       string    `json:"email,omitempty"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	SchoolID    string    `json:"school,omitempty"`
	Class       *ClassRef `json:"class,omitempty"`    // student profiles only
	Subjects    []Subject `json:"subjects,omitempty"` // teacher profiles only
}

// IsTeacher reports whether the profile is teacher-scoped.
func (p Profile) IsTeacher() bool {
	return p.Role == RoleTeacher
}

// Resolver resolves the profiles linked to a user against the backend.
type Resolver interface {
	ResolveProfiles(ctx context.Context, userID string) ([]Profile, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, userID string) ([]Profile, error)

func (f ResolverFunc) ResolveProfiles(ctx context.Context, userID string) ([]Profile, error) {
	return f(ctx, userID)
}
