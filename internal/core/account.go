package core

type (
	// Credentials is a login attempt.
	Credentials struct {
		Email    string
		Password string
	}

	// Registration creates a new account.
	Registration struct {
		FirstName string
		LastName  string
		Email     string
		Password  string
	}

	// Session is what a successful login yields. Token is the backend JWT.
	Session struct {
		FirstName string
		LastName  string
		Email     string
		Token     string
	}
)

// DisplayName is the name shown in the header.
func (s Session) DisplayName() string {
	if s.FirstName == "" {
		return s.Email
	}
	return s.FirstName
}
