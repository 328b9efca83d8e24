package discovery

import (
	"os"
	"os/user"
	"strings"
)

// EnvUserDomain is the Windows logon domain of the current user.
const EnvUserDomain = "USERDOMAIN"

// OSIdentity implements domain.IdentityProvider from the process environment.
type OSIdentity struct {
	getenv  func(string) string
	current func() (string, error)
}

// NewOSIdentity creates an identity provider backed by os/user.
func NewOSIdentity() *OSIdentity {
	return &OSIdentity{
		getenv: os.Getenv,
		current: func() (string, error) {
			u, err := user.Current()
			if err != nil {
				return "", err
			}
			return u.Username, nil
		},
	}
}

// CurrentUser returns DOMAIN\user when USERDOMAIN is set, else the OS user name.
// It returns an empty string if the user cannot be determined.
func (o *OSIdentity) CurrentUser() string {
	name, err := o.current()
	if err != nil || name == "" {
		name = o.getenv("USER")
	}
	if name == "" {
		name = o.getenv("USERNAME")
	}
	// Windows already reports DOMAIN\user.
	if strings.Contains(name, `\`) {
		return name
	}
	if d := o.getenv(EnvUserDomain); d != "" && name != "" {
		return d + `\` + name
	}
	return name
}
