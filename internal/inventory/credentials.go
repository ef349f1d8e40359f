package inventory

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
)

const keyringService = "fleetcap"

// Credential is one resolved login.
type Credential struct {
	User     string
	Password string
	KeyFile  string
}

// CredentialSource resolves credential ids to logins. All lookups happen
// once at construction; the source is read-only afterwards and safe for
// concurrent use.
//
// For credential id X the environment pair CRED_X_USER / CRED_X_PASS is
// read first (CRED_X_KEY optionally points at a private key file, in which
// case the password may be absent). Ids not present in the environment
// fall back to OS keychain entries CRED_X_USER / CRED_X_PASS under the
// fleetcap service.
type CredentialSource struct {
	creds map[string]Credential
}

// LoadCredentials resolves every id referenced by the device list.
func LoadCredentials(devices []Device) *CredentialSource {
	src := &CredentialSource{creds: make(map[string]Credential)}
	seen := make(map[string]struct{})
	for _, d := range devices {
		id := d.CredentialID
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if cred, ok := resolve(id); ok {
			src.creds[id] = cred
		} else {
			log.Warn().Str("credential_id", id).Msg("credential not found in environment or keychain")
		}
	}
	return src
}

// Get returns the credential for id, reporting whether it was resolved.
func (s *CredentialSource) Get(id string) (Credential, bool) {
	c, ok := s.creds[id]
	return c, ok
}

func resolve(id string) (Credential, bool) {
	upper := strings.ToUpper(id)
	cred := Credential{
		User:     os.Getenv(fmt.Sprintf("CRED_%s_USER", upper)),
		Password: os.Getenv(fmt.Sprintf("CRED_%s_PASS", upper)),
		KeyFile:  os.Getenv(fmt.Sprintf("CRED_%s_KEY", upper)),
	}
	if usable(cred) {
		return cred, true
	}

	// Keychain fallback, mirroring the environment naming.
	if cred.User == "" {
		if v, err := keyring.Get(keyringService, fmt.Sprintf("CRED_%s_USER", upper)); err == nil {
			cred.User = v
		}
	}
	if cred.Password == "" {
		if v, err := keyring.Get(keyringService, fmt.Sprintf("CRED_%s_PASS", upper)); err == nil {
			cred.Password = v
		}
	}
	return cred, usable(cred)
}

// usable requires a user plus either a password or a key file.
func usable(c Credential) bool {
	return c.User != "" && (c.Password != "" || c.KeyFile != "")
}
