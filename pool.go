package keyrelay

import "fmt"

// KeyPool is the ordered set of upstream credentials and the rotation cursor.
//
// KeyPool does no locking of its own. The Dispatcher serializes access to Next.
type KeyPool struct {
	credentials []string
	cursor      int
}

// NewKeyPool creates a pool over a copy of credentials.
// Returns ErrConfiguration if credentials is empty.
func NewKeyPool(credentials []string) (*KeyPool, error) {
	if len(credentials) == 0 {
		return nil, fmt.Errorf("%w: at least one credential is required", ErrConfiguration)
	}

	creds := make([]string, len(credentials))
	copy(creds, credentials)

	return &KeyPool{
		credentials: creds,
		cursor:      -1, // first Next returns credentials[0]
	}, nil
}

// Next advances the cursor by one position and returns the credential there.
// It does not look at exhaustion state; filtering is the caller's job.
func (p *KeyPool) Next() string {
	p.cursor = (p.cursor + 1) % len(p.credentials)
	return p.credentials[p.cursor]
}

// Size returns the number of loaded credentials.
func (p *KeyPool) Size() int { return len(p.credentials) }

// Credentials returns the credentials in pool order.
func (p *KeyPool) Credentials() []string {
	out := make([]string, len(p.credentials))
	copy(out, p.credentials)
	return out
}

// Contains reports whether credential is a pool member.
func (p *KeyPool) Contains(credential string) bool {
	for _, c := range p.credentials {
		if c == credential {
			return true
		}
	}
	return false
}

// MaskCredential returns a loggable form of a credential: "..." plus the last four characters.
func MaskCredential(credential string) string {
	if len(credential) <= 4 {
		return "..." + credential
	}
	return "..." + credential[len(credential)-4:]
}
