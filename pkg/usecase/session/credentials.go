package session

import (
	"sync"

	"github.com/m-mizutani/skyalgo/pkg/adapter"
)

// Credentials holds the model credential and whether it is considered usable. A permission
// failure clears the ready flag until a credential is set again.
type Credentials struct {
	mu    sync.RWMutex
	cred  adapter.Credential
	ready bool
}

func NewCredentials(cred adapter.Credential) *Credentials {
	return &Credentials{
		cred:  cred,
		ready: !cred.Empty(),
	}
}

// Credential implements analysis.CredentialSource
func (c *Credentials) Credential() adapter.Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

func (c *Credentials) Set(cred adapter.Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = cred
	c.ready = !cred.Empty()
}

func (c *Credentials) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

func (c *Credentials) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
}
