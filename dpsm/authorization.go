package dpsm

import "sync"

// AuthorizationCtx is a shared, mutex-guarded holder for the credential
// material a TransportContract produces during RegisterStep and consumes
// during StatusStep. It is threaded through both calls instead of growing
// the TransportContract signature, and is safe to mutate only because the
// driver runs exactly one step at a time.
type AuthorizationCtx struct {
	mu         sync.RWMutex
	sasToken   string
	derivedKey []byte
}

// SASToken returns the most recently stored SAS token, or "" if none has
// been set yet.
func (a *AuthorizationCtx) SASToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sasToken
}

// SetSASToken stores a SAS token produced by a transport call so later
// calls can authenticate with it.
func (a *AuthorizationCtx) SetSASToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sasToken = token
}

// DerivedKey returns the most recently stored derived key material.
func (a *AuthorizationCtx) DerivedKey() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.derivedKey == nil {
		return nil
	}
	out := make([]byte, len(a.derivedKey))
	copy(out, a.derivedKey)
	return out
}

// SetDerivedKey stores derived key material produced by a transport call.
func (a *AuthorizationCtx) SetDerivedKey(key []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.derivedKey = append([]byte(nil), key...)
}
