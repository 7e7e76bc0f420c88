package session

import (
	"context"
	"fmt"

	"github.com/dgellow/grant-intake/internal/autherr"
	"github.com/dgellow/grant-intake/internal/identity"
	"github.com/dgellow/grant-intake/internal/log"
	"github.com/dgellow/grant-intake/internal/timeout"
)

// AccessToken returns a bearer token for outgoing requests.
//
// A fresh cached token is returned without any call. On a miss the provider
// is asked for the current session under the credential budget; concurrent
// misses share that call. If the provider is slow or fails transiently the
// stale token is returned instead. A fatal provider error ends the session.
func (o *Orchestrator) AccessToken(ctx context.Context) (string, error) {
	if tok, ok := o.creds.Get(); ok {
		return tok, nil
	}

	subject := o.State().Subject
	ch := o.group.DoChan("session", func() (any, error) {
		return timeout.Race(context.WithoutCancel(ctx), o.timeouts.Credential, o.provider.GetSession)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		var sess *identity.Session
		if res.Val != nil {
			sess = res.Val.(*identity.Session)
		}
		return o.resolveCredential(subject, sess, res.Err)
	}
}

func (o *Orchestrator) resolveCredential(subject string, sess *identity.Session, err error) (string, error) {
	if err != nil {
		if autherr.IsFatal(err) {
			o.post(func() {
				if o.subject != subject || (o.status == StatusUnauthenticated && o.expired) {
					return
				}
				o.teardown("credential lookup", err)
			})
			return "", err
		}

		if stale, ok := o.creds.Stale(); ok {
			log.LogWarnWithFields("session", "Session lookup failed, using stale token", map[string]any{
				"error":   err.Error(),
				"timeout": timeout.IsTimeout(err),
			})
			return stale, nil
		}
		return "", fmt.Errorf("%w: %v", ErrNoCredential, err)
	}

	if sess == nil || sess.AccessToken == "" {
		return "", ErrNoCredential
	}

	o.post(func() {
		if o.subject == sess.Subject || o.status == StatusLoading {
			o.creds.Set(sess.AccessToken, sess.ExpiresAt)
		}
	})
	return sess.AccessToken, nil
}
