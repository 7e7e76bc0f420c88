package session

import (
	"context"

	"github.com/dgellow/grant-intake/internal/autherr"
	"github.com/dgellow/grant-intake/internal/identity"
	"github.com/dgellow/grant-intake/internal/log"
	"github.com/dgellow/grant-intake/internal/profile"
	"github.com/dgellow/grant-intake/internal/timeout"
)

type fetchMode int

const (
	// fetchIfUnresolved forces a fetch only when no cached or full profile
	// could be adopted, and runs a background fetch otherwise.
	fetchIfUnresolved fetchMode = iota
	fetchBackground
	fetchForced
)

func (m fetchMode) String() string {
	switch m {
	case fetchBackground:
		return "background"
	case fetchForced:
		return "forced"
	default:
		return "startup"
	}
}

func (o *Orchestrator) beginStartup() {
	o.status = StatusLoading
	o.publish()

	gen := o.generation
	go func() {
		sess, err := timeout.Race(o.ctx, o.timeouts.Session, o.provider.GetSession)
		o.post(func() { o.finishStartup(gen, sess, err) })
	}()
}

func (o *Orchestrator) finishStartup(gen uint64, sess *identity.Session, err error) {
	if o.status != StatusLoading || o.generation != gen {
		log.LogDebugWithFields("session", "Startup lookup superseded by a provider event", map[string]any{
			"status": string(o.status),
		})
		return
	}

	if err != nil {
		if autherr.IsFatal(err) {
			o.teardown("startup", err)
			return
		}
		log.LogWarnWithFields("session", "Session lookup failed at startup, continuing signed out", map[string]any{
			"error":   err.Error(),
			"timeout": timeout.IsTimeout(err),
		})
		o.status = StatusUnauthenticated
		o.publish()
		return
	}

	if sess == nil {
		o.status = StatusUnauthenticated
		o.publish()
		return
	}

	log.LogInfoWithFields("session", "Restored session", map[string]any{
		"subject": sess.Subject,
	})
	o.adoptSession(sess, fetchIfUnresolved)
}

func (o *Orchestrator) handleEvent(ev identity.Event) {
	if ev.Err != nil {
		o.handleEventError(ev)
		return
	}

	switch ev.Kind {
	case identity.SignedOut:
		o.handleSignedOut()
	case identity.InitialSession:
		if ev.Session == nil {
			return
		}
		// startup owns the loading state, the event only warms the credential
		if o.status == StatusLoading || o.status == StatusUninitialized {
			o.creds.Set(ev.Session.AccessToken, ev.Session.ExpiresAt)
			return
		}
		o.adoptSession(ev.Session, fetchBackground)
	case identity.TokenRefreshed:
		if ev.Session == nil {
			return
		}
		o.adoptSession(ev.Session, fetchBackground)
	case identity.SignedIn, identity.UserUpdated:
		if ev.Session == nil {
			return
		}
		o.adoptSession(ev.Session, fetchForced)
	default:
		log.LogDebugWithFields("session", "Ignoring unknown provider event", map[string]any{
			"kind": string(ev.Kind),
		})
	}
}

func (o *Orchestrator) handleEventError(ev identity.Event) {
	if !autherr.IsFatal(ev.Err) {
		log.LogWarnWithFields("session", "Provider reported a transient error", map[string]any{
			"kind":  string(ev.Kind),
			"error": ev.Err.Error(),
		})
		return
	}

	if o.status == StatusUnauthenticated && o.expired {
		log.LogDebugWithFields("session", "Session already expired, ignoring fatal event", map[string]any{
			"kind": string(ev.Kind),
		})
		return
	}
	o.teardown(string(ev.Kind), ev.Err)
}

// handleSignedOut drops the session without any network call.
func (o *Orchestrator) handleSignedOut() {
	if o.status == StatusUnauthenticated && o.subject == "" && o.current == nil {
		return
	}

	log.LogInfoWithFields("session", "Signed out", map[string]any{
		"subject": o.subject,
	})

	o.generation++
	o.inFlight = 0
	o.subject = ""
	o.current = nil
	o.creds.Clear()
	o.clearProfileCache()

	o.status = StatusUnauthenticated
	o.expired = false
	o.publish()
}

// adoptSession makes sess the active session and picks the profile to show
// until the next fetch lands.
func (o *Orchestrator) adoptSession(sess *identity.Session, mode fetchMode) {
	o.creds.Set(sess.AccessToken, sess.ExpiresAt)

	if sess.Subject != o.subject {
		if o.subject != "" {
			log.LogInfoWithFields("session", "Subject changed", map[string]any{
				"from": o.subject,
				"to":   sess.Subject,
			})
		}
		o.generation++
		o.inFlight = 0
		o.subject = sess.Subject
		o.current = nil
	}

	resolved := o.current != nil && !o.current.IsMinimal()
	if !resolved {
		if cached, ok := o.readProfileCache(sess.Subject); ok {
			o.current = cached
			resolved = true
		} else if o.current == nil {
			o.current = profile.Minimal(sess.Subject, sess.Email)
		}
	}

	o.status = StatusAuthenticated
	o.expired = false
	o.publish()

	forced := mode == fetchForced || (mode == fetchIfUnresolved && !resolved)
	o.scheduleFetch(forced)
}

// teardown ends a session whose credential can never be refreshed again.
func (o *Orchestrator) teardown(origin string, cause error) {
	log.LogWarnWithFields("session", "Session expired", map[string]any{
		"origin":  origin,
		"subject": o.subject,
		"error":   cause.Error(),
	})

	o.generation++
	o.inFlight = 0
	o.subject = ""
	o.current = nil
	o.creds.Clear()
	o.clearProfileCache()

	o.status = StatusUnauthenticated
	o.expired = true
	o.publish()

	if o.onExpired != nil {
		o.onExpired()
	}

	go func() {
		ctx, cancel := context.WithTimeout(o.ctx, o.timeouts.SignOut)
		defer cancel()
		if err := o.provider.SignOut(ctx, identity.ScopeLocal); err != nil {
			log.LogDebugWithFields("session", "Local provider sign-out after expiry failed", map[string]any{
				"error": err.Error(),
			})
		}
	}()
}

func (o *Orchestrator) readProfileCache(subject string) (*profile.Profile, bool) {
	ctx, cancel := context.WithTimeout(o.ctx, o.timeouts.Store)
	defer cancel()
	return o.profiles.Read(ctx, subject)
}

func (o *Orchestrator) writeProfileCache(subject string, p *profile.Profile) {
	ctx, cancel := context.WithTimeout(o.ctx, o.timeouts.Store)
	defer cancel()
	o.profiles.Write(ctx, subject, p)
}

func (o *Orchestrator) clearProfileCache() {
	ctx, cancel := context.WithTimeout(o.ctx, o.timeouts.Store)
	defer cancel()
	o.profiles.Clear(ctx)
}
