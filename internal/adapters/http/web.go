package web

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"slotmanager/internal/adapters/email"
	"slotmanager/internal/adapters/http/middleware"
	"slotmanager/internal/adapters/http/perf"
	"slotmanager/internal/adapters/storage"
	slotStore "slotmanager/internal/adapters/storage/slot"
	userStore "slotmanager/internal/adapters/storage/user"
	"slotmanager/internal/domain/schedule"
)

// Stores holds all storage dependencies.
type Stores struct {
	SlotStore slotStore.Store
	UserStore userStore.Store
}

// Options carries the engine and transport settings resolved from config.
type Options struct {
	Rule           schedule.Rule
	MaxOccupancy   int // 0 disables the cap
	MaxGuests      int
	Retrier        storage.Retrier
	IdentityHeader string
	CSRFKey        []byte // 32 bytes; nil generates a per-process key
	SecureCookies  bool
	TrustedOrigins []string
	RateLimit      int // requests per second per IP; 0 disables
	SlowRequest    time.Duration
}

// Global stores instance (set by NewMux)
var stores *Stores

// Global engine options (set by NewMux)
var options Options

// Global perf collector (set by NewMux)
var perfCollector *perf.Collector

// Global email sender instance (set by SetEmailSender)
var emailSender email.Sender

// Email configuration
var emailFromAddress string
var emailReplyTo string

// timeNow is a variable for testability.
var timeNow = time.Now

// SetEmailSender sets the global email sender for match reports.
func SetEmailSender(sender email.Sender, from, replyTo string) {
	emailSender = sender
	emailFromAddress = from
	emailReplyTo = replyTo
}

// NewMux wires HTTP handlers for the slot API.
// PRE: s carries both stores
// POST: Returns the mux wrapped in Timing -> RateLimit -> Auth -> CSRF -> SecurityHeaders,
// and a stop function that releases the rate limiter's sweeper
func NewMux(s *Stores, collector *perf.Collector, o Options) (http.Handler, func()) {
	stores = s
	perfCollector = collector
	options = o

	mux := http.NewServeMux()
	registerRoutes(mux)

	csrfKey := o.CSRFKey
	if len(csrfKey) == 0 {
		csrfKey = randomCSRFKey()
	}
	limiter := middleware.NewRateLimiter(o.RateLimit, time.Second)

	handler := middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(csrfKey, middleware.CSRFOptions{Secure: o.SecureCookies, TrustedOrigins: o.TrustedOrigins}),
		middleware.Auth(s.UserStore, o.IdentityHeader),
		middleware.RateLimit(limiter),
		middleware.Timing(collector, o.SlowRequest),
	)
	return handler, limiter.Stop
}

// randomCSRFKey backs development runs without SLOTS_CSRF_KEY; config rejects that in production.
func randomCSRFKey() []byte {
	key := make([]byte, 32)
	rand.Read(key)
	slog.Warn("csrf_event", "event", "random_key", "detail", "form tokens will not survive restart; set SLOTS_CSRF_KEY")
	return key
}
