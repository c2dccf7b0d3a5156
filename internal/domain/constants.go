package domain

import "time"

// Storage keys for the credential pair. They match the names the browser
// front end used for localStorage so both clients read the same documents.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

// Navigation targets.
const (
	LoginPath  = "/login"
	LogoutPath = "/logout"
)

// Operational limits. These are compiled defaults that can be overridden via
// configuration.
const (
	// Authentication collaborator
	AuthLoginEndpoint = "/auth/login"
	AuthTimeout       = 15 * time.Second // Upper bound for POST /auth/login

	// Token storage
	StoreTimeout  = 2 * time.Second // Max time for one token store operation
	RedisTimeout  = 2 * time.Second
	DynamoTimeout = 5 * time.Second

	// Console client registry
	ClientCookieName    = "newsdesk_client"
	ClientIdleTimeout   = 30 * time.Minute // Clients unseen for this long are evicted
	ClientSweepSchedule = "@every 1m"
	MaxQueuedNotices    = 16 // Notices kept per client until the next GET /login

	// Login throttling
	LoginAttemptsPerWindow = 10
	LoginAttemptWindow     = time.Minute

	// Graceful shutdown
	GracefulShutdownTimeout = 30 * time.Second
	ShutdownDrainDelay      = 2 * time.Second
	ShutdownHTTPTimeout     = 20 * time.Second
	ShutdownOTELTimeout     = 5 * time.Second
)
