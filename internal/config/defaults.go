package config

// DefaultAddr is the default listen address for the WebSocket server.
const DefaultAddr = "127.0.0.1:3001"

// DefaultDatabaseFile is used when the home directory cannot be resolved.
const DefaultDatabaseFile = "collab.db"

// DefaultCursorIntervalMs caps cursor relays at 20 per second per session.
const DefaultCursorIntervalMs = 50

// DefaultSendBuffer is the per-session outbound queue length.
const DefaultSendBuffer = 256

// DefaultMaxProtocolViolations is the forced-close threshold.
const DefaultMaxProtocolViolations = 5
