// Package session stores per-sender conversation state for the webhook.
// Backends are interchangeable behind Store: memory for development and tests,
// postgres when conversations must outlive a single process.
package session
