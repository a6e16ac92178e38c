package services

import "errors"

var (
	// ErrNoTenant means no tenant exists to receive inbound traffic.
	ErrNoTenant = errors.New("no tenant configured")
	// ErrNoRoute means strict routing found no tenant for the message.
	ErrNoRoute = errors.New("no tenant matches the inbound message")
	// ErrInvalidInbound is returned for webhook payloads without a sender.
	ErrInvalidInbound = errors.New("inbound message has no sender")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")

	// ErrMessagingNotConfigured means the tenant has no sending number.
	ErrMessagingNotConfigured = errors.New("messaging is not configured for this tenant")
	// ErrSendFailed wraps a provider failure after the message was stored.
	ErrSendFailed = errors.New("message stored but sending failed")
	// ErrNoProviderClient means neither the tenant nor the default credentials can send.
	ErrNoProviderClient = errors.New("no messaging client available")

	// ErrSetupClosed is returned by setup endpoints once the database holds tenants.
	ErrSetupClosed = errors.New("setup already completed")
	ErrValidation  = errors.New("validation failed")
)
