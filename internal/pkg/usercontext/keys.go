package usercontext

// Shared Locals keys and headers used across controllers and middlewares
const (
	KeyUserContext = "USER_CONTEXT"

	// HeaderProfileID carries the acting profile, set by the gateway in
	// front of the API after it authenticated the caller.
	HeaderProfileID = "X-Profile-ID"
	// HeaderLicenseID names the license an API call is billed against.
	HeaderLicenseID = "X-License-ID"
)
