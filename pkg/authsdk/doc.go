/*
Package authsdk is an OpenID Connect relying party for browser-style
(single page) applications and CLIs: authorization code flow with PKCE, ID
token verification, refresh, RFC 7009 revocation, RP-initiated logout and
custom grants.

# Lifecycle

	client := authsdk.New()
	ok, err := client.Initialize(ctx, authsdk.Config{
		BaseURL:           "https://id.example.com",
		ClientID:          "spa",
		SignInRedirectURL: "http://127.0.0.1:8085/callback",
		Scopes:            []string{"profile", "email"},
	})

	// Send the user agent to the provider.
	authURL, state, err := client.SignInURL(ctx, authsdk.SignInConfig{})

	// On the redirect back, exchange the code.
	info, err := client.SignIn(ctx, authsdk.SignInConfig{State: state}, code, sessionState)

	// Call an API with the access token attached.
	resp, err := client.HTTPRequest(ctx, authsdk.HTTPRequestConfig{URL: "https://api.example.com/me"})

	endSessionURL, err := client.SignOut(ctx)

# Storage

Sessions live in memory by default. StorageSQLite keeps them in a SQLite
file so a CLI stays signed in between runs. StorageIsolated keeps them in
memory and refuses to hand out the access token; requests made through
HTTPRequest or GetHTTPClient still carry it.

# Hooks

Register one callback per Hook with On. Callbacks run synchronously on the
goroutine that triggered the event. Custom grants are keyed by id:

	client.On(authsdk.HookCustomGrant("token-exchange"), func(payload any) { ... })

# Errors

Provider errors are *OAuth2Error values carrying the RFC 6749 error code.
Non-2xx API responses are *HTTPError. Sentinels such as ErrNotAuthenticated
and ErrTokensIsolated can be matched with errors.Is.
*/
package authsdk
