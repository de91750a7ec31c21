// Package authapi is the UI facing side of the SDK. An AuthAPI keeps a small
// cached State (who is signed in and with which scopes) next to an
// authsdk.Client, forwards every operation to the client and pushes state
// changes to a Dispatch sink supplied by the caller.
//
//	api := authapi.New(authsdk.New())
//	ok, err := api.Init(ctx, cfg)
//	info, err := api.SignIn(ctx, store.Set, store.Get(), signInCfg, code, sessionState, nil)
//
// Errors from the client are returned unchanged.
package authapi
