package authsdk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHookValidity(t *testing.T) {
	t.Parallel()

	require.True(t, HookSignIn.valid())
	require.True(t, HookCustomGrant("exchange").valid())
	require.False(t, HookCustomGrant("").valid())
	require.False(t, Hook{}.valid())
	require.Equal(t, "custom-grant:exchange", HookCustomGrant("exchange").String())
	require.Equal(t, "sign-in", HookSignIn.String())
}

func TestHookRegistry(t *testing.T) {
	t.Parallel()

	t.Run("last registration wins", func(t *testing.T) {
		t.Parallel()
		r := newHookRegistry()

		var got []string
		require.NoError(t, r.set(HookSignIn, func(any) { got = append(got, "first") }))
		require.NoError(t, r.set(HookSignIn, func(any) { got = append(got, "second") }))

		r.fire(HookSignIn, nil)
		require.Equal(t, []string{"second"}, got)
	})

	t.Run("custom grants are keyed by id", func(t *testing.T) {
		t.Parallel()
		r := newHookRegistry()

		var a, b int
		require.NoError(t, r.set(HookCustomGrant("a"), func(any) { a++ }))
		require.NoError(t, r.set(HookCustomGrant("b"), func(any) { b++ }))

		r.fire(HookCustomGrant("a"), nil)
		require.Equal(t, 1, a)
		require.Equal(t, 0, b)
	})

	t.Run("nil callback unregisters", func(t *testing.T) {
		t.Parallel()
		r := newHookRegistry()

		var n int
		require.NoError(t, r.set(HookSignOut, func(any) { n++ }))
		require.NoError(t, r.set(HookSignOut, nil))
		r.fire(HookSignOut, nil)
		require.Zero(t, n)
	})

	t.Run("callbacks may register hooks", func(t *testing.T) {
		t.Parallel()
		r := newHookRegistry()

		require.NoError(t, r.set(HookInitialize, func(any) {
			_ = r.set(HookSignIn, func(any) {})
		}))
		r.fire(HookInitialize, nil)
	})

	t.Run("invalid hooks are rejected", func(t *testing.T) {
		t.Parallel()
		require.ErrorIs(t, newHookRegistry().set(HookCustomGrant(""), func(any) {}), ErrInvalidHook)
	})
}
