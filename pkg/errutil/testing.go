// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package errutil

import (
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestingT is the part of *testing.T the assertions need.
type TestingT interface {
	require.TestingT
	Helper()
}

// requireOops fails t unless err carries an oops error somewhere in its chain.
func requireOops(t TestingT, err error) (oops.OopsError, bool) {
	t.Helper()
	if !assert.Error(t, err) {
		t.FailNow()
		return oops.OopsError{}, false
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		require.Fail(t, "expected oops error", "got %T: %v", err, err)
		return oops.OopsError{}, false
	}
	return oopsErr, true
}

// AssertErrorCode asserts that the deepest oops code on err equals code.
func AssertErrorCode(t TestingT, err error, code string) {
	t.Helper()
	oopsErr, ok := requireOops(t, err)
	if !ok {
		return
	}
	assert.Equal(t, code, oopsErr.Code(), "error: %v", err)
}

// AssertErrorContext asserts that the merged oops context of err holds key
// set to value.
func AssertErrorContext(t TestingT, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := requireOops(t, err)
	if !ok {
		return
	}
	ctx := oopsErr.Context()
	if assert.Contains(t, ctx, key, "error: %v", err) {
		assert.Equal(t, value, ctx[key], "context %q", key)
	}
}

// AssertNoErrorContext asserts that none of keys appear in the oops context
// of err. Use it to check that secrets stay out of logged errors.
func AssertNoErrorContext(t TestingT, err error, keys ...string) {
	t.Helper()
	oopsErr, ok := requireOops(t, err)
	if !ok {
		return
	}
	ctx := oopsErr.Context()
	for _, key := range keys {
		assert.NotContains(t, ctx, key, "error: %v", err)
	}
}
