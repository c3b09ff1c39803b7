// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package bitrix

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTimeout marks an upstream call that exceeded its deadline. Handlers map
// it to a gateway-timeout response instead of a generic upstream failure.
var ErrTimeout = errors.New("bitrix: request timed out")

// APIError is an error the Bitrix24 REST API returned in its response body.
// The HTTP exchange itself succeeded; the portal rejected the call.
type APIError struct {
	Code        string
	Description string
	Method      string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("bitrix: %s failed: %s (%s)", e.Method, e.Description, e.Code)
	}
	return fmt.Sprintf("bitrix: %s failed: %s", e.Method, e.Code)
}

// IsTimeout reports whether err is a timeout, either our sentinel or a
// network/context timeout bubbling up from the transport.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
