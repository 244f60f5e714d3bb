package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{429, "rate_limit"},
		{401, "auth"},
		{403, "auth"},
		{500, "server_error"},
		{503, "server_error"},
		{400, "client_error"},
		{404, "client_error"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCodeForStatus(tt.status))
	}
}
