package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateHost(t *testing.T) {
	tests := []struct {
		host          string
		expectedError string
	}{
		{host: "localhost"},
		{host: "0.0.0.0"},
		{host: "127.0.0.1"},
		{host: "::1"},
		{host: "skills.internal"},
		{host: "", expectedError: "host cannot be empty"},
		{host: "local host", expectedError: "invalid host: local host"},
		{host: "localhost:8000", expectedError: "invalid host: localhost:8000"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			err := validateHost(tt.host)
			if tt.expectedError == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.expectedError)
		})
	}
}
