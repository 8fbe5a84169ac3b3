package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvokedAlias(t *testing.T) {
	tests := []struct {
		arn  string
		want string
	}{
		{"arn:aws:lambda:us-east-1:123456789012:function:replay-processor:canary", "canary"},
		{"arn:aws:lambda:us-east-1:123456789012:function:replay-processor", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, invokedAlias(tt.arn), tt.arn)
	}
}
