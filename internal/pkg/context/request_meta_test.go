package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
	assert.Empty(t, GetRequestID(nil))
}

func TestClient_DefaultsToZero(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Client{}, GetClient(context.Background()))

	ctx := WithClient(context.Background(), Client{SessionID: "s", IP: "10.0.0.1", UserAgent: "ua"})
	assert.Equal(t, "10.0.0.1", GetClient(ctx).IP)
}
