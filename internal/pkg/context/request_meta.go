package context

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	clientKey    contextKey = "client"
)

// Client describes who is on the other end of a request.
type Client struct {
	SessionID string
	IP        string
	UserAgent string
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey, c)
}

// GetClient returns the zero Client when none was attached.
func GetClient(ctx context.Context) Client {
	if ctx == nil {
		return Client{}
	}
	c, _ := ctx.Value(clientKey).(Client)
	return c
}
