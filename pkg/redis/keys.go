package redis

import "strings"

const keyNamespace = "df"

// IdempotencyKey namespaces a consumer claim, e.g. df:idempotency:evt:analytics:<id>.
func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey("idempotency", scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return joinKey("rate_limit", scope)
}

func (c *Client) LockKey(name string) string {
	return joinKey("lock", name)
}

// joinKey joins the non-empty parts under the service namespace.
func joinKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteByte(':')
			b.WriteString(p)
		}
	}
	return b.String()
}
