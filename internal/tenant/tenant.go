// Package tenant resolves the tenant of a request from its host name.
package tenant

import (
	"context"
	"net"
	"net/http"
	"strings"
)

const (
	// Default is used when the host carries no tenant label.
	Default = "default"

	// SubdomainOffset is the number of trailing labels forming the base domain.
	SubdomainOffset = 2
	// LabelIndex selects the tenant among the subdomains, counted from the
	// label nearest the base domain.
	LabelIndex = 4
)

type contextKey string

const tenantKey contextKey = "tenant"

// Subdomains returns the labels of host left of the base domain, nearest
// first. IP addresses have no subdomains.
func Subdomains(host string, offset int) []string {
	host = hostname(host)
	if host == "" || net.ParseIP(host) != nil {
		return nil
	}

	labels := strings.Split(host, ".")
	if len(labels) <= offset {
		return nil
	}
	labels = labels[:len(labels)-offset]

	out := make([]string, len(labels))
	for i, l := range labels {
		out[len(labels)-1-i] = l
	}
	return out
}

func hostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}

// Resolve maps a Host header value to a tenant key.
func Resolve(host string) string {
	subs := Subdomains(host, SubdomainOffset)
	if len(subs) > LabelIndex && subs[LabelIndex] != "" {
		return subs[LabelIndex]
	}
	return Default
}

// Middleware stores the resolved tenant in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithTenant(r.Context(), Resolve(r.Host))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

// FromContext extracts the tenant from context, falling back to Default.
func FromContext(ctx context.Context) string {
	if val, ok := ctx.Value(tenantKey).(string); ok && val != "" {
		return val
	}
	return Default
}
