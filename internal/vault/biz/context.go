package biz

import "context"

type sourceIPKey struct{}

// WithSourceIP 记录调用方 IP，供审计日志使用
func WithSourceIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, sourceIPKey{}, ip)
}

// SourceIPFromContext 读取调用方 IP
func SourceIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(sourceIPKey{}).(string)
	return ip
}
