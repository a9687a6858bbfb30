package validator

import (
	"net/netip"
)

// SourceIP 返回可写入访问日志的规范化来源地址，无法解析时返回空串。
// IPv6 的 zone 被去除，IPv4 映射地址 (::ffff:a.b.c.d) 还原为 IPv4。
func SourceIP(raw string) string {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return ""
	}
	return addr.WithZone("").Unmap().String()
}
