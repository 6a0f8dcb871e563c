package gatekeeper

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"s2r-gateway/middleware/gatekeeper/domain"
)

// IdentityFunc extrai a identidade de origem observada pelo transporte.
type IdentityFunc func(r *http.Request) domain.Identity

// DefaultIdentityFunc usa o host de RemoteAddr.
//
// Com trustXFF=true (gateway atrás de um proxy confiável) usa o último hop do
// X-Forwarded-For, que é o que o proxy anexou. Os hops anteriores vêm do
// cliente e podem ser forjados. Nunca usa header escolhido pelo cliente.
func DefaultIdentityFunc(trustXFF bool) IdentityFunc {
	return func(r *http.Request) domain.Identity {
		if trustXFF {
			if hop, ok := rightmostForwardedHop(r.Header.Values("X-Forwarded-For")); ok {
				return domain.Identity(hop)
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err != nil {
			host = strings.TrimSpace(r.RemoteAddr)
		}
		if host == "" {
			return "unknown"
		}
		return domain.Identity(normalizeAddr(host))
	}
}

func rightmostForwardedHop(values []string) (string, bool) {
	for i := len(values) - 1; i >= 0; i-- {
		parts := strings.Split(values[i], ",")
		for j := len(parts) - 1; j >= 0; j-- {
			hop := strings.TrimSpace(parts[j])
			if hop == "" {
				continue
			}
			if ap, err := netip.ParseAddrPort(hop); err == nil {
				return canonical(ap.Addr()), true
			}
			if addr, err := netip.ParseAddr(strings.Trim(hop, "[]")); err == nil {
				return canonical(addr), true
			}
			// o hop do proxy é lixo: não confia em nada antes dele
			return "", false
		}
	}
	return "", false
}

// normalizeAddr deixa uma única forma por endereço (ex: ::ffff:1.2.3.4 vira 1.2.3.4).
func normalizeAddr(host string) string {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return host
	}
	return canonical(addr)
}

func canonical(addr netip.Addr) string {
	return addr.Unmap().WithZone("").String()
}
