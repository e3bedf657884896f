package shared

import (
	"net"
	"strings"
)

// Classification is the result of evaluating a request's network identity
// against the configured allow/deny lists.
type Classification int

const (
	Unlisted Classification = iota
	AllowListed
	DenyListed
)

func (c Classification) String() string {
	switch c {
	case AllowListed:
		return "ALLOW_LISTED"
	case DenyListed:
		return "DENY_LISTED"
	default:
		return "UNLISTED"
	}
}

// AccessLists holds the process-wide allow/deny configuration. Entries are
// exact IPs or IPv4 CIDR ranges; lists are loaded once at startup and never
// mutated afterwards.
type AccessLists struct {
	InternalIPs []string
	AdminIPs    []string
	Blacklist   []string
}

// Classify evaluates an IP and authenticated role against the access lists.
// The blacklist is absolute: a deny-listed IP loses even when it would match a
// whitelist entry or carries an admin role.
func Classify(ip, role string, lists AccessLists) Classification {
	if MatchesAccessList(ip, lists.Blacklist) {
		return DenyListed
	}

	if role == RoleAdmin ||
		MatchesAccessList(ip, lists.InternalIPs) ||
		MatchesAccessList(ip, lists.AdminIPs) {
		return AllowListed
	}

	return Unlisted
}

// MatchesAccessList reports whether ip matches any entry in the list, by exact
// equality (including the IPv4-mapped IPv6 form) or CIDR containment.
// Malformed IPs and malformed entries never match.
func MatchesAccessList(ip string, list []string) bool {
	if ip == "" {
		return false
	}

	for _, entry := range list {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			if IPInCIDR(ip, entry) {
				return true
			}
			continue
		}

		if ip == entry || ip == "::ffff:"+entry {
			return true
		}
	}

	return false
}

// IPInCIDR reports whether an IPv4 address falls inside an IPv4 CIDR range.
// Anything structurally invalid (wrong octet count, non-numeric segment,
// prefix outside 0-32) fails closed.
func IPInCIDR(ip, cidr string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	v4 := parsed.To4()
	if v4 == nil {
		return false
	}

	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	if network.IP.To4() == nil {
		return false
	}

	return network.Contains(v4)
}

// IsValidIP reports whether the value parses as an IPv4 or IPv6 address.
func IsValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
