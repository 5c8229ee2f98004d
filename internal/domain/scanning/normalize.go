package scanning

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Field names produced by enumerators. The vocabulary is fixed so the
// correlator can pick the right normalization for each field; unknown fields
// still merge, with whitespace trimming only.
const (
	FieldEmails       = "emails"
	FieldURLs         = "urls"
	FieldEndpoints    = "endpoints"
	FieldKeywords     = "keywords"
	FieldSourcemaps   = "sourcemap_matches"
	FieldJSPaths      = "js_paths"
	FieldSubdomains   = "subdomains"
	FieldIPAddresses  = "ip_addresses"
	FieldVirtualHosts = "virtual_hosts"
)

// Enumerators that report findings grouped by an inner key, such as DNS
// records by record type or detected services by port, flatten each group
// into one field named prefix plus the lowercased key: "dns_records_a",
// "dns_records_mx", "detected_services_443". Keyed fields merge and
// deduplicate like any other set-valued field; name-valued DNS record types
// also get domain normalization.
const (
	FieldDNSRecordsPrefix       = "dns_records_"
	FieldHistoricalDNSPrefix    = "historical_dns_"
	FieldDetectedServicesPrefix = "detected_services_"
)

// KeyedField builds the flattened field name for one group of a map-valued
// finding.
func KeyedField(prefix, key string) string {
	return prefix + strings.ToLower(strings.TrimSpace(key))
}

// normalizeFieldValue canonicalizes a single value for the named field so
// that values differing only by case or trivial formatting collapse to one
// entry when merged. Empty results are dropped by the caller.
func normalizeFieldValue(field, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	switch field {
	case FieldEmails:
		return normalizeEmail(value)
	case FieldSubdomains, FieldVirtualHosts:
		return normalizeDomain(value)
	case FieldURLs:
		return normalizeURL(value)
	case FieldKeywords:
		return strings.ToLower(value)
	}
	if key, ok := strings.CutPrefix(field, FieldDNSRecordsPrefix); ok {
		return normalizeDNSRecord(key, value)
	}
	if key, ok := strings.CutPrefix(field, FieldHistoricalDNSPrefix); ok {
		return normalizeDNSRecord(key, value)
	}
	return value
}

// normalizeDNSRecord canonicalizes one record of a keyed DNS field. Only
// name-valued record types get domain normalization; address and free-text
// records (A, AAAA, TXT) pass through unchanged.
func normalizeDNSRecord(recordType, value string) string {
	switch recordType {
	case "cname", "mx", "ns", "ptr":
		return normalizeDomain(value)
	}
	return value
}

// normalizeEmail case-folds the address and canonicalizes the domain part.
// Address local parts are case-insensitive in practice for every registrar
// this system targets, so the whole address is folded.
func normalizeEmail(addr string) string {
	addr = strings.ToLower(addr)
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return addr
	}
	return addr[:at+1] + normalizeDomain(addr[at+1:])
}

// normalizeDomain lowercases a hostname and converts it to its canonical
// ASCII (punycode) form. Values that fail IDNA mapping keep the folded form.
func normalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return host
	}
	return ascii
}

// normalizeURL produces a canonical URL form: lowercased scheme and host,
// punycoded host, default port stripped, and no trailing slash on an empty
// path. Values that do not parse as absolute URLs are returned trimmed.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)

	host := normalizeDomain(u.Hostname())
	if port := u.Port(); port != "" && !isDefaultPort(u.Scheme, port) {
		host += ":" + port
	}
	u.Host = host

	if u.Path == "/" && u.RawQuery == "" && u.Fragment == "" {
		u.Path = ""
	}

	return u.String()
}

func isDefaultPort(scheme, port string) bool {
	switch scheme {
	case "http":
		return port == "80"
	case "https":
		return port == "443"
	default:
		return false
	}
}
