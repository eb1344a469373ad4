package wsess

import "strings"

// SubprotocolHeader is the reserved negotiation header. It cannot be set as
// a plain handshake header; sub-protocols travel through the transport's
// dedicated offer list instead, so Connect filters it out of the caller's
// headers.
const SubprotocolHeader = "Sec-WebSocket-Protocol"

// ParseSubprotocols splits a comma-separated sub-protocol field, trimming
// surrounding whitespace from each entry and discarding empty ones. Order
// is preserved.
func ParseSubprotocols(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func isReservedHeader(name string) bool {
	return strings.EqualFold(name, SubprotocolHeader)
}
