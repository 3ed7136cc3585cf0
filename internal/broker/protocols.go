package broker

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gorilla/websocket"
)

const maxProtocolHeader = 127

var sessionProtocol = regexp.MustCompile(`^session\.[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// protocolOffer is what a peer announced through Sec-WebSocket-Protocol.
// The header doubles as a key/value channel because browsers cannot set
// arbitrary headers on a websocket handshake.
type protocolOffer struct {
	downloader bool
	key        string
	contactURL string
	ticket     string
	// first is echoed back so browsers accept the handshake.
	first string
}

func parseProtocols(r *http.Request) protocolOffer {
	var offer protocolOffer
	header := r.Header.Get("Sec-Websocket-Protocol")
	if header == "" || len(header) > maxProtocolHeader {
		return offer
	}
	protocols := websocket.Subprotocols(r)
	if len(protocols) > 0 {
		offer.first = protocols[0]
	}
	for _, proto := range protocols {
		switch {
		case strings.HasPrefix(proto, "key."):
			offer.downloader = true
			offer.key = strings.TrimPrefix(proto, "key.")
		case strings.HasPrefix(proto, "contact.") && offer.downloader:
			offer.contactURL = strings.TrimPrefix(proto, "contact.")
		case sessionProtocol.MatchString(proto):
			offer.ticket = strings.TrimPrefix(proto, "session.")
		}
	}
	return offer
}

// responseHeader echoes the first offered protocol.
func (o protocolOffer) responseHeader() http.Header {
	if o.first == "" {
		return nil
	}
	return http.Header{"Sec-Websocket-Protocol": {o.first}}
}
