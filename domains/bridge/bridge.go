package bridge

// ID identifies one of the two WhatsApp bridges fronted by the hub.
type ID string

const (
	// Go is the whatsmeow-based bridge holding the canonical message store.
	Go ID = "go"
	// Baileys is the Baileys-based bridge used for bulk history backfill.
	Baileys ID = "baileys"
)

// All returns the bridge IDs in canonical order (Go first).
func All() []ID {
	return []ID{Go, Baileys}
}

// Valid reports whether id names a known bridge.
func Valid(id ID) bool {
	return id == Go || id == Baileys
}

// Capability names a functional area a bridge can serve. Routing uses
// capabilities to pick candidate bridges for an operation.
type Capability string

const (
	CapMessaging Capability = "messaging"
	CapHistory   Capability = "history"
	CapCommunity Capability = "community"
	CapStorage   Capability = "storage"
	CapDiagnose  Capability = "diagnose"
)

// TimeoutClass selects which configured timeout a bridge call is bound to.
type TimeoutClass string

const (
	TimeoutDefault TimeoutClass = "default"
	TimeoutShort   TimeoutClass = "short"
	TimeoutMedia   TimeoutClass = "media"
	TimeoutHealth  TimeoutClass = "health"
)

// Descriptor is the static description of a bridge instance.
type Descriptor struct {
	ID           ID           `json:"id"`
	Name         string       `json:"name"`
	BaseURL      string       `json:"base_url"`
	Capabilities []Capability `json:"capabilities"`
}

// Capabilities returns the capability set of a bridge. Go serves
// everything except bulk history; Baileys serves history plus diagnostics.
func Capabilities(id ID) []Capability {
	switch id {
	case Go:
		return []Capability{CapMessaging, CapCommunity, CapStorage, CapDiagnose}
	case Baileys:
		return []Capability{CapHistory, CapDiagnose}
	}
	return nil
}

// HasCapability reports whether bridge id serves cap.
func HasCapability(id ID, cap Capability) bool {
	for _, c := range Capabilities(id) {
		if c == cap {
			return true
		}
	}
	return false
}

// HealthStatus is the raw payload a bridge returns from its health
// endpoint. The go bridge reports whatsapp_connected, the baileys bridge
// reports connected; IsConnected covers both.
type HealthStatus struct {
	Status            string `json:"status"`
	WhatsappConnected bool   `json:"whatsapp_connected"`
	Connected         bool   `json:"connected"`
	LoggedIn          bool   `json:"logged_in"`
}

func (s HealthStatus) IsConnected() bool {
	return s.WhatsappConnected || s.Connected
}
