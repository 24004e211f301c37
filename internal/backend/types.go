package backend

// SyncState describes backlog ingestion after a successful pairing.
type SyncState string

const (
	SyncIdle    SyncState = "idle"
	SyncSyncing SyncState = "syncing"
	SyncReady   SyncState = "ready"
)

// SyncProgress reports how much of the message backlog has been received.
type SyncProgress struct {
	ItemsReceived uint `json:"chatsReceived"`
	IsLatest      bool `json:"isLatest"`
}

// Visual is the QR representation of a pairing request. Raw is the payload
// the QR encodes; DataURL is a pre-rendered PNG ("data:image/png;base64,...").
// Either may be empty depending on the backend.
type Visual struct {
	Raw     string `json:"raw,omitempty"`
	DataURL string `json:"dataUrl,omitempty"`
}

// Snapshot is one immutable status poll result.
type Snapshot struct {
	NeedsPairing bool          `json:"needsQrScan"`
	IsConnected  bool          `json:"isConnected"`
	QR           *Visual       `json:"qr,omitempty"`
	SyncState    SyncState     `json:"syncState"`
	SyncProgress *SyncProgress `json:"syncProgress,omitempty"`
	// AdminPhone is "" until the backend has confirmed and persisted a phone.
	AdminPhone string `json:"adminPhone,omitempty"`
}

// statusResponse is the wire shape of GET status. The QR fields are flat on
// the wire and folded into Snapshot.QR.
type statusResponse struct {
	NeedsQRScan  bool          `json:"needsQrScan"`
	IsConnected  bool          `json:"isConnected"`
	QRCode       *string       `json:"qrCode"`
	QRDataURL    *string       `json:"qrDataUrl"`
	SyncState    SyncState     `json:"syncState"`
	SyncProgress *SyncProgress `json:"syncProgress"`
	AdminPhone   *string       `json:"adminPhone"`
}

func (r statusResponse) snapshot() *Snapshot {
	s := &Snapshot{
		NeedsPairing: r.NeedsQRScan,
		IsConnected:  r.IsConnected,
		SyncState:    r.SyncState,
		SyncProgress: r.SyncProgress,
	}
	if s.SyncState == "" {
		s.SyncState = SyncIdle
	}
	if r.AdminPhone != nil {
		s.AdminPhone = *r.AdminPhone
	}
	var v Visual
	if r.QRCode != nil {
		v.Raw = *r.QRCode
	}
	if r.QRDataURL != nil {
		v.DataURL = *r.QRDataURL
	}
	if v.Raw != "" || v.DataURL != "" {
		s.QR = &v
	}
	return s
}

// PairingCode is the result of a successful pairing-code request.
type PairingCode struct {
	Code          string `json:"code,omitempty"`
	FormattedCode string `json:"formattedCode,omitempty"`
}

// Display returns the code as it should be shown to the user.
func (p PairingCode) Display() string {
	if p.FormattedCode != "" {
		return p.FormattedCode
	}
	return p.Code
}

// ApplyResult is the result of applying a configuration value.
type ApplyResult struct {
	NeedsRestart bool `json:"needsRestart"`
}

type pairingCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type applyConfigRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// actionResponse covers every POST response shape; unused fields stay zero.
type actionResponse struct {
	Success       bool   `json:"success"`
	Code          string `json:"code,omitempty"`
	FormattedCode string `json:"formattedCode,omitempty"`
	NeedsRestart  bool   `json:"needsRestart,omitempty"`
	Error         string `json:"error,omitempty"`
	Message       string `json:"message,omitempty"`
}

func (r actionResponse) errorMessage() string {
	if r.Error != "" {
		return r.Error
	}
	if r.Message != "" {
		return r.Message
	}
	return "request was rejected"
}
