// Package persona persists per-session identity records: the assistant
// display name, the owner's name and gender, the offline reason, and the
// online flag consulted at startup.
//
// Every read has documented default-on-failure semantics: an absent or
// malformed record yields the package defaults below, never an error.
// Callers therefore cannot distinguish "never set" from "corrupted", which
// is intentional — the responder must keep answering with something
// sensible no matter what is on disk.
package persona

// Defaults returned when a record is absent or unreadable.
const (
	// DefaultAssistantName is used when no assistant name was persisted.
	DefaultAssistantName = "Bot"

	// DefaultOwnerName is used when no owner record was persisted.
	DefaultOwnerName = "Pemilik"

	// DefaultOfflineReason is used when no offline reason was persisted.
	DefaultOfflineReason = "Owner sedang offline."

	// DefaultOfflineTime is used when no offline timestamp was persisted.
	DefaultOfflineTime = "Waktu tidak tersedia."
)

// Gender is the persisted owner gender. Only "male" and "female" are ever
// written; anything else reads back as GenderUnset.
type Gender string

const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Owner is the persisted owner record.
type Owner struct {
	Name   string
	Gender Gender
}

// OfflineReason is the persisted offline reason record. Time is the
// human-formatted moment the reason was set, not a machine timestamp.
type OfflineReason struct {
	Reason string
	Time   string
}

// Store persists persona records per session name.
//
// Reads never fail: implementations substitute the package defaults for
// absent or malformed records. Writes report I/O errors to the caller.
type Store interface {
	AssistantName(session string) string
	SetAssistantName(session, name string) error

	Owner(session string) Owner
	// SetOwner persists the owner name. The gender is only updated when it
	// is exactly GenderMale or GenderFemale; any other value leaves the
	// persisted gender untouched.
	SetOwner(session, name string, gender Gender) error

	OfflineReason(session string) OfflineReason
	SetOfflineReason(session, reason, formattedTime string) error

	// OnlineFlag reports whether the owner was last known online.
	// Defaults to true so a fresh session does not auto-reply.
	OnlineFlag(session string) bool
	SetOnlineFlag(session string, online bool) error
}
