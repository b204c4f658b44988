// Package session – reply.go builds the Indonesian auto-reply texts.
package session

import (
	"fmt"
	"time"

	"github.com/jholhewres/wareply/pkg/wareply/persona"
)

// Greeting returns the time-of-day greeting for the local time t.
// Band boundaries: 04 pagi, 11 siang, 15 sore, 18 malam.
func Greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 4 && h < 11:
		return "*Selamat pagi*"
	case h >= 11 && h < 15:
		return "*Selamat siang*"
	case h >= 15 && h < 18:
		return "*Selamat sore*"
	default:
		return "*Selamat malam*"
	}
}

// OwnerCall returns the honorific plus owner name, e.g. "Mbak Budi".
// Female gets "Mbak"; anything else, including unset, gets "Mas".
func OwnerCall(o persona.Owner) string {
	honorific := "Mas"
	if o.Gender == persona.GenderFemale {
		honorific = "Mbak"
	}
	return honorific + " " + o.Name
}

// FormatTimestamp renders t the way the replies present times
// (id-ID short form, dot-separated clock).
func FormatTimestamp(t time.Time) string {
	return t.Format("02/01/2006, 15.04.05")
}

// directReply builds the offline auto-reply for a direct conversation.
func directReply(now time.Time, ownerCall string, reason persona.OfflineReason, assistant string) string {
	return fmt.Sprintf(
		"%s, \n\n> Saat ini %s sedang offline. \nReason: %s. \nSejak: %s \nTinggalkan pesan dibawah ini. \n\nBot: *%s*",
		Greeting(now), ownerCall, reason.Reason, reason.Time, assistant)
}

// groupReply builds the offline auto-reply for a multi-party conversation,
// addressed at the triggering sender.
func groupReply(now time.Time, senderID, ownerCall string, reason persona.OfflineReason, assistant string) string {
	return fmt.Sprintf(
		"%s \n*Halo* @%s \n\n> Saat ini %s sedang offline. \n*Reason:* %s. \n*Sejak:* %s. \nTinggalkan pesan di bawah ini. \n\nBot:*%s*",
		Greeting(now), senderID, ownerCall, reason.Reason, reason.Time, assistant)
}
