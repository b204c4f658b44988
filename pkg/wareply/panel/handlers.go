package panel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	qrcode "github.com/skip2/go-qrcode"
)

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	indicator := "🔴 Waiting for QR"
	if s.api.Connected() {
		indicator = "🟢 Connected"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<h2>WhatsApp Bot Panel</h2>
<p>Status: %s</p>
<a href="/qr"><button>Lihat QR Code</button></a>`, indicator)
}

func (s *Server) handleQRPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if _, ok := s.api.LatestPairing(); !ok {
		fmt.Fprint(w, `<h3>Bot sudah login ✔</h3><br><a href="/">Kembali</a>`)
		return
	}

	fmt.Fprint(w, `<h2>Scan QR WhatsApp untuk Login</h2>
<img src="/qr.png" />
<br><br>
<a href="/">Kembali</a>`)
}

func (s *Server) handleQRImage(w http.ResponseWriter, _ *http.Request) {
	code, ok := s.api.LatestPairing()
	if !ok {
		http.Error(w, "no pairing challenge outstanding", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("failed to render QR code", "error", err)
		http.Error(w, "failed to render QR code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// statusEntry is one session's line in the JSON status response.
type statusEntry struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.api.StatusSnapshot()

	entries := make([]statusEntry, 0, len(snapshot))
	for name, status := range snapshot {
		entries = append(entries, statusEntry{Name: name, Status: status})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	writeJSON(w, http.StatusOK, map[string]any{
		"connected": s.api.Connected(),
		"sessions":  entries,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
