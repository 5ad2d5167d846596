package model

import (
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/sha3"
)

// Finding is a single issue reported by Slither or Solhint.
type Finding struct {
	// Tool is the analyzer that produced the finding ("slither" or "solhint").
	Tool string `json:"tool"`

	// Rule is the detector or rule identifier, e.g. "reentrancy-eth".
	Rule string `json:"rule,omitempty"`

	// Category is the report bucket.
	Category Category `json:"category"`

	// Severity is the tool's own severity text (High, Informational, Warning...).
	Severity string `json:"severity"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// Location is the rendered "file:lines" or "file:line:column" string.
	Location string `json:"location"`

	// File is the source file the finding points at.
	File string `json:"file,omitempty"`

	// Line is the first line of the finding, 0 when unknown.
	Line int `json:"line,omitempty"`

	// Fingerprint identifies the finding across audits.
	Fingerprint string `json:"fingerprint"`
}

// ComputeFingerprint returns a keccak256 digest over the fields that identify
// a finding. Line numbers are left out so that unrelated edits above a finding
// do not make it look new in a comparison.
func (f Finding) ComputeFingerprint() string {
	h := sha3.NewLegacyKeccak256()
	for _, part := range []string{f.Tool, f.Rule, string(f.Category), f.File, f.Message} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WithFingerprint returns a copy of the finding with Fingerprint populated.
func (f Finding) WithFingerprint() Finding {
	f.Fingerprint = f.ComputeFingerprint()
	return f
}
