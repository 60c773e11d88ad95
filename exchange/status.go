// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package exchange

// Status is the coordinated, user-facing view of an exchange attempt.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusWaitingForBump Status = "waiting-for-bump"
	StatusProcessing     Status = "processing"
	StatusBLEScanning    Status = "ble-scanning"
	StatusBLEDiscovered  Status = "ble-discovered"
	StatusBLEConnecting  Status = "ble-connecting"
	StatusBLEExchanging  Status = "ble-exchanging"
	StatusBLEMatched     Status = "ble-matched"
	StatusMatched        Status = "matched"
	StatusQRScanPending  Status = "qr-scan-pending"
	StatusQRScanMatched  Status = "qr-scan-matched"
	StatusTimeout        Status = "timeout"
	StatusError          Status = "error"
	StatusBLEUnavailable Status = "ble-unavailable"
)

// Terminal reports whether the status ends an attempt. A new session is
// required to retry from any terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusBLEMatched, StatusMatched, StatusQRScanMatched,
		StatusTimeout, StatusError:
		return true
	default:
		return false
	}
}

// MatchedStatus returns the status reported once a match of type t is found.
func MatchedStatus(t MatchType) Status {
	switch t {
	case MatchBLE:
		return StatusBLEMatched
	case MatchQRScan:
		return StatusQRScanMatched
	default:
		return StatusMatched
	}
}
