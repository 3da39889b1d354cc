package domain

import "context"

// OfflineMessageStore persists webchat messages addressed to sessions with no
// live connection, for delivery when the customer reconnects.
type OfflineMessageStore interface {
	StoreOffline(ctx context.Context, dealershipID, sessionID string, payload []byte) error
	// DrainOffline returns pending payloads for a session in arrival order and
	// marks them delivered.
	DrainOffline(ctx context.Context, dealershipID, sessionID string) ([][]byte, error)
}

// StatusJournal projects provider webhook events onto external message ids so
// delivery status can be answered after the fact.
type StatusJournal interface {
	RecordStatus(ctx context.Context, externalID string, status DeliveryStatus, errCode, errMsg string) error
	LookupStatus(ctx context.Context, externalID string) (DeliveryStatus, bool, error)
}
