package booking

const (
	operationBook    = "book"
	operationPublish = "publish_reservation_created"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	metadataKeyCourtID = "court_id"
	metadataKeyDate    = "date"
	metadataKeySlots   = "slots"
)
