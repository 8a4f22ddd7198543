package log

// Common field names for structured logging.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldHousehold   = "household_id"
	FieldUser        = "user_id"
	FieldTransaction = "transaction_id"
	FieldCategory    = "category"
	FieldPartner     = "partner"
	FieldAmount      = "amount"
	FieldRoom        = "room_id"
	FieldTimeframe   = "timeframe"
)

// Components defines standard component names.
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentChat    = "chat"
	ComponentStream  = "stream"
	ComponentPush    = "push"
	ComponentCache   = "cache"
)

// Operations defines standard operation names.
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpDelete   = "delete"
	OpList     = "list"
	OpPublish  = "publish"
	OpDeliver  = "deliver"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)
