package dynamo

// DynamoDB attribute names used in expressions across repos.
const (
	fieldUserID        = "user_id"
	fieldEmail         = "email"
	fieldPasswordHash  = "password_hash"
	fieldUpdatedAt     = "updated_at"
	fieldWatermarkID   = "watermark_id"
	fieldCategory      = "category"
	fieldCreatedAtNs   = "created_at_ns"
	indexEmail         = "email-index"
	globalWatermarkKey = "global"
)
