package outbox

import platformevents "example.com/calmpulse/internal/platform/events"

const sessionCompletedSchema = `{
  "type": "object",
  "title": "SessionCompleted",
  "properties": {
    "session_id": {"type": "string"},
    "user_id": {"type": "string"},
    "day": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "month": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}$"},
    "duration_sec": {"type": "integer", "minimum": 0},
    "ended_at": {"type": "string", "format": "date-time"}
  },
  "required": ["session_id", "user_id", "day", "month", "duration_sec", "ended_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	platformevents.TypeSessionCompleted: {
		Schema: sessionCompletedSchema,
	},
}
