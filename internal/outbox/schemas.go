package outbox

const activityLoggedSchema = `{
  "type": "object",
  "title": "ActivityLogged",
  "properties": {
    "activity_id": {"type": "string"},
    "goal_id": {"type": "string"},
    "staff_id": {"type": "string"},
    "activity_type": {"type": "string"},
    "activity_date": {"type": "string", "format": "date-time"},
    "duration_min": {"type": "integer"}
  },
  "required": ["activity_id", "goal_id", "staff_id", "activity_type", "activity_date"],
  "additionalProperties": false
}`

const activityRemovedSchema = `{
  "type": "object",
  "title": "ActivityRemoved",
  "properties": {
    "activity_id": {"type": "string"},
    "goal_id": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "goal_id", "occurred_at"],
  "additionalProperties": false
}`

const milestoneAchievedSchema = `{
  "type": "object",
  "title": "MilestoneAchieved",
  "properties": {
    "milestone_id": {"type": "string"},
    "goal_id": {"type": "string"},
    "title": {"type": "string"},
    "order_index": {"type": "integer"},
    "achieved_date": {"type": "string", "format": "date-time"}
  },
  "required": ["milestone_id", "goal_id", "title", "order_index", "achieved_date"],
  "additionalProperties": false
}`

const progressRecalculatedSchema = `{
  "type": "object",
  "title": "ProgressRecalculated",
  "properties": {
    "goal_id": {"type": "string"},
    "progress_pct": {"type": "integer", "minimum": 0, "maximum": 100},
    "recalculated_at": {"type": "string", "format": "date-time"}
  },
  "required": ["goal_id", "progress_pct", "recalculated_at"],
  "additionalProperties": false
}`
