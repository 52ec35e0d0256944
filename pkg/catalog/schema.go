package catalog

// definitionSchema is the JSON Schema every workflow definition file
// must satisfy before struct-level validation runs. It front-loads the
// shape errors (wrong types, unknown enum values, missing settings) so
// they surface with the file name attached.
const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Workflow Definition",
  "type": "object",
  "required": ["id", "schedule", "start_date", "task_group"],
  "additionalProperties": false,
  "properties": {
    "id": {
      "type": "string",
      "minLength": 3,
      "pattern": "^[a-zA-Z0-9_-]+$"
    },
    "description": {
      "type": "string"
    },
    "schedule": {
      "type": "string",
      "minLength": 1
    },
    "start_date": {
      "type": "string",
      "pattern": "^\\d{4}-\\d{2}-\\d{2}$"
    },
    "catchup": {
      "type": "boolean"
    },
    "task_group": {
      "type": "object",
      "required": ["project_dir", "profiles_path", "profile_name", "target_name"],
      "additionalProperties": false,
      "properties": {
        "project_dir": {
          "type": "string",
          "minLength": 1
        },
        "profiles_path": {
          "type": "string",
          "minLength": 1
        },
        "profile_name": {
          "type": "string",
          "minLength": 1
        },
        "target_name": {
          "type": "string",
          "minLength": 1
        },
        "execution_mode": {
          "type": "string",
          "enum": ["local", "venv"]
        },
        "venv_path": {
          "type": "string"
        },
        "load_method": {
          "type": "string",
          "enum": ["manifest", "dbt-ls"]
        },
        "select": {
          "type": "array",
          "items": {"type": "string"}
        },
        "exclude": {
          "type": "array",
          "items": {"type": "string"}
        }
      }
    }
  }
}`
