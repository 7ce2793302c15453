package session

import (
	"encoding/json"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// UserStatus is the account status carried by the user record.
type UserStatus string

const (
	StatusActive    UserStatus = "active"
	StatusPending   UserStatus = "pending"
	StatusSuspended UserStatus = "suspended"
	StatusDisabled  UserStatus = "disabled"
)

// User is the profile half of a Session. Immutable from the session's point
// of view except through Controller.UpdateUser.
type User struct {
	ID          uuid.UUID  `json:"id"`
	Phone       string     `json:"phone,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Role        UserRole   `json:"role"`
	Status      UserStatus `json:"status,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
}

// userSchemaVersion tracks the canonical wire schema for the persisted and
// remote user payloads. v1 payloads used the legacy field names below.
const userSchemaVersion = 2

// legacyUserFields maps v1 field names to their canonical v2 equivalents.
// The mapping is applied once, at the deserialization boundary; canonical
// names always win when both are present.
var legacyUserFields = map[string]string{
	"userId":         "id",
	"user_id":        "id",
	"phoneNumber":    "phone",
	"phone_number":   "phone",
	"name":           "display_name",
	"displayName":    "display_name",
	"userRole":       "role",
	"user_role":      "role",
	"isActive":       "is_active",
	"is_active":      "is_active",
	"permissionList": "permissions",
	"perms":          "permissions",
}

// canonicalUserFields is the closed set of fields a payload may carry after
// legacy mapping. Anything else fails closed.
var canonicalUserFields = map[string]struct{}{
	"id":           {},
	"phone":        {},
	"display_name": {},
	"role":         {},
	"status":       {},
	"is_active":    {},
	"permissions":  {},
}

// DecodeUser parses a user payload (persisted record or login response body)
// against the strict schema. Unknown fields and missing required fields fail
// closed rather than silently defaulting. region is the default phone region
// for normalization (e.g. "US").
func DecodeUser(data []byte, region string) (*User, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, ErrUserRecordInvalid.Clone().WithMetadata(map[string]any{
			"cause": err.Error(),
		})
	}

	canonical := make(map[string]json.RawMessage, len(fields))
	for key, value := range fields {
		name := key
		if mapped, ok := legacyUserFields[key]; ok {
			name = mapped
		}
		if _, ok := canonicalUserFields[name]; !ok {
			return nil, invalidUser(fmt.Sprintf("unknown field %q", key))
		}
		if _, exists := canonical[name]; exists && name != key {
			// Canonical name already present; legacy duplicate loses.
			continue
		}
		canonical[name] = value
	}

	user := &User{}

	rawID, ok := canonical["id"]
	if !ok {
		return nil, invalidUser("missing required field id")
	}
	var idStr string
	if err := json.Unmarshal(rawID, &idStr); err != nil {
		return nil, invalidUser("field id is not a string")
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, invalidUser("field id is not a valid uuid")
	}
	user.ID = id

	rawRole, ok := canonical["role"]
	if !ok {
		return nil, invalidUser("missing required field role")
	}
	var roleStr string
	if err := json.Unmarshal(rawRole, &roleStr); err != nil {
		return nil, invalidUser("field role is not a string")
	}
	role, valid := ParseRole(roleStr)
	if !valid {
		return nil, invalidUser(fmt.Sprintf("unknown role %q", roleStr))
	}
	user.Role = role

	if raw, ok := canonical["display_name"]; ok {
		if err := json.Unmarshal(raw, &user.DisplayName); err != nil {
			return nil, invalidUser("field display_name is not a string")
		}
	}

	if raw, ok := canonical["phone"]; ok {
		var phone string
		if err := json.Unmarshal(raw, &phone); err != nil {
			return nil, invalidUser("field phone is not a string")
		}
		normalized, err := normalizePhone(phone, region)
		if err != nil {
			return nil, err
		}
		user.Phone = normalized
	}

	if raw, ok := canonical["permissions"]; ok {
		if err := json.Unmarshal(raw, &user.Permissions); err != nil {
			return nil, invalidUser("field permissions is not a string list")
		}
	}

	status, err := decodeStatus(canonical)
	if err != nil {
		return nil, err
	}
	user.Status = status

	if err := user.Validate(); err != nil {
		return nil, ErrUserRecordInvalid.Clone().WithMetadata(map[string]any{
			"cause": err.Error(),
		})
	}

	return user, nil
}

// decodeStatus resolves the canonical status field, accepting the legacy
// is_active boolean only when no explicit status is present.
func decodeStatus(canonical map[string]json.RawMessage) (UserStatus, error) {
	if raw, ok := canonical["status"]; ok {
		var statusStr string
		if err := json.Unmarshal(raw, &statusStr); err != nil {
			return "", invalidUser("field status is not a string")
		}
		status := UserStatus(statusStr)
		if !status.IsValid() {
			return "", invalidUser(fmt.Sprintf("unknown status %q", statusStr))
		}
		return status, nil
	}

	if raw, ok := canonical["is_active"]; ok {
		active, err := parseBoolish(raw)
		if err != nil {
			return "", err
		}
		if active {
			return StatusActive, nil
		}
		return StatusDisabled, nil
	}

	return StatusActive, nil
}

// EncodeUser serializes the user record in canonical v2 form.
func EncodeUser(user *User) ([]byte, error) {
	if user == nil {
		return nil, invalidUser("user is nil")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return nil, ErrUserRecordInvalid.Clone().WithMetadata(map[string]any{
			"cause": err.Error(),
		})
	}
	return data, nil
}

// Validate applies the schema rules that JSON decoding cannot express.
func (u *User) Validate() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.DisplayName, validation.Length(0, 200)),
		validation.Field(&u.Role, validation.Required, validation.By(func(value any) error {
			role, _ := value.(UserRole)
			if !ValidRole(role) {
				return fmt.Errorf("unknown role %q", role)
			}
			return nil
		})),
	)
}

// parseBoolish applies the single truth table for boolean-ish values arriving
// as JSON bool, number, or string. Anything outside the table is an error,
// never a silent default.
func parseBoolish(raw json.RawMessage) (bool, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return false, invalidUser("unreadable boolean value")
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case float64:
		if v == 1 {
			return true, nil
		}
		if v == 0 {
			return false, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y", "on":
			return true, nil
		case "false", "0", "no", "n", "off":
			return false, nil
		}
	}

	return false, invalidUser(fmt.Sprintf("value %v is not a recognized boolean", value))
}

func normalizePhone(phone, region string) (string, error) {
	if phone == "" {
		return "", nil
	}

	parsed, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return "", invalidUser(fmt.Sprintf("phone %q is not parseable", phone))
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", invalidUser(fmt.Sprintf("phone %q is not a valid number", phone))
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

func invalidUser(reason string) error {
	return ErrUserRecordInvalid.Clone().WithMetadata(map[string]any{
		"reason":         reason,
		"schema_version": userSchemaVersion,
	})
}
