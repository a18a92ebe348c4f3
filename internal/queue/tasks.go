package queue

const TypeKeyRotation = "keys:rotate"

type KeyRotationPayload struct {
	RotationID string `json:"rotation_id"`
}
